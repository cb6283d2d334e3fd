package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestJSONLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput("debug", "json", &buf)
	log.WithField("room_id", "river-otter-42").Debug("room created")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected json line, got %q: %v", buf.String(), err)
	}
	if entry["message"] != "room created" || entry["room_id"] != "river-otter-42" || entry["level"] != "debug" {
		t.Fatalf("unexpected entry %+v", entry)
	}
}

func TestUnknownLevelFallsBackToInfo(t *testing.T) {
	log := NewWithOutput("loud", "text", &bytes.Buffer{})
	if log.GetLevel() != logrus.InfoLevel {
		t.Fatalf("expected info level, got %s", log.GetLevel())
	}
}
