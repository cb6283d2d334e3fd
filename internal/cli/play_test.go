package cli

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"quicktrivia/internal/config"
	"quicktrivia/internal/infra/opentdb"
)

func TestPlaySoloInTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var results []string
		for i := 0; i < 5; i++ {
			results = append(results, fmt.Sprintf(`{"category":"General Knowledge","difficulty":"easy","question":"Q%d &amp; more?","correct_answer":"yes","incorrect_answers":["no","maybe","never"]}`, i))
		}
		_, _ = w.Write([]byte(`{"response_code":0,"results":[` + strings.Join(results, ",") + `]}`))
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Game.RevealDelay = "1ms"
	service := newLocalService(cfg, opentdb.NewClient(srv.URL, time.Second))

	// one bad line first, then always the first choice
	in := strings.NewReader("x\n1\n1\n1\n1\n1\n")
	var out bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := playSolo(ctx, service, playOptions{questions: 5, difficulty: "easy"}, in, &out)
	if err != nil {
		t.Fatalf("play: %v\n%s", err, out.String())
	}
	text := out.String()
	if !strings.Contains(text, "Question 5/5") || !strings.Contains(text, "Q0 & more?") {
		t.Fatalf("expected all questions decoded, got:\n%s", text)
	}
	if !strings.Contains(text, "Final score: ") || !strings.Contains(text, "/5") {
		t.Fatalf("expected final score, got:\n%s", text)
	}
}

func TestPlayAsksForQuestionCount(t *testing.T) {
	amounts := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case amounts <- r.URL.Query().Get("amount"):
		default:
		}
		var results []string
		for i := 0; i < 5; i++ {
			results = append(results, fmt.Sprintf(`{"category":"Science","difficulty":"easy","question":"Q%d?","correct_answer":"yes","incorrect_answers":["no","maybe","never"]}`, i))
		}
		_, _ = w.Write([]byte(`{"response_code":0,"results":[` + strings.Join(results, ",") + `]}`))
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Game.RevealDelay = "1ms"
	service := newLocalService(cfg, opentdb.NewClient(srv.URL, time.Second))

	in := strings.NewReader("five\n5\n1\n1\n1\n1\n1\n")
	var out bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := playSolo(ctx, service, playOptions{}, in, &out); err != nil {
		t.Fatalf("play: %v\n%s", err, out.String())
	}
	text := out.String()
	if !strings.Contains(text, "empty for 10") || !strings.Contains(text, "whole number") {
		t.Fatalf("expected count prompt and a retry after bad input, got:\n%s", text)
	}
	if amount := <-amounts; amount != "5" || !strings.Contains(text, "Question 5/5") {
		t.Fatalf("expected a 5-question game, amount=%q, got:\n%s", amount, text)
	}
}

func TestPlayRejectsInvalidCount(t *testing.T) {
	service := newLocalService(config.Default(), opentdb.NewClient("http://127.0.0.1:0", time.Second))
	err := playSolo(context.Background(), service, playOptions{questions: 40}, strings.NewReader(""), &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "question count") {
		t.Fatalf("expected question count error, got %v", err)
	}
}
