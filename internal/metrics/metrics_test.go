package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"quicktrivia/internal/domain"
)

func TestObserverCounts(t *testing.T) {
	m := New()
	m.GameStarted(domain.ModeSolo)
	m.GameStarted(domain.ModeSolo)
	m.AnswerSubmitted(true)
	m.AnswerSubmitted(false)
	m.AnswerSubmitted(true)
	m.GameFinished(domain.ModeMultiplayer)
	m.ProviderFailed()
	m.RoomJoined()

	if got := testutil.ToFloat64(m.GamesStarted.WithLabelValues("solo")); got != 2 {
		t.Fatalf("expected 2 solo games, got %v", got)
	}
	if got := testutil.ToFloat64(m.Answers.WithLabelValues("true")); got != 2 {
		t.Fatalf("expected 2 correct answers, got %v", got)
	}
	if got := testutil.ToFloat64(m.ProviderErrors); got != 1 {
		t.Fatalf("expected 1 provider error, got %v", got)
	}
}

func TestInstrumentAndHandler(t *testing.T) {
	m := New()
	h := m.Instrument("/answer", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/answer", nil))

	if got := testutil.ToFloat64(m.RequestCounter.WithLabelValues("/answer", "409")); got != 1 {
		t.Fatalf("expected one 409, got %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Result().Body)
	if !strings.Contains(string(body), "quicktrivia_http_requests_total") {
		t.Fatalf("expected request counter in exposition")
	}
}
