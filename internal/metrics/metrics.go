package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"quicktrivia/internal/domain"
)

const namespace = "quicktrivia"

// Metrics holds the Prometheus collectors of the service. It implements
// app.Observer.
type Metrics struct {
	registry *prometheus.Registry

	GamesStarted    *prometheus.CounterVec
	GamesFinished   *prometheus.CounterVec
	Answers         *prometheus.CounterVec
	ProviderErrors  prometheus.Counter
	RoomJoins       prometheus.Counter
	RequestCounter  *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry, so several instances can
// live in one process (tests).
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		GamesStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "games_started_total",
			Help:      "Games started, by mode",
		}, []string{"mode"}),
		GamesFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "games_finished_total",
			Help:      "Games that reached the summary, by mode",
		}, []string{"mode"}),
		Answers: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_total",
			Help:      "Accepted answers, by correctness",
		}, []string{"correct"}),
		ProviderErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Failed trivia provider requests",
		}),
		RoomJoins: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "room_joins_total",
			Help:      "Players entering a multiplayer room",
		}),
		RequestCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"route", "status"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

func (m *Metrics) GameStarted(mode domain.Mode) {
	m.GamesStarted.WithLabelValues(string(mode)).Inc()
}

func (m *Metrics) AnswerSubmitted(correct bool) {
	m.Answers.WithLabelValues(strconv.FormatBool(correct)).Inc()
}

func (m *Metrics) GameFinished(mode domain.Mode) {
	m.GamesFinished.WithLabelValues(string(mode)).Inc()
}

func (m *Metrics) ProviderFailed() {
	m.ProviderErrors.Inc()
}

func (m *Metrics) RoomJoined() {
	m.RoomJoins.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Instrument records count and duration of requests to route.
func (m *Metrics) Instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		m.RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		m.RequestCounter.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets websocket upgrades pass through Instrument.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
