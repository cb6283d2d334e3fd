package http

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"
	"quicktrivia/internal/app"
	"quicktrivia/internal/identity"
	"quicktrivia/internal/metrics"
)

// Options holds the optional collaborators of a Server.
type Options struct {
	Metrics *metrics.Metrics
	Logger  logrus.FieldLogger
	// Ping checks backing stores for /healthz.
	Ping func(ctx context.Context) error
	// LiveSessions reports sessions across instances for /healthz.
	LiveSessions func(ctx context.Context) (int, error)
}

// Server exposes the game over JSON HTTP and websockets.
type Server struct {
	service  *app.GameService
	ids      *identity.CookieProvider
	metrics  *metrics.Metrics
	log      logrus.FieldLogger
	ping     func(ctx context.Context) error
	live     func(ctx context.Context) (int, error)
	upgrader websocket.Upgrader
}

func NewServer(service *app.GameService, ids *identity.CookieProvider, opts Options) *Server {
	s := &Server{
		service: service,
		ids:     ids,
		metrics: opts.Metrics,
		log:     opts.Logger,
		ping:    opts.Ping,
		live:    opts.LiveSessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	return s
}

// Router registers every route of the game.
func (s *Server) Router() *httprouter.Router {
	mux := httprouter.New()

	s.handle(mux, http.MethodGet, "/", s.home)
	s.handle(mux, http.MethodPost, "/mode", s.selectMode)
	s.handle(mux, http.MethodGet, "/setup", s.setup)
	s.handle(mux, http.MethodPatch, "/settings", s.updateSettings)
	s.handle(mux, http.MethodPost, "/submit", s.submit)
	s.handle(mux, http.MethodGet, "/room/:id", s.joinRoom)
	s.handle(mux, http.MethodGet, "/room/:id/ws", s.serveRoomWS)
	s.handle(mux, http.MethodGet, "/room/:id/qr", s.roomQR)
	s.handle(mux, http.MethodGet, "/play", s.play)
	s.handle(mux, http.MethodGet, "/play/:id", s.play)
	s.handle(mux, http.MethodPost, "/answer", s.answer)
	s.handle(mux, http.MethodPost, "/reset", s.reset)
	s.handle(mux, http.MethodGet, "/ws", s.serveSessionWS)
	s.handle(mux, http.MethodGet, "/categories", s.categories)
	s.handle(mux, http.MethodGet, "/history", s.history)
	s.handle(mux, http.MethodGet, "/healthz", s.healthz)
	if s.metrics != nil {
		mux.Handler(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	return mux
}

func (s *Server) handle(mux *httprouter.Router, method, path string, h httprouter.Handle) {
	if s.metrics == nil {
		mux.Handle(method, path, h)
		return
	}
	mux.Handle(method, path, func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		s.metrics.Instrument(path, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h(w, r, ps)
		})).ServeHTTP(w, r)
	})
}
