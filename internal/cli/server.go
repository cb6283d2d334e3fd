package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"quicktrivia/internal/app"
	"quicktrivia/internal/config"
	"quicktrivia/internal/identity"
	"quicktrivia/internal/infra/memory"
	"quicktrivia/internal/infra/opentdb"
	"quicktrivia/internal/infra/postgres"
	infraredis "quicktrivia/internal/infra/redis"
	"quicktrivia/internal/logger"
	"quicktrivia/internal/metrics"
	"quicktrivia/internal/names"
	transport "quicktrivia/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the trivia server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// backends holds the stores chosen from the config: Redis and Postgres when
// configured, process memory otherwise.
type backends struct {
	sessions   app.SessionRepository
	rooms      app.RoomStore
	categories app.CategorySource
	results    app.ResultRepository
	ping       func(ctx context.Context) error
	live       func(ctx context.Context) (int, error)
	close      func()
}

func openBackends(ctx context.Context, cfg config.Config, provider *opentdb.Client, log logrus.FieldLogger) (*backends, error) {
	b := &backends{
		sessions:   memory.NewSessionStore(),
		rooms:      memory.NewRoomStore(),
		categories: memory.NewCategoryCache(provider, config.TTLDuration(cfg.Trivia.CategoryTTL, time.Hour)),
		results:    memory.NewResultStore(),
		close:      func() {},
	}
	var checks []func(ctx context.Context) error

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ttl := config.TTLDuration(cfg.Redis.TTL, 2*time.Hour)
		sessions := infraredis.NewSessionStore(client, ttl)
		b.sessions = sessions
		b.rooms = infraredis.NewRoomStore(client, ttl)
		b.categories = infraredis.NewCategoryCache(client, provider, config.TTLDuration(cfg.Trivia.CategoryTTL, time.Hour))
		b.live = sessions.LiveSessions
		checks = append(checks, func(ctx context.Context) error { return client.Ping(ctx).Err() })

		prevClose := b.close
		b.close = func() {
			_ = client.Close()
			prevClose()
		}
		log.WithField("addr", cfg.Redis.Addr).Info("using redis stores")
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			b.close()
			return nil, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			b.close()
			return nil, err
		}
		b.results = postgres.NewResultStore(pool)
		checks = append(checks, func(ctx context.Context) error { return pool.Ping(ctx) })

		prevClose := b.close
		b.close = func() {
			pool.Close()
			prevClose()
		}
		log.Info("using postgres game history")
	}

	if len(checks) > 0 {
		b.ping = func(ctx context.Context) error {
			for _, check := range checks {
				if err := check(ctx); err != nil {
					return err
				}
			}
			return nil
		}
	}
	return b, nil
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	provider := opentdb.NewClient(cfg.Trivia.BaseURL, config.TTLDuration(cfg.Trivia.Timeout, 10*time.Second))
	stores, err := openBackends(ctx, cfg, provider, log)
	if err != nil {
		return err
	}
	defer stores.close()

	m := metrics.New()
	rooms := app.NewRoomSynchronizer(stores.rooms, names.NewGenerator(), log)
	service := app.NewGameService(stores.sessions, rooms, app.NewPoolBuilder(provider), stores.categories, stores.results, app.ServiceConfig{
		RevealDelay:          config.TTLDuration(cfg.Game.RevealDelay, app.DefaultRevealDelay),
		DefaultQuestionCount: cfg.Game.DefaultQuestionCount,
		Observer:             m,
		Logger:               log,
	})

	evictCtx, stopEviction := context.WithCancel(ctx)
	defer stopEviction()
	idle := config.TTLDuration(cfg.Game.SessionIdle, 2*time.Hour)
	go service.RunEviction(evictCtx, idle, evictionInterval(idle))

	ids := identity.NewCookieProvider(cfg.Identity.CookieName, cfg.Identity.Secure)
	handler := transport.NewServer(service, ids, transport.Options{
		Metrics:      m,
		Logger:       log,
		Ping:         stores.ping,
		LiveSessions: stores.live,
	})

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     handler.Router(),
		ReadTimeout: 15 * time.Second,
		// no WriteTimeout: websocket streams stay open
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.WithField("port", finalPort).Info("starting trivia server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server...")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func evictionInterval(idle time.Duration) time.Duration {
	interval := idle / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	return interval
}
