package app_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"quicktrivia/internal/app"
	"quicktrivia/internal/domain"
	"quicktrivia/internal/infra/memory"
)

func TestReleaseDropsOnlyIdleSessions(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	if _, err := env.service.State(ctx, "idle"); err != nil {
		t.Fatalf("state: %v", err)
	}
	startSolo(t, env, "playing", domain.SettingsPatch{QuestionCount: intPtr(5)})

	if !env.service.Release("idle") {
		t.Fatalf("expected idle session released")
	}
	if env.service.Release("playing") {
		t.Fatalf("a running game must survive its stream closing")
	}
	if _, err := env.service.Answer(ctx, "playing", 0); err != nil {
		t.Fatalf("expected game to go on, got %v", err)
	}
	if _, err := env.service.Reset(ctx, "idle"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected released session gone, got %v", err)
	}
}

func TestReleaseKeepsWatchedSession(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	_, cancel, err := env.service.Subscribe(ctx, "p1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if env.service.Release("p1") {
		t.Fatalf("session with a subscriber must be kept")
	}
	cancel()
	if !env.service.Release("p1") {
		t.Fatalf("expected release after the last subscriber left")
	}
}

func TestEvictDormantSessions(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	if _, err := env.service.State(ctx, "idle"); err != nil {
		t.Fatalf("state: %v", err)
	}
	startSolo(t, env, "abandoned", domain.SettingsPatch{QuestionCount: intPtr(5)})
	_, cancel, err := env.service.Subscribe(ctx, "watched")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	if n := env.service.EvictDormant(2 * time.Hour); n != 0 {
		t.Fatalf("expected nothing evicted yet, got %d", n)
	}

	env.clock.Advance(3 * time.Hour)
	if n := env.service.EvictDormant(2 * time.Hour); n != 2 {
		t.Fatalf("expected 2 dormant sessions evicted, got %d", n)
	}
	if _, err := env.service.Answer(ctx, "abandoned", 0); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected abandoned session evicted, got %v", err)
	}
	if _, err := env.service.Reset(ctx, "watched"); err != nil {
		t.Fatalf("expected watched session kept, got %v", err)
	}
}

func TestEvictDormantKeepsPendingReveal(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	state := startSolo(t, env, "p1", domain.SettingsPatch{QuestionCount: intPtr(5)})
	if _, err := env.service.Answer(ctx, "p1", correctChoice(state)); err != nil {
		t.Fatalf("answer: %v", err)
	}

	env.clock.Advance(3 * time.Hour)
	if n := env.service.EvictDormant(2 * time.Hour); n != 0 {
		t.Fatalf("session with a pending reveal must be kept, evicted %d", n)
	}
}

func TestEmptyCategoryListIsProviderFailure(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	rooms := app.NewRoomSynchronizer(memory.NewRoomStore(), &fixedNames{ids: []string{"r1"}}, logger)
	categories := memory.NewCategoryCache(memory.NewStaticCategoryLoader(nil), time.Minute)
	service := app.NewGameService(memory.NewSessionStore(), rooms, app.NewPoolBuilder(&fakeProvider{}), categories, memory.NewResultStore(), app.ServiceConfig{
		Logger: logger,
	})

	if _, err := service.Categories(context.Background()); !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable for an empty list, got %v", err)
	}
}
