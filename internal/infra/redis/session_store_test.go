package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"quicktrivia/internal/app"
)

func TestSessionStoreSetsAndClearsKeys(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	store := NewSessionStore(newClient(mr), time.Minute)
	created := 0
	create := func() *app.Session {
		created++
		return app.NewSession("player-1", app.SessionOptions{})
	}

	first := store.GetOrCreate("player-1", create)
	if !mr.Exists("games:session:player-1") {
		t.Fatalf("expected redis key to be set")
	}
	if again := store.GetOrCreate("player-1", create); again != first || created != 1 {
		t.Fatalf("expected the same session, created=%d", created)
	}

	mr.FastForward(30 * time.Second)
	if _, ok := store.Get("player-1"); !ok {
		t.Fatalf("expected session to exist")
	}
	if ttl := mr.TTL("games:session:player-1"); ttl != time.Minute {
		t.Fatalf("expected ttl refreshed to 1m, got %s", ttl)
	}

	live, err := store.LiveSessions(context.Background())
	if err != nil {
		t.Fatalf("live sessions: %v", err)
	}
	if live != 1 {
		t.Fatalf("expected 1 live session, got %d", live)
	}

	if !store.DeleteIf("player-1", func(*app.Session) bool { return true }) {
		t.Fatalf("expected session deleted")
	}
	if mr.Exists("games:session:player-1") {
		t.Fatalf("expected redis key to be removed")
	}
	if _, ok := store.Get("player-1"); ok {
		t.Fatalf("expected session to be removed")
	}
}

func TestSessionStoreSweepClearsKeys(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	store := NewSessionStore(newClient(mr), time.Minute)
	store.GetOrCreate("player-1", func() *app.Session { return app.NewSession("player-1", app.SessionOptions{}) })
	store.GetOrCreate("player-2", func() *app.Session { return app.NewSession("player-2", app.SessionOptions{}) })

	if n := store.Sweep(func(s *app.Session) bool { return s.ID() == "player-1" }); n != 1 {
		t.Fatalf("expected 1 session swept, got %d", n)
	}
	if mr.Exists("games:session:player-1") {
		t.Fatalf("expected liveness key of swept session removed")
	}
	if !mr.Exists("games:session:player-2") {
		t.Fatalf("expected liveness key of kept session")
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
