package app_test

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"quicktrivia/internal/app"
	"quicktrivia/internal/domain"
	"quicktrivia/internal/infra/memory"
)

// manualScheduler fires timers only when the test asks it to.
type manualScheduler struct {
	mu     sync.Mutex
	timers []*manualTimer
}

type manualTimer struct {
	f       func()
	stopped bool
	fired   bool
}

func (s *manualScheduler) AfterFunc(_ time.Duration, f func()) func() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTimer{f: f}
	s.timers = append(s.timers, t)
	return func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		if t.stopped || t.fired {
			return false
		}
		t.stopped = true
		return true
	}
}

// fireNext runs the oldest live timer and reports whether there was one.
func (s *manualScheduler) fireNext() bool {
	s.mu.Lock()
	var next *manualTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			next = t
			break
		}
	}
	if next != nil {
		next.fired = true
	}
	s.mu.Unlock()

	if next == nil {
		return false
	}
	next.f()
	return true
}

// fireStopped runs timers that were stopped, as if Stop lost the race.
func (s *manualScheduler) fireStopped() int {
	s.mu.Lock()
	var late []*manualTimer
	for _, t := range s.timers {
		if t.stopped && !t.fired {
			t.fired = true
			late = append(late, t)
		}
	}
	s.mu.Unlock()

	for _, t := range late {
		t.f()
	}
	return len(late)
}

func (s *manualScheduler) live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// fakeProvider returns generated questions matching the requested settings.
type fakeProvider struct {
	mu        sync.Mutex
	calls     int
	available int
	err       error
	block     chan struct{}
	started   chan struct{}
}

func (p *fakeProvider) FetchQuestions(ctx context.Context, settings domain.QuizSettings) ([]domain.RawQuestion, error) {
	p.mu.Lock()
	p.calls++
	block, started := p.block, p.started
	p.mu.Unlock()

	if started != nil {
		close(started)
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.err != nil {
		return nil, p.err
	}

	n := settings.QuestionCount
	if p.available > 0 && p.available < n {
		n = p.available
	}
	difficulty := string(settings.Difficulty)
	if difficulty == "" {
		difficulty = "medium"
	}
	out := make([]domain.RawQuestion, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, domain.RawQuestion{
			Category:         "General Knowledge",
			Difficulty:       difficulty,
			Question:         fmt.Sprintf("Question %d?", i+1),
			CorrectAnswer:    fmt.Sprintf("right-%d", i),
			IncorrectAnswers: []string{fmt.Sprintf("wrong-a-%d", i), fmt.Sprintf("wrong-b-%d", i), fmt.Sprintf("wrong-c-%d", i)},
		})
	}
	return out, nil
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// fixedNames hands out room ids in order, then repeats the last one.
type fixedNames struct {
	mu  sync.Mutex
	ids []string
}

func (n *fixedNames) RoomID() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.ids[0]
	if len(n.ids) > 1 {
		n.ids = n.ids[1:]
	}
	return id
}

func (n *fixedNames) DisplayName() string {
	return "Curious Otter"
}

// testClock is a settable clock for sessions.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	service   *app.GameService
	clock     *testClock
	scheduler *manualScheduler
	provider  *fakeProvider
	rooms     *memory.RoomStore
	results   *memory.ResultStore
}

func newTestEnv(roomIDs ...string) *testEnv {
	if len(roomIDs) == 0 {
		roomIDs = []string{"river-otter-42"}
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	env := &testEnv{
		scheduler: &manualScheduler{},
		clock:     &testClock{now: time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)},
		provider:  &fakeProvider{},
		rooms:     memory.NewRoomStore(),
		results:   memory.NewResultStore(),
	}
	builder := app.NewPoolBuilderWithRand(env.provider, rand.New(rand.NewSource(42)))
	rooms := app.NewRoomSynchronizer(env.rooms, &fixedNames{ids: roomIDs}, logger)
	categories := memory.NewCategoryCache(memory.NewStaticCategoryLoader([]domain.Category{
		{ID: 9, Name: "General Knowledge"},
	}), time.Minute)

	env.service = app.NewGameService(memory.NewSessionStore(), rooms, builder, categories, env.results, app.ServiceConfig{
		Scheduler: env.scheduler,
		Now:       env.clock.Now,
		Logger:    logger,
	})
	return env
}

func intPtr(n int) *int {
	return &n
}

func difficultyPtr(d domain.Difficulty) *domain.Difficulty {
	return &d
}

func correctChoice(state domain.SessionState) int {
	for i, c := range state.Current.Choices {
		if c == fmt.Sprintf("right-%d", state.CurrentIndex) {
			return i
		}
	}
	return -1
}

func wrongChoice(state domain.SessionState) int {
	for i, c := range state.Current.Choices {
		if c != fmt.Sprintf("right-%d", state.CurrentIndex) {
			return i
		}
	}
	return -1
}
