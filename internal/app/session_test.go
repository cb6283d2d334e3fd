package app_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"quicktrivia/internal/app"
	"quicktrivia/internal/domain"
)

func startSolo(t *testing.T, env *testEnv, playerID string, patch domain.SettingsPatch) domain.SessionState {
	t.Helper()
	ctx := context.Background()
	if _, err := env.service.SelectMode(ctx, playerID, domain.ModeSolo); err != nil {
		t.Fatalf("select mode: %v", err)
	}
	if _, err := env.service.EnterSetup(ctx, playerID); err != nil {
		t.Fatalf("enter setup: %v", err)
	}
	if _, err := env.service.UpdateSettings(ctx, playerID, patch); err != nil {
		t.Fatalf("update settings: %v", err)
	}
	state, err := env.service.Submit(ctx, playerID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return state
}

func TestSoloGameRunsToSummary(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	state := startSolo(t, env, "p1", domain.SettingsPatch{
		QuestionCount: intPtr(10),
		CategoryID:    intPtr(9),
		Difficulty:    difficultyPtr(domain.DifficultyEasy),
	})
	if state.Phase != domain.PhaseInProgress || state.Total != 10 || state.CurrentIndex != 0 {
		t.Fatalf("expected game with 10 questions at index 0, got %+v", state)
	}

	for i := 0; i < 10; i++ {
		if state.Current == nil || state.Current.Difficulty != domain.DifficultyEasy {
			t.Fatalf("expected easy question at %d, got %+v", i, state.Current)
		}
		choice := correctChoice(state)
		if i%2 == 1 {
			choice = wrongChoice(state)
		}
		answered, err := env.service.Answer(ctx, "p1", choice)
		if err != nil {
			t.Fatalf("answer %d: %v", i, err)
		}
		if !answered.RevealActive || answered.Current.CorrectAnswer == "" {
			t.Fatalf("expected reveal after answer %d, got %+v", i, answered)
		}
		if !env.scheduler.fireNext() {
			t.Fatalf("expected pending reveal timer after answer %d", i)
		}
		state, _ = env.service.State(ctx, "p1")
	}

	if state.Phase != domain.PhaseSummary {
		t.Fatalf("expected summary, got %s", state.Phase)
	}
	if state.CurrentIndex != 10 {
		t.Fatalf("expected index 10, got %d", state.CurrentIndex)
	}
	if state.Summary == nil || state.Summary.Score != 5 || state.Summary.Total != 10 || state.Summary.Expert {
		t.Fatalf("unexpected summary %+v", state.Summary)
	}

	history, err := env.service.History(ctx, "p1", 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].Score != 5 || history[0].ID == "" {
		t.Fatalf("expected saved result, got %+v", history)
	}
}

func TestSubmitRejectsQuestionCountOutOfRange(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	_, _ = env.service.SelectMode(ctx, "p1", domain.ModeSolo)
	_, _ = env.service.EnterSetup(ctx, "p1")
	if _, err := env.service.SetQuestionCount(ctx, "p1", 3); err != nil {
		t.Fatalf("set question count: %v", err)
	}

	state, err := env.service.Submit(ctx, "p1")
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if verr.Field != "questionCount" || !strings.Contains(verr.Message, "5") || !strings.Contains(verr.Message, "25") {
		t.Fatalf("expected message naming the 5-25 bound, got %q", verr.Message)
	}
	if state.Phase != domain.PhaseConfiguring {
		t.Fatalf("expected to stay configuring, got %s", state.Phase)
	}
	if env.provider.callCount() != 0 {
		t.Fatalf("provider must not be called for invalid settings")
	}
}

func TestDoubleAnswerScoresOnce(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	state := startSolo(t, env, "p1", domain.SettingsPatch{QuestionCount: intPtr(5)})

	choice := correctChoice(state)
	if _, err := env.service.Answer(ctx, "p1", choice); err != nil {
		t.Fatalf("answer: %v", err)
	}
	second, err := env.service.Answer(ctx, "p1", choice)
	if err != nil {
		t.Fatalf("second answer: %v", err)
	}
	if second.Score != 1 {
		t.Fatalf("expected score 1 after double submit, got %d", second.Score)
	}
	if env.scheduler.live() != 1 {
		t.Fatalf("expected exactly one pending timer, got %d", env.scheduler.live())
	}

	env.scheduler.fireNext()
	state, _ = env.service.State(ctx, "p1")
	if state.CurrentIndex != 1 || state.RevealActive {
		t.Fatalf("expected next question after reveal, got %+v", state)
	}
}

func TestResetCancelsPendingReveal(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	state := startSolo(t, env, "p1", domain.SettingsPatch{QuestionCount: intPtr(5)})

	if _, err := env.service.Answer(ctx, "p1", correctChoice(state)); err != nil {
		t.Fatalf("answer: %v", err)
	}
	reset, err := env.service.Reset(ctx, "p1")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if reset.Phase != domain.PhaseIdle || reset.CurrentIndex != -1 || reset.Score != 0 {
		t.Fatalf("unexpected reset state %+v", reset)
	}

	if env.scheduler.live() != 0 {
		t.Fatalf("expected reveal timer to be stopped")
	}
	// even if the stopped timer still runs, it must not touch the session
	if env.scheduler.fireStopped() != 1 {
		t.Fatalf("expected one stopped timer")
	}
	state, _ = env.service.State(ctx, "p1")
	if state.Phase != domain.PhaseIdle || state.CurrentIndex != -1 || state.Score != 0 || state.RevealActive {
		t.Fatalf("stale timer mutated state: %+v", state)
	}
}

func TestResubmitCancelsPendingReveal(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	state := startSolo(t, env, "p1", domain.SettingsPatch{QuestionCount: intPtr(5)})

	if _, err := env.service.Answer(ctx, "p1", correctChoice(state)); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if _, err := env.service.EnterSetup(ctx, "p1"); err != nil {
		t.Fatalf("back to setup: %v", err)
	}
	replay, err := env.service.Submit(ctx, "p1")
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if replay.CurrentIndex != 0 || replay.Score != 0 || replay.RevealActive {
		t.Fatalf("expected fresh game, got %+v", replay)
	}

	env.scheduler.fireStopped()
	state, _ = env.service.State(ctx, "p1")
	if state.CurrentIndex != 0 || state.Phase != domain.PhaseInProgress {
		t.Fatalf("old reveal advanced the new game: %+v", state)
	}
}

func TestSubmitFailureStaysConfiguring(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	env.provider.err = errors.New("connection refused")

	_, _ = env.service.SelectMode(ctx, "p1", domain.ModeSolo)
	_, _ = env.service.EnterSetup(ctx, "p1")

	state, err := env.service.Submit(ctx, "p1")
	if !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
	if state.Phase != domain.PhaseConfiguring || state.Total != 0 || state.Loading {
		t.Fatalf("expected configuring without pool, got %+v", state)
	}
}

func TestPoolShorterThanRequestedIsTolerated(t *testing.T) {
	env := newTestEnv()
	env.provider.available = 6

	state := startSolo(t, env, "p1", domain.SettingsPatch{QuestionCount: intPtr(10)})
	if state.Total != 6 {
		t.Fatalf("expected 6 questions, got %d", state.Total)
	}
}

func TestStaleLoadIsDropped(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	env.provider.block = make(chan struct{})
	env.provider.started = make(chan struct{})

	_, _ = env.service.SelectMode(ctx, "p1", domain.ModeSolo)
	_, _ = env.service.EnterSetup(ctx, "p1")

	type result struct {
		state domain.SessionState
		err   error
	}
	done := make(chan result, 1)
	go func() {
		state, err := env.service.Submit(ctx, "p1")
		done <- result{state, err}
	}()

	<-env.provider.started
	loading, _ := env.service.State(ctx, "p1")
	if !loading.Loading {
		t.Fatalf("expected loading state while fetching")
	}
	if _, err := env.service.Reset(ctx, "p1"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	close(env.provider.block)

	res := <-done
	if !errors.Is(res.err, domain.ErrInvalidTransition) {
		t.Fatalf("expected superseded submit, got %v", res.err)
	}
	state, _ := env.service.State(ctx, "p1")
	if state.Phase != domain.PhaseIdle || state.Total != 0 {
		t.Fatalf("stale pool committed: %+v", state)
	}
}

func TestAnswerValidation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	if _, err := env.service.Answer(ctx, "nobody", 0); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	_, _ = env.service.SelectMode(ctx, "p1", domain.ModeSolo)
	if _, err := env.service.Answer(ctx, "p1", 0); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition before the game, got %v", err)
	}

	startSolo(t, env, "p2", domain.SettingsPatch{QuestionCount: intPtr(5)})
	if _, err := env.service.Answer(ctx, "p2", 4); !errors.Is(err, domain.ErrInvalidChoice) {
		t.Fatalf("expected ErrInvalidChoice, got %v", err)
	}
	if env.scheduler.live() != 0 {
		t.Fatalf("invalid choice must not start a reveal")
	}
}

func TestSelectModeRequiresIdentity(t *testing.T) {
	env := newTestEnv()
	if _, err := env.service.SelectMode(context.Background(), "", domain.ModeMultiplayer); !errors.Is(err, domain.ErrIdentityUnavailable) {
		t.Fatalf("expected ErrIdentityUnavailable, got %v", err)
	}
}

func TestSubscribeReceivesTransitions(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	ch, cancel, err := env.service.Subscribe(ctx, "p1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	initial := <-ch
	if initial.Phase != domain.PhaseIdle {
		t.Fatalf("expected idle snapshot, got %s", initial.Phase)
	}

	if _, err := env.service.SelectMode(ctx, "p1", domain.ModeSolo); err != nil {
		t.Fatalf("select mode: %v", err)
	}
	update := <-ch
	if update.Phase != domain.PhaseModeSelected || update.Mode != domain.ModeSolo {
		t.Fatalf("expected mode_selected update, got %+v", update)
	}
}

func TestSessionWithoutServiceDefaultsToRealScheduler(t *testing.T) {
	session := app.NewSession("p1", app.SessionOptions{})
	state := session.State()
	if state.Phase != domain.PhaseIdle || state.CurrentIndex != -1 {
		t.Fatalf("unexpected initial state %+v", state)
	}
	if session.RevealPending() {
		t.Fatalf("new session must not have a pending reveal")
	}
}
