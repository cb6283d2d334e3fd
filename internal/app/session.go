package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"quicktrivia/internal/domain"
)

// PoolLoader produces the questions for a submitted game.
type PoolLoader func(ctx context.Context, settings domain.QuizSettings) (domain.QuestionPool, error)

// SessionOptions configures a new session. Zero values fall back to defaults.
type SessionOptions struct {
	Scheduler   Scheduler
	RevealDelay time.Duration
	Now         func() time.Time

	// DefaultQuestionCount replaces domain.DefaultQuestionCount when set.
	DefaultQuestionCount int

	// OnFinish is called without the session lock once the summary is reached.
	OnFinish func(domain.GameResult)
}

// Session is the game state machine of one player:
// idle -> mode_selected -> configuring -> in_progress -> summary.
type Session struct {
	id       string
	now      func() time.Time
	onFinish func(domain.GameResult)
	defaults domain.QuizSettings

	mu           sync.Mutex
	phase        domain.Phase
	mode         domain.Mode
	role         domain.Role
	settings     domain.QuizSettings
	pool         domain.QuestionPool
	index        int
	score        int
	revealActive bool
	lastAnswer   *domain.AnswerOutcome
	loading      bool
	loadSeq      uint64
	timer        *revealTimer
	updatedAt    time.Time
	subscribers  map[chan domain.SessionState]struct{}
}

// NewSession creates an idle session for playerID.
func NewSession(playerID string, opts SessionOptions) *Session {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	defaults := domain.DefaultSettings()
	if opts.DefaultQuestionCount > 0 {
		defaults.QuestionCount = opts.DefaultQuestionCount
	}
	s := &Session{
		id:          playerID,
		now:         now,
		onFinish:    opts.OnFinish,
		defaults:    defaults,
		timer:       newRevealTimer(opts.Scheduler, opts.RevealDelay),
		subscribers: make(map[chan domain.SessionState]struct{}),
	}
	s.resetLocked()
	s.updatedAt = now()
	return s
}

// ID returns the owning player id.
func (s *Session) ID() string {
	return s.id
}

// State returns a snapshot of the session.
func (s *Session) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// RoomID returns the multiplayer room of the session, if any.
func (s *Session) RoomID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings.RoomID
}

// SelectMode stores the chosen mode. roomID and role only apply to multiplayer.
// Choosing again before a game starts replaces the previous choice.
func (s *Session) SelectMode(mode domain.Mode, roomID string, role domain.Role) (domain.SessionState, error) {
	if !mode.Valid() {
		return s.State(), fmt.Errorf("%w: unknown mode %q", domain.ErrInvalidTransition, mode)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.phase {
	case domain.PhaseIdle, domain.PhaseModeSelected, domain.PhaseConfiguring:
	default:
		return s.snapshotLocked(), fmt.Errorf("%w: select mode in %s", domain.ErrInvalidTransition, s.phase)
	}

	s.resetLocked()
	s.phase = domain.PhaseModeSelected
	s.mode = mode
	if mode == domain.ModeMultiplayer {
		s.settings.RoomID = roomID
		s.role = role
	}
	return s.broadcastLocked(), nil
}

// EnterRoom puts the session into the setup of a multiplayer room, mirroring
// the room's settings. Re-entering the room of a running game is a no-op.
func (s *Session) EnterRoom(roomID string, role domain.Role, settings domain.QuizSettings) (domain.SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.phase {
	case domain.PhaseIdle, domain.PhaseModeSelected, domain.PhaseConfiguring:
	default:
		if s.mode == domain.ModeMultiplayer && s.settings.RoomID == roomID {
			return s.snapshotLocked(), nil
		}
		return s.snapshotLocked(), fmt.Errorf("%w: join room in %s", domain.ErrInvalidTransition, s.phase)
	}

	if s.mode != domain.ModeMultiplayer || s.settings.RoomID != roomID {
		s.resetLocked()
	}
	s.mode = domain.ModeMultiplayer
	s.role = role
	s.settings = settings
	s.settings.RoomID = roomID
	s.phase = domain.PhaseConfiguring
	return s.broadcastLocked(), nil
}

// EnterSetup moves the session to the setup screen.
func (s *Session) EnterSetup() (domain.SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.phase {
	case domain.PhaseConfiguring:
		return s.snapshotLocked(), nil
	case domain.PhaseModeSelected, domain.PhaseInProgress:
		s.phase = domain.PhaseConfiguring
		return s.broadcastLocked(), nil
	default:
		return s.snapshotLocked(), fmt.Errorf("%w: enter setup in %s", domain.ErrInvalidTransition, s.phase)
	}
}

// UpdateSettings merges patch into the local settings of a solo game.
// Multiplayer settings live in the room and arrive through ApplyRoomSettings.
func (s *Session) UpdateSettings(patch domain.SettingsPatch) (domain.SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != domain.PhaseConfiguring {
		return s.snapshotLocked(), fmt.Errorf("%w: update settings in %s", domain.ErrInvalidTransition, s.phase)
	}
	if s.mode != domain.ModeSolo {
		return s.snapshotLocked(), fmt.Errorf("%w: room settings are shared", domain.ErrInvalidTransition)
	}
	s.settings = patch.Apply(s.settings)
	return s.broadcastLocked(), nil
}

// SetQuestionCount is the explicit entry point for the question count.
func (s *Session) SetQuestionCount(n int) (domain.SessionState, error) {
	return s.UpdateSettings(domain.SettingsPatch{QuestionCount: &n})
}

// ApplyRoomSettings mirrors the shared settings of the session's room.
func (s *Session) ApplyRoomSettings(roomID string, settings domain.QuizSettings) domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode != domain.ModeMultiplayer || s.settings.RoomID != roomID {
		return s.snapshotLocked()
	}
	if s.settings == withRoom(settings, roomID) {
		return s.snapshotLocked()
	}
	s.settings = withRoom(settings, roomID)
	return s.broadcastLocked()
}

// Submit validates the settings and starts a game with the pool returned by
// load. load runs without the session lock; if the session was reset or
// submitted again in the meantime, its result is dropped.
func (s *Session) Submit(ctx context.Context, load PoolLoader) (domain.SessionState, error) {
	s.mu.Lock()
	if s.phase != domain.PhaseConfiguring {
		defer s.mu.Unlock()
		return s.snapshotLocked(), fmt.Errorf("%w: submit in %s", domain.ErrInvalidTransition, s.phase)
	}
	if err := ValidateSettings(s.settings); err != nil {
		defer s.mu.Unlock()
		return s.snapshotLocked(), err
	}

	s.timer.cancel()
	s.pool = nil
	s.index = 0
	s.score = 0
	s.revealActive = false
	s.lastAnswer = nil
	s.loading = true
	s.loadSeq++
	seq := s.loadSeq
	settings := s.settings
	s.broadcastLocked()
	s.mu.Unlock()

	pool, err := load(ctx, settings)

	s.mu.Lock()
	defer s.mu.Unlock()

	if seq != s.loadSeq || s.phase != domain.PhaseConfiguring {
		return s.snapshotLocked(), fmt.Errorf("%w: submit superseded", domain.ErrInvalidTransition)
	}
	s.loading = false
	if err == nil && len(pool) == 0 {
		err = fmt.Errorf("%w: no questions", domain.ErrProviderUnavailable)
	}
	if err != nil {
		s.broadcastLocked()
		return s.snapshotLocked(), err
	}

	s.pool = pool
	s.phase = domain.PhaseInProgress
	return s.broadcastLocked(), nil
}

// Answer submits the choice for the current question and starts the reveal.
// Answering again while the reveal is showing is a no-op.
func (s *Session) Answer(choice int) (domain.SessionState, error) {
	state, _, err := s.answer(choice)
	return state, err
}

// answer also reports whether the choice was scored.
func (s *Session) answer(choice int) (domain.SessionState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != domain.PhaseInProgress || s.index >= len(s.pool) {
		return s.snapshotLocked(), false, fmt.Errorf("%w: answer in %s", domain.ErrInvalidTransition, s.phase)
	}
	if s.revealActive {
		return s.snapshotLocked(), false, nil
	}
	question := s.pool[s.index]
	if choice < 0 || choice >= len(question.Choices) {
		return s.snapshotLocked(), false, domain.ErrInvalidChoice
	}

	correct := question.IsCorrect(choice)
	if correct {
		s.score++
	}
	s.revealActive = true
	s.lastAnswer = &domain.AnswerOutcome{Choice: choice, Correct: correct}
	s.timer.schedule(s.reveal)
	return s.broadcastLocked(), true, nil
}

// reveal is the timer callback that ends the reveal window.
func (s *Session) reveal(token uint64) {
	s.mu.Lock()
	if !s.timer.claim(token) || s.phase != domain.PhaseInProgress {
		s.mu.Unlock()
		return
	}

	s.revealActive = false
	s.lastAnswer = nil
	s.index++

	var (
		result   domain.GameResult
		finished bool
	)
	if s.index >= len(s.pool) {
		s.index = len(s.pool)
		s.phase = domain.PhaseSummary
		finished = true
		result = domain.GameResult{
			PlayerID:   s.id,
			Mode:       s.mode,
			RoomID:     s.settings.RoomID,
			Score:      s.score,
			Total:      len(s.pool),
			Settings:   s.settings,
			FinishedAt: s.now(),
		}
	}
	s.broadcastLocked()
	s.mu.Unlock()

	if finished && s.onFinish != nil {
		s.onFinish(result)
	}
}

// Reset returns the session to idle and cancels any pending reveal.
func (s *Session) Reset() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	return s.broadcastLocked()
}

// Dormant reports whether nothing depends on the session: no subscriber, no
// pending load or reveal, and no change for at least idle.
func (s *Session) Dormant(now time.Time, idle time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers) == 0 &&
		!s.loading &&
		!s.timer.isPending() &&
		now.Sub(s.updatedAt) >= idle
}

// RevealPending reports whether a reveal timer is armed.
func (s *Session) RevealPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer.isPending()
}

// Subscribe returns a channel receiving a snapshot after every transition.
// The caller must invoke cancel.
func (s *Session) Subscribe() (<-chan domain.SessionState, func()) {
	ch := make(chan domain.SessionState, 8)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	ch <- s.snapshotLocked()
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) resetLocked() {
	s.timer.cancel()
	s.loadSeq++
	s.phase = domain.PhaseIdle
	s.mode = domain.ModeNone
	s.role = ""
	s.settings = s.defaults
	s.pool = nil
	s.index = -1
	s.score = 0
	s.revealActive = false
	s.lastAnswer = nil
	s.loading = false
}

func (s *Session) broadcastLocked() domain.SessionState {
	s.updatedAt = s.now()
	state := s.snapshotLocked()
	for ch := range s.subscribers {
		select {
		case ch <- state:
		default:
			// slow subscriber: drop the oldest snapshot
			select {
			case <-ch:
			default:
			}
			ch <- state
		}
	}
	return state
}

func (s *Session) snapshotLocked() domain.SessionState {
	state := domain.SessionState{
		PlayerID:     s.id,
		Phase:        s.phase,
		Mode:         s.mode,
		Role:         s.role,
		Settings:     s.settings,
		Loading:      s.loading,
		Total:        len(s.pool),
		CurrentIndex: s.index,
		Score:        s.score,
		RevealActive: s.revealActive,
		UpdatedAt:    s.updatedAt,
	}
	if s.lastAnswer != nil {
		outcome := *s.lastAnswer
		state.LastAnswer = &outcome
	}
	if s.phase == domain.PhaseInProgress && s.index >= 0 && s.index < len(s.pool) {
		q := s.pool[s.index]
		view := &domain.QuestionView{
			Number:     s.index + 1,
			Text:       q.Text,
			Category:   q.Category,
			Difficulty: q.Difficulty,
			Choices:    append([]string(nil), q.Choices...),
		}
		if s.revealActive {
			view.CorrectAnswer = q.CorrectAnswer
		}
		state.Current = view
	}
	if s.phase == domain.PhaseSummary {
		summary := domain.NewSummary(s.score, len(s.pool))
		state.Summary = &summary
	}
	return state
}

func withRoom(settings domain.QuizSettings, roomID string) domain.QuizSettings {
	settings.RoomID = roomID
	return settings
}
