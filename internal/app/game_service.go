package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"quicktrivia/internal/domain"
)

// SessionRepository abstracts how game sessions are stored (in-memory, Redis, etc).
type SessionRepository interface {
	// GetOrCreate returns the session of playerID, calling create when there is none.
	GetOrCreate(playerID string, create func() *Session) *Session
	Get(playerID string) (*Session, bool)
	// DeleteIf removes the session of playerID if evict reports true for it.
	DeleteIf(playerID string, evict func(*Session) bool) bool
	// Sweep removes every session evict reports true for and returns how many went.
	Sweep(evict func(*Session) bool) int
}

// CategorySource lists the trivia categories offered in setup.
type CategorySource interface {
	Categories(ctx context.Context) ([]domain.Category, error)
}

// ResultRepository keeps finished games.
type ResultRepository interface {
	SaveResult(ctx context.Context, result domain.GameResult) error
	ListResults(ctx context.Context, playerID string, limit int) ([]domain.GameResult, error)
}

// Observer receives game events, e.g. for metrics.
type Observer interface {
	GameStarted(mode domain.Mode)
	AnswerSubmitted(correct bool)
	GameFinished(mode domain.Mode)
	ProviderFailed()
	RoomJoined()
}

type nopObserver struct{}

func (nopObserver) GameStarted(domain.Mode)  {}
func (nopObserver) AnswerSubmitted(bool)     {}
func (nopObserver) GameFinished(domain.Mode) {}
func (nopObserver) ProviderFailed()          {}
func (nopObserver) RoomJoined()              {}

// ServiceConfig holds the optional collaborators of a GameService.
type ServiceConfig struct {
	Scheduler            Scheduler
	RevealDelay          time.Duration
	DefaultQuestionCount int
	Now                  func() time.Time
	Observer             Observer
	Logger               logrus.FieldLogger
}

// GameService contains the game use cases, one session per player.
type GameService struct {
	sessions   SessionRepository
	rooms      *RoomSynchronizer
	builder    *PoolBuilder
	categories CategorySource
	results    ResultRepository
	observer   Observer
	log        logrus.FieldLogger
	scheduler  Scheduler
	delay      time.Duration
	defaults   domain.QuizSettings
	now        func() time.Time
}

func NewGameService(
	sessions SessionRepository,
	rooms *RoomSynchronizer,
	builder *PoolBuilder,
	categories CategorySource,
	results ResultRepository,
	cfg ServiceConfig,
) *GameService {
	s := &GameService{
		sessions:   sessions,
		rooms:      rooms,
		builder:    builder,
		categories: categories,
		results:    results,
		observer:   cfg.Observer,
		log:        cfg.Logger,
		scheduler:  cfg.Scheduler,
		delay:      cfg.RevealDelay,
		defaults:   domain.DefaultSettings(),
		now:        cfg.Now,
	}
	if cfg.DefaultQuestionCount > 0 {
		s.defaults.QuestionCount = cfg.DefaultQuestionCount
	}
	if s.observer == nil {
		s.observer = nopObserver{}
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// State returns the session of playerID, creating an idle one if needed. A
// room member in setup reads the room first so the settings are current
// without an open room stream.
func (s *GameService) State(ctx context.Context, playerID string) (domain.SessionState, error) {
	session, err := s.session(playerID)
	if err != nil {
		return domain.SessionState{}, err
	}
	state := session.State()
	if state.Mode != domain.ModeMultiplayer || state.Phase != domain.PhaseConfiguring {
		return state, nil
	}
	roomID := state.Settings.RoomID
	room, err := s.rooms.Room(ctx, roomID)
	if err != nil {
		s.log.WithError(err).WithField("room_id", roomID).Warn("room read failed, serving local settings")
		return state, nil
	}
	return session.ApplyRoomSettings(roomID, room.Settings), nil
}

// SelectMode chooses solo or multiplayer. Multiplayer creates a room with the
// player as host.
func (s *GameService) SelectMode(ctx context.Context, playerID string, mode domain.Mode) (domain.SessionState, error) {
	session, err := s.session(playerID)
	if err != nil {
		return domain.SessionState{}, err
	}
	if !mode.Valid() {
		return session.State(), fmt.Errorf("%w: unknown mode %q", domain.ErrInvalidTransition, mode)
	}
	if current := session.State(); current.Phase == domain.PhaseInProgress || current.Phase == domain.PhaseSummary {
		return current, fmt.Errorf("%w: select mode in %s", domain.ErrInvalidTransition, current.Phase)
	}

	var (
		roomID string
		role   domain.Role
	)
	if mode == domain.ModeMultiplayer {
		room, err := s.rooms.Create(ctx, playerID, s.defaults)
		if err != nil {
			return session.State(), err
		}
		roomID, role = room.ID, domain.RoleHost
	}

	state, err := session.SelectMode(mode, roomID, role)
	if err != nil {
		return state, err
	}
	s.log.WithFields(logrus.Fields{"player_id": playerID, "mode": mode, "room_id": roomID}).Info("mode selected")
	return state, nil
}

// EnterSetup moves the player to the setup screen.
func (s *GameService) EnterSetup(_ context.Context, playerID string) (domain.SessionState, error) {
	session, err := s.session(playerID)
	if err != nil {
		return domain.SessionState{}, err
	}
	return session.EnterSetup()
}

// JoinRoom registers the player in roomID and enters its setup.
func (s *GameService) JoinRoom(ctx context.Context, playerID, roomID string) (domain.Room, domain.SessionState, error) {
	session, err := s.session(playerID)
	if err != nil {
		return domain.Room{}, domain.SessionState{}, err
	}
	room, err := s.rooms.Join(ctx, roomID, playerID)
	if err != nil {
		return domain.Room{}, session.State(), err
	}
	state, err := session.EnterRoom(room.ID, room.Role(playerID), room.Settings)
	if err != nil {
		return room, state, err
	}
	s.observer.RoomJoined()
	return room, state, nil
}

// UpdateSettings changes the quiz settings. Solo games change locally;
// multiplayer writes go to the room and come back through WatchRoom.
func (s *GameService) UpdateSettings(ctx context.Context, playerID string, patch domain.SettingsPatch) (domain.SessionState, error) {
	session, err := s.session(playerID)
	if err != nil {
		return domain.SessionState{}, err
	}
	state := session.State()
	if state.Mode != domain.ModeMultiplayer {
		return session.UpdateSettings(patch)
	}
	if state.Phase != domain.PhaseConfiguring {
		return state, fmt.Errorf("%w: update settings in %s", domain.ErrInvalidTransition, state.Phase)
	}
	if err := s.rooms.UpdateSettings(ctx, state.Settings.RoomID, patch); err != nil {
		return state, err
	}
	return session.State(), nil
}

// SetQuestionCount sets the number of questions.
func (s *GameService) SetQuestionCount(ctx context.Context, playerID string, n int) (domain.SessionState, error) {
	return s.UpdateSettings(ctx, playerID, domain.SettingsPatch{QuestionCount: &n})
}

// Submit starts the game. In a room only the host fetches questions; the
// other members start with the pool the host published.
func (s *GameService) Submit(ctx context.Context, playerID string) (domain.SessionState, error) {
	session, err := s.session(playerID)
	if err != nil {
		return domain.SessionState{}, err
	}

	current := session.State()
	load := s.buildPool
	if current.Mode == domain.ModeMultiplayer && current.Phase == domain.PhaseConfiguring {
		roomID := current.Settings.RoomID
		room, err := s.rooms.Room(ctx, roomID)
		if err != nil {
			return current, err
		}
		session.ApplyRoomSettings(roomID, room.Settings)

		if room.Role(playerID) == domain.RoleHost {
			load = func(ctx context.Context, settings domain.QuizSettings) (domain.QuestionPool, error) {
				// members must not start the previous round while this one loads
				if err := s.rooms.ClearPool(ctx, roomID); err != nil {
					return nil, err
				}
				pool, err := s.buildPool(ctx, settings)
				if err != nil {
					return nil, err
				}
				if err := s.rooms.PublishPool(ctx, roomID, settings, pool); err != nil {
					return nil, err
				}
				return pool, nil
			}
		} else {
			pool, ready := room.ReadyPool()
			if !ready {
				return session.State(), domain.ErrPoolNotReady
			}
			load = func(context.Context, domain.QuizSettings) (domain.QuestionPool, error) {
				return pool, nil
			}
		}
	}

	state, err := session.Submit(ctx, load)
	if err != nil {
		return state, err
	}
	s.observer.GameStarted(state.Mode)
	s.log.WithFields(logrus.Fields{
		"player_id": playerID,
		"mode":      state.Mode,
		"questions": state.Total,
	}).Info("game started")
	return state, nil
}

// Answer submits the player's choice for the current question.
func (s *GameService) Answer(_ context.Context, playerID string, choice int) (domain.SessionState, error) {
	session, ok := s.sessions.Get(playerID)
	if !ok {
		return domain.SessionState{}, domain.ErrSessionNotFound
	}
	state, accepted, err := session.answer(choice)
	if err != nil {
		return state, err
	}
	if accepted {
		s.observer.AnswerSubmitted(state.LastAnswer != nil && state.LastAnswer.Correct)
	}
	return state, nil
}

// Reset ends the game and returns the player to mode select. A host also
// withdraws the room's pool so the next round waits for a new one.
func (s *GameService) Reset(ctx context.Context, playerID string) (domain.SessionState, error) {
	session, ok := s.sessions.Get(playerID)
	if !ok {
		return domain.SessionState{}, domain.ErrSessionNotFound
	}
	before := session.State()
	state := session.Reset()
	if before.Mode == domain.ModeMultiplayer && before.Role == domain.RoleHost && before.Settings.RoomID != "" {
		if err := s.rooms.ClearPool(ctx, before.Settings.RoomID); err != nil && !errors.Is(err, domain.ErrRoomNotFound) {
			s.log.WithError(err).WithField("room_id", before.Settings.RoomID).Warn("failed to withdraw room pool")
		}
	}
	return state, nil
}

// Subscribe returns a channel that receives session snapshots of playerID.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *GameService) Subscribe(_ context.Context, playerID string) (<-chan domain.SessionState, func(), error) {
	session, err := s.session(playerID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := session.Subscribe()
	return ch, cancel, nil
}

// Release drops the session of playerID once its last stream is gone, as
// long as it holds no game. Idle sessions are recreated on demand.
func (s *GameService) Release(playerID string) bool {
	now := s.now()
	return s.sessions.DeleteIf(playerID, func(session *Session) bool {
		return session.State().Phase == domain.PhaseIdle && session.Dormant(now, 0)
	})
}

// EvictDormant drops sessions nobody touched for idle and returns how many
// were removed.
func (s *GameService) EvictDormant(idle time.Duration) int {
	now := s.now()
	n := s.sessions.Sweep(func(session *Session) bool {
		return session.Dormant(now, idle)
	})
	if n > 0 {
		s.log.WithField("sessions", n).Info("evicted dormant sessions")
	}
	return n
}

// RunEviction calls EvictDormant every interval until ctx is done.
func (s *GameService) RunEviction(ctx context.Context, idle, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.EvictDormant(idle)
		}
	}
}

// WatchRoom streams room updates and mirrors the room settings into the
// player's session. The caller must invoke cancel.
func (s *GameService) WatchRoom(ctx context.Context, playerID, roomID string) (<-chan domain.Room, func(), error) {
	session, err := s.session(playerID)
	if err != nil {
		return nil, nil, err
	}
	updates, cancel, err := s.rooms.Watch(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}

	out := make(chan domain.Room, 8)
	go func() {
		defer close(out)
		for room := range updates {
			session.ApplyRoomSettings(room.ID, room.Settings)
			select {
			case out <- room:
			default:
				select {
				case <-out:
				default:
				}
				out <- room
			}
		}
	}()
	return out, cancel, nil
}

// Categories lists the trivia categories.
func (s *GameService) Categories(ctx context.Context) ([]domain.Category, error) {
	categories, err := s.categories.Categories(ctx)
	if err != nil {
		s.observer.ProviderFailed()
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	if len(categories) == 0 {
		s.observer.ProviderFailed()
		return nil, fmt.Errorf("%w: no categories", domain.ErrProviderUnavailable)
	}
	return categories, nil
}

// History lists the most recent finished games of playerID.
func (s *GameService) History(ctx context.Context, playerID string, limit int) ([]domain.GameResult, error) {
	if playerID == "" {
		return nil, domain.ErrIdentityUnavailable
	}
	return s.results.ListResults(ctx, playerID, limit)
}

func (s *GameService) session(playerID string) (*Session, error) {
	if playerID == "" {
		return nil, domain.ErrIdentityUnavailable
	}
	return s.sessions.GetOrCreate(playerID, func() *Session {
		return NewSession(playerID, SessionOptions{
			Scheduler:            s.scheduler,
			RevealDelay:          s.delay,
			DefaultQuestionCount: s.defaults.QuestionCount,
			Now:                  s.now,
			OnFinish:             s.finish,
		})
	}), nil
}

func (s *GameService) buildPool(ctx context.Context, settings domain.QuizSettings) (domain.QuestionPool, error) {
	pool, err := s.builder.Build(ctx, settings)
	if err != nil {
		s.observer.ProviderFailed()
		s.log.WithError(err).WithField("room_id", settings.RoomID).Warn("question pool fetch failed")
		return nil, err
	}
	return pool, nil
}

// finish runs on the reveal timer goroutine once a game reaches the summary.
func (s *GameService) finish(result domain.GameResult) {
	result.ID = uuid.NewString()
	s.observer.GameFinished(result.Mode)

	log := s.log.WithFields(logrus.Fields{
		"player_id": result.PlayerID,
		"score":     result.Score,
		"total":     result.Total,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.results.SaveResult(ctx, result); err != nil {
		log.WithError(err).Error("failed to save game result")
		return
	}
	log.Info("game finished")
}
