package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"quicktrivia/internal/domain"
)

// RoomStore abstracts the shared room record (in-memory, Redis, etc).
// Writes are field-level; a room is never replaced wholesale.
type RoomStore interface {
	// CreateRoom returns domain.ErrRoomExists when the id is taken.
	CreateRoom(ctx context.Context, room domain.Room) error
	// GetRoom returns domain.ErrRoomNotFound for unknown ids.
	GetRoom(ctx context.Context, roomID string) (domain.Room, error)
	// UpdateSettings also drops the published pool, which no longer matches.
	UpdateSettings(ctx context.Context, roomID string, patch domain.SettingsPatch) error
	// AddPlayer adds playerID unless it is already a member and reports whether it was added.
	AddPlayer(ctx context.Context, roomID, playerID string, player domain.Player) (bool, error)
	// SetPool stores pool together with the settings it was built from.
	SetPool(ctx context.Context, roomID string, settings domain.QuizSettings, pool domain.QuestionPool) error
	ClearPool(ctx context.Context, roomID string) error
	// Subscribe delivers a fresh room read after every change. The caller must invoke cancel.
	Subscribe(ctx context.Context, roomID string) (<-chan domain.Room, func(), error)
}

// NameGenerator creates room codes and player display names.
type NameGenerator interface {
	RoomID() string
	DisplayName() string
}

const maxRoomIDAttempts = 5

// RoomSynchronizer maps multiplayer operations onto the room store.
type RoomSynchronizer struct {
	store RoomStore
	names NameGenerator
	log   logrus.FieldLogger
}

func NewRoomSynchronizer(store RoomStore, names NameGenerator, log logrus.FieldLogger) *RoomSynchronizer {
	return &RoomSynchronizer{store: store, names: names, log: log}
}

// Create writes a new room with the given initial settings and hostID as host.
func (r *RoomSynchronizer) Create(ctx context.Context, hostID string, initial domain.QuizSettings) (domain.Room, error) {
	for attempt := 0; attempt < maxRoomIDAttempts; attempt++ {
		roomID := r.names.RoomID()
		settings := withRoom(initial, roomID)
		room := domain.Room{
			ID:       roomID,
			Settings: settings,
			Players: map[string]domain.Player{
				hostID: {Role: domain.RoleHost, Name: r.names.DisplayName()},
			},
		}
		err := r.store.CreateRoom(ctx, room)
		if errors.Is(err, domain.ErrRoomExists) {
			r.log.WithField("room_id", roomID).Debug("room id taken, retrying")
			continue
		}
		if err != nil {
			return domain.Room{}, fmt.Errorf("create room: %w", err)
		}
		r.log.WithFields(logrus.Fields{"room_id": roomID, "player_id": hostID}).Info("room created")
		return room, nil
	}
	return domain.Room{}, fmt.Errorf("create room: %w", domain.ErrRoomExists)
}

// Join reads the room once and registers playerID as a player unless it is
// already a member. An existing role is never changed.
func (r *RoomSynchronizer) Join(ctx context.Context, roomID, playerID string) (domain.Room, error) {
	room, err := r.store.GetRoom(ctx, roomID)
	if err != nil {
		return domain.Room{}, err
	}
	if room.Role(playerID) != "" {
		return room, nil
	}

	added, err := r.store.AddPlayer(ctx, roomID, playerID, domain.Player{
		Role: domain.RolePlayer,
		Name: r.names.DisplayName(),
	})
	if err != nil {
		return domain.Room{}, fmt.Errorf("join room: %w", err)
	}
	if added {
		r.log.WithFields(logrus.Fields{"room_id": roomID, "player_id": playerID}).Info("player joined room")
	}
	// Re-read so a concurrent join of the same player reports the stored role.
	return r.store.GetRoom(ctx, roomID)
}

// UpdateSettings writes only the patched fields of the room settings.
func (r *RoomSynchronizer) UpdateSettings(ctx context.Context, roomID string, patch domain.SettingsPatch) error {
	if patch.Empty() {
		return nil
	}
	return r.store.UpdateSettings(ctx, roomID, patch)
}

// Room reads the current room record.
func (r *RoomSynchronizer) Room(ctx context.Context, roomID string) (domain.Room, error) {
	return r.store.GetRoom(ctx, roomID)
}

// PublishPool stores the host's question pool so every member plays the same questions.
func (r *RoomSynchronizer) PublishPool(ctx context.Context, roomID string, settings domain.QuizSettings, pool domain.QuestionPool) error {
	if err := r.store.SetPool(ctx, roomID, settings, pool); err != nil {
		return fmt.Errorf("publish pool: %w", err)
	}
	r.log.WithFields(logrus.Fields{"room_id": roomID, "questions": len(pool)}).Info("room pool published")
	return nil
}

// ClearPool withdraws the published pool. Members submitting afterwards wait
// for the host again.
func (r *RoomSynchronizer) ClearPool(ctx context.Context, roomID string) error {
	if err := r.store.ClearPool(ctx, roomID); err != nil {
		return fmt.Errorf("clear pool: %w", err)
	}
	r.log.WithField("room_id", roomID).Debug("room pool cleared")
	return nil
}

// Watch streams room updates.
func (r *RoomSynchronizer) Watch(ctx context.Context, roomID string) (<-chan domain.Room, func(), error) {
	return r.store.Subscribe(ctx, roomID)
}
