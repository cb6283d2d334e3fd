package memory

import (
	"context"
	"sync"

	"quicktrivia/internal/domain"
)

// RoomStore keeps rooms in process memory. Useful for single-instance
// deployments and tests; rooms live until the process exits.
type RoomStore struct {
	mu          sync.Mutex
	rooms       map[string]*domain.Room
	subscribers map[string]map[chan domain.Room]struct{}
}

func NewRoomStore() *RoomStore {
	return &RoomStore{
		rooms:       make(map[string]*domain.Room),
		subscribers: make(map[string]map[chan domain.Room]struct{}),
	}
}

func (s *RoomStore) CreateRoom(_ context.Context, room domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.ID]; ok {
		return domain.ErrRoomExists
	}
	stored := copyRoom(room)
	stored.Settings.RoomID = room.ID
	if stored.Players == nil {
		stored.Players = make(map[string]domain.Player)
	}
	s.rooms[room.ID] = &stored
	s.broadcastLocked(room.ID)
	return nil
}

func (s *RoomStore) GetRoom(_ context.Context, roomID string) (domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return copyRoom(*room), nil
}

func (s *RoomStore) UpdateSettings(_ context.Context, roomID string, patch domain.SettingsPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	room.Settings = patch.Apply(room.Settings)
	room.Pool = nil
	room.PoolSettings = nil
	s.broadcastLocked(roomID)
	return nil
}

func (s *RoomStore) AddPlayer(_ context.Context, roomID, playerID string, player domain.Player) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return false, domain.ErrRoomNotFound
	}
	if _, exists := room.Players[playerID]; exists {
		return false, nil
	}
	room.Players[playerID] = player
	s.broadcastLocked(roomID)
	return true, nil
}

func (s *RoomStore) SetPool(_ context.Context, roomID string, settings domain.QuizSettings, pool domain.QuestionPool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	room.Pool = append(domain.QuestionPool(nil), pool...)
	room.PoolSettings = &settings
	s.broadcastLocked(roomID)
	return nil
}

func (s *RoomStore) ClearPool(_ context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	if room.Pool == nil && room.PoolSettings == nil {
		return nil
	}
	room.Pool = nil
	room.PoolSettings = nil
	s.broadcastLocked(roomID)
	return nil
}

func (s *RoomStore) Subscribe(_ context.Context, roomID string) (<-chan domain.Room, func(), error) {
	ch := make(chan domain.Room, 8)

	s.mu.Lock()
	room, ok := s.rooms[roomID]
	if !ok {
		s.mu.Unlock()
		return nil, nil, domain.ErrRoomNotFound
	}
	if s.subscribers[roomID] == nil {
		s.subscribers[roomID] = make(map[chan domain.Room]struct{})
	}
	s.subscribers[roomID][ch] = struct{}{}
	ch <- copyRoom(*room)
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		subs := s.subscribers[roomID]
		if _, ok := subs[ch]; ok {
			delete(subs, ch)
			close(ch)
		}
		if len(subs) == 0 {
			delete(s.subscribers, roomID)
		}
	}
	return ch, cancel, nil
}

func (s *RoomStore) broadcastLocked(roomID string) {
	room, ok := s.rooms[roomID]
	if !ok {
		return
	}
	for ch := range s.subscribers[roomID] {
		snapshot := copyRoom(*room)
		select {
		case ch <- snapshot:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snapshot
		}
	}
}

func copyRoom(room domain.Room) domain.Room {
	players := make(map[string]domain.Player, len(room.Players))
	for id, p := range room.Players {
		players[id] = p
	}
	room.Players = players
	if room.Pool != nil {
		room.Pool = append(domain.QuestionPool(nil), room.Pool...)
	}
	if room.PoolSettings != nil {
		settings := *room.PoolSettings
		room.PoolSettings = &settings
	}
	return room
}
