package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"quicktrivia/internal/domain"
)

// RoomStore keeps multiplayer rooms in Redis so several instances can share them.
// Layout per room:
//
//	HSET games:{roomID}:settings questionCount|categoryId|difficulty|roomId
//	HSET games:{roomID}:players  {playerID} {"role":..,"name":..}
//	SET  games:{roomID}:pool     {"settings":..,"questions":[..]}
//	PUBLISH games:{roomID}:events on every write
//
// Every write refreshes the TTL of all three keys. A settings change deletes
// the pool in the same transaction.
type RoomStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRoomStore(client *redis.Client, ttl time.Duration) *RoomStore {
	return &RoomStore{client: client, ttl: ttl}
}

// poolRecord is the stored pool together with the settings it was built from.
type poolRecord struct {
	Settings  domain.QuizSettings `json:"settings"`
	Questions domain.QuestionPool `json:"questions"`
}

const (
	fieldQuestionCount = "questionCount"
	fieldCategoryID    = "categoryId"
	fieldDifficulty    = "difficulty"
	fieldRoomID        = "roomId"
)

func (s *RoomStore) CreateRoom(ctx context.Context, room domain.Room) error {
	settingsKey := s.settingsKey(room.ID)
	// roomId is written first with HSETNX and acts as the ownership claim
	created, err := s.client.HSetNX(ctx, settingsKey, fieldRoomID, room.ID).Result()
	if err != nil {
		return fmt.Errorf("create room %s: %w", room.ID, err)
	}
	if !created {
		return domain.ErrRoomExists
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, settingsKey, settingsFields(room.Settings))
	for playerID, player := range room.Players {
		encoded, err := json.Marshal(player)
		if err != nil {
			return fmt.Errorf("encode player: %w", err)
		}
		pipe.HSet(ctx, s.playersKey(room.ID), playerID, encoded)
	}
	s.expire(ctx, pipe, room.ID)
	pipe.Publish(ctx, s.channel(room.ID), "created")
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("create room %s: %w", room.ID, err)
	}
	return nil
}

func (s *RoomStore) GetRoom(ctx context.Context, roomID string) (domain.Room, error) {
	pipe := s.client.Pipeline()
	settingsCmd := pipe.HGetAll(ctx, s.settingsKey(roomID))
	playersCmd := pipe.HGetAll(ctx, s.playersKey(roomID))
	poolCmd := pipe.Get(ctx, s.poolKey(roomID))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return domain.Room{}, fmt.Errorf("get room %s: %w", roomID, err)
	}

	fields := settingsCmd.Val()
	if len(fields) == 0 {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	room := domain.Room{
		ID:       roomID,
		Settings: parseSettings(roomID, fields),
		Players:  make(map[string]domain.Player, len(playersCmd.Val())),
	}
	for playerID, raw := range playersCmd.Val() {
		var player domain.Player
		if err := json.Unmarshal([]byte(raw), &player); err != nil {
			continue
		}
		room.Players[playerID] = player
	}
	if raw, err := poolCmd.Bytes(); err == nil && len(raw) > 0 {
		var record poolRecord
		if err := json.Unmarshal(raw, &record); err != nil {
			return domain.Room{}, fmt.Errorf("decode pool of %s: %w", roomID, err)
		}
		room.Pool = record.Questions
		room.PoolSettings = &record.Settings
	}
	return room, nil
}

func (s *RoomStore) UpdateSettings(ctx context.Context, roomID string, patch domain.SettingsPatch) error {
	if err := s.requireRoom(ctx, roomID); err != nil {
		return err
	}
	fields := make(map[string]interface{}, 3)
	if patch.QuestionCount != nil {
		fields[fieldQuestionCount] = *patch.QuestionCount
	}
	if patch.CategoryID != nil {
		fields[fieldCategoryID] = *patch.CategoryID
	}
	if patch.Difficulty != nil {
		fields[fieldDifficulty] = string(*patch.Difficulty)
	}
	if len(fields) == 0 {
		return nil
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.settingsKey(roomID), fields)
	pipe.Del(ctx, s.poolKey(roomID))
	s.expire(ctx, pipe, roomID)
	pipe.Publish(ctx, s.channel(roomID), "settings")
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("update settings of %s: %w", roomID, err)
	}
	return nil
}

func (s *RoomStore) AddPlayer(ctx context.Context, roomID, playerID string, player domain.Player) (bool, error) {
	if err := s.requireRoom(ctx, roomID); err != nil {
		return false, err
	}
	encoded, err := json.Marshal(player)
	if err != nil {
		return false, fmt.Errorf("encode player: %w", err)
	}
	added, err := s.client.HSetNX(ctx, s.playersKey(roomID), playerID, encoded).Result()
	if err != nil {
		return false, fmt.Errorf("add player to %s: %w", roomID, err)
	}

	pipe := s.client.Pipeline()
	s.expire(ctx, pipe, roomID)
	if added {
		pipe.Publish(ctx, s.channel(roomID), "players")
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return added, fmt.Errorf("add player to %s: %w", roomID, err)
	}
	return added, nil
}

func (s *RoomStore) SetPool(ctx context.Context, roomID string, settings domain.QuizSettings, pool domain.QuestionPool) error {
	if err := s.requireRoom(ctx, roomID); err != nil {
		return err
	}
	encoded, err := json.Marshal(poolRecord{Settings: settings, Questions: pool})
	if err != nil {
		return fmt.Errorf("encode pool: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.poolKey(roomID), encoded, 0)
	s.expire(ctx, pipe, roomID)
	pipe.Publish(ctx, s.channel(roomID), "pool")
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("set pool of %s: %w", roomID, err)
	}
	return nil
}

func (s *RoomStore) ClearPool(ctx context.Context, roomID string) error {
	if err := s.requireRoom(ctx, roomID); err != nil {
		return err
	}
	removed, err := s.client.Del(ctx, s.poolKey(roomID)).Result()
	if err != nil {
		return fmt.Errorf("clear pool of %s: %w", roomID, err)
	}
	if removed == 0 {
		return nil
	}
	if err := s.client.Publish(ctx, s.channel(roomID), "pool").Err(); err != nil {
		return fmt.Errorf("clear pool of %s: %w", roomID, err)
	}
	return nil
}

// Subscribe listens on the room channel and re-reads the room after every
// event. Slow readers only see the latest room.
func (s *RoomStore) Subscribe(ctx context.Context, roomID string) (<-chan domain.Room, func(), error) {
	sub := s.client.Subscribe(ctx, s.channel(roomID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("subscribe to %s: %w", roomID, err)
	}
	room, err := s.GetRoom(ctx, roomID)
	if err != nil {
		_ = sub.Close()
		return nil, nil, err
	}

	out := make(chan domain.Room, 8)
	out <- room

	readCtx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer close(out)
		for range sub.Channel() {
			room, err := s.GetRoom(readCtx, roomID)
			if err != nil {
				continue
			}
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

	cancel := func() {
		stop()
		_ = sub.Close()
		<-done
	}
	return out, cancel, nil
}

func (s *RoomStore) requireRoom(ctx context.Context, roomID string) error {
	n, err := s.client.Exists(ctx, s.settingsKey(roomID)).Result()
	if err != nil {
		return fmt.Errorf("read room %s: %w", roomID, err)
	}
	if n == 0 {
		return domain.ErrRoomNotFound
	}
	return nil
}

func (s *RoomStore) expire(ctx context.Context, pipe redis.Pipeliner, roomID string) {
	if s.ttl <= 0 {
		return
	}
	pipe.Expire(ctx, s.settingsKey(roomID), s.ttl)
	pipe.Expire(ctx, s.playersKey(roomID), s.ttl)
	pipe.Expire(ctx, s.poolKey(roomID), s.ttl)
}

func (s *RoomStore) settingsKey(roomID string) string {
	return "games:" + roomID + ":settings"
}

func (s *RoomStore) playersKey(roomID string) string {
	return "games:" + roomID + ":players"
}

func (s *RoomStore) poolKey(roomID string) string {
	return "games:" + roomID + ":pool"
}

func (s *RoomStore) channel(roomID string) string {
	return "games:" + roomID + ":events"
}

func settingsFields(settings domain.QuizSettings) map[string]interface{} {
	return map[string]interface{}{
		fieldQuestionCount: settings.QuestionCount,
		fieldCategoryID:    settings.CategoryID,
		fieldDifficulty:    string(settings.Difficulty),
	}
}

func parseSettings(roomID string, fields map[string]string) domain.QuizSettings {
	settings := domain.DefaultSettings()
	settings.RoomID = roomID
	if n, err := strconv.Atoi(fields[fieldQuestionCount]); err == nil {
		settings.QuestionCount = n
	}
	if n, err := strconv.Atoi(fields[fieldCategoryID]); err == nil {
		settings.CategoryID = n
	}
	settings.Difficulty = domain.Difficulty(fields[fieldDifficulty])
	return settings
}
