package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"quicktrivia/internal/domain"
)

// ResultStore keeps finished games in the game_results table.
type ResultStore struct {
	pool *pgxpool.Pool
}

func NewResultStore(pool *pgxpool.Pool) *ResultStore {
	return &ResultStore{pool: pool}
}

func (s *ResultStore) SaveResult(ctx context.Context, result domain.GameResult) error {
	settings, err := json.Marshal(result.Settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO game_results (id, player_id, mode, room_id, score, total, settings, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8)
		 ON CONFLICT (id) DO NOTHING`,
		result.ID, result.PlayerID, string(result.Mode), result.RoomID,
		result.Score, result.Total, string(settings), result.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	return nil
}

func (s *ResultStore) ListResults(ctx context.Context, playerID string, limit int) ([]domain.GameResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id::text, player_id, mode, room_id, score, total, settings, finished_at
		 FROM game_results WHERE player_id=$1
		 ORDER BY finished_at DESC LIMIT $2`,
		playerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var results []domain.GameResult
	for rows.Next() {
		var (
			result   domain.GameResult
			mode     string
			settings []byte
		)
		if err := rows.Scan(&result.ID, &result.PlayerID, &mode, &result.RoomID,
			&result.Score, &result.Total, &settings, &result.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		result.Mode = domain.Mode(mode)
		if err := json.Unmarshal(settings, &result.Settings); err != nil {
			return nil, fmt.Errorf("unmarshal settings: %w", err)
		}
		results = append(results, result)
	}
	return results, rows.Err()
}
