package memory

import (
	"context"
	"sort"
	"sync"

	"quicktrivia/internal/domain"
)

// ResultStore keeps finished games in memory, used when no database is configured.
type ResultStore struct {
	mu      sync.RWMutex
	results map[string][]domain.GameResult
}

func NewResultStore() *ResultStore {
	return &ResultStore{results: make(map[string][]domain.GameResult)}
}

func (s *ResultStore) SaveResult(_ context.Context, result domain.GameResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[result.PlayerID] = append(s.results[result.PlayerID], result)
	return nil
}

// ListResults returns the newest results first.
func (s *ResultStore) ListResults(_ context.Context, playerID string, limit int) ([]domain.GameResult, error) {
	s.mu.RLock()
	out := append([]domain.GameResult(nil), s.results[playerID]...)
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FinishedAt.After(out[j].FinishedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
