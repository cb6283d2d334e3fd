package memory

import (
	"context"
	"testing"
	"time"

	"quicktrivia/internal/domain"
)

func TestResultStoreListsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewResultStore()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		_ = store.SaveResult(ctx, domain.GameResult{
			PlayerID:   "p1",
			Score:      i,
			Total:      10,
			FinishedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	_ = store.SaveResult(ctx, domain.GameResult{PlayerID: "p2", Score: 7, Total: 10, FinishedAt: base})

	results, err := store.ListResults(ctx, "p1", 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(results) != 2 || results[0].Score != 2 || results[1].Score != 1 {
		t.Fatalf("unexpected results %+v", results)
	}
}
