package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
	"quicktrivia/internal/domain"
	"quicktrivia/internal/infra/memory"
)

const categoriesKey = "trivia:categories"

// CategoryCache keeps the provider's category list in Redis, shared by all
// instances, and falls back to the loader on a miss.
type CategoryCache struct {
	client *redis.Client
	loader memory.CategoryLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewCategoryCache(client *redis.Client, loader memory.CategoryLoader, ttl time.Duration) *CategoryCache {
	return &CategoryCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *CategoryCache) Categories(ctx context.Context) ([]domain.Category, error) {
	if categories, ok := c.cached(ctx); ok {
		return categories, nil
	}

	result, err, _ := c.sf.Do(categoriesKey, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if categories, ok := c.cached(ctx); ok {
			return categories, nil
		}

		categories, err := c.loader.LoadCategories(ctx)
		if err != nil {
			return nil, err
		}
		if encoded, err := json.Marshal(categories); err == nil {
			_ = c.client.Set(ctx, categoriesKey, encoded, c.ttlWithJitter()).Err()
		}
		return categories, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Category), nil
}

func (c *CategoryCache) cached(ctx context.Context) ([]domain.Category, bool) {
	raw, err := c.client.Get(ctx, categoriesKey).Bytes()
	if err != nil || len(raw) == 0 {
		return nil, false
	}
	var categories []domain.Category
	if err := json.Unmarshal(raw, &categories); err != nil {
		return nil, false
	}
	return categories, true
}

// ttlWithJitter is not safe for concurrent use; it only runs inside the
// single-flight call.
func (c *CategoryCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
