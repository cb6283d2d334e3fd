package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"quicktrivia/internal/domain"
)

// CategoryLoader fetches categories from the trivia provider.
type CategoryLoader interface {
	LoadCategories(ctx context.Context) ([]domain.Category, error)
}

// CategoryCache caches the category list with TTL to avoid repeated provider hits.
type CategoryCache struct {
	loader CategoryLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu        sync.RWMutex
	cached    []domain.Category
	expiresAt time.Time
}

func NewCategoryCache(loader CategoryLoader, ttl time.Duration) *CategoryCache {
	return &CategoryCache{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *CategoryCache) Categories(ctx context.Context) ([]domain.Category, error) {
	if categories, ok := c.fresh(c.clock()); ok {
		return categories, nil
	}

	result, err, _ := c.sf.Do("categories", func() (interface{}, error) {
		now := c.clock()
		if categories, ok := c.fresh(now); ok {
			return categories, nil
		}

		categories, err := c.loader.LoadCategories(ctx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.cached = categories
		c.expiresAt = now.Add(c.ttlWithJitter())
		c.mu.Unlock()
		return categories, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Category), nil
}

func (c *CategoryCache) fresh(now time.Time) ([]domain.Category, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cached != nil && c.expiresAt.After(now) {
		return c.cached, true
	}
	return nil, false
}

func (c *CategoryCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

// StaticCategoryLoader serves a fixed category list (useful for tests/demos).
type StaticCategoryLoader struct {
	categories []domain.Category
}

func NewStaticCategoryLoader(categories []domain.Category) *StaticCategoryLoader {
	return &StaticCategoryLoader{categories: categories}
}

func (l *StaticCategoryLoader) LoadCategories(context.Context) ([]domain.Category, error) {
	return l.categories, nil
}
