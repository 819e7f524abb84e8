package redis

import (
	"context"
	"errors"
	"time"

	"github.com/lyo-hub/lyo-session-engine/internal/domain/shared"
	"github.com/lyo-hub/lyo-session-engine/internal/domain/skillgraph"
)

// ══════════════════════════════════════════════════════════════════════════════
// COURSE DEFINITION CACHE
// Sits between the graph loader and the catalog source. A republish calls
// Invalidate; the TTL is only a backstop against stale entries.
// ══════════════════════════════════════════════════════════════════════════════

// CourseCache implements skillgraph.Cache on top of Redis.
type CourseCache struct {
	cache *Cache
}

// NewCourseCache creates a new CourseCache.
func NewCourseCache(cache *Cache) *CourseCache {
	return &CourseCache{cache: cache}
}

// Get returns a cached course definition.
// Returns shared.ErrNotFound on a cache miss.
func (c *CourseCache) Get(ctx context.Context, courseID string) (*skillgraph.CourseDefinition, error) {
	if courseID == "" {
		return nil, ErrCacheKeyEmpty
	}

	var def skillgraph.CourseDefinition
	err := c.cache.Get(ctx, CourseKey(courseID), &def)
	if errors.Is(err, ErrCacheMiss) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &def, nil
}

// Set stores a course definition with the given TTL.
func (c *CourseCache) Set(ctx context.Context, def *skillgraph.CourseDefinition, ttl time.Duration) error {
	if def == nil {
		return ErrCacheNilValue
	}
	if def.CourseID == "" {
		return ErrCacheKeyEmpty
	}
	if ttl <= 0 {
		ttl = TTLCourseDefinition
	}

	return c.cache.Set(ctx, CourseKey(def.CourseID), def, ttl)
}

// Invalidate removes a course definition from the cache.
func (c *CourseCache) Invalidate(ctx context.Context, courseID string) error {
	if courseID == "" {
		return ErrCacheKeyEmpty
	}

	return c.cache.Delete(ctx, CourseKey(courseID))
}
