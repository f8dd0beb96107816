package metadata

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"rulehelper/types"
)

const DefaultTTL = 15 * time.Minute

// EntityFetcher is the live source the cache refreshes from.
type EntityFetcher interface {
	FetchEntityMetadata(ctx context.Context, entityType string) (*types.EntityMetadata, error)
	TestConnection(ctx context.Context) bool
}

type cacheEntry struct {
	meta      *types.EntityMetadata
	fetchedAt time.Time
}

// Cache serves entity schemas with TTL expiry and graceful degradation. A
// lookup never fails: the caller gets live data, stale data past its TTL when
// refresh fails, or the static fallback when nothing was ever fetched. The
// Source field on the result says which tier answered.
type Cache struct {
	fetcher EntityFetcher
	ttl     time.Duration
	logger  *slog.Logger

	mu      sync.RWMutex
	entries map[string]cacheEntry

	// injectable clock for expiry tests
	now func() time.Time
}

func NewCache(fetcher EntityFetcher, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		fetcher: fetcher,
		ttl:     ttl,
		logger:  slog.Default(),
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// EntityMetadata returns a usable schema for the entity type. Fresh cache hits
// are served directly; expired or missing entries trigger a refresh; a failed
// refresh degrades to stale data or the static fallback rather than erroring.
func (c *Cache) EntityMetadata(ctx context.Context, entityType string) *types.EntityMetadata {
	c.mu.RLock()
	entry, ok := c.entries[entityType]
	c.mu.RUnlock()

	if ok && c.now().Sub(entry.fetchedAt) < c.ttl {
		return entry.meta
	}

	if c.fetcher != nil {
		meta, err := c.fetcher.FetchEntityMetadata(ctx, entityType)
		if err == nil {
			c.mu.Lock()
			c.entries[entityType] = cacheEntry{meta: meta, fetchedAt: c.now()}
			c.mu.Unlock()
			return meta
		}
		c.logger.Warn("metadata refresh failed", "entity", entityType, "error", err)
	}

	if ok {
		stale := *entry.meta
		stale.Source = types.SourceStale
		return &stale
	}

	c.logger.Warn("serving static fallback schema", "entity", entityType)
	return FallbackMetadata(entityType)
}

// Invalidate drops a cached schema so the next lookup refetches.
func (c *Cache) Invalidate(entityType string) {
	c.mu.Lock()
	delete(c.entries, entityType)
	c.mu.Unlock()
}

func (c *Cache) TestConnection(ctx context.Context) bool {
	if c.fetcher == nil {
		return false
	}
	return c.fetcher.TestConnection(ctx)
}

// ValidateFieldAccess resolves the entity schema and reports how the field
// should be referenced from rule JavaScript.
func (c *Cache) ValidateFieldAccess(ctx context.Context, entityType, fieldName string) types.FieldAccess {
	return ValidateFieldAccess(c.EntityMetadata(ctx, entityType), fieldName)
}
