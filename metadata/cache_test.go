package metadata

import (
	"context"
	"fmt"
	"testing"
	"time"

	"rulehelper/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	meta      *types.EntityMetadata
	err       error
	calls     int
	connected bool
}

func (f *fakeFetcher) FetchEntityMetadata(ctx context.Context, entityType string) (*types.EntityMetadata, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	m := *f.meta
	m.EntityType = entityType
	m.Source = types.SourceLive
	return &m, nil
}

func (f *fakeFetcher) TestConnection(ctx context.Context) bool { return f.connected }

func liveMeta() *types.EntityMetadata {
	return &types.EntityMetadata{
		StandardFields: []string{"Id", "Name", "EntityState"},
		CustomFields:   []string{"Story Points"},
		States:         []string{"Open", "Done"},
	}
}

func TestCacheServesLiveThenCached(t *testing.T) {
	fetcher := &fakeFetcher{meta: liveMeta()}
	cache := NewCache(fetcher, time.Minute)

	first := cache.EntityMetadata(context.Background(), "Bug")
	assert.Equal(t, types.SourceLive, first.Source)
	assert.Equal(t, 1, fetcher.calls)

	second := cache.EntityMetadata(context.Background(), "Bug")
	assert.Equal(t, types.SourceLive, second.Source)
	assert.Equal(t, 1, fetcher.calls, "fresh entry must not refetch")
}

func TestCacheRefreshesAfterTTL(t *testing.T) {
	fetcher := &fakeFetcher{meta: liveMeta()}
	cache := NewCache(fetcher, time.Minute)

	now := time.Now()
	cache.now = func() time.Time { return now }

	cache.EntityMetadata(context.Background(), "Bug")
	require.Equal(t, 1, fetcher.calls)

	now = now.Add(2 * time.Minute)
	cache.EntityMetadata(context.Background(), "Bug")
	assert.Equal(t, 2, fetcher.calls)
}

func TestCacheDegradesToStale(t *testing.T) {
	fetcher := &fakeFetcher{meta: liveMeta()}
	cache := NewCache(fetcher, time.Minute)

	now := time.Now()
	cache.now = func() time.Time { return now }

	cache.EntityMetadata(context.Background(), "Bug")

	now = now.Add(2 * time.Minute)
	fetcher.err = fmt.Errorf("network unreachable")

	meta := cache.EntityMetadata(context.Background(), "Bug")
	assert.Equal(t, types.SourceStale, meta.Source)
	assert.Equal(t, []string{"Id", "Name", "EntityState"}, meta.StandardFields)
}

func TestCacheFallsBackWhenNeverFetched(t *testing.T) {
	fetcher := &fakeFetcher{err: fmt.Errorf("auth failed")}
	cache := NewCache(fetcher, time.Minute)

	meta := cache.EntityMetadata(context.Background(), "Task")
	assert.Equal(t, types.SourceFallback, meta.Source)
	assert.Equal(t, "Task", meta.EntityType)
	assert.Contains(t, meta.States, "In Progress")
}

func TestCacheSuccessfulFetchSupersedesFallback(t *testing.T) {
	fetcher := &fakeFetcher{err: fmt.Errorf("down")}
	cache := NewCache(fetcher, time.Minute)

	fallback := cache.EntityMetadata(context.Background(), "Bug")
	require.Equal(t, types.SourceFallback, fallback.Source)

	fetcher.err = nil
	fetcher.meta = liveMeta()

	live := cache.EntityMetadata(context.Background(), "Bug")
	assert.Equal(t, types.SourceLive, live.Source)
}

func TestCacheInvalidateForcesRefetch(t *testing.T) {
	fetcher := &fakeFetcher{meta: liveMeta()}
	cache := NewCache(fetcher, time.Hour)

	cache.EntityMetadata(context.Background(), "Bug")
	cache.Invalidate("Bug")
	cache.EntityMetadata(context.Background(), "Bug")

	assert.Equal(t, 2, fetcher.calls)
}

func TestCacheUnknownEntityFallbackShape(t *testing.T) {
	cache := NewCache(nil, time.Minute)

	meta := cache.EntityMetadata(context.Background(), "Impediment")
	assert.Equal(t, types.SourceFallback, meta.Source)
	assert.Equal(t, "Impediment", meta.EntityType)
	assert.NotEmpty(t, meta.StandardFields)
}

func TestValidateFieldAccess(t *testing.T) {
	meta := &types.EntityMetadata{
		StandardFields: []string{"Name", "EntityState"},
		CustomFields:   []string{"Story Points", "Sprint"},
	}

	standard := ValidateFieldAccess(meta, "Name")
	assert.True(t, standard.Exists)
	assert.Equal(t, "standard", standard.FieldType)
	assert.Equal(t, "args.Current.Name", standard.AccessPattern)

	spaced := ValidateFieldAccess(meta, "Story Points")
	assert.True(t, spaced.Exists)
	assert.Equal(t, "custom", spaced.FieldType)
	assert.Equal(t, `args.Current["Story Points"]`, spaced.AccessPattern)

	plain := ValidateFieldAccess(meta, "Sprint")
	assert.Equal(t, "args.Current.Sprint", plain.AccessPattern)

	missing := ValidateFieldAccess(meta, "Nope")
	assert.False(t, missing.Exists)
	assert.Equal(t, "unknown", missing.FieldType)
}

func TestFromDocuments(t *testing.T) {
	contents := []string{
		`if (args.Current.EntityState.Name === "Done") { return args.Current.Effort; }`,
		`set state to "In Progress" when the entityState changes`,
	}

	meta := FromDocuments(contents, "UserStory")
	assert.Equal(t, types.SourceDocuments, meta.Source)
	assert.Contains(t, meta.StandardFields, "EntityState")
	assert.Contains(t, meta.StandardFields, "Effort")
	assert.Contains(t, meta.States, "In Progress")
}
