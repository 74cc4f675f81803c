package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"linkgraph/application/ports"
	"linkgraph/domain/core/entities"
)

func sampleLinks() []*entities.EntityLinkWithDetails {
	from := entities.NewEntityRef(entities.EntityTypeTask, "a", "acme")
	to := entities.NewEntityRef(entities.EntityTypeProject, "p", "acme")
	link := entities.NewEntityLink("l-1", from, to, entities.LinkKindChildOf, "note", map[string]interface{}{"source": "import"}, "user-1",
		time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	return []*entities.EntityLinkWithDetails{entities.WithMinimalDetails(link)}
}

func runCacheContract(t *testing.T, c ports.Cache) {
	ctx := context.Background()

	_, ok := c.Get(ctx, "missing")
	assert.False(t, ok)

	links := sampleLinks()
	require.NoError(t, c.Set(ctx, "links:acme:task:a", links, 60))
	require.NoError(t, c.Set(ctx, "link:acme:l-1", links[0].EntityLink.Clone(), 60))

	got, ok := c.Get(ctx, "links:acme:task:a")
	require.True(t, ok)
	assert.Equal(t, links, got)

	single, ok := c.Get(ctx, "link:acme:l-1")
	require.True(t, ok)
	assert.Equal(t, links[0].EntityLink.Clone(), single)

	require.NoError(t, c.Delete(ctx, "link:acme:l-1"))
	_, ok = c.Get(ctx, "link:acme:l-1")
	assert.False(t, ok)
	assert.NoError(t, c.Delete(ctx, "never-set"))

	require.NoError(t, c.Clear(ctx))
	_, ok = c.Get(ctx, "links:acme:task:a")
	assert.False(t, ok)
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	defer c.Close()

	runCacheContract(t, c)
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache(0)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", 10))
	v, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	now = now.Add(10 * time.Second)
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len(), "expired entries stay until swept")

	c.removeExpired()
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCache_CloseTwice(t *testing.T) {
	c := NewMemoryCache(time.Millisecond)

	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}

func TestBadgerCache(t *testing.T) {
	c, err := NewBadgerCache(BadgerConfig{InMemory: true}, zap.NewNop())
	require.NoError(t, err)
	defer c.Close()

	runCacheContract(t, c)
}

func TestBadgerCache_OnDisk(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	c, err := NewBadgerCache(BadgerConfig{Path: dir}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, c.Set(ctx, "links:acme:task:a", sampleLinks(), 60))
	require.NoError(t, c.Close())

	reopened, err := NewBadgerCache(BadgerConfig{Path: dir}, zap.NewNop())
	require.NoError(t, err)
	defer reopened.Close()
	got, ok := reopened.Get(ctx, "links:acme:task:a")
	require.True(t, ok)
	assert.Equal(t, sampleLinks(), got)
}

func TestBadgerCache_RequiresPath(t *testing.T) {
	_, err := NewBadgerCache(BadgerConfig{}, zap.NewNop())

	assert.Error(t, err)
}

func TestNoopCache(t *testing.T) {
	c := NewNoopCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", 60))
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
	assert.NoError(t, c.Delete(ctx, "k"))
	assert.NoError(t, c.Clear(ctx))
}
