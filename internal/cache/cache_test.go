package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thep200/github-harvester/cfg"
	"github.com/thep200/github-harvester/pkg/log"
)

func newTestCache(t *testing.T, dir string, maxFast int) *Cache {
	t.Helper()
	logger, err := log.NewCslLogger()
	require.NoError(t, err)

	config := &cfg.Config{}
	config.Cache.Dir = dir
	config.Cache.MaxFastEntries = maxFast
	config.Cache.TtlMin = 60

	c, err := NewCache(logger, config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestSetThenGet(t *testing.T) {
	c := newTestCache(t, "", 100)

	require.NoError(t, c.Set("search:page:1", []byte(`{"items":[]}`), time.Minute))

	value, ok := c.Get("search:page:1")
	require.True(t, ok)
	assert.Equal(t, []byte(`{"items":[]}`), value)
}

func TestGetMissingKey(t *testing.T) {
	c := newTestCache(t, "", 100)

	_, ok := c.Get("no-such-key")
	assert.False(t, ok)
}

func TestExpiredEntryIsAbsent(t *testing.T) {
	c := newTestCache(t, "", 100)

	// TTL của tầng bền có độ phân giải theo giây
	require.NoError(t, c.Set("short-lived", []byte("v"), time.Second))
	time.Sleep(2100 * time.Millisecond)

	_, ok := c.Get("short-lived")
	assert.False(t, ok)
}

func TestInvalidateRemovesFromBothTiers(t *testing.T) {
	c := newTestCache(t, "", 100)

	require.NoError(t, c.Set("k", []byte("v"), time.Minute))
	require.NoError(t, c.Invalidate("k"))

	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestClear(t *testing.T) {
	c := newTestCache(t, "", 100)

	require.NoError(t, c.Set("a", []byte("1"), time.Minute))
	require.NoError(t, c.Set("b", []byte("2"), time.Minute))
	require.NoError(t, c.Clear())

	_, ok := c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("b")
	assert.False(t, ok)
}

func TestDurableHitIsPromotedToFastTier(t *testing.T) {
	c := newTestCache(t, "", 100)

	require.NoError(t, c.Set("promote-me", []byte("v"), time.Minute))

	// Xóa tầng nhanh, entry vẫn còn ở tầng bền
	c.fast.clear()
	require.Equal(t, 0, c.fast.len())

	value, ok := c.Get("promote-me")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), value)
	assert.Equal(t, 1, c.fast.len())
}

func TestDurableTierSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	logger, err := log.NewCslLogger()
	require.NoError(t, err)
	config := &cfg.Config{}
	config.Cache.Dir = dir
	config.Cache.MaxFastEntries = 100
	config.Cache.TtlMin = 60

	c1, err := NewCache(logger, config)
	require.NoError(t, err)
	require.NoError(t, c1.Set("persisted", []byte("v"), time.Hour))
	require.NoError(t, c1.Close())

	c2, err := NewCache(logger, config)
	require.NoError(t, err)
	defer c2.Close()

	value, ok := c2.Get("persisted")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), value)
}

func TestEvictionKeepsMostAccessedEntries(t *testing.T) {
	tier := newFastTier(8)

	for i := 0; i < 8; i++ {
		tier.set(fmt.Sprintf("key-%d", i), []byte("v"), time.Minute)
	}

	// key-0 và key-1 được đọc nhiều, phần còn lại không đọc lần nào
	for i := 0; i < 10; i++ {
		_, ok := tier.get("key-0")
		require.True(t, ok)
		_, ok = tier.get("key-1")
		require.True(t, ok)
	}

	// Thêm entry mới khi tầng đã đầy sẽ kích hoạt eviction
	tier.set("key-8", []byte("v"), time.Minute)

	_, ok := tier.get("key-0")
	assert.True(t, ok, "most-accessed entry must never be evicted")
	_, ok = tier.get("key-1")
	assert.True(t, ok, "most-accessed entry must never be evicted")
	assert.LessOrEqual(t, tier.len(), 8)
}
