package tokenpool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPoolRequiresTokens(t *testing.T) {
	_, err := NewPool(nil, 5000, 0)
	assert.ErrorIs(t, err, ErrNoTokens)

	_, err = NewPool([]string{}, 5000, 0)
	assert.ErrorIs(t, err, ErrNoTokens)
}

func TestAcquireRoundRobinFairness(t *testing.T) {
	tokens := []string{"token-aaaa", "token-bbbb", "token-cccc"}
	capacity := 5
	pool, err := NewPool(tokens, capacity, 0)
	require.NoError(t, err)

	counts := make(map[string]int)
	for i := 0; i < len(tokens)*capacity; i++ {
		lease, err := pool.Acquire(context.Background())
		require.NoError(t, err)
		counts[lease.Token]++
	}

	for _, token := range tokens {
		assert.Equal(t, capacity, counts[token], "token %s should be used exactly %d times", token, capacity)
	}
}

func TestAcquireSpreadsLoadFromLastUsedIndex(t *testing.T) {
	pool, err := NewPool([]string{"token-aaaa", "token-bbbb"}, 100, 0)
	require.NoError(t, err)

	first, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	second, err := pool.Acquire(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, first.Index, second.Index)
}

func TestAcquireBlocksUntilNearestReset(t *testing.T) {
	pool, err := NewPool([]string{"token-aaaa", "token-bbbb"}, 10, 0)
	require.NoError(t, err)
	pool.ResetBuffer = 20 * time.Millisecond

	// Báo cả hai token đã cạn quota với thời điểm reset khác nhau
	nearest := time.Now().Add(150 * time.Millisecond)
	pool.Report(0, 0, nearest)
	pool.Report(1, 0, time.Now().Add(10*time.Second))

	start := time.Now()
	lease, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	elapsed := time.Since(start)

	assert.Equal(t, 0, lease.Index)
	assert.GreaterOrEqual(t, elapsed, 150*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second)
}

func TestAcquireHonorsContextWhileBlocked(t *testing.T) {
	pool, err := NewPool([]string{"token-aaaa"}, 10, 0)
	require.NoError(t, err)

	pool.Report(0, 0, time.Now().Add(time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = pool.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReportOverridesOptimisticEstimate(t *testing.T) {
	pool, err := NewPool([]string{"token-aaaa"}, 5000, 0)
	require.NoError(t, err)

	lease, err := pool.Acquire(context.Background())
	require.NoError(t, err)

	resetAt := time.Now().Add(30 * time.Minute)
	pool.Report(lease.Index, 42, resetAt)

	stats := pool.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, 42, stats[0].QuotaRemaining)
	assert.WithinDuration(t, resetAt, stats[0].QuotaResetAt, time.Second)
}

func TestQuotaResetsAfterResetTimeElapsed(t *testing.T) {
	pool, err := NewPool([]string{"token-aaaa"}, 7, 0)
	require.NoError(t, err)

	// Token cạn quota nhưng thời điểm reset đã qua
	pool.Report(0, 0, time.Now().Add(-time.Second))

	lease, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, lease.Index)

	stats := pool.Stats()
	// Quota danh định 7, trừ 1 cho lần acquire vừa rồi
	assert.Equal(t, 6, stats[0].QuotaRemaining)
}

func TestReserveKeepsHeadroom(t *testing.T) {
	pool, err := NewPool([]string{"token-aaaa"}, 3, 1)
	require.NoError(t, err)
	pool.ResetBuffer = 10 * time.Millisecond

	// Với reserve=1 chỉ dùng được 2 trong 3 quota
	for i := 0; i < 2; i++ {
		_, err := pool.Acquire(context.Background())
		require.NoError(t, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = pool.Acquire(ctx)
	assert.Error(t, err)
}

func TestStatsMasksTokens(t *testing.T) {
	pool, err := NewPool([]string{"ghp_supersecrettoken1234"}, 5000, 0)
	require.NoError(t, err)

	stats := pool.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, "ghp_...1234", stats[0].Token)
	assert.NotContains(t, stats[0].Token, "supersecret")
}
