package rate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	rdb "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *rdb.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := rdb.NewClient(&rdb.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisLimiterFixedWindow(t *testing.T) {
	mr, client := newRedis(t)
	now := time.Date(2026, 4, 1, 10, 0, 5, 0, time.UTC)
	l := NewRedisLimiter(client, "", 3, time.Minute)
	l.Now = func() time.Time { return now }
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		res, err := l.Allow(ctx, "login:alice@example.com")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "hit %d", i)
		assert.EqualValues(t, 3-i, res.Remaining)
	}

	res, err := l.Allow(ctx, "login:alice@example.com")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.EqualValues(t, 4, res.CurrentHits)
	assert.Greater(t, res.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, res.RetryAfter, time.Minute)

	// otra key no comparte contador
	res, err = l.Allow(ctx, "login:bob@example.com")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	// nueva ventana
	now = now.Add(time.Minute)
	mr.FastForward(time.Minute)
	res, err = l.Allow(ctx, "login:alice@example.com")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.EqualValues(t, 1, res.CurrentHits)
}

func TestRedisLimiterSetsExpiry(t *testing.T) {
	mr, client := newRedis(t)
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	l := NewRedisLimiter(client, "t:", 5, time.Minute)
	l.Now = func() time.Time { return now }

	_, err := l.Allow(context.Background(), "k")
	require.NoError(t, err)
	key := l.key("k", now)
	assert.True(t, mr.Exists(key))
	assert.Equal(t, time.Minute, mr.TTL(key))
}

func TestRedisLimiterDown(t *testing.T) {
	mr, client := newRedis(t)
	l := NewRedisLimiter(client, "", 1, time.Minute)
	mr.Close()

	_, err := l.Allow(context.Background(), "k")
	assert.Error(t, err)
}

func TestMemoryLimiter(t *testing.T) {
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(2, time.Minute)
	l.Now = func() time.Time { return now }
	ctx := context.Background()

	res, _ := l.Allow(ctx, "a")
	assert.True(t, res.Allowed)
	res, _ = l.Allow(ctx, "a")
	assert.True(t, res.Allowed)
	res, _ = l.Allow(ctx, "a")
	assert.False(t, res.Allowed)
	assert.Equal(t, 30*time.Second, res.RetryAfter)

	res, _ = l.Allow(ctx, "b")
	assert.True(t, res.Allowed)

	now = now.Add(30 * time.Second)
	res, _ = l.Allow(ctx, "a")
	assert.True(t, res.Allowed)
}

func TestDisabledLimiters(t *testing.T) {
	res, err := NewMemoryLimiter(0, time.Minute).Allow(context.Background(), "x")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = Noop{}.Allow(context.Background(), "x")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}
