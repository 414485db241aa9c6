package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jasonwang1/registercenter/pkg/metrics"
)

func setupTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisStore(client, metrics.NewRegistry("test_store_" + t.Name()).Store()), mr
}

func TestRedisStore_HashRoundTrip(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.HashSet(ctx, "k", "f1", "v1"))

	v, ok, err := s.HashGet(ctx, "k", "f1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v1", v)

	_, ok, err = s.HashGet(ctx, "k", "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.HashDel(ctx, "k", "f1"))
	_, ok, err = s.HashGet(ctx, "k", "f1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_HashMGet(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.HashSet(ctx, "k", "f1", "v1"))
	require.NoError(t, s.HashSet(ctx, "k", "f2", "v2"))

	out, err := s.HashMGet(ctx, "k", []string{"f1", "f2", "f3"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"f1": "v1", "f2": "v2"}, out)

	empty, err := s.HashMGet(ctx, "k", nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRedisStore_HashScanAll(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.HashSet(ctx, "k", "f1", "v1"))
	require.NoError(t, s.HashSet(ctx, "k", "f2", "v2"))

	out, err := s.HashScanAll(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"f1": "v1", "f2": "v2"}, out)
}

func TestRedisStore_SetRoundTrip(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetAdd(ctx, "set", "a"))
	require.NoError(t, s.SetAdd(ctx, "set", "b"))

	out, err := s.SetScanAll(ctx, "set")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, out)

	require.NoError(t, s.SetRem(ctx, "set", "a"))
	out, err = s.SetScanAll(ctx, "set")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, out)
}

func TestRedisStore_ZSet(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.ZAdd(ctx, "z", 100, "a"))
	require.NoError(t, s.ZAdd(ctx, "z", 200, "b"))

	out, err := s.ZRangeByScore(ctx, "z", 0, 150)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, out)
}

func TestRedisStore_AtomicSetIfAbsentWithTTL(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	ok, err := s.AtomicSetIfAbsentWithTTL(ctx, "lock", "holder", 50*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.AtomicSetIfAbsentWithTTL(ctx, "lock", "other", 50*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok, "second SETNX against the same key must fail")

	require.NoError(t, s.Unlink(ctx, "lock"))
	ok, err = s.AtomicSetIfAbsentWithTTL(ctx, "lock", "other", 50*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok, "key must be acquirable again after Unlink")
}

func TestRedisStore_Ping(t *testing.T) {
	s, _ := setupTestStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}

func TestRedisStore_RecordsMetrics(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.HashSet(ctx, "k", "f", "v"))

	assert.Equal(t, float64(1), testutil.ToFloat64(s.metrics.OpsTotal.WithLabelValues("HSET")))
}
