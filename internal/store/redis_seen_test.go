package store_test

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vintedwatch/monitor-service/internal/store"
)

func newRedisSeen(t *testing.T) *store.RedisSeenStore {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return store.NewRedisSeenStore(rdb)
}

func TestRedisSeenStore_MarkThenHas(t *testing.T) {
	s := newRedisSeen(t)
	ctx := context.Background()

	seen, err := s.Has(ctx, "search-a", "item-1")
	require.NoError(t, err)
	assert.False(t, seen, "unmarked pair should not be seen")

	require.NoError(t, s.Mark(ctx, "search-a", "item-1"))

	seen, err = s.Has(ctx, "search-a", "item-1")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestRedisSeenStore_PerSearchKeying(t *testing.T) {
	s := newRedisSeen(t)
	ctx := context.Background()

	require.NoError(t, s.Mark(ctx, "search-a", "item-1"))

	seen, err := s.Has(ctx, "search-b", "item-1")
	require.NoError(t, err)
	assert.False(t, seen, "a mark for one search must not suppress another")
}

func TestRedisSeenStore_MarkIsIdempotent(t *testing.T) {
	s := newRedisSeen(t)
	ctx := context.Background()

	require.NoError(t, s.Mark(ctx, "search-a", "item-1"))
	require.NoError(t, s.Mark(ctx, "search-a", "item-1"))

	seen, err := s.Has(ctx, "search-a", "item-1")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestRedisSeenStore_ConcurrentMarks(t *testing.T) {
	s := newRedisSeen(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Mark(ctx, "search-a", "item-1"))
		}()
	}
	wg.Wait()

	seen, err := s.Has(ctx, "search-a", "item-1")
	require.NoError(t, err)
	assert.True(t, seen)
}
