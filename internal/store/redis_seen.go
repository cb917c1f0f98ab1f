package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisSeenStore keeps seen marks in a Redis set per search. SADD and
// SISMEMBER are atomic server-side, so concurrent search evaluations cannot
// lose marks.
type RedisSeenStore struct {
	rdb *redis.Client
}

// NewRedisSeenStore wraps an already-connected Redis client.
func NewRedisSeenStore(rdb *redis.Client) *RedisSeenStore {
	return &RedisSeenStore{rdb: rdb}
}

var _ SeenStore = (*RedisSeenStore)(nil)

func seenKey(searchID string) string {
	return "seen:" + searchID
}

func (s *RedisSeenStore) Has(ctx context.Context, searchID, listingID string) (bool, error) {
	seen, err := s.rdb.SIsMember(ctx, seenKey(searchID), listingID).Result()
	if err != nil {
		return false, fmt.Errorf("redis SISMEMBER: %w", err)
	}
	return seen, nil
}

func (s *RedisSeenStore) Mark(ctx context.Context, searchID, listingID string) error {
	if err := s.rdb.SAdd(ctx, seenKey(searchID), listingID).Err(); err != nil {
		return fmt.Errorf("redis SADD: %w", err)
	}
	return nil
}
