package artifact

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"lexaudit/pkg/platform/sentinel"
)

// RedisStore persists artifacts as one hash per run, field per key. Runs
// share nothing, so a flat hash keyed by run ID is enough structure.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func runHashKey(runID string) string {
	return "lexaudit:run:" + runID
}

func (s *RedisStore) Save(ctx context.Context, runID string, key Key, payload []byte) error {
	if err := s.client.HSet(ctx, runHashKey(runID), string(key), payload).Err(); err != nil {
		return fmt.Errorf("redis save %s/%s: %w", runID, key, err)
	}
	return nil
}

func (s *RedisStore) Find(ctx context.Context, runID string, key Key) ([]byte, error) {
	payload, err := s.client.HGet(ctx, runHashKey(runID), string(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis find %s/%s: %w", runID, key, err)
	}
	return payload, nil
}
