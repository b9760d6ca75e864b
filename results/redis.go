package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/isdmx/coderunner/sandbox"
)

// KeyPrefix namespaces execution results in Redis.
const KeyPrefix = "result:"

// RedisStore keeps responses as JSON strings with a TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a RedisStore. The connection is established lazily.
func NewRedisStore(addr, password string, db int, ttl time.Duration) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Put(ctx context.Context, id string, resp sandbox.Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	if err := s.client.Set(ctx, KeyPrefix+id, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store result: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (sandbox.Response, error) {
	data, err := s.client.Get(ctx, KeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return sandbox.Response{}, ErrNotFound
	}
	if err != nil {
		return sandbox.Response{}, fmt.Errorf("failed to load result: %w", err)
	}

	var resp sandbox.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return sandbox.Response{}, fmt.Errorf("failed to decode result: %w", err)
	}
	return resp, nil
}

// Ping checks the Redis connection
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
