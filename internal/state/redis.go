package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yourorg/rpc-dashboard/internal/model"
	"github.com/yourorg/rpc-dashboard/internal/types"
)

// RedisStore keeps snapshots as JSON strings in Redis
type RedisStore struct {
	client    redis.UniversalClient
	namespace string
	ttl       time.Duration
}

// NewRedisStore creates a Redis-backed Store. A zero ttl keeps keys forever.
func NewRedisStore(client redis.UniversalClient, namespace string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, namespace: namespace, ttl: ttl}
}

// NewRedisClient parses a redis:// URL into a client
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	return redis.NewClient(opts), nil
}

func (s *RedisStore) key(chain types.Blockchain) string {
	return fmt.Sprintf("%s:state:%s", s.namespace, chain)
}

// Get returns the stored snapshot or ErrNotFound when the key is missing or expired
func (s *RedisStore) Get(ctx context.Context, chain types.Blockchain) (model.ChainState, error) {
	raw, err := s.client.Get(ctx, s.key(chain)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.ChainState{}, ErrNotFound
	}
	if err != nil {
		return model.ChainState{}, fmt.Errorf("failed to read %s state: %w", chain, err)
	}

	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return model.ChainState{}, fmt.Errorf("corrupt %s state: %w", chain, err)
	}
	return rec.ChainState, nil
}

// Put overwrites the snapshot for chain
func (s *RedisStore) Put(ctx context.Context, chain types.Blockchain, st model.ChainState) error {
	raw, err := json.Marshal(newRecord(st))
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(chain), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write %s state: %w", chain, err)
	}
	return nil
}
