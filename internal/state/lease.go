package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const releaseScript = `
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	end
	return 0
`

// Lease is a Redis single-writer guard for state refresh passes
type Lease struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

// NewLease creates a lease on {namespace}:lease:update-state
func NewLease(client redis.UniversalClient, namespace string, ttl time.Duration) *Lease {
	return &Lease{
		client: client,
		key:    namespace + ":lease:update-state",
		ttl:    ttl,
	}
}

// TryAcquire takes the lease. It returns a token for Release, or "" when another holder has it.
func (l *Lease) TryAcquire(ctx context.Context) (string, error) {
	token := fmt.Sprintf("%d", time.Now().UnixNano())
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return "", fmt.Errorf("failed to acquire lease: %w", err)
	}
	if !ok {
		return "", nil
	}
	return token, nil
}

// Release drops the lease if token still holds it
func (l *Lease) Release(ctx context.Context, token string) error {
	err := l.client.Eval(ctx, releaseScript, []string{l.key}, token).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to release lease: %w", err)
	}
	return nil
}
