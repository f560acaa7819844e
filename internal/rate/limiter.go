package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultPrefix  = "mlr:"
	DefaultTimeout = 2 * time.Second
)

// Config holds limiter tuning parameters. MaxFailures <= 0 disables the
// limiter.
type Config struct {
	MaxFailures int
	Window      time.Duration
	Prefix      string
	Timeout     time.Duration
}

// Limiter counts failed magic link redemptions per client and refuses further
// attempts once a client exceeds its budget for the current window.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Window <= 0 {
		cfg.Window = 15 * time.Minute
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

func (l *Limiter) enabled(client string) bool {
	return l != nil && l.redis != nil && l.config.MaxFailures > 0 && client != ""
}

func (l *Limiter) key(client string) string {
	return l.config.Prefix + client
}

// Check returns ErrRateLimited when client has used up its failure budget.
func (l *Limiter) Check(ctx context.Context, client string) error {
	if !l.enabled(client) {
		return nil
	}
	count, err := l.Attempts(ctx, client)
	if err != nil {
		return err
	}
	if count >= l.config.MaxFailures {
		return ErrRateLimited
	}
	return nil
}

// RecordFailure counts one failed redemption for client.
func (l *Limiter) RecordFailure(ctx context.Context, client string) error {
	if !l.enabled(client) {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, l.config.Timeout)
	defer cancel()

	count, err := l.redis.Incr(ctx, l.key(client)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, l.key(client), l.config.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return nil
}

// Attempts returns the failures counted for client in the current window.
func (l *Limiter) Attempts(ctx context.Context, client string) (int, error) {
	if !l.enabled(client) {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(ctx, l.config.Timeout)
	defer cancel()

	count, err := l.redis.Get(ctx, l.key(client)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}
