package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/MrEthical07/magicgate/internal/config"
)

type Infra struct {
	// Redis is nil when REDIS_URL is not configured.
	Redis redis.UniversalClient
}

// setupInfra connects to the token store. An unreachable store is logged but
// does not stop startup: redemption fails closed until it comes back.
func setupInfra(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Infra, error) {
	if cfg.RedisURL == "" {
		log.Warn("redis not configured; magic link redemption disabled")
		return &Infra{}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	if cfg.RedisToken != "" {
		opts.Password = cfg.RedisToken
	}
	opts.DialTimeout = cfg.RedisTimeout
	opts.ReadTimeout = cfg.RedisTimeout
	opts.WriteTimeout = cfg.RedisTimeout

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn("redis ping failed", zap.String("addr", opts.Addr), zap.Error(err))
	} else {
		log.Info("redis ready", zap.String("addr", opts.Addr))
	}

	return &Infra{Redis: client}, nil
}

func (i *Infra) Close() error {
	if i == nil || i.Redis == nil {
		return nil
	}
	return i.Redis.Close()
}
