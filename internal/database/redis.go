package database

import (
	"context"
	"time"

	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// InitRedis connects to Redis. The client is returned even when the ping
// fails so callers can decide whether to fall back to in-process state; ok
// reports whether the server answered.
func InitRedis(ctx context.Context, addr, password string, db int) (client *redis.Client, ok bool) {
	client = redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn().Err(err).Str("addr", addr).Msg("Failed to connect to Redis, falling back to in-memory cache and local realtime")
		return client, false
	}

	logger.Info().Str("addr", addr).Msg("Connected to Redis")
	return client, true
}
