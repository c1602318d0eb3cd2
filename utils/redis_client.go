package utils

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cppla/taskquest/config"
)

var (
	redisClient *redis.Client
	redisOnce   sync.Once
)

// GetRedis returns a singleton Redis client based on loaded config, or nil when redis is disabled.
func GetRedis() *redis.Client {
	redisOnce.Do(func() {
		if redisClient != nil {
			return
		}
		cfg := config.Get()
		if cfg.RedisHost == "" {
			return
		}
		redisClient = redis.NewClient(&redis.Options{
			Addr:         net.JoinHostPort(cfg.RedisHost, strconv.Itoa(cfg.RedisPort)),
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			DialTimeout:  3 * time.Second,
			ReadTimeout:  2 * time.Second,
			WriteTimeout: 2 * time.Second,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			Sugar.Warnf("redis ping failed, falling back to in-process stores: %v", err)
			_ = redisClient.Close()
			redisClient = nil
		}
	})
	return redisClient
}

// SetRedis installs a client (or nil to disable redis) and skips lazy initialization.
func SetRedis(c *redis.Client) {
	redisOnce.Do(func() {})
	redisClient = c
}
