package cache

import (
	"context"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/env"
)

var client *redis.Client

// SetupCache connects the process-wide Redis client. The client backs the
// session store and the sweep leader lock. A failed ping is logged but not
// fatal; the sweeper degrades to unguarded single-instance mode.
func SetupCache() {
	client = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", env.GetEnv("CACHE_HOST", "localhost"), env.GetEnv("CACHE_PORT", "6379")),
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		DB:       0,
	})

	if pong, err := client.Ping(context.Background()).Result(); err != nil {
		log.Printf("Warning: could not connect to Redis cache: %v", err)
	} else {
		log.Printf("Connected to Redis cache: %s", pong)
	}
}

// GetClient returns the shared Redis client, connecting lazily if
// SetupCache has not run yet.
func GetClient() *redis.Client {
	if client == nil {
		SetupCache()
	}
	return client
}
