package database

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient is the global Redis connection used for view sessions and
// role caching.
var RedisClient *redis.Client

// InitRedis initializes the Redis connection from environment
func InitRedis() error {
	addr := GetEnvDefault("REDIS_ADDR", "localhost:6379")
	password := os.Getenv("REDIS_PASSWORD")

	db := 0
	if raw := os.Getenv("REDIS_DB"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("invalid REDIS_DB value %q: %w", raw, err)
		}
		db = parsed
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}

	RedisClient = client
	log.Printf("✅ Redis connected at %s", addr)
	return nil
}

// CloseRedis closes the Redis connection if open
func CloseRedis() {
	if RedisClient != nil {
		if err := RedisClient.Close(); err != nil {
			log.Printf("Error closing Redis connection: %v", err)
		}
	}
}
