package cache

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"feedsync/internal/models"

	"github.com/redis/go-redis/v9"
)

// InitRedis connects to Redis at the given address. A failed connection is a
// warning, not a fatal error: the engine runs without a persistent cache and
// the returned client is nil.
func InitRedis(addr string) *redis.Client {
	var opts *redis.Options
	if strings.Contains(addr, "://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			log.Printf("Redis connection warning: invalid REDIS_URL %q: %v (continuing without cache)", addr, err)
			return nil
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: addr}
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("Redis connection warning: %v (continuing without cache)", err)
		return nil
	}
	log.Println("Redis connected successfully")
	return client
}

// RedisStore keeps each collection as a JSON blob under its collection name.
// Entries carry no TTL; a collection persists until overwritten.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps a Redis client. A nil client is valid and behaves as an
// always-empty store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, name string) ([]models.Post, error) {
	if s.client == nil {
		return nil, nil
	}
	val, err := s.client.Get(ctx, name).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, models.NewStorageError(err)
	}
	var posts []models.Post
	if err := json.Unmarshal([]byte(val), &posts); err != nil {
		return nil, models.NewStorageError(err)
	}
	return posts, nil
}

func (s *RedisStore) Set(ctx context.Context, name string, posts []models.Post) error {
	if s.client == nil {
		return nil
	}
	b, err := json.Marshal(posts)
	if err != nil {
		return models.NewStorageError(err)
	}
	if err := s.client.Set(ctx, name, b, 0).Err(); err != nil {
		return models.NewStorageError(err)
	}
	return nil
}
