package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const embeddingKeyPrefix = "cache:embedding:"

// CacheRepo stores query embeddings so repeated searches skip the embeddings API.
type CacheRepo struct {
	client *goredis.Client
}

func NewCacheRepo(client *goredis.Client) *CacheRepo {
	return &CacheRepo{client: client}
}

// GetVector reports a miss with ok=false and a nil error.
func (r *CacheRepo) GetVector(ctx context.Context, key string) ([]float32, bool, error) {
	if r.client == nil {
		return nil, false, fmt.Errorf("redis client is nil")
	}
	if key == "" {
		return nil, false, fmt.Errorf("cache key is required")
	}

	raw, err := r.client.Get(ctx, embeddingKeyPrefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get cached embedding: %w", err)
	}

	var vector []float32
	if err := json.Unmarshal(raw, &vector); err != nil || len(vector) == 0 {
		// Unreadable entries are treated as a miss and overwritten on the next SetVector.
		return nil, false, nil
	}
	return vector, true, nil
}

func (r *CacheRepo) SetVector(ctx context.Context, key string, vector []float32, ttl time.Duration) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if key == "" || len(vector) == 0 || ttl <= 0 {
		return fmt.Errorf("invalid cache payload")
	}

	raw, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("marshal embedding: %w", err)
	}
	if err := r.client.Set(ctx, embeddingKeyPrefix+key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("set cached embedding: %w", err)
	}
	return nil
}
