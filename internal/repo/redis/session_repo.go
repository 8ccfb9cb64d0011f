package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const adminSessionPrefix = "admin_sessions:"

var ErrSessionNotFound = errors.New("admin session not found")

// AdminSessionRepo tracks live admin sessions so a token can be revoked before it expires.
type AdminSessionRepo struct {
	client *goredis.Client
}

func NewAdminSessionRepo(client *goredis.Client) *AdminSessionRepo {
	return &AdminSessionRepo{client: client}
}

func (r *AdminSessionRepo) Create(ctx context.Context, sid, username string, ttl time.Duration) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if strings.TrimSpace(sid) == "" || strings.TrimSpace(username) == "" || ttl <= 0 {
		return fmt.Errorf("invalid admin session payload")
	}

	if err := r.client.Set(ctx, adminSessionKey(sid), username, ttl).Err(); err != nil {
		return fmt.Errorf("create admin session: %w", err)
	}
	return nil
}

func (r *AdminSessionRepo) Get(ctx context.Context, sid string) (string, error) {
	if r.client == nil {
		return "", fmt.Errorf("redis client is nil")
	}

	username, err := r.client.Get(ctx, adminSessionKey(sid)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", ErrSessionNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get admin session: %w", err)
	}
	return username, nil
}

func (r *AdminSessionRepo) Delete(ctx context.Context, sid string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}

	if err := r.client.Del(ctx, adminSessionKey(sid)).Err(); err != nil {
		return fmt.Errorf("delete admin session: %w", err)
	}
	return nil
}

func adminSessionKey(sid string) string {
	return adminSessionPrefix + strings.TrimSpace(sid)
}
