package rate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	redrepo "github.com/nicklasc86/travelbot/internal/repo/redis"
)

func TestLimiterBlocksOn10SecondWindow(t *testing.T) {
	mr, client := newMiniRedisClient(t)

	limiter := NewLimiter(redrepo.NewRateRepo(client), 100, 3)
	ctx := context.Background()
	clientKey := "203.0.113.7"

	for i := 0; i < 3; i++ {
		retryAfter, allowed, err := limiter.AllowIngest(ctx, clientKey)
		if err != nil {
			t.Fatalf("allow ingest #%d: %v", i+1, err)
		}
		if !allowed || retryAfter != 0 {
			t.Fatalf("unexpected result on allow #%d: allowed=%v retry_after=%d", i+1, allowed, retryAfter)
		}
	}

	retryAfter, allowed, err := limiter.AllowIngest(ctx, clientKey)
	if err != nil {
		t.Fatalf("allow ingest #4: %v", err)
	}
	if allowed {
		t.Fatalf("expected limiter block on fourth submission in 10s window")
	}
	if retryAfter <= 0 || retryAfter > 10 {
		t.Fatalf("unexpected retry_after: %d", retryAfter)
	}

	currentRetry, err := limiter.RetryAfter(ctx, clientKey)
	if err != nil {
		t.Fatalf("retry_after state: %v", err)
	}
	if currentRetry <= 0 {
		t.Fatalf("expected positive retry_after state, got %d", currentRetry)
	}

	mr.FastForward(11 * time.Second)

	retryAfter, allowed, err = limiter.AllowIngest(ctx, clientKey)
	if err != nil {
		t.Fatalf("allow ingest after 10s window: %v", err)
	}
	if !allowed || retryAfter != 0 {
		t.Fatalf("unexpected result after fast forward: allowed=%v retry_after=%d", allowed, retryAfter)
	}
}

func TestLimiterBlocksOnMinuteWindow(t *testing.T) {
	_, client := newMiniRedisClient(t)

	limiter := NewLimiter(redrepo.NewRateRepo(client), 3, 0)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, allowed, err := limiter.AllowIngest(ctx, "198.51.100.1"); err != nil || !allowed {
			t.Fatalf("allow ingest #%d: allowed=%v err=%v", i+1, allowed, err)
		}
	}

	retryAfter, allowed, err := limiter.AllowIngest(ctx, "198.51.100.1")
	if err != nil {
		t.Fatalf("allow ingest #4: %v", err)
	}
	if allowed {
		t.Fatalf("expected limiter block on fourth submission in minute window")
	}
	if retryAfter <= 10 {
		t.Fatalf("expected minute window retry_after, got %d", retryAfter)
	}

	if _, allowed, err := limiter.AllowIngest(ctx, "198.51.100.2"); err != nil || !allowed {
		t.Fatalf("other clients must not be limited: allowed=%v err=%v", allowed, err)
	}
}

func TestLimiterRejectsEmptyClientKey(t *testing.T) {
	_, client := newMiniRedisClient(t)

	limiter := NewLimiter(redrepo.NewRateRepo(client), 1, 1)
	if _, _, err := limiter.AllowIngest(context.Background(), "  "); err == nil {
		t.Fatalf("expected error for empty client key")
	}
}

func newMiniRedisClient(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { _ = client.Close() })

	return mr, client
}
