package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestAdminSessionRepoLifecycle(t *testing.T) {
	mr := miniredis.RunT(t)
	client := NewClient(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = client.Close() })

	repo := NewAdminSessionRepo(client)
	ctx := context.Background()

	if err := repo.Create(ctx, "sid-1", "admin", time.Hour); err != nil {
		t.Fatalf("create session: %v", err)
	}
	username, err := repo.Get(ctx, "sid-1")
	if err != nil || username != "admin" {
		t.Fatalf("unexpected session: %q err=%v", username, err)
	}

	if err := repo.Delete(ctx, "sid-1"); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, err := repo.Get(ctx, "sid-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestAdminSessionExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	client := NewClient(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = client.Close() })

	repo := NewAdminSessionRepo(client)
	ctx := context.Background()

	if err := repo.Create(ctx, "sid-2", "admin", time.Minute); err != nil {
		t.Fatalf("create session: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	if _, err := repo.Get(ctx, "sid-2"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected expired session, got %v", err)
	}
}

func TestRateRepoSetsWindowTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := NewClient(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = client.Close() })

	repo := NewRateRepo(client)
	ctx := context.Background()

	count, ttl, err := repo.IncrementWindow(ctx, "rate:test", 10*time.Second)
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if count != 1 || ttl <= 0 || ttl > 10*time.Second {
		t.Fatalf("unexpected first window state: count=%d ttl=%s", count, ttl)
	}

	count, _, err = repo.IncrementWindow(ctx, "rate:test", 10*time.Second)
	if err != nil || count != 2 {
		t.Fatalf("unexpected second increment: count=%d err=%v", count, err)
	}

	mr.FastForward(11 * time.Second)
	count, _, err = repo.WindowState(ctx, "rate:test")
	if err != nil || count != 0 {
		t.Fatalf("expected expired window, got count=%d err=%v", count, err)
	}
}
