package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	if got := client.IdempotencyKey("paytr", "oid-1"); got != "vitrin:idempotency:paytr:oid-1" {
		t.Fatalf("unexpected idempotency key %s", got)
	}
	if got := client.LockKey("cron"); got != "vitrin:lock:cron" {
		t.Fatalf("unexpected lock key %s", got)
	}
	if got := client.PageCacheKey("order", "12345678901"); got != "vitrin:page_cache:order:12345678901" {
		t.Fatalf("unexpected page cache key %s", got)
	}
	if got := client.PageCacheKey("cart", ""); got != "vitrin:page_cache:cart" {
		t.Fatalf("empty parts should be skipped, got %s", got)
	}
}

func TestSetNXAndDel(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	ok, err := client.SetNX(ctx, "k", "v", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first SetNX should win: ok=%v err=%v", ok, err)
	}
	ok, err = client.SetNX(ctx, "k", "v2", time.Minute)
	if err != nil || ok {
		t.Fatalf("second SetNX should lose: ok=%v err=%v", ok, err)
	}

	if err := client.Del(ctx, "k"); err != nil {
		t.Fatalf("del failed: %v", err)
	}
	if _, err := client.Get(ctx, "k"); err != redis.Nil {
		t.Fatalf("expected redis.Nil after del, got %v", err)
	}
}

func TestInvalidateOrderViews(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	orderKey := client.PageCacheKey("order", "12345678901")
	cartKey := client.PageCacheKey("cart", "tok-1")
	loyaltyKey := client.PageCacheKey("loyalty", "a@b.co")
	for _, key := range []string{orderKey, cartKey, loyaltyKey} {
		if err := client.Set(ctx, key, "html", 0); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}

	if err := client.InvalidateOrderViews(ctx, "12345678901", "tok-1", "a@b.co"); err != nil {
		t.Fatalf("invalidate failed: %v", err)
	}
	for _, key := range []string{orderKey, cartKey, loyaltyKey} {
		if _, err := client.Get(ctx, key); err != redis.Nil {
			t.Fatalf("expected %s to be dropped, got %v", key, err)
		}
	}
}

type mockCmdable struct {
	data map[string]string
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{data: make(map[string]string)}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}
