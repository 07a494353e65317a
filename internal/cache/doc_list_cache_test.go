package cache

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"voicedoc/internal/model"
)

// unreachableClient points at a port nothing listens on.
func unreachableClient(t *testing.T) *redisv9.Client {
	t.Helper()
	client := redisv9.NewClient(&redisv9.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestDocListCacheDegradesToMiss(t *testing.T) {
	c := NewDocListCache(unreachableClient(t), time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	c.Set(ctx, "u1", []model.DocumentDescriptor{{Name: "a.pdf"}})
	if docs, ok := c.Get(ctx, "u1"); ok || docs != nil {
		t.Fatalf("Get on unreachable redis = %v, %v; want miss", docs, ok)
	}
	c.Invalidate(ctx, "u1")
}

func TestDocListCacheDefaults(t *testing.T) {
	c := NewDocListCache(unreachableClient(t), 0, nil)
	if c.ttl != defaultDocListTTL || c.logger == nil {
		t.Fatalf("defaults not applied: ttl=%v logger=%v", c.ttl, c.logger)
	}
	if got := c.key("42"); got != "docs:list:42" {
		t.Fatalf("key = %q", got)
	}
}
