package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"voicedoc/internal/model"
)

const defaultDocListTTL = 5 * time.Minute

// DocListCache keeps each user's document descriptors in redis so listing
// skips the registry file. Redis errors are logged and reported as misses.
type DocListCache struct {
	client *redisv9.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewDocListCache(client *redisv9.Client, ttl time.Duration, logger *slog.Logger) *DocListCache {
	if ttl <= 0 {
		ttl = defaultDocListTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DocListCache{client: client, ttl: ttl, logger: logger}
}

func (c *DocListCache) Get(ctx context.Context, userID string) ([]model.DocumentDescriptor, bool) {
	docs, ok, err := c.get(ctx, userID)
	if err != nil {
		c.logger.Warn("doc list cache read failed", "user_id", userID, "error", err)
		return nil, false
	}
	return docs, ok
}

func (c *DocListCache) get(ctx context.Context, userID string) ([]model.DocumentDescriptor, bool, error) {
	raw, err := c.client.Get(ctx, c.key(userID)).Bytes()
	if errors.Is(err, redisv9.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get doc list failed: %w", err)
	}

	var docs []model.DocumentDescriptor
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached doc list failed: %w", err)
	}
	if docs == nil {
		docs = []model.DocumentDescriptor{}
	}
	return docs, true, nil
}

func (c *DocListCache) Set(ctx context.Context, userID string, docs []model.DocumentDescriptor) {
	payload, err := json.Marshal(docs)
	if err != nil {
		c.logger.Warn("marshal doc list failed", "user_id", userID, "error", err)
		return
	}
	if err := c.client.Set(ctx, c.key(userID), payload, c.ttl).Err(); err != nil {
		c.logger.Warn("doc list cache write failed", "user_id", userID, "error", err)
	}
}

func (c *DocListCache) Invalidate(ctx context.Context, userID string) {
	if err := c.client.Del(ctx, c.key(userID)).Err(); err != nil {
		c.logger.Warn("doc list cache invalidate failed", "user_id", userID, "error", err)
	}
}

func (c *DocListCache) key(userID string) string {
	return fmt.Sprintf("docs:list:%s", userID)
}
