package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/workstream-im/chat-service/internal/config"
	registrycache "github.com/workstream-im/chat-service/internal/registry/cache"
)

const defaultTTL = 30 * time.Second

func init() {
	registrycache.Register(registrycache.Plugin{
		Name:   "redis",
		Loader: load,
	})
}

func load(ctx context.Context) (registrycache.UnreadCache, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis cache: CHAT_SERVICE_REDIS_URL is required")
	}
	ttl := cfg.UnreadCacheTTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return LoadFromURLWithTTL(ctx, cfg.RedisURL, ttl)
}

// LoadFromURLWithTTL creates an UnreadCache from a Redis URL with an explicit
// default TTL. Exported for tests.
func LoadFromURLWithTTL(ctx context.Context, redisURL string, ttl time.Duration) (registrycache.UnreadCache, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis cache: invalid URL: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis cache: ping failed: %w", err)
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &redisUnreadCache{client: client, ttl: ttl}, nil
}

type redisUnreadCache struct {
	client *goredis.Client
	ttl    time.Duration
}

func unreadKey(userID string) string {
	return fmt.Sprintf("unread-counts:%s", userID)
}

func (c *redisUnreadCache) Available() bool {
	return true
}

func (c *redisUnreadCache) Get(ctx context.Context, userID string) (map[uuid.UUID]int64, bool, error) {
	data, err := c.client.Get(ctx, unreadKey(userID)).Bytes()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var raw map[string]int64
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, false, err
	}
	counts := make(map[uuid.UUID]int64, len(raw))
	for k, v := range raw {
		id, err := uuid.Parse(k)
		if err != nil {
			continue
		}
		counts[id] = v
	}
	return counts, true, nil
}

func (c *redisUnreadCache) Set(ctx context.Context, userID string, counts map[uuid.UUID]int64, ttl time.Duration) error {
	raw := make(map[string]int64, len(counts))
	for id, v := range counts {
		raw[id.String()] = v
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	return c.client.Set(ctx, unreadKey(userID), data, ttl).Err()
}

func (c *redisUnreadCache) Remove(ctx context.Context, userID string) error {
	return c.client.Del(ctx, unreadKey(userID)).Err()
}

var _ registrycache.UnreadCache = (*redisUnreadCache)(nil)
