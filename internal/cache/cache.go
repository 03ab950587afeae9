// Package cache provides the process-wide Redis-backed caches named in
// §5: the identity-provider result cache (TTL 2h, keyed by visitor id) and
// the meme-result cache (per-entry TTL, implementation-chosen eviction).
// Both ride on the same generic Client, adapted from the teacher's
// CacheClient wrapper over go-redis.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/meridianlabs/trustpipeline/configs"
)

// Client wraps a go-redis connection for generic get/set/increment use.
type Client struct {
	rdb *redis.Client
}

func NewClient(cfg configs.RedisConfig) (*Client, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	rdb := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

func (c *Client) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, data, ttl).Err()
}

func (c *Client) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

func (c *Client) Delete(ctx context.Context, keys ...string) error {
	return c.rdb.Del(ctx, keys...).Err()
}

func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, key).Result()
	return n > 0, err
}

// Increment bumps a counter key, used by the fake-referral pre-filter's
// same-IP-this-hour counters.
func (c *Client) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	n, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 && ttl > 0 {
		c.rdb.Expire(ctx, key, ttl)
	}
	return n, nil
}

// SetNX sets key only when it is absent. The SOL overlap guard does not use
// it; sol.Scheduler tracks running jobs in memory.
func (c *Client) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return false, err
	}
	return c.rdb.SetNX(ctx, key, data, ttl).Result()
}

// MemoryUsedMB reports Redis memory consumption for SystemMetrics.
func (c *Client) MemoryUsedMB(ctx context.Context) (float64, error) {
	info, err := c.rdb.Info(ctx, "memory").Result()
	if err != nil {
		return 0, err
	}
	for _, line := range strings.Split(info, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "used_memory:") {
			usedBytes, err := strconv.ParseFloat(strings.TrimPrefix(line, "used_memory:"), 64)
			if err != nil {
				return 0, err
			}
			return usedBytes / (1024 * 1024), nil
		}
	}
	return 0, fmt.Errorf("used_memory not found in redis INFO output")
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// IdentityProviderCache is the process-wide LRU/TTL cache keyed by visitor
// id (§5, §4.2 collector). A single Redis key-per-visitor with a fixed TTL
// gives both the LRU-like bound (Redis evicts under memory pressure per
// its own maxmemory policy) and the TTL the spec requires.
type IdentityProviderCache struct {
	client *Client
	ttl    time.Duration
}

func NewIdentityProviderCache(client *Client, ttl time.Duration) *IdentityProviderCache {
	return &IdentityProviderCache{client: client, ttl: ttl}
}

type IdentityResult struct {
	Confidence float64 `json:"confidence"`
}

func (c *IdentityProviderCache) Get(ctx context.Context, visitorID string) (*IdentityResult, bool) {
	var result IdentityResult
	if err := c.client.Get(ctx, identityKey(visitorID), &result); err != nil {
		return nil, false
	}
	return &result, true
}

func (c *IdentityProviderCache) Put(ctx context.Context, visitorID string, result IdentityResult) error {
	return c.client.Set(ctx, identityKey(visitorID), result, c.ttl)
}

func identityKey(visitorID string) string {
	return "identity:" + visitorID
}

// MemeCache is the process-wide meme-result cache: per-entry TTL, keyed by
// (user_id, prompt, tone, base_image) so identical requests within TTL
// reuse the entry (§8 idempotence-of-cache-hit property). Total-size
// bounding and eviction are left to Redis's own maxmemory policy —
// "implementation-chosen eviction (LRU acceptable)" per §5.
type MemeCache struct {
	client *Client
	ttl    time.Duration
}

func NewMemeCache(client *Client, ttl time.Duration) *MemeCache {
	return &MemeCache{client: client, ttl: ttl}
}

func MemeCacheKey(userID, prompt, tone, baseImage string) string {
	return fmt.Sprintf("meme:%s:%s:%s:%s", userID, prompt, tone, baseImage)
}

func (c *MemeCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	err := c.client.Get(ctx, key, dest)
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *MemeCache) Put(ctx context.Context, key string, value interface{}) error {
	return c.client.Set(ctx, key, value, c.ttl)
}
