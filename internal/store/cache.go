package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"studiocal/internal/model"
)

const windowKeyPrefix = "studiocal:window:"

// Window is a loaded range of a studio's sessions.
type Window struct {
	Studio     model.Studio    `json:"studio"`
	Sessions   []model.Session `json:"sessions"`
	RangeStart time.Time       `json:"range_start"`
	RangeEnd   time.Time       `json:"range_end"`
	LoadedAt   time.Time       `json:"loaded_at"`
}

// Covers reports whether w was loaded for exactly [from, to).
func (w *Window) Covers(from, to time.Time) bool {
	return w.RangeStart.Equal(from) && w.RangeEnd.Equal(to)
}

// Cache stores one session window per studio.
type Cache interface {
	Get(ctx context.Context, studioID string) (*Window, bool, error)
	Set(ctx context.Context, studioID string, w *Window) error
	Invalidate(ctx context.Context, studioID string) error
}

func windowKey(studioID string) string {
	return windowKeyPrefix + studioID
}

// NewRedis parses url, connects and pings the server.
func NewRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return client, nil
}

// RedisCache keeps windows in Redis as JSON so several instances can share
// them.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache wraps client. Entries expire after ttl.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, studioID string) (*Window, bool, error) {
	data, err := c.client.Get(ctx, windowKey(studioID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var w Window
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, false, fmt.Errorf("decoding cached window: %w", err)
	}
	return &w, true, nil
}

func (c *RedisCache) Set(ctx context.Context, studioID string, w *Window) error {
	data, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("encoding window: %w", err)
	}
	if err := c.client.Set(ctx, windowKey(studioID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, studioID string) error {
	if err := c.client.Del(ctx, windowKey(studioID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

type memoryEntry struct {
	window  *Window
	expires time.Time
}

// MemoryCache is the in-process Cache used when no Redis URL is configured.
type MemoryCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:     ttl,
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, studioID string) (*Window, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[studioID]
	c.mu.RUnlock()
	if !ok || c.now().After(e.expires) {
		return nil, false, nil
	}
	return e.window, true, nil
}

func (c *MemoryCache) Set(_ context.Context, studioID string, w *Window) error {
	c.mu.Lock()
	c.entries[studioID] = memoryEntry{window: w, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Invalidate(_ context.Context, studioID string) error {
	c.mu.Lock()
	delete(c.entries, studioID)
	c.mu.Unlock()
	return nil
}
