package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studiocal/internal/model"
)

func testWindow() *Window {
	start := time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)
	return &Window{
		Studio: model.Studio{ID: "studio-1", Name: "Blue Room", Timezone: "UTC"},
		Sessions: []model.Session{{
			ID:        "sess-1",
			StudioID:  "studio-1",
			Source:    model.SourceDB,
			StartTime: start,
			EndTime:   start.Add(time.Hour),
			Status:    model.StatusScheduled,
			Client:    &model.Client{ID: "c1", Name: "Ada"},
		}},
		RangeStart: time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC),
		RangeEnd:   time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC),
		LoadedAt:   start,
	}
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	client, err := NewRedis(ctx, "redis://"+mr.Addr())
	require.NoError(t, err)
	defer client.Close()

	cache := NewRedisCache(client, time.Minute)

	_, ok, err := cache.Get(ctx, "studio-1")
	require.NoError(t, err)
	assert.False(t, ok)

	want := testWindow()
	require.NoError(t, cache.Set(ctx, "studio-1", want))
	assert.True(t, mr.Exists("studiocal:window:studio-1"))

	got, ok, err := cache.Get(ctx, "studio-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Covers(want.RangeStart, want.RangeEnd))
	require.Len(t, got.Sessions, 1)
	assert.Equal(t, "Ada", got.Sessions[0].Client.Name)
	assert.True(t, got.Sessions[0].StartTime.Equal(want.Sessions[0].StartTime))

	require.NoError(t, cache.Invalidate(ctx, "studio-1"))
	_, ok, err = cache.Get(ctx, "studio-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCacheExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	cache := NewRedisCache(client, 30*time.Second)
	require.NoError(t, cache.Set(ctx, "studio-1", testWindow()))

	mr.FastForward(31 * time.Second)
	_, ok, err := cache.Get(ctx, "studio-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCacheCorruptEntry(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	require.NoError(t, mr.Set("studiocal:window:studio-1", "not json"))
	_, _, err := NewRedisCache(client, time.Minute).Get(ctx, "studio-1")
	assert.Error(t, err)
}

func TestNewRedisBadURL(t *testing.T) {
	_, err := NewRedis(context.Background(), "not-a-url://")
	assert.Error(t, err)
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 11, 10, 0, 0, 0, time.UTC)
	cache := NewMemoryCache(30 * time.Second)
	cache.now = func() time.Time { return now }

	w := testWindow()
	require.NoError(t, cache.Set(ctx, "studio-1", w))

	got, ok, err := cache.Get(ctx, "studio-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Same(t, w, got)

	now = now.Add(31 * time.Second)
	_, ok, _ = cache.Get(ctx, "studio-1")
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, "studio-1", w))
	require.NoError(t, cache.Invalidate(ctx, "studio-1"))
	_, ok, _ = cache.Get(ctx, "studio-1")
	assert.False(t, ok)
}
