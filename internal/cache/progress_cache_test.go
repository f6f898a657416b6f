package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cuongbtq/community-broadcast/internal/broadcast/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, ttl time.Duration) (*ProgressCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewProgressCache(rdb, ttl), mr
}

func TestProgressCache_StoreAndGet(t *testing.T) {
	t.Parallel()

	c, mr := newTestCache(t, time.Hour)
	ctx := context.Background()
	at := time.Date(2024, 1, 5, 8, 30, 0, 0, time.UTC)

	want := Progress{
		JobID:     "job-1",
		Status:    domain.JobStatusProcessing,
		Counters:  domain.Counters{Total: 45, Processed: 20, Success: 19, Failed: 1},
		UpdatedAt: at,
	}
	require.NoError(t, c.Store(ctx, want))

	assert.True(t, mr.Exists("broadcast:progress:job-1"))
	assert.Greater(t, mr.TTL("broadcast:progress:job-1"), time.Duration(0))

	got, ok, err := c.Get(ctx, "job-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want.Counters, got.Counters)
	assert.Equal(t, want.Status, got.Status)
	assert.True(t, got.UpdatedAt.Equal(at))
}

func TestProgressCache_OverwritesSnapshot(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Store(ctx, Progress{JobID: "job-1", Status: domain.JobStatusProcessing}))
	require.NoError(t, c.Store(ctx, Progress{
		JobID:    "job-1",
		Status:   domain.JobStatusCompleted,
		Counters: domain.Counters{Total: 2, Processed: 2, Success: 2},
	}))

	got, ok, err := c.Get(ctx, "job-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.JobStatusCompleted, got.Status)
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestProgressCache_Miss(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t, time.Minute)

	_, ok, err := c.Get(context.Background(), "unknown")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProgressCache_Expires(t *testing.T) {
	t.Parallel()

	c, mr := newTestCache(t, 10*time.Second)
	ctx := context.Background()

	require.NoError(t, c.Store(ctx, Progress{JobID: "job-1"}))
	mr.FastForward(11 * time.Second)

	_, ok, err := c.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProgressCache_CorruptValue(t *testing.T) {
	t.Parallel()

	c, mr := newTestCache(t, time.Minute)
	require.NoError(t, mr.Set("broadcast:progress:job-1", "{not json"))

	_, ok, err := c.Get(context.Background(), "job-1")
	require.Error(t, err)
	assert.False(t, ok)
	assert.Contains(t, err.Error(), "failed to decode progress")
}
