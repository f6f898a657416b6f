package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cuongbtq/community-broadcast/internal/broadcast/domain"
	"github.com/cuongbtq/community-broadcast/internal/cache"
	"github.com/cuongbtq/community-broadcast/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestInitProgressCache(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled without address", func(t *testing.T) {
		assert.Nil(t, InitProgressCache(ctx, &config.RedisConfig{}, discardLogger()))
	})

	t.Run("disabled when unreachable", func(t *testing.T) {
		assert.Nil(t, InitProgressCache(ctx, &config.RedisConfig{Addr: "127.0.0.1:1"}, discardLogger()))
	})

	t.Run("connected", func(t *testing.T) {
		mr := miniredis.RunT(t)

		pc := InitProgressCache(ctx, &config.RedisConfig{Addr: mr.Addr(), ProgressTTL: time.Minute}, discardLogger())
		require.NotNil(t, pc)
		t.Cleanup(func() { _ = pc.Close() })

		require.NoError(t, pc.Store(ctx, cache.Progress{JobID: "job-1", Status: domain.JobStatusProcessing}))
		assert.Equal(t, time.Minute, mr.TTL("broadcast:progress:job-1"))
	})
}

func TestInitLogger(t *testing.T) {
	l, err := InitLogger(&config.LoggingConfig{Level: "debug", Format: "json", Output: "stdout"}, "broadcast-worker")
	require.NoError(t, err)
	assert.NotNil(t, l.Logger)
}
