package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cuongbtq/community-broadcast/internal/broadcast/domain"
	"github.com/redis/go-redis/v9"
)

const progressKeyPrefix = "broadcast:progress:"

// Progress is a point-in-time view of a running or finished job
type Progress struct {
	JobID     string           `json:"job_id"`
	Status    domain.JobStatus `json:"status"`
	Counters  domain.Counters  `json:"counters"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// ProgressCache keeps the latest Progress per job in Redis
type ProgressCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewProgressCache(rdb *redis.Client, ttl time.Duration) *ProgressCache {
	return &ProgressCache{rdb: rdb, ttl: ttl}
}

func progressKey(jobID string) string {
	return progressKeyPrefix + jobID
}

// Store overwrites the job's snapshot
func (c *ProgressCache) Store(ctx context.Context, p Progress) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}
	p.UpdatedAt = p.UpdatedAt.UTC()

	b, err := json.Marshal(p)
	if err != nil {
		return err
	}

	return c.rdb.Set(ctx, progressKey(p.JobID), b, c.ttl).Err()
}

// Get returns the job's snapshot, or ok=false when none is cached
func (c *ProgressCache) Get(ctx context.Context, jobID string) (p Progress, ok bool, err error) {
	raw, err := c.rdb.Get(ctx, progressKey(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Progress{}, false, nil
	}
	if err != nil {
		return Progress{}, false, fmt.Errorf("failed to read progress: %w", err)
	}

	if err := json.Unmarshal(raw, &p); err != nil {
		return Progress{}, false, fmt.Errorf("failed to decode progress: %w", err)
	}

	return p, true, nil
}

// Ping checks the Redis connection
func (c *ProgressCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the underlying client
func (c *ProgressCache) Close() error {
	return c.rdb.Close()
}
