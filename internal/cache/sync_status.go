package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/apollo/backend/internal/roster"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	keyPrefix  = "apollo:sync_status:"
	defaultTTL = time.Hour
)

// ErrStatusNotFound indicates that no sync has been recorded for the student.
var ErrStatusNotFound = errors.New("cache: sync status not found")

// StatusCache records and returns the latest sync outcome per student.
type StatusCache interface {
	RecordSync(ctx context.Context, status roster.SyncStatus) error
	LastSync(ctx context.Context, studentID string) (roster.SyncStatus, error)
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, address string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: strings.TrimSpace(address)})
	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: redis ping failed: %w", err)
	}
	return client, nil
}

// RedisStatusCache stores sync statuses as JSON values with a TTL.
type RedisStatusCache struct {
	client redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisStatusCache wraps a Redis client.
func NewRedisStatusCache(client redis.Cmdable, ttl time.Duration, logger *zap.Logger) *RedisStatusCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStatusCache{client: client, ttl: ttl, logger: logger}
}

// RecordSync stores the status under the student's key.
func (c *RedisStatusCache) RecordSync(ctx context.Context, status roster.SyncStatus) error {
	payload, err := json.Marshal(status)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, keyPrefix+status.StudentID, payload, c.ttl).Err(); err != nil {
		c.logger.Warn("failed to cache sync status", zap.String("student_id", status.StudentID), zap.Error(err))
		return err
	}
	return nil
}

// LastSync returns the most recent status recorded for the student.
func (c *RedisStatusCache) LastSync(ctx context.Context, studentID string) (roster.SyncStatus, error) {
	payload, err := c.client.Get(ctx, keyPrefix+studentID).Bytes()
	if errors.Is(err, redis.Nil) {
		return roster.SyncStatus{}, ErrStatusNotFound
	}
	if err != nil {
		return roster.SyncStatus{}, err
	}
	var status roster.SyncStatus
	if err := json.Unmarshal(payload, &status); err != nil {
		return roster.SyncStatus{}, err
	}
	return status, nil
}

// MemoryStatusCache keeps statuses in process; used when Redis is not configured.
type MemoryStatusCache struct {
	mu       sync.RWMutex
	statuses map[string]roster.SyncStatus
}

// NewMemoryStatusCache returns an empty in-process cache.
func NewMemoryStatusCache() *MemoryStatusCache {
	return &MemoryStatusCache{statuses: make(map[string]roster.SyncStatus)}
}

// RecordSync stores the status.
func (c *MemoryStatusCache) RecordSync(_ context.Context, status roster.SyncStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statuses[status.StudentID] = status
	return nil
}

// LastSync returns the stored status.
func (c *MemoryStatusCache) LastSync(_ context.Context, studentID string) (roster.SyncStatus, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	status, ok := c.statuses[studentID]
	if !ok {
		return roster.SyncStatus{}, ErrStatusNotFound
	}
	return status, nil
}
