package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Store struct {
	client *redis.Client
}

func NewStore(addr, password string, db int) *Store {
	return &Store{client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func resultKey(jobID string) string { return "analysis_result:" + jobID }

func heartbeatKey(workerID string) string { return "worker_heartbeat:" + workerID }

// RateLimitKey builds a fixed-window counter key.
func RateLimitKey(scope string, window int64) string {
	return fmt.Sprintf("ratelimit:%s:%d", scope, window)
}

// CacheJobResult mirrors a terminal job payload for fast polling.
func (s *Store) CacheJobResult(ctx context.Context, jobID string, payload []byte, ttl time.Duration) error {
	return s.client.Set(ctx, resultKey(jobID), payload, ttl).Err()
}

// GetJobResult returns the mirrored terminal payload, if still cached.
func (s *Store) GetJobResult(ctx context.Context, jobID string) ([]byte, bool, error) {
	b, err := s.client.Get(ctx, resultKey(jobID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// IncrWithExpiry increments a window counter and returns the post-increment
// value. The expiry is set in the same pipeline so an abandoned key cannot
// grow forever.
func (s *Store) IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, expiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// SetHeartbeat publishes worker liveness with a TTL so dead workers age out.
func (s *Store) SetHeartbeat(ctx context.Context, workerID string, payload []byte, ttl time.Duration) error {
	return s.client.Set(ctx, heartbeatKey(workerID), payload, ttl).Err()
}
