package audit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient builds a client from either a redis:// URL or a bare host:port
func NewRedisClient(addr string) (*redis.Client, error) {
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		opts, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   0,
	}), nil
}

// RedisStreamRecorder appends audit records to a Redis stream
type RedisStreamRecorder struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisStreamRecorder creates a recorder writing to stream, trimmed to
// roughly maxLen entries when maxLen > 0
func NewRedisStreamRecorder(client *redis.Client, stream string, maxLen int64) *RedisStreamRecorder {
	return &RedisStreamRecorder{client: client, stream: stream, maxLen: maxLen}
}

// Record appends rec to the stream
func (r *RedisStreamRecorder) Record(ctx context.Context, rec Record) error {
	at := rec.At
	if at.IsZero() {
		at = time.Now()
	}
	args := &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]any{
			"request_id": rec.RequestID,
			"message_id": rec.MessageID,
			"result":     rec.Result,
			"dup":        strconv.FormatBool(rec.Dup),
			"latency_ms": strconv.FormatFloat(rec.LatencyMs(), 'f', 3, 64),
			"ts":         at.UTC().Format(time.RFC3339Nano),
		},
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}
	if err := r.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("audit xadd %s: %w", r.stream, err)
	}
	return nil
}

// Ping checks that Redis is reachable
func (r *RedisStreamRecorder) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
