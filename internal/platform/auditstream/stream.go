// Package auditstream publishes access audit entries to a Redis stream.
package auditstream

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/homerev/api/internal/platform/middleware"
)

// DefaultStream is used when no stream name is configured.
const DefaultStream = "homerev:audit"

// defaultMaxLen caps the stream with approximate trimming.
const defaultMaxLen = 100_000

const pingTimeout = 5 * time.Second

// Connect parses a redis:// URL and checks the server is reachable.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// streamWriter is the part of the redis client the recorder uses.
type streamWriter interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// Recorder appends audit entries with XADD. It implements
// middleware.AuditRecorder.
type Recorder struct {
	client streamWriter
	stream string
	maxLen int64
}

var _ middleware.AuditRecorder = (*Recorder)(nil)

// NewRecorder returns a recorder writing to stream, or DefaultStream when
// stream is empty.
func NewRecorder(client redis.Cmdable, stream string) *Recorder {
	if stream == "" {
		stream = DefaultStream
	}
	return &Recorder{client: client, stream: stream, maxLen: defaultMaxLen}
}

func (r *Recorder) RecordAccess(ctx context.Context, e middleware.AuditEntry) error {
	_, err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		MaxLen: r.maxLen,
		Approx: true,
		Values: values(e),
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to XADD to stream %s: %w", r.stream, err)
	}
	return nil
}

// values flattens an entry into stream fields. Empty fields are left out.
func values(e middleware.AuditEntry) map[string]interface{} {
	out := map[string]interface{}{
		"timestamp": e.Timestamp.UTC().Format(time.RFC3339Nano),
		"method":    e.Method,
		"path":      e.Path,
		"status":    strconv.Itoa(e.Status),
	}
	optional := map[string]string{
		"request_id": e.RequestID,
		"principal":  e.Principal,
		"role":       e.Role,
		"operation":  e.Operation,
		"ip_address": e.IPAddress,
		"user_agent": e.UserAgent,
	}
	for k, v := range optional {
		if v != "" {
			out[k] = v
		}
	}
	return out
}
