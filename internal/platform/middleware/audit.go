package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/homerev/api/internal/platform/auth"
)

const (
	// OperationKey is the echo context key under which the GraphQL handler
	// stores the name of the operation it executed.
	OperationKey = "graphql_operation"
	// IntrospectionOperation is never audited; tooling sends it constantly.
	IntrospectionOperation = "IntrospectionQuery"
)

// AuditEntry records who called which operation, when and with what outcome.
type AuditEntry struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
	Principal string    `json:"principal,omitempty"`
	Role      string    `json:"role,omitempty"`
	Operation string    `json:"operation,omitempty"`
	Method    string    `json:"method"`
	Path      string    `json:"path"`
	Status    int       `json:"status"`
	IPAddress string    `json:"remote_ip"`
	UserAgent string    `json:"user_agent,omitempty"`
}

// AuditRecorder persists audit entries somewhere durable.
type AuditRecorder interface {
	RecordAccess(ctx context.Context, entry AuditEntry) error
}

// AuditRecorderFunc is a function adapter for AuditRecorder.
type AuditRecorderFunc func(ctx context.Context, entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(ctx context.Context, entry AuditEntry) error {
	return f(ctx, entry)
}

// Audit emits an "access" log event for every request to an audited path and
// hands the entry to each recorder. Introspection operations are skipped.
// Recorder failures are logged and never change the response.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !isAuditablePath(req.URL.Path) {
				return next(c)
			}

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			op, _ := c.Get(OperationKey).(string)
			if op == IntrospectionOperation {
				return nil
			}

			entry := AuditEntry{
				RequestID: requestID(c),
				Timestamp: time.Now().UTC(),
				Operation: op,
				Method:    req.Method,
				Path:      req.URL.Path,
				Status:    c.Response().Status,
				IPAddress: c.RealIP(),
				UserAgent: req.UserAgent(),
			}
			// Authentication runs in route groups and replaces the request.
			if p, ok := auth.PrincipalFromContext(c.Request().Context()); ok {
				entry.Principal = p.Identity
				entry.Role = p.Role.String()
			}

			ctx := context.WithoutCancel(req.Context())
			for _, r := range recorders {
				if r == nil {
					continue
				}
				if recErr := r.RecordAccess(ctx, entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			logger.Info().
				Str("request_id", entry.RequestID).
				Str("principal", entry.Principal).
				Str("role", entry.Role).
				Str("operation", entry.Operation).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Int("status", entry.Status).
				Str("remote_ip", entry.IPAddress).
				Msg("access")

			return nil
		}
	}
}

func isAuditablePath(path string) bool {
	return path == "/graphql" ||
		strings.HasPrefix(path, "/hooks/") ||
		strings.HasPrefix(path, "/admin/")
}
