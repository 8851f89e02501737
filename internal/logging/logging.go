package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// contextKey is a type for context keys
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
	// AgentIDKey is the context key for the acting agent
	AgentIDKey contextKey = "agent_id"
	// OperationKey is the context key for the tracked operation name
	OperationKey contextKey = "operation"
)

// contextKeys lists the keys copied onto log records, in output order
var contextKeys = []contextKey{RequestIDKey, AgentIDKey, OperationKey}

// Config holds logging configuration
type Config struct {
	Level  string // "debug", "info", "warn", "error"
	Format string // "json" or "text"
	Output io.Writer
}

// ParseLevel maps a level name to a slog level, defaulting to info
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup configures the global logger
func Setup(cfg Config) *slog.Logger {
	level := ParseLevel(cfg.Level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(output, opts)
	} else {
		handler = slog.NewJSONHandler(output, opts)
	}

	// Wrap with context handler
	handler = &ContextHandler{Handler: handler}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger
}

// ContextHandler adds context values to log records
type ContextHandler struct {
	slog.Handler
}

// Handle adds context values to the record before passing to the wrapped handler
func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, key := range contextKeys {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			r.AddAttrs(slog.String(string(key), v))
		}
	}
	return h.Handler.Handle(ctx, r)
}

// WithAttrs keeps the context wrapper when attributes are attached
func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

// WithGroup keeps the context wrapper when a group is opened
func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{Handler: h.Handler.WithGroup(name)}
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithAgentID adds an agent ID to the context
func WithAgentID(ctx context.Context, agentID string) context.Context {
	return context.WithValue(ctx, AgentIDKey, agentID)
}

// WithOperation adds an operation name to the context
func WithOperation(ctx context.Context, operation string) context.Context {
	return context.WithValue(ctx, OperationKey, operation)
}

func contextAttrs(ctx context.Context) []any {
	var attrs []any
	for _, key := range contextKeys {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			attrs = append(attrs, string(key), v)
		}
	}
	return attrs
}

// Logger returns a logger with additional context
func Logger(ctx context.Context) *slog.Logger {
	logger := slog.Default()
	if attrs := contextAttrs(ctx); len(attrs) > 0 {
		return logger.With(attrs...)
	}
	return logger
}

// Audit logs an audit event (always logged regardless of level)
func Audit(ctx context.Context, operation string, attrs ...any) {
	baseAttrs := []any{
		"audit", true,
		"audit_operation", operation,
	}
	baseAttrs = append(baseAttrs, contextAttrs(ctx)...)
	baseAttrs = append(baseAttrs, attrs...)

	slog.Default().Log(context.Background(), slog.LevelError+4, "AUDIT", baseAttrs...)
}

// Debug logs a debug message
func Debug(ctx context.Context, msg string, args ...any) {
	Logger(ctx).Debug(msg, args...)
}

// Info logs an info message
func Info(ctx context.Context, msg string, args ...any) {
	Logger(ctx).Info(msg, args...)
}

// Warn logs a warning message
func Warn(ctx context.Context, msg string, args ...any) {
	Logger(ctx).Warn(msg, args...)
}

// Error logs an error message
func Error(ctx context.Context, msg string, args ...any) {
	Logger(ctx).Error(msg, args...)
}
