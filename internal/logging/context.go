package logging

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	treeUIDKey ctxKey = iota
	treeNameKey
	nodeKey
)

// WithTreeUID returns a context with the tree UID set.
func WithTreeUID(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, treeUIDKey, uid)
}

// WithTreeName returns a context with the tree name set.
func WithTreeName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, treeNameKey, name)
}

// WithNode returns a context with the node name set.
func WithNode(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, nodeKey, name)
}

// TreeUID extracts the tree UID from the context, or "" if absent.
func TreeUID(ctx context.Context) string {
	v, _ := ctx.Value(treeUIDKey).(string)
	return v
}

// TreeName extracts the tree name from the context, or "" if absent.
func TreeName(ctx context.Context) string {
	v, _ := ctx.Value(treeNameKey).(string)
	return v
}

// Node extracts the node name from the context, or "" if absent.
func Node(ctx context.Context) string {
	v, _ := ctx.Value(nodeKey).(string)
	return v
}

// WithTree sets the tree correlation IDs on the context at once.
func WithTree(ctx context.Context, uid, name string) context.Context {
	ctx = WithTreeUID(ctx, uid)
	ctx = WithTreeName(ctx, name)
	return ctx
}

// LogWith returns a logger enriched with correlation IDs from the context.
// Only non-empty values are added as attributes.
func LogWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if uid := TreeUID(ctx); uid != "" {
		logger = logger.With(slog.String("tree_uid", uid))
	}
	if name := TreeName(ctx); name != "" {
		logger = logger.With(slog.String("tree", name))
	}
	if node := Node(ctx); node != "" {
		logger = logger.With(slog.String("node", node))
	}
	return logger
}

// CorrelationHandler wraps an slog.Handler, automatically injecting
// correlation IDs from the context into every log record.
// Use with slog.New(NewCorrelationHandler(inner)) so callers can use
// logger.InfoContext(ctx, ...) and IDs appear automatically.
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps the given handler with automatic correlation ID injection.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	if v := TreeUID(ctx); v != "" {
		r.AddAttrs(slog.String("tree_uid", v))
	}
	if v := TreeName(ctx); v != "" {
		r.AddAttrs(slog.String("tree", v))
	}
	if v := Node(ctx); v != "" {
		r.AddAttrs(slog.String("node", v))
	}
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}
