package gemini

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// Middleware wraps a Tool with cross-cutting behavior (logging, recovery, timeout).
type Middleware func(Tool) Tool

// WithLogging returns a middleware that logs start, end, duration, and errors.
func WithLogging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Tool) Tool {
		return &loggingTool{toolBase: toolBase{next: next}, logger: logger}
	}
}

// WithRecovery returns a middleware that recovers panics and reports them as handler failures.
func WithRecovery() Middleware {
	return func(next Tool) Tool {
		return &recoveryTool{toolBase{next: next}}
	}
}

// WithTimeoutMiddleware returns a middleware that enforces a per-tool timeout. Named with the
// "Middleware" suffix to avoid collision with ToolOption WithTimeout. When the registry applies
// its own timeout as well, the shorter one wins.
func WithTimeoutMiddleware(d time.Duration) Middleware {
	return func(next Tool) Tool {
		return &timeoutTool{toolBase: toolBase{next: next}, timeout: d}
	}
}

// toolBase delegates Tool and ToolMetadata to the wrapped Tool; used by middleware wrappers.
type toolBase struct{ next Tool }

func (b *toolBase) Name() string               { return b.next.Name() }
func (b *toolBase) Description() string        { return b.next.Description() }
func (b *toolBase) Parameters() map[string]any { return b.next.Parameters() }

func (b *toolBase) Timeout() time.Duration {
	if tm, ok := b.next.(ToolMetadata); ok {
		return tm.Timeout()
	}
	return 0
}

func (b *toolBase) Tags() []string {
	if tm, ok := b.next.(ToolMetadata); ok {
		return tm.Tags()
	}
	return nil
}

type loggingTool struct {
	toolBase
	logger *slog.Logger
}

func (m *loggingTool) Invoke(ctx context.Context, tc *ToolContext, args json.RawMessage) (json.RawMessage, error) {
	m.logger.InfoContext(ctx, "tool start", "tool", m.next.Name())
	start := time.Now()
	res, err := m.next.Invoke(ctx, tc, args)
	dur := time.Since(start)
	if err != nil {
		m.logger.ErrorContext(ctx, "tool error", "tool", m.next.Name(), "duration", dur, "error", err)
		return nil, err
	}
	m.logger.InfoContext(ctx, "tool end", "tool", m.next.Name(), "duration", dur, "bytes", len(res))
	return res, nil
}

type recoveryTool struct{ toolBase }

func (r *recoveryTool) Invoke(ctx context.Context, tc *ToolContext, args json.RawMessage) (res json.RawMessage, err error) {
	defer func() {
		if p := recover(); p != nil {
			res = nil
			err = handlerError(&panicError{p: p})
		}
	}()
	return r.next.Invoke(ctx, tc, args)
}

type timeoutTool struct {
	toolBase
	timeout time.Duration
}

func (t *timeoutTool) Timeout() time.Duration {
	if t.timeout > 0 {
		return t.timeout
	}
	return t.toolBase.Timeout()
}

func (t *timeoutTool) Invoke(ctx context.Context, tc *ToolContext, args json.RawMessage) (json.RawMessage, error) {
	if t.timeout <= 0 {
		return t.next.Invoke(ctx, tc, args)
	}
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Invoke(ctx, tc, args)
}

var (
	_ Tool         = (*loggingTool)(nil)
	_ Tool         = (*recoveryTool)(nil)
	_ Tool         = (*timeoutTool)(nil)
	_ ToolMetadata = (*timeoutTool)(nil)
)
