package completion

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/orientador/internal/metrics"
)

// Instrumented wraps a Completer with metrics and debug logging.
type Instrumented struct {
	next    Completer
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewInstrumented wraps next. m may be nil.
func NewInstrumented(next Completer, m *metrics.Metrics, logger *slog.Logger) *Instrumented {
	if logger == nil {
		logger = slog.Default()
	}
	return &Instrumented{next: next, metrics: m, logger: logger}
}

// Complete implements Completer.
func (c *Instrumented) Complete(ctx context.Context, req Request) (string, error) {
	op := req.Op
	if op == "" {
		op = "unknown"
	}
	start := time.Now()
	out, err := c.next.Complete(ctx, req)
	elapsed := time.Since(start)
	c.metrics.ObserveCompletion(op, err, elapsed)
	if err != nil {
		c.logger.Warn("completion failed", "op", op, "duration_ms", elapsed.Milliseconds(), "error", err)
		return "", err
	}
	c.logger.Debug("completion done", "op", op, "duration_ms", elapsed.Milliseconds(), "chars", len(out))
	return out, nil
}
