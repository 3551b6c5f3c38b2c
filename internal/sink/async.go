package sink

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/orientador/internal/metrics"
)

var ErrQueueFull = errors.New("result queue full")

// Async delivers results on a background goroutine through a bounded queue.
// Failures are logged and counted; they never reach the caller.
type Async struct {
	next    Sink
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics

	queue     chan Result
	wg        sync.WaitGroup
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// NewAsync starts the delivery goroutine.
func NewAsync(next Sink, queueSize int, timeout time.Duration, m *metrics.Metrics, logger *slog.Logger) *Async {
	if logger == nil {
		logger = slog.Default()
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	a := &Async{
		next:    next,
		timeout: timeout,
		logger:  logger,
		metrics: m,
		queue:   make(chan Result, queueSize),
	}
	a.wg.Add(1)
	go a.run()
	return a
}

// Deliver enqueues r. It returns ErrQueueFull when the queue is saturated.
func (a *Async) Deliver(_ context.Context, r Result) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return errors.New("result sink closed")
	}
	select {
	case a.queue <- r:
		return nil
	default:
		a.metrics.IncSinkDelivery("dropped")
		a.logger.Error("result dropped, queue full", "user_id", r.UserID)
		return ErrQueueFull
	}
}

// Close stops accepting results and waits for queued ones to be delivered.
func (a *Async) Close() {
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.queue)
		a.mu.Unlock()
		a.wg.Wait()
	})
}

func (a *Async) run() {
	defer a.wg.Done()
	for r := range a.queue {
		ctx := context.Background()
		var cancel context.CancelFunc
		if a.timeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, a.timeout)
		}
		err := a.next.Deliver(ctx, r)
		if cancel != nil {
			cancel()
		}
		if err != nil {
			a.metrics.IncSinkDelivery("error")
			a.logger.Error("result delivery failed", "user_id", r.UserID, "error", err)
			continue
		}
		a.metrics.IncSinkDelivery("ok")
		a.logger.Info("result delivered", "user_id", r.UserID)
	}
}
