package analytics

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/krati1611/smallhappinessclub/internal/observability"
)

var _ Recorder = (*AsyncRecorder)(nil)

// AsyncRecorder queues visits and writes them to a Recorder from a single
// background goroutine, so a slow analytics store never delays a page.
// When the queue is full the visit is dropped and counted.
type AsyncRecorder struct {
	next    Recorder
	queue   chan Visit
	timeout time.Duration
	metrics observability.MetricsRegistry
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewAsyncRecorder starts a worker draining up to size queued visits into
// next. Each write is bounded by timeout.
func NewAsyncRecorder(next Recorder, size int, timeout time.Duration, metrics observability.MetricsRegistry, logger *zap.Logger) *AsyncRecorder {
	if size <= 0 {
		size = 1024
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &AsyncRecorder{
		next:    next,
		queue:   make(chan Visit, size),
		timeout: timeout,
		metrics: metrics,
		logger:  logger,
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

// RecordVisit enqueues v without blocking. ctx is not retained.
func (a *AsyncRecorder) RecordVisit(ctx context.Context, v Visit) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrUnavailable
	}
	select {
	case a.queue <- v:
		return nil
	default:
		a.metrics.IncrementEvent("visit", "dropped")
		a.logger.Warn("visit queue full, dropping visit", zap.String("request_id", v.RequestID))
		return nil
	}
}

func (a *AsyncRecorder) run() {
	defer close(a.done)
	for v := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := a.next.RecordVisit(ctx, v); err != nil && !errors.Is(err, ErrUnavailable) {
			a.logger.Warn("record visit failed", zap.String("request_id", v.RequestID), zap.Error(err))
		}
		cancel()
	}
}

// Close stops accepting visits and waits until queued ones are written or
// ctx is done.
func (a *AsyncRecorder) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
