package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/krati1611/smallhappinessclub/internal/observability"
)

// blockingRecorder holds every write until release is closed.
type blockingRecorder struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingRecorder) RecordVisit(ctx context.Context, v Visit) error {
	select {
	case b.started <- struct{}{}:
	default:
	}
	<-b.release
	return nil
}

func TestAsyncRecorderDoesNotBlockCaller(t *testing.T) {
	slow := &blockingRecorder{started: make(chan struct{}, 1), release: make(chan struct{})}
	metrics := observability.NewMockMetricsRegistry()
	rec := NewAsyncRecorder(slow, 1, time.Second, metrics, zap.NewNop())

	start := time.Now()
	require.NoError(t, rec.RecordVisit(context.Background(), Visit{RequestID: "a"}))
	<-slow.started
	require.NoError(t, rec.RecordVisit(context.Background(), Visit{RequestID: "b"}))
	require.NoError(t, rec.RecordVisit(context.Background(), Visit{RequestID: "c"}))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, 1, metrics.Count(metrics.Events, "visit/dropped"))

	close(slow.release)
	require.NoError(t, rec.Close(context.Background()))
}

func TestAsyncRecorderCloseDrains(t *testing.T) {
	mock := NewMockAnalytics()
	rec := NewAsyncRecorder(mock, 10, time.Second, nil, nil)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, rec.RecordVisit(context.Background(), Visit{RequestID: id}))
	}
	require.NoError(t, rec.Close(context.Background()))

	visits := mock.Recorded()
	require.Len(t, visits, 3)
	assert.Equal(t, "c", visits[2].RequestID)
	assert.ErrorIs(t, rec.RecordVisit(context.Background(), Visit{}), ErrUnavailable)
}

func TestAsyncRecorderIgnoresCallerCancellation(t *testing.T) {
	mock := NewMockAnalytics()
	rec := NewAsyncRecorder(mock, 10, time.Second, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, rec.RecordVisit(ctx, Visit{RequestID: "x"}))
	require.NoError(t, rec.Close(context.Background()))
	assert.Len(t, mock.Recorded(), 1)
}
