package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dubwise/dubwise-backend/internal/broker"
	"github.com/dubwise/dubwise-backend/internal/platform/logger"
)

func newTestPool(t *testing.T, registry *Registry) (*Pool, *broker.MemoryBroker) {
	t.Helper()
	log, err := logger.New("test")
	require.NoError(t, err)
	b := broker.NewMemoryBroker()
	return NewPool(b, registry, 1, log), b
}

// immediatePolicy retries without delay so Drain sees re-enqueued tasks.
func immediatePolicy(maxRetries int) broker.RetryPolicy {
	return broker.RetryPolicy{MaxRetries: maxRetries}
}

func TestPool_RunsHandler(t *testing.T) {
	registry := NewRegistry()
	var calls int32
	registry.Register("noop", immediatePolicy(3), func(ctx context.Context, task *broker.Task, rs broker.RetryState) error {
		atomic.AddInt32(&calls, 1)
		require.Equal(t, "v", task.StringArg("k"))
		return nil
	})
	pool, b := newTestPool(t, registry)

	require.NoError(t, b.Enqueue(context.Background(), broker.NewTask("noop", map[string]any{"k": "v"})))
	require.NoError(t, pool.Drain(context.Background()))
	require.EqualValues(t, 1, calls)
}

func TestPool_RetriesUntilExhaustion(t *testing.T) {
	registry := NewRegistry()
	var attempts []broker.RetryState
	registry.Register("flaky", immediatePolicy(3), func(ctx context.Context, task *broker.Task, rs broker.RetryState) error {
		attempts = append(attempts, rs)
		return errors.New("boom")
	})
	pool, b := newTestPool(t, registry)

	require.NoError(t, b.Enqueue(context.Background(), broker.NewTask("flaky", nil)))
	require.NoError(t, pool.Drain(context.Background()))

	// Initial attempt plus three retries.
	require.Len(t, attempts, 4)
	require.Equal(t, broker.RetryState{Retries: 0, WillRetry: true}, attempts[0])
	require.Equal(t, broker.RetryState{Retries: 2, WillRetry: true}, attempts[2])
	require.Equal(t, broker.RetryState{Retries: 3, WillRetry: false}, attempts[3])
}

func TestPool_FatalSkipsRetry(t *testing.T) {
	registry := NewRegistry()
	var calls int32
	registry.Register("fatal", immediatePolicy(3), func(ctx context.Context, task *broker.Task, rs broker.RetryState) error {
		atomic.AddInt32(&calls, 1)
		return broker.Fatal("missing prerequisite")
	})
	pool, b := newTestPool(t, registry)

	require.NoError(t, b.Enqueue(context.Background(), broker.NewTask("fatal", nil)))
	require.NoError(t, pool.Drain(context.Background()))
	require.EqualValues(t, 1, calls)
}

func TestPool_PanicFollowsRetryPath(t *testing.T) {
	registry := NewRegistry()
	var calls int32
	registry.Register("panicky", immediatePolicy(1), func(ctx context.Context, task *broker.Task, rs broker.RetryState) error {
		atomic.AddInt32(&calls, 1)
		panic("kaboom")
	})
	pool, b := newTestPool(t, registry)

	require.NoError(t, b.Enqueue(context.Background(), broker.NewTask("panicky", nil)))
	require.NoError(t, pool.Drain(context.Background()))
	require.EqualValues(t, 2, calls)
}

func TestPool_UnknownTaskDropped(t *testing.T) {
	pool, b := newTestPool(t, NewRegistry())
	require.NoError(t, b.Enqueue(context.Background(), broker.NewTask("nobody", nil)))
	require.NoError(t, pool.Drain(context.Background()))
	ready, delayed := b.Pending()
	require.Zero(t, ready)
	require.Zero(t, delayed)
}
