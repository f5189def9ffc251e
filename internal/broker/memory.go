package broker

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryBroker is an in-process Broker used by tests and single-binary runs.
// It mirrors the Redis adapter's visibility rules: delayed tasks surface only
// once their due time has passed.
type MemoryBroker struct {
	mu      sync.Mutex
	ready   []*Task
	delayed []delayedTask
	closed  bool
}

type delayedTask struct {
	task *Task
	due  time.Time
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{}
}

func (b *MemoryBroker) Enqueue(_ context.Context, task *Task) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ready = append(b.ready, task)
	return nil
}

func (b *MemoryBroker) EnqueueIn(ctx context.Context, task *Task, delay time.Duration) error {
	if delay <= 0 {
		return b.Enqueue(ctx, task)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.delayed = append(b.delayed, delayedTask{task: task, due: time.Now().Add(delay)})
	return nil
}

func (b *MemoryBroker) Dequeue(ctx context.Context) (*Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.promoteDueLocked()
	if len(b.ready) == 0 {
		return nil, nil
	}
	task := b.ready[0]
	b.ready = b.ready[1:]
	return task, nil
}

func (b *MemoryBroker) promoteDueLocked() {
	if len(b.delayed) == 0 {
		return
	}
	now := time.Now()
	sort.SliceStable(b.delayed, func(i, j int) bool {
		return b.delayed[i].due.Before(b.delayed[j].due)
	})
	var remaining []delayedTask
	for _, d := range b.delayed {
		if d.due.After(now) {
			remaining = append(remaining, d)
			continue
		}
		b.ready = append(b.ready, d.task)
	}
	b.delayed = remaining
}

// Pending reports ready and delayed counts, for test assertions.
func (b *MemoryBroker) Pending() (ready, delayed int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.ready), len(b.delayed)
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
