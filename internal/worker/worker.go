package worker

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/dubwise/dubwise-backend/internal/broker"
	"github.com/dubwise/dubwise-backend/internal/platform/logger"
)

// HandlerFunc processes one task. The RetryState tells the handler whether a
// failure would be retried, so it can persist "retrying" versus "failed".
type HandlerFunc func(ctx context.Context, task *broker.Task, rs broker.RetryState) error

// Registration binds a task name to its handler and retry policy. The policy
// is a value supplied at registration, not derived from the task.
type Registration struct {
	Name   string
	Policy broker.RetryPolicy
	Fn     HandlerFunc
}

type Registry struct {
	handlers map[string]Registration
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Registration)}
}

func (r *Registry) Register(name string, policy broker.RetryPolicy, fn HandlerFunc) {
	r.handlers[name] = Registration{Name: name, Policy: policy, Fn: fn}
}

func (r *Registry) Lookup(name string) (Registration, bool) {
	reg, ok := r.handlers[name]
	return reg, ok
}

// Pool pulls tasks from the broker on a fixed number of goroutines. Each
// task runs to completion; failed retryable tasks are re-enqueued with
// backoff and an incremented retry counter.
type Pool struct {
	broker      broker.Broker
	registry    *Registry
	concurrency int
	log         *logger.Logger
}

func NewPool(b broker.Broker, registry *Registry, concurrency int, baseLog *logger.Logger) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pool{
		broker:      b,
		registry:    registry,
		concurrency: concurrency,
		log:         baseLog.With("service", "WorkerPool"),
	}
}

// Run blocks until the context is cancelled.
func (p *Pool) Run(ctx context.Context) error {
	p.log.Info("Worker pool starting", "concurrency", p.concurrency)
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.concurrency; i++ {
		g.Go(func() error {
			p.loop(ctx)
			return nil
		})
	}
	return g.Wait()
}

func (p *Pool) loop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		task, err := p.broker.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.log.Error("Dequeue failed", "error", err)
			continue
		}
		if task == nil {
			continue
		}
		p.process(ctx, task)
	}
}

func (p *Pool) process(ctx context.Context, task *broker.Task) {
	reg, ok := p.registry.Lookup(task.Name)
	if !ok {
		p.log.Error("Dropping task with no handler", "task", task.Name, "taskId", task.ID)
		return
	}
	rs := broker.RetryState{
		Retries:   task.Retries,
		WillRetry: reg.Policy.ShouldRetry(task.Retries),
	}
	err := p.invoke(ctx, reg, task, rs)
	if err == nil {
		return
	}
	if broker.IsFatal(err) || !rs.WillRetry {
		p.log.Error("Task failed permanently", "task", task.Name, "taskId", task.ID, "retries", task.Retries, "error", err)
		return
	}
	task.Retries++
	delay := reg.Policy.Backoff(task.Retries - 1)
	p.log.Warn("Task failed, scheduling retry", "task", task.Name, "taskId", task.ID, "attempt", task.Retries, "delay", delay.String(), "error", err)
	if enqueueErr := p.broker.EnqueueIn(ctx, task, delay); enqueueErr != nil {
		p.log.Error("Retry enqueue failed", "task", task.Name, "taskId", task.ID, "error", enqueueErr)
	}
}

// invoke shields the pool from handler panics; a panic counts as a task
// error and follows the normal retry path.
func (p *Pool) invoke(ctx context.Context, reg Registration, task *broker.Task, rs broker.RetryState) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return reg.Fn(ctx, task, rs)
}

// Drain processes tasks until the broker is empty, for tests driving the
// pipeline synchronously. Delayed tasks that are not yet due are left alone.
func (p *Pool) Drain(ctx context.Context) error {
	for {
		task, err := p.broker.Dequeue(ctx)
		if err != nil {
			return err
		}
		if task == nil {
			return nil
		}
		p.process(ctx, task)
	}
}
