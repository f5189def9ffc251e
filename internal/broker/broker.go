package broker

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// Task is one unit of pipeline work. Args carry only identifiers and small
// scalars; anything heavy lives in the object store or the database.
type Task struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Retries int            `json:"retries"`
	Args    map[string]any `json:"args,omitempty"`
}

func NewTask(name string, args map[string]any) *Task {
	return &Task{ID: uuid.NewString(), Name: name, Args: args}
}

// StringArg reads a string argument, tolerating absent keys.
func (t *Task) StringArg(key string) string {
	if t.Args == nil {
		return ""
	}
	v, _ := t.Args[key].(string)
	return v
}

// Broker moves tasks between the API process and the workers. Dequeue blocks
// up to its internal poll interval and returns (nil, nil) when nothing is
// ready, so worker loops can check for shutdown between polls.
type Broker interface {
	Enqueue(ctx context.Context, task *Task) error
	EnqueueIn(ctx context.Context, task *Task, delay time.Duration) error
	Dequeue(ctx context.Context) (*Task, error)
	Close() error
}

// RetryPolicy is exponential backoff with full-range jitter around each step.
type RetryPolicy struct {
	MaxRetries int
	MinBackoff time.Duration
	MaxBackoff time.Duration
	JitterFrac float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		MinBackoff: time.Second,
		MaxBackoff: 60 * time.Second,
		JitterFrac: 0.2,
	}
}

// Backoff returns the delay before attempt retries+1. retries counts the
// failures so far, so the first retry waits roughly MinBackoff.
func (p RetryPolicy) Backoff(retries int) time.Duration {
	if retries < 0 {
		retries = 0
	}
	backoff := p.MinBackoff
	for i := 0; i < retries; i++ {
		backoff *= 2
		if backoff >= p.MaxBackoff {
			backoff = p.MaxBackoff
			break
		}
	}
	if p.JitterFrac > 0 {
		jitter := 1 + p.JitterFrac*(2*rand.Float64()-1)
		backoff = time.Duration(float64(backoff) * jitter)
	}
	if backoff < 0 {
		backoff = 0
	}
	return backoff
}

// ShouldRetry reports whether a task that has already failed task.Retries+1
// times is still within budget.
func (p RetryPolicy) ShouldRetry(retries int) bool {
	return retries < p.MaxRetries
}

// RetryState tells a task handler where it stands in the retry budget, so it
// can mark the job as retrying versus failed.
type RetryState struct {
	Retries   int
	WillRetry bool
}
