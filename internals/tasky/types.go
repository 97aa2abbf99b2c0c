// Package tasky is a small job queue: typed jobs, pluggable backends and a
// worker pool consumer.
package tasky

import (
	"context"
	"errors"
)

// ErrRetriesExceeded is returned by Nack when the task was dropped.
var ErrRetriesExceeded = errors.New("retries exceeded")

type Job[T ~string] struct {
	ID       T
	Priority int
	Run      func(ctx context.Context, task *Task[T]) error
}

type Task[T ~string] struct {
	JobID    T
	TaskID   string
	Payload  []byte
	Priority int
	// Attempts counts earlier failed runs.
	Attempts int
}

func NewTask[T ~string](jobID T, payload []byte) *Task[T] {
	return &Task[T]{JobID: jobID, Payload: payload}
}

type OnErrorHandler[T ~string] func(err error, task *Task[T]) error

type QueueConfig[T ~string] struct {
	Jobs    []Job[T]
	Backend Backend[T]
	OnError OnErrorHandler[T]
	// NewTaskID defaults to UUIDv7.
	NewTaskID func() string
}

type Backend[T ~string] interface {
	Enqueue(ctx context.Context, task *Task[T]) error
	// Dequeue blocks until a task is available or ctx is done.
	Dequeue(ctx context.Context) (*Task[T], error)
	Ack(ctx context.Context, taskID string) error
	Nack(ctx context.Context, taskID string) error
}
