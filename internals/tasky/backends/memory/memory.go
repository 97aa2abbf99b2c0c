// Package memory is an in-process tasky backend. Tasks are lost on exit.
package memory

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hookvibe/hookcode-sub000/internals/tasky"
)

type Config struct {
	RetryDelay func(attempts int) time.Duration
	// RetryMax is the number of retries after the first run. Negative
	// disables the limit.
	RetryMax int
}

type Backend[T ~string] struct {
	mu       sync.Mutex
	pending  priorityQueue[T]
	inFlight map[string]*queueItem[T]
	signal   chan struct{}
	seq      uint64
	cfg      Config
}

func New[T ~string](cfg Config) *Backend[T] {
	backend := &Backend[T]{
		pending:  priorityQueue[T]{},
		inFlight: make(map[string]*queueItem[T]),
		signal:   make(chan struct{}, 1),
		cfg:      cfg,
	}
	heap.Init(&backend.pending)
	return backend
}

// Enqueue ignores a task whose id is already pending or in flight.
func (b *Backend[T]) Enqueue(ctx context.Context, task *tasky.Task[T]) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.knownLocked(task.TaskID) {
		return nil
	}
	item := &queueItem[T]{task: *task, seq: b.nextSeq()}
	item.task.Payload = append([]byte(nil), task.Payload...)
	heap.Push(&b.pending, item)
	b.signalLocked()
	return nil
}

func (b *Backend[T]) Dequeue(ctx context.Context) (*tasky.Task[T], error) {
	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		b.mu.Lock()
		if b.pending.Len() > 0 {
			item := heap.Pop(&b.pending).(*queueItem[T])
			b.inFlight[item.task.TaskID] = item
			if b.pending.Len() > 0 {
				b.signalLocked()
			}
			b.mu.Unlock()
			task := item.task
			return &task, nil
		}
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-b.signal:
		}
	}
}

func (b *Backend[T]) Ack(ctx context.Context, taskID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.inFlight[taskID]; !ok {
		return fmt.Errorf("unknown task id: %v", taskID)
	}
	delete(b.inFlight, taskID)
	return nil
}

func (b *Backend[T]) Nack(ctx context.Context, taskID string) error {
	b.mu.Lock()
	item, ok := b.inFlight[taskID]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("unknown task id: %v", taskID)
	}
	delete(b.inFlight, taskID)
	item.task.Attempts++
	if b.cfg.RetryMax >= 0 && item.task.Attempts > b.cfg.RetryMax {
		b.mu.Unlock()
		return tasky.ErrRetriesExceeded
	}
	item.seq = b.nextSeq()

	var delay time.Duration
	if b.cfg.RetryDelay != nil {
		delay = b.cfg.RetryDelay(item.task.Attempts)
	}
	if delay <= 0 {
		heap.Push(&b.pending, item)
		b.signalLocked()
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()
	time.AfterFunc(delay, func() {
		b.mu.Lock()
		heap.Push(&b.pending, item)
		b.signalLocked()
		b.mu.Unlock()
	})
	return nil
}

// Len reports the number of pending tasks.
func (b *Backend[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending.Len()
}

func (b *Backend[T]) knownLocked(taskID string) bool {
	if _, ok := b.inFlight[taskID]; ok {
		return true
	}
	for _, item := range b.pending {
		if item.task.TaskID == taskID {
			return true
		}
	}
	return false
}

func (b *Backend[T]) signalLocked() {
	select {
	case b.signal <- struct{}{}:
	default:
	}
}

func (b *Backend[T]) nextSeq() uint64 {
	b.seq++
	return b.seq
}

type queueItem[T ~string] struct {
	task tasky.Task[T]
	seq  uint64
}

type priorityQueue[T ~string] []*queueItem[T]

func (q priorityQueue[T]) Len() int { return len(q) }

func (q priorityQueue[T]) Less(i, j int) bool {
	if q[i].task.Priority == q[j].task.Priority {
		return q[i].seq < q[j].seq
	}
	return q[i].task.Priority > q[j].task.Priority
}

func (q priorityQueue[T]) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
}

func (q *priorityQueue[T]) Push(x any) {
	*q = append(*q, x.(*queueItem[T]))
}

func (q *priorityQueue[T]) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}
