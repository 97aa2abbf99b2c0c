package tasky

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

type Queue[T ~string] struct {
	jobs      map[T]Job[T]
	backend   Backend[T]
	onError   OnErrorHandler[T]
	newTaskID func() string
}

func NewQueue[T ~string](cfg QueueConfig[T]) (*Queue[T], error) {
	if cfg.Backend == nil {
		return nil, errors.New("backend is required")
	}

	jobs := make(map[T]Job[T], len(cfg.Jobs))
	for _, job := range cfg.Jobs {
		if _, exists := jobs[job.ID]; exists {
			return nil, fmt.Errorf("duplicate job id: %v", job.ID)
		}
		if job.Run == nil {
			return nil, fmt.Errorf("job %v has nil Run handler", job.ID)
		}
		jobs[job.ID] = job
	}

	newTaskID := cfg.NewTaskID
	if newTaskID == nil {
		newTaskID = func() string {
			return uuid.Must(uuid.NewV7()).String()
		}
	}

	return &Queue[T]{
		jobs:      jobs,
		backend:   cfg.Backend,
		onError:   cfg.OnError,
		newTaskID: newTaskID,
	}, nil
}

// Enqueue stores task and returns its id, generating one when empty.
func (q *Queue[T]) Enqueue(ctx context.Context, task *Task[T]) (string, error) {
	job, exists := q.jobs[task.JobID]
	if !exists {
		return "", fmt.Errorf("unknown job id: %v", task.JobID)
	}
	if task.TaskID == "" {
		task.TaskID = q.newTaskID()
	}
	task.Priority = job.Priority
	if err := q.backend.Enqueue(ctx, task); err != nil {
		return "", err
	}
	return task.TaskID, nil
}

type ConsumerOptions struct {
	Workers int
}

type Consumer[T ~string] struct {
	queue   *Queue[T]
	options ConsumerOptions
}

func NewConsumer[T ~string](queue *Queue[T], options ConsumerOptions) *Consumer[T] {
	if options.Workers <= 0 {
		options.Workers = 1
	}
	return &Consumer[T]{queue: queue, options: options}
}

// Run processes tasks until ctx is done or OnError returns an error, which
// is then returned.
func (c *Consumer[T]) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		once   sync.Once
		runErr error
	)
	report := func(err error, task *Task[T]) {
		if err == nil || c.queue.onError == nil {
			return
		}
		if onErr := c.queue.onError(err, task); onErr != nil {
			once.Do(func() {
				runErr = onErr
				cancel()
			})
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < c.options.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				task, err := c.queue.backend.Dequeue(ctx)
				if err != nil {
					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						return
					}
					report(err, nil)
					continue
				}
				c.process(ctx, task, report)
			}
		}()
	}
	wg.Wait()

	return runErr
}

func (c *Consumer[T]) process(ctx context.Context, task *Task[T], report func(error, *Task[T])) {
	job, ok := c.queue.jobs[task.JobID]
	if !ok {
		report(fmt.Errorf("unknown job id: %v", task.JobID), task)
		if err := c.queue.backend.Ack(ctx, task.TaskID); err != nil {
			report(err, task)
		}
		return
	}

	if err := job.Run(ctx, task); err != nil {
		report(err, task)
		if nackErr := c.queue.backend.Nack(ctx, task.TaskID); nackErr != nil {
			report(nackErr, task)
		}
		return
	}
	if err := c.queue.backend.Ack(ctx, task.TaskID); err != nil {
		report(err, task)
	}
}
