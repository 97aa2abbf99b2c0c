package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	z "github.com/Oudwins/zog"
	"github.com/Oudwins/zog/parsers/zjson"
	"github.com/google/uuid"

	"github.com/hookvibe/hookcode-sub000/internals/conf"
	"github.com/hookvibe/hookcode-sub000/internals/logbuf"
	"github.com/hookvibe/hookcode-sub000/internals/orchestrator"
	"github.com/hookvibe/hookcode-sub000/internals/schemas"
	"github.com/hookvibe/hookcode-sub000/internals/store"
	"github.com/hookvibe/hookcode-sub000/internals/tasky"
	"github.com/hookvibe/hookcode-sub000/internals/tasky/backends/memory"
	"github.com/hookvibe/hookcode-sub000/internals/tasky/backends/sqlite"
)

type Jobs string

const JobExecuteTask Jobs = "execute_task"

type ExecuteTaskPayload struct {
	TaskID string `json:"taskId" zog:"taskId"`
}

var executeTaskSchema = z.Struct(z.Shape{
	"TaskID": z.String().Required().Trim(),
})

func (b *BaseServer) newQueueBackend() (tasky.Backend[Jobs], func() error, error) {
	retryDelay := b.retryDelay
	if retryDelay == nil {
		retryDelay = tasky.Exponential(5*time.Second, 5*time.Minute)
	}
	switch b.Config.Queue.Backend {
	case conf.QueueBackendMemory:
		backend := memory.New[Jobs](memory.Config{RetryDelay: retryDelay, RetryMax: b.Config.Queue.RetryMax})
		return backend, func() error { return nil }, nil
	default:
		backend, err := sqlite.New[Jobs](sqlite.Config{
			Path:       filepath.Join(b.Config.Server.DataDir, "db", "queue.db"),
			QueueName:  "task_queue",
			RetryDelay: retryDelay,
			RetryMax:   b.Config.Queue.RetryMax,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open queue: %w", err)
		}
		return backend, backend.Close, nil
	}
}

func (b *BaseServer) initQueue() error {
	backend, closeBackend, err := b.newQueueBackend()
	if err != nil {
		return err
	}

	queue, err := tasky.NewQueue(tasky.QueueConfig[Jobs]{
		Jobs: []tasky.Job[Jobs]{
			{ID: JobExecuteTask, Run: b.runExecuteTask},
		},
		Backend: backend,
		OnError: func(err error, task *tasky.Task[Jobs]) error {
			logger := b.Logger
			if task != nil {
				logger = logger.With(slog.String("jobTaskId", task.TaskID), slog.String("jobId", string(task.JobID)))
			}
			if errors.Is(err, tasky.ErrRetriesExceeded) {
				logger.Warn("job dropped after retries")
				return nil
			}
			logger.Error("job failed", slog.String("error", err.Error()))
			return nil
		},
	})
	if err != nil {
		closeBackend()
		return err
	}
	b.closeQueue = closeBackend
	b.TaskQueue = queue
	return nil
}

// EnqueueTask schedules the stored task for execution. The job id is the
// task id, so enqueueing twice is harmless.
func (b *BaseServer) EnqueueTask(ctx context.Context, taskID string) error {
	payload, err := json.Marshal(ExecuteTaskPayload{TaskID: taskID})
	if err != nil {
		return err
	}
	job := tasky.NewTask(JobExecuteTask, payload)
	job.TaskID = taskID
	if _, err := b.TaskQueue.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("failed to enqueue task %s: %w", taskID, err)
	}
	return nil
}

// RecoverQueued re-enqueues tasks that were stored but never started.
func (b *BaseServer) RecoverQueued(ctx context.Context) (int, error) {
	tasks, err := b.Store.ListByStatus(ctx, schemas.TaskStatusQueued)
	if err != nil {
		return 0, err
	}
	for _, task := range tasks {
		if err := b.EnqueueTask(ctx, task.ID); err != nil {
			return 0, err
		}
	}
	return len(tasks), nil
}

// RunWorkers consumes the queue until ctx is done.
func (b *BaseServer) RunWorkers(ctx context.Context) error {
	consumer := tasky.NewConsumer(b.TaskQueue, tasky.ConsumerOptions{Workers: b.Config.Queue.Workers})
	return consumer.Run(ctx)
}

func (b *BaseServer) runExecuteTask(ctx context.Context, job *tasky.Task[Jobs]) error {
	logger := b.Logger.With(slog.String("jobTaskId", job.TaskID), slog.String("jobId", string(job.JobID)))
	payload := ExecuteTaskPayload{}
	if errs := executeTaskSchema.Parse(zjson.Decode(bytes.NewReader(job.Payload)), &payload); errs != nil {
		return fmt.Errorf("failed to validate payload: %s", z.Issues.FlattenAndCollect(errs))
	}
	logger = logger.With(slog.String("taskId", payload.TaskID))

	task, err := b.Store.Get(ctx, payload.TaskID)
	if errors.Is(err, store.ErrNotFound) {
		logger.Warn("task vanished before execution")
		return nil
	}
	if err != nil {
		return err
	}
	if task.Status == schemas.TaskStatusSucceeded || task.Status == schemas.TaskStatusFailed {
		logger.Debug("task already finished", slog.String("status", string(task.Status)))
		return nil
	}

	if job.Attempts > 0 {
		if _, err := b.Store.IncrementRetry(ctx, task.ID); err != nil {
			return err
		}
	}
	_, err = b.execute(ctx, task, job.Attempts >= b.Config.Queue.RetryMax, logger)
	var final *finalError
	if errors.As(err, &final) {
		logger.Warn("task failed", slog.String("error", final.Error()), slog.Bool("config", errors.Is(err, schemas.ErrConfiguration)))
		return nil
	}
	return err
}

// RunTask stores request as a task and executes it in the calling goroutine,
// bypassing the queue. onLine, when set, receives the live log lines.
func (b *BaseServer) RunTask(ctx context.Context, request schemas.TaskCreateRequest, onLine func(logbuf.Line)) (*schemas.Task, *orchestrator.Outcome, error) {
	task := request.NewTask(uuid.Must(uuid.NewV7()).String(), b.now().UTC())
	if err := b.Store.Create(ctx, task); err != nil {
		return nil, nil, err
	}

	followCtx, stopFollowing := context.WithCancel(ctx)
	followed := make(chan struct{})
	seen := false
	go func() {
		defer close(followed)
		if onLine != nil {
			seen = b.followPipeline(followCtx, task.ID, onLine)
		}
	}()

	outcome, err := b.execute(ctx, task, true, b.Logger.With(slog.String("taskId", task.ID)))
	if final := (*finalError)(nil); errors.As(err, &final) {
		err = final.err
	}
	stopFollowing()
	<-followed
	if onLine != nil && !seen {
		// The run finished before the follower caught it; replay what was kept.
		if stored, getErr := b.Store.Get(context.WithoutCancel(ctx), task.ID); getErr == nil {
			start := uint64(1)
			if n := uint64(len(stored.Result.Logs)); n <= stored.Result.LogsSeq {
				start = stored.Result.LogsSeq - n + 1
			}
			for i, text := range stored.Result.Logs {
				onLine(logbuf.Line{Seq: start + uint64(i), Text: text})
			}
		}
	}
	return task, outcome, err
}

// followPipeline waits for the task's pipeline to appear and relays its
// lines until it closes, reporting whether it found one. Only the wait
// observes ctx, so lines buffered at close are still delivered.
func (b *BaseServer) followPipeline(ctx context.Context, taskID string, onLine func(logbuf.Line)) bool {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		if pipeline, ok := b.Hub.Get(taskID); ok {
			ch, cancel := pipeline.Subscribe()
			defer cancel()
			lines, seq := pipeline.Snapshot()
			var sent uint64
			if uint64(len(lines)) <= seq {
				sent = seq - uint64(len(lines))
			}
			for _, text := range lines {
				sent++
				onLine(logbuf.Line{Seq: sent, Text: text})
			}
			for line := range ch {
				if line.Seq <= sent {
					continue
				}
				onLine(line)
				sent = line.Seq
			}
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

// finalError marks a failure that must not be retried.
type finalError struct {
	err error
}

func (e *finalError) Error() string { return e.err.Error() }

func (e *finalError) Unwrap() error { return e.err }

// execute runs the agent and records the resulting status. A failure the
// orchestrator marks retryable goes back to queued; any other failure is
// returned as a *finalError.
func (b *BaseServer) execute(ctx context.Context, task *schemas.Task, final bool, logger *slog.Logger) (*orchestrator.Outcome, error) {
	if err := b.Store.SetStatus(ctx, task.ID, schemas.TaskStatusProcessing); err != nil {
		return nil, err
	}

	logger.Info("executing task")
	outcome, callErr := b.Orchestrator.Attempt(ctx, task.ID, final)

	status := schemas.TaskStatusSucceeded
	retry := false
	if callErr != nil {
		status = schemas.TaskStatusFailed
		var agentErr *orchestrator.AgentExecutionError
		if errors.As(callErr, &agentErr) && agentErr.Retry {
			status = schemas.TaskStatusQueued
			retry = true
		}
	}
	if err := b.Store.SetStatus(context.WithoutCancel(ctx), task.ID, status); err != nil {
		logger.Error("failed to record task status", slog.String("error", err.Error()))
	}
	if callErr != nil {
		if !retry {
			return nil, &finalError{err: callErr}
		}
		return nil, callErr
	}
	logger.Info("task succeeded", slog.String("sessionId", outcome.SessionID), slog.Int64("totalTokens", outcome.Usage.TotalTokens))
	return outcome, nil
}
