// Package sqlite is a durable tasky backend. Tasks that were running when
// the process stopped are made pending again on open.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hookvibe/hookcode-sub000/internals/tasky"
)

type Config struct {
	Path         string
	DB           *sql.DB
	QueueName    string
	RetryDelay   func(attempts int) time.Duration
	RetryMax     int
	PollInterval time.Duration
}

type Backend[T ~string] struct {
	db     *sql.DB
	owned  bool
	signal chan struct{}
	cfg    Config
}

const (
	statusPending = "pending"
	statusRunning = "running"
	statusDone    = "done"
	statusFailed  = "failed"
)

var queueNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func New[T ~string](cfg Config) (*Backend[T], error) {
	if cfg.DB == nil && cfg.Path == "" {
		return nil, errors.New("sqlite backend requires a db or path")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 200 * time.Millisecond
	}
	if cfg.QueueName == "" {
		cfg.QueueName = "tasky_queue"
	}
	if !queueNamePattern.MatchString(cfg.QueueName) {
		return nil, fmt.Errorf("invalid queue name: %q", cfg.QueueName)
	}

	backend := &Backend[T]{db: cfg.DB, signal: make(chan struct{}, 1), cfg: cfg}
	if backend.db == nil {
		db, err := sql.Open("sqlite", cfg.Path)
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(1)
		backend.db = db
		backend.owned = true
	}
	if err := backend.init(); err != nil {
		backend.Close()
		return nil, err
	}
	return backend, nil
}

func (b *Backend[T]) init() error {
	if _, err := b.db.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		return err
	}
	if _, err := b.db.Exec(`PRAGMA busy_timeout = 5000;`); err != nil {
		return err
	}
	q := b.cfg.QueueName
	if _, err := b.db.Exec(fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	job_id TEXT NOT NULL,
	payload BLOB,
	priority INTEGER NOT NULL,
	status TEXT NOT NULL,
	attempts INTEGER NOT NULL,
	available_at INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	completed_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_%s_dequeue ON %s(status, available_at, priority DESC, created_at ASC);
`, q, q, q)); err != nil {
		return err
	}
	_, err := b.db.Exec(fmt.Sprintf(`UPDATE %s SET status = ?, updated_at = ? WHERE status = ?`, q),
		statusPending, time.Now().UTC().UnixNano(), statusRunning)
	return err
}

func (b *Backend[T]) Close() error {
	if !b.owned {
		return nil
	}
	return b.db.Close()
}

// Enqueue ignores a task whose id is already stored, whatever its status.
func (b *Backend[T]) Enqueue(ctx context.Context, task *tasky.Task[T]) error {
	now := time.Now().UTC().UnixNano()
	_, err := b.db.ExecContext(ctx, fmt.Sprintf(`
INSERT INTO %s (id, job_id, payload, priority, status, attempts, available_at, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO NOTHING
`, b.cfg.QueueName), task.TaskID, string(task.JobID), task.Payload, task.Priority, statusPending, task.Attempts, now, now, now)
	if err != nil {
		return err
	}
	b.notify()
	return nil
}

func (b *Backend[T]) Dequeue(ctx context.Context) (*tasky.Task[T], error) {
	timer := time.NewTimer(b.cfg.PollInterval)
	defer timer.Stop()
	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		task, err := b.claim(ctx)
		if err != nil {
			return nil, err
		}
		if task != nil {
			return task, nil
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(b.cfg.PollInterval)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-b.signal:
		case <-timer.C:
		}
	}
}

// claim marks the next available task running in a single statement.
func (b *Backend[T]) claim(ctx context.Context) (*tasky.Task[T], error) {
	now := time.Now().UTC().UnixNano()
	q := b.cfg.QueueName
	row := b.db.QueryRowContext(ctx, fmt.Sprintf(`
UPDATE %s SET status = ?, updated_at = ?
WHERE id = (
	SELECT id FROM %s
	WHERE status = ? AND available_at <= ?
	ORDER BY priority DESC, created_at ASC
	LIMIT 1
)
RETURNING id, job_id, payload, priority, attempts
`, q, q), statusRunning, now, statusPending, now)

	var (
		task  tasky.Task[T]
		jobID string
	)
	if err := row.Scan(&task.TaskID, &jobID, &task.Payload, &task.Priority, &task.Attempts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	task.JobID = T(jobID)
	return &task, nil
}

func (b *Backend[T]) Ack(ctx context.Context, taskID string) error {
	now := time.Now().UTC().UnixNano()
	res, err := b.db.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET status = ?, updated_at = ?, completed_at = ? WHERE id = ? AND status = ?`, b.cfg.QueueName),
		statusDone, now, now, taskID, statusRunning)
	if err != nil {
		return err
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return fmt.Errorf("unknown task id: %v", taskID)
	}
	return nil
}

func (b *Backend[T]) Nack(ctx context.Context, taskID string) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	q := b.cfg.QueueName
	var attempts int
	if err := tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT attempts FROM %s WHERE id = ? AND status = ?`, q), taskID, statusRunning).Scan(&attempts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("unknown task id: %v", taskID)
		}
		return err
	}

	attempts++
	now := time.Now().UTC()
	if b.cfg.RetryMax >= 0 && attempts > b.cfg.RetryMax {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET status = ?, attempts = ?, updated_at = ?, completed_at = ? WHERE id = ?`, q),
			statusFailed, attempts, now.UnixNano(), now.UnixNano(), taskID); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		return tasky.ErrRetriesExceeded
	}

	availableAt := now
	if b.cfg.RetryDelay != nil {
		if delay := b.cfg.RetryDelay(attempts); delay > 0 {
			availableAt = now.Add(delay)
		}
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET status = ?, attempts = ?, available_at = ?, updated_at = ? WHERE id = ?`, q),
		statusPending, attempts, availableAt.UnixNano(), now.UnixNano(), taskID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	b.notify()
	return nil
}

func (b *Backend[T]) notify() {
	select {
	case b.signal <- struct{}{}:
	default:
	}
}
