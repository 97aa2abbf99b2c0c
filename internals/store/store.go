// Package store persists tasks and execution group sessions in sqlite.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/hookvibe/hookcode-sub000/internals/schemas"
)

//go:embed migrations/*.sql
var migrations embed.FS

var ErrNotFound = errors.New("task not found")

// goose keeps its base FS and dialect in package globals.
var migrateMu sync.Mutex

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates the database file if needed and applies pending migrations.
func Open(ctx context.Context, dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// One writer keeps the read-modify-write in PatchResult serial.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{"PRAGMA journal_mode = WAL;", "PRAGMA synchronous = NORMAL;", "PRAGMA busy_timeout = 5000;"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, err
		}
	}
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate task store: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	migrateMu.Lock()
	defer migrateMu.Unlock()
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, "migrations")
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Create(ctx context.Context, task *schemas.Task) error {
	if task == nil || task.ID == "" {
		return errors.New("task id is required")
	}
	now := s.now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	if task.UpdatedAt.IsZero() {
		task.UpdatedAt = task.CreatedAt
	}
	if task.Status == "" {
		task.Status = schemas.TaskStatusQueued
	}
	resultJSON, err := json.Marshal(task.Result)
	if err != nil {
		return fmt.Errorf("failed to encode task result: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO tasks (id, event_type, payload_json, repo_id, robot_id, actor_user_id, ref, issue_id,
	merge_request_id, commit_sha, group_id, retry_count, skip_provider_post, status, result_json,
	created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, task.ID, task.EventType, nullIfEmpty(string(task.Payload)), task.RepoID, task.RobotID,
		nullIfEmpty(task.ActorUserID), nullIfEmpty(task.Ref), nullIfEmpty(task.IssueID),
		nullIfEmpty(task.MergeRequestID), nullIfEmpty(task.CommitSHA), nullIfEmpty(task.GroupID),
		task.RetryCount, task.SkipProviderPost, string(task.Status), string(resultJSON),
		formatTime(task.CreatedAt), formatTime(task.UpdatedAt))
	return err
}

const taskColumns = `id, event_type, payload_json, repo_id, robot_id, actor_user_id, ref, issue_id,
	merge_request_id, commit_sha, group_id, retry_count, skip_provider_post, status, result_json,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*schemas.Task, error) {
	var (
		task                                                 schemas.Task
		payload, actor, ref, issue, mr, sha, group, resultJS sql.NullString
		status, createdAt, updatedAt                         string
	)
	if err := row.Scan(&task.ID, &task.EventType, &payload, &task.RepoID, &task.RobotID, &actor, &ref,
		&issue, &mr, &sha, &group, &task.RetryCount, &task.SkipProviderPost, &status, &resultJS,
		&createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if payload.String != "" {
		task.Payload = json.RawMessage(payload.String)
	}
	task.ActorUserID = actor.String
	task.Ref = ref.String
	task.IssueID = issue.String
	task.MergeRequestID = mr.String
	task.CommitSHA = sha.String
	task.GroupID = group.String
	task.Status = schemas.TaskStatus(status)
	if resultJS.String != "" {
		if err := json.Unmarshal([]byte(resultJS.String), &task.Result); err != nil {
			return nil, fmt.Errorf("failed to decode result of task %s: %w", task.ID, err)
		}
	}
	task.CreatedAt = parseTime(createdAt)
	task.UpdatedAt = parseTime(updatedAt)
	return &task, nil
}

func (s *Store) Get(ctx context.Context, id string) (*schemas.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	return scanTask(row)
}

// ListByStatus returns tasks oldest first.
func (s *Store) ListByStatus(ctx context.Context, status schemas.TaskStatus) ([]*schemas.Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE status = ? ORDER BY created_at ASC`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tasks []*schemas.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// PatchResult merges the non-nil fields of patch into the stored result.
func (s *Store) PatchResult(ctx context.Context, taskID string, patch schemas.ResultPatch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var resultJS sql.NullString
	if err := tx.QueryRowContext(ctx, `SELECT result_json FROM tasks WHERE id = ?`, taskID).Scan(&resultJS); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	var result schemas.TaskResult
	if resultJS.String != "" {
		if err := json.Unmarshal([]byte(resultJS.String), &result); err != nil {
			return fmt.Errorf("failed to decode result of task %s: %w", taskID, err)
		}
	}
	patch.Apply(&result)
	encoded, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode task result: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE tasks SET result_json = ?, updated_at = ? WHERE id = ?`,
		string(encoded), formatTime(s.now()), taskID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) SetStatus(ctx context.Context, taskID string, status schemas.TaskStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), formatTime(s.now()), taskID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementRetry bumps the retry counter and returns the new value.
func (s *Store) IncrementRetry(ctx context.Context, taskID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `UPDATE tasks SET retry_count = retry_count + 1, updated_at = ? WHERE id = ? RETURNING retry_count`,
		formatTime(s.now()), taskID).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	return count, err
}

// BindGroupSession records threadID for the group. The first binding wins;
// later calls are no-ops.
func (s *Store) BindGroupSession(ctx context.Context, groupID string, threadID string) error {
	if groupID == "" || threadID == "" {
		return nil
	}
	now := formatTime(s.now())
	_, err := s.db.ExecContext(ctx, `
INSERT INTO task_groups (id, thread_id, created_at, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO NOTHING
`, groupID, threadID, now, now)
	return err
}

// LookupGroupSession returns "" when the group has no bound thread.
func (s *Store) LookupGroupSession(ctx context.Context, groupID string) (string, error) {
	if groupID == "" {
		return "", nil
	}
	var threadID string
	err := s.db.QueryRowContext(ctx, `SELECT thread_id FROM task_groups WHERE id = ?`, groupID).Scan(&threadID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return threadID, err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
