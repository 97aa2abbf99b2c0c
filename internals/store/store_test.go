package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hookvibe/hookcode-sub000/internals/schemas"
	"github.com/hookvibe/hookcode-sub000/internals/testutil"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), testutil.TempDBPath(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleTask(id string) *schemas.Task {
	return &schemas.Task{
		ID:               id,
		EventType:        "issue_comment",
		Payload:          json.RawMessage(`{"ref":"refs/heads/main"}`),
		RepoID:           "repo-1",
		RobotID:          "robot-1",
		IssueID:          "42",
		GroupID:          "group-1",
		SkipProviderPost: true,
		CreatedAt:        time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestOpenAppliesMigrations(t *testing.T) {
	store := openStore(t)
	for _, table := range []string{"tasks", "task_groups"} {
		var name string
		row := store.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table)
		if err := row.Scan(&name); err != nil {
			t.Fatalf("expected table %s: %v", table, err)
		}
	}
}

func TestOpenTwiceIsIdempotent(t *testing.T) {
	path := testutil.TempDBPath(t)
	first, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	first.Close()
	second, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	second.Close()
}

func TestCreateAndGet(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	if err := store.Create(ctx, sampleTask("t1")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := store.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != schemas.TaskStatusQueued {
		t.Fatalf("expected queued, got %s", got.Status)
	}
	if got.IssueID != "42" || got.GroupID != "group-1" || !got.SkipProviderPost {
		t.Fatalf("unexpected task %+v", got)
	}
	if string(got.Payload) != `{"ref":"refs/heads/main"}` {
		t.Fatalf("unexpected payload %s", got.Payload)
	}
	if !got.CreatedAt.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Fatalf("unexpected created at %v", got.CreatedAt)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPatchResultMergesFields(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	if err := store.Create(ctx, sampleTask("t1")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	seq := uint64(2)
	usage := schemas.TokenUsage{InputTokens: 5, OutputTokens: 7, TotalTokens: 12}
	if err := store.PatchResult(ctx, "t1", schemas.ResultPatch{Logs: []string{"a", "b"}, LogsSeq: &seq, TokenUsage: &usage}); err != nil {
		t.Fatalf("PatchResult: %v", err)
	}
	output := "done"
	workflow := schemas.GitWorkflowResult{Mode: schemas.WorkflowDirect, Provider: "github"}
	if err := store.PatchResult(ctx, "t1", schemas.ResultPatch{OutputText: &output, RepoWorkflow: &workflow}); err != nil {
		t.Fatalf("PatchResult: %v", err)
	}

	got, err := store.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	result := got.Result
	if len(result.Logs) != 2 || result.LogsSeq != 2 {
		t.Fatalf("logs lost after second patch: %+v", result)
	}
	if result.TokenUsage == nil || result.TokenUsage.TotalTokens != 12 {
		t.Fatalf("usage lost: %+v", result.TokenUsage)
	}
	if result.OutputText != "done" || result.RepoWorkflow == nil || result.RepoWorkflow.Mode != schemas.WorkflowDirect {
		t.Fatalf("unexpected result %+v", result)
	}

	if err := store.PatchResult(ctx, "missing", schemas.ResultPatch{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPatchResultConcurrentWriters(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	if err := store.Create(ctx, sampleTask("t1")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	var wg sync.WaitGroup
	output := "final"
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := uint64(1); i <= 20; i++ {
			seq := i
			if err := store.PatchResult(ctx, "t1", schemas.ResultPatch{LogsSeq: &seq}); err != nil {
				t.Errorf("PatchResult logs: %v", err)
			}
		}
	}()
	go func() {
		defer wg.Done()
		if err := store.PatchResult(ctx, "t1", schemas.ResultPatch{OutputText: &output}); err != nil {
			t.Errorf("PatchResult output: %v", err)
		}
	}()
	wg.Wait()

	got, err := store.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Result.OutputText != "final" || got.Result.LogsSeq != 20 {
		t.Fatalf("lost update: %+v", got.Result)
	}
}

func TestSetStatusAndList(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	for _, id := range []string{"t1", "t2"} {
		if err := store.Create(ctx, sampleTask(id)); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	if err := store.SetStatus(ctx, "t1", schemas.TaskStatusProcessing); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if err := store.SetStatus(ctx, "missing", schemas.TaskStatusFailed); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	queued, err := store.ListByStatus(ctx, schemas.TaskStatusQueued)
	if err != nil {
		t.Fatalf("ListByStatus: %v", err)
	}
	if len(queued) != 1 || queued[0].ID != "t2" {
		t.Fatalf("unexpected queued tasks %+v", queued)
	}

	count, err := store.IncrementRetry(ctx, "t1")
	if err != nil || count != 1 {
		t.Fatalf("IncrementRetry: %d %v", count, err)
	}
}

func TestGroupSessionFirstBindingWins(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	thread, err := store.LookupGroupSession(ctx, "group-1")
	if err != nil || thread != "" {
		t.Fatalf("expected no session, got %q %v", thread, err)
	}
	if err := store.BindGroupSession(ctx, "group-1", "thread-a"); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := store.BindGroupSession(ctx, "group-1", "thread-b"); err != nil {
		t.Fatalf("second Bind: %v", err)
	}
	thread, err = store.LookupGroupSession(ctx, "group-1")
	if err != nil || thread != "thread-a" {
		t.Fatalf("expected first binding, got %q %v", thread, err)
	}
	if err := store.BindGroupSession(ctx, "", "x"); err != nil {
		t.Fatalf("empty group must be ignored: %v", err)
	}
}
