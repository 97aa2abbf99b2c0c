package workspace

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/hookvibe/hookcode-sub000/internals/remote"
	"github.com/hookvibe/hookcode-sub000/internals/runner"
	"github.com/hookvibe/hookcode-sub000/internals/schemas"
	"github.com/hookvibe/hookcode-sub000/internals/testutil"
)

type sinkRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (s *sinkRecorder) sink(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, line)
	return nil
}

func (s *sinkRecorder) joined() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.lines, "\n")
}

func newExecution(cloneURL string) *schemas.ExecutionContext {
	return &schemas.ExecutionContext{
		Repository: schemas.Repository{
			ID:       "repo-1",
			Provider: remote.ProviderGitHub,
			Slug:     "acme/api",
			CloneURL: cloneURL,
		},
		Robot: schemas.Robot{ID: "robot-1"},
	}
}

func TestPrepareClonesAndReuses(t *testing.T) {
	bare, source := testutil.BareRemote(t, "develop")
	manager := NewManager(t.TempDir(), runner.New(nil), nil)
	task := &schemas.Task{ID: "t1", Ref: "develop"}
	execution := newExecution(bare)

	prepared, err := manager.Prepare(context.Background(), task, execution, nil)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if prepared.CheckoutRef != "develop" {
		t.Fatalf("expected develop, got %q", prepared.CheckoutRef)
	}
	if prepared.Key != Key("github", "acme/api", "develop") || filepath.Base(prepared.Dir) != prepared.Key {
		t.Fatalf("unexpected key %q", prepared.Key)
	}
	if got := testutil.Git(t, prepared.Dir, "rev-parse", "--abbrev-ref", "HEAD"); got != "develop" {
		t.Fatalf("expected develop checked out, got %q", got)
	}

	marker := filepath.Join(prepared.Dir, "marker.txt")
	if err := os.WriteFile(marker, []byte("keep"), 0o644); err != nil {
		t.Fatalf("write marker: %v", err)
	}
	testutil.Git(t, source, "checkout", "develop")
	testutil.Commit(t, source, "new.txt", "fresh", "second")
	testutil.Git(t, source, "push", "origin", "develop")

	again, err := manager.Prepare(context.Background(), task, execution, nil)
	if err != nil {
		t.Fatalf("second prepare: %v", err)
	}
	if again.Dir != prepared.Dir {
		t.Fatalf("expected same directory, got %q and %q", prepared.Dir, again.Dir)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Fatalf("expected workspace reuse, marker missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(again.Dir, "new.txt")); err != nil {
		t.Fatalf("expected pulled file: %v", err)
	}
}

func TestPrepareFallsBackToUnscopedClone(t *testing.T) {
	bare, _ := testutil.BareRemote(t)
	manager := NewManager(t.TempDir(), runner.New(nil), nil)
	recorder := &sinkRecorder{}

	prepared, err := manager.Prepare(context.Background(), &schemas.Task{ID: "t1", Ref: "feature/not-pushed"}, newExecution(bare), recorder.sink)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if _, err := os.Stat(filepath.Join(prepared.Dir, "README.md")); err != nil {
		t.Fatalf("expected clone of default branch: %v", err)
	}
	if !strings.Contains(recorder.joined(), "falling back") {
		t.Fatalf("expected fallback to be logged, got:\n%s", recorder.joined())
	}
	if !strings.Contains(recorder.joined(), "Checkout of feature/not-pushed failed") {
		t.Fatalf("expected checkout failure to be logged, got:\n%s", recorder.joined())
	}
}

func TestPrepareReclonesWhenFetchFails(t *testing.T) {
	bare, _ := testutil.BareRemote(t)
	manager := NewManager(t.TempDir(), runner.New(nil), nil)
	execution := newExecution(bare)
	task := &schemas.Task{ID: "t1"}

	prepared, err := manager.Prepare(context.Background(), task, execution, nil)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	marker := filepath.Join(prepared.Dir, "marker.txt")
	if err := os.WriteFile(marker, []byte("stale"), 0o644); err != nil {
		t.Fatalf("write marker: %v", err)
	}
	if err := os.RemoveAll(filepath.Join(prepared.Dir, ".git", "objects")); err != nil {
		t.Fatalf("corrupt workspace: %v", err)
	}

	again, err := manager.Prepare(context.Background(), task, execution, nil)
	if err != nil {
		t.Fatalf("second prepare: %v", err)
	}
	if _, err := os.Stat(marker); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected fresh clone without marker, stat err=%v", err)
	}
	if _, err := os.Stat(filepath.Join(again.Dir, "README.md")); err != nil {
		t.Fatalf("expected recloned content: %v", err)
	}
}

func TestPrepareRequiresCloneURL(t *testing.T) {
	manager := NewManager(t.TempDir(), runner.New(nil), nil)
	_, err := manager.Prepare(context.Background(), &schemas.Task{ID: "t1"}, newExecution(""), nil)
	if !errors.Is(err, schemas.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
