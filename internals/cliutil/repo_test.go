package cliutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hookvibe/hookcode-sub000/internals/testutil"
)

func TestRepoRoot(t *testing.T) {
	repo := testutil.TempRepo(t)
	nested := filepath.Join(repo, "pkg", "sub")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	root, err := RepoRoot(nested)
	if err != nil {
		t.Fatalf("RepoRoot: %v", err)
	}
	want, _ := filepath.EvalSymlinks(repo)
	got, _ := filepath.EvalSymlinks(root)
	if got != want {
		t.Fatalf("RepoRoot = %q, want %q", got, want)
	}

	if _, err := RepoRoot(t.TempDir()); err == nil {
		t.Fatalf("expected error outside a repository")
	}
}
