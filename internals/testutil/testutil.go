package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// TempRepo creates a repository with one commit on "main".
func TempRepo(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	Git(t, root, "init")
	Git(t, root, "symbolic-ref", "HEAD", "refs/heads/main")
	Git(t, root, "config", "user.email", "test@example.com")
	Git(t, root, "config", "user.name", "Test User")
	Commit(t, root, "README.md", "test", "init")
	return root
}

// BareRemote creates a bare repository seeded from TempRepo with the extra
// branches, and returns its path and the seeding working copy.
func BareRemote(t *testing.T, branches ...string) (bare string, source string) {
	t.Helper()
	source = TempRepo(t)
	for _, branch := range branches {
		Git(t, source, "branch", branch)
	}
	bare = filepath.Join(t.TempDir(), "remote.git")
	Git(t, "", "clone", "--bare", source, bare)
	Git(t, source, "remote", "add", "origin", bare)
	return bare, source
}

// Commit writes file and commits it.
func Commit(t *testing.T, repo string, file string, content string, message string) {
	t.Helper()
	path := filepath.Join(repo, file)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", file, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", file, err)
	}
	Git(t, repo, "add", file)
	Git(t, repo, "commit", "-m", message)
}

// Git runs git in dir and returns trimmed combined output.
func Git(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %v failed: %v\n%s", args, err, string(output))
	}
	return strings.TrimSpace(string(output))
}

func TempDBPath(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	return filepath.Join(root, "hookcode.db")
}
