// Package workspace keeps one local clone per (provider, repository, ref)
// up to date for task execution.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hookvibe/hookcode-sub000/internals/redact"
	"github.com/hookvibe/hookcode-sub000/internals/runner"
	"github.com/hookvibe/hookcode-sub000/internals/schemas"
)

// Manager prepares workspaces under Root. Two tasks resolving to the same
// key share a directory without locking.
type Manager struct {
	root   string
	runner *runner.Runner
	logger *slog.Logger
}

type Prepared struct {
	Dir         string
	Key         string
	CheckoutRef string
	Remote      AuthURL
}

func NewManager(root string, r *runner.Runner, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Manager{root: root, runner: r, logger: logger}
}

func (m *Manager) Root() string {
	return m.root
}

// Prepare clones or refreshes the workspace and checks out the resolved ref.
// Only a missing clone URL or an unrecoverable clone fails it.
func (m *Manager) Prepare(ctx context.Context, task *schemas.Task, execution *schemas.ExecutionContext, sink runner.Sink) (*Prepared, error) {
	repo := execution.Repository
	if repo.CloneURL == "" {
		return nil, schemas.NewConfigError("repository %q has no clone URL", repo.ID)
	}
	if sink == nil {
		sink = func(string) error { return nil }
	}

	ref := ResolveRef(task, execution)
	key := Key(string(repo.Provider), repo.Slug, ref)
	dir := filepath.Join(m.root, key)
	auth := NewAuthURL(repo.Provider, repo.CloneURL, execution.Robot.Token)
	logger := m.logger.With(slog.String("taskId", task.ID), slog.String("workspace", key))

	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}

	if exists(filepath.Join(dir, ".git")) {
		if err := m.refresh(ctx, dir, auth, sink); err != nil {
			logger.Warn("workspace refresh failed, recloning", slog.String("error", redact.Error(err)))
			_ = sink("Refreshing workspace failed, recloning: " + redact.Error(err))
			if err := os.RemoveAll(dir); err != nil {
				return nil, fmt.Errorf("remove stale workspace: %w", err)
			}
			if err := m.clone(ctx, dir, auth, ref, sink); err != nil {
				return nil, err
			}
		}
	} else {
		if err := os.RemoveAll(dir); err != nil {
			return nil, fmt.Errorf("remove partial workspace: %w", err)
		}
		if err := m.clone(ctx, dir, auth, ref, sink); err != nil {
			return nil, err
		}
	}

	if ref != "" {
		m.checkout(ctx, dir, ref, sink, logger)
	}

	return &Prepared{Dir: dir, Key: key, CheckoutRef: ref, Remote: auth}, nil
}

func (m *Manager) refresh(ctx context.Context, dir string, auth AuthURL, sink runner.Sink) error {
	_ = sink("Updating workspace from " + auth.Display)
	if err := m.git(ctx, dir, sink, "remote", "set-url", "origin", auth.Exec); err != nil {
		return err
	}
	return m.git(ctx, dir, sink, "fetch", "--prune", "origin")
}

func (m *Manager) clone(ctx context.Context, dir string, auth AuthURL, ref string, sink runner.Sink) error {
	if ref != "" {
		_ = sink(fmt.Sprintf("Cloning %s (branch %s)", auth.Display, ref))
		err := m.git(ctx, "", sink, "clone", "--branch", ref, "--", auth.Exec, dir)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		// The branch may not exist on the remote yet.
		_ = sink(fmt.Sprintf("Branch %s not cloneable, falling back to default branch: %s", ref, redact.Error(err)))
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("remove failed clone: %w", err)
		}
	}
	_ = sink("Cloning " + auth.Display)
	if err := m.git(ctx, "", sink, "clone", "--", auth.Exec, dir); err != nil {
		return fmt.Errorf("clone %s: %w", auth.Display, err)
	}
	return nil
}

func (m *Manager) checkout(ctx context.Context, dir string, ref string, sink runner.Sink, logger *slog.Logger) {
	if err := m.git(ctx, dir, sink, "checkout", ref); err != nil {
		logger.Warn("checkout failed", slog.String("ref", ref), slog.String("error", redact.Error(err)))
		_ = sink(fmt.Sprintf("Checkout of %s failed, continuing: %s", ref, redact.Error(err)))
		return
	}
	if err := m.git(ctx, dir, sink, "pull", "--no-rebase", "origin", ref); err != nil {
		logger.Warn("pull failed", slog.String("ref", ref), slog.String("error", redact.Error(err)))
		_ = sink(fmt.Sprintf("Pull of %s failed, continuing: %s", ref, redact.Error(err)))
	}
}

func (m *Manager) git(ctx context.Context, dir string, sink runner.Sink, args ...string) error {
	full := args
	if dir != "" {
		full = append([]string{"-C", dir}, args...)
	}
	command := runner.Join(append([]string{"git"}, full...)...)
	return m.runner.Run(ctx, command, runner.Options{Sink: sink})
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || !errors.Is(err, os.ErrNotExist)
}
