// Package gitflow decides between pushing straight to the upstream
// repository and pushing to a robot-owned fork, and wires the workspace's
// remotes and push guard accordingly.
package gitflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/hookvibe/hookcode-sub000/internals/redact"
	"github.com/hookvibe/hookcode-sub000/internals/remote"
	"github.com/hookvibe/hookcode-sub000/internals/runner"
	"github.com/hookvibe/hookcode-sub000/internals/schemas"
	"github.com/hookvibe/hookcode-sub000/internals/workspace"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultForkDeadline = 60 * time.Second
)

var errForkNotReady = errors.New("fork is not ready yet")

var pushRoles = map[remote.Provider][]string{
	remote.ProviderGitHub: {"admin", "maintain", "write"},
	remote.ProviderGitLab: {"owner", "maintainer", "developer"},
}

// RoleAllowsPush reports whether a token role may push to the upstream
// repository directly.
func RoleAllowsPush(provider remote.Provider, role string) bool {
	role = strings.ToLower(strings.TrimSpace(role))
	for _, allowed := range pushRoles[provider] {
		if role == allowed {
			return true
		}
	}
	return false
}

type Options struct {
	PollInterval time.Duration
	ForkDeadline time.Duration
}

type Configurer struct {
	runner *runner.Runner
	logger *slog.Logger
	opts   Options
}

func NewConfigurer(r *runner.Runner, logger *slog.Logger, opts Options) *Configurer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.ForkDeadline <= 0 {
		opts.ForkDeadline = DefaultForkDeadline
	}
	return &Configurer{runner: r, logger: logger, opts: opts}
}

// Configure never fails: every problem is logged and the workflow degrades
// to direct.
func (c *Configurer) Configure(ctx context.Context, task *schemas.Task, execution *schemas.ExecutionContext, dir string, sink runner.Sink) schemas.GitWorkflowResult {
	if sink == nil {
		sink = func(string) error { return nil }
	}
	provider := execution.Provider()
	robot := execution.Robot
	repo := execution.Repository
	result := schemas.GitWorkflowResult{
		Mode:     schemas.WorkflowDirect,
		Provider: provider,
		Upstream: execution.Upstream(),
	}
	logger := c.logger.With(slog.String("taskId", task.ID), slog.String("repo", repo.Slug))
	degrade := func(reason string, err error) schemas.GitWorkflowResult {
		msg := reason
		if err != nil {
			msg = reason + ": " + redact.Error(err)
		}
		logger.Warn("git workflow degraded to direct", slog.String("reason", msg))
		_ = sink("Git workflow: " + msg + "; using direct mode")
		return result
	}

	if !robot.CanWrite() {
		_ = sink("Git workflow: read-only robot, direct mode")
		return result
	}

	if robot.GitIdentity.Valid() {
		if err := c.git(ctx, dir, sink, "config", "--local", "user.name", robot.GitIdentity.Name); err != nil {
			logger.Warn("failed to set git user.name", slog.String("error", redact.Error(err)))
		}
		if err := c.git(ctx, dir, sink, "config", "--local", "user.email", robot.GitIdentity.Email); err != nil {
			logger.Warn("failed to set git user.email", slog.String("error", redact.Error(err)))
		}
	}

	upstreamAuth := workspace.NewAuthURL(provider, repo.CloneURL, robot.Token)
	if err := c.git(ctx, dir, sink, "remote", "set-url", "--push", "origin", upstreamAuth.Exec); err != nil {
		return degrade("failed to set upstream push URL", err)
	}
	if err := c.installGuard(ctx, dir, repo.CloneURL, repo.CloneURL, sink); err != nil {
		logger.Warn("failed to install push guard", slog.String("error", redact.Error(err)))
		_ = sink("Push guard install failed: " + redact.Error(err))
	}

	if RoleAllowsPush(provider, robot.RepoRole) {
		_ = sink(fmt.Sprintf("Git workflow: role %q can push, direct mode", robot.RepoRole))
		return result
	}

	client := execution.Client()
	if client == nil {
		return degrade(fmt.Sprintf("no %s client available for fork lookup", provider), nil)
	}

	_ = sink(fmt.Sprintf("Git workflow: role %q cannot push to %s, using a fork", robot.RepoRole, repo.Slug))
	fork, err := c.locateFork(ctx, client, repo.Slug, sink)
	if err != nil {
		return degrade("fork unavailable", err)
	}
	if fork.CloneURL == "" {
		return degrade("fork clone URL unknown", nil)
	}

	forkAuth := workspace.NewAuthURL(provider, fork.CloneURL, robot.Token)
	if err := c.git(ctx, dir, sink, "remote", "set-url", "--push", "origin", forkAuth.Exec); err != nil {
		return degrade("failed to set fork push URL", err)
	}
	if err := c.installGuard(ctx, dir, repo.CloneURL, fork.CloneURL, sink); err != nil {
		logger.Warn("failed to re-install push guard", slog.String("error", redact.Error(err)))
		_ = sink("Push guard install failed: " + redact.Error(err))
	}

	result.Mode = schemas.WorkflowFork
	result.Fork = &schemas.RepoDescriptor{Slug: fork.Slug, WebURL: fork.WebURL, CloneURL: fork.CloneURL}
	_ = sink("Git workflow: pushing to fork " + forkAuth.Display)
	return result
}

func (c *Configurer) locateFork(ctx context.Context, client remote.Client, upstreamSlug string, sink runner.Sink) (*remote.Repo, error) {
	existing, err := client.FindFork(ctx, upstreamSlug)
	if err != nil {
		return nil, fmt.Errorf("find fork: %w", err)
	}
	if existing != nil {
		_ = sink("Using existing fork " + existing.Slug)
		return existing, nil
	}

	created, err := client.CreateFork(ctx, upstreamSlug)
	if err != nil {
		return nil, err
	}
	if created != nil && created.Ready && created.CloneURL != "" {
		return created, nil
	}
	_ = sink("Waiting for fork of " + upstreamSlug + " to become available")

	var ready *remote.Repo
	backoff := retry.WithMaxDuration(c.opts.ForkDeadline, retry.NewConstant(c.opts.PollInterval))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		var repo *remote.Repo
		var err error
		if created != nil && created.Slug != "" {
			repo, err = client.GetRepo(ctx, created.Slug)
		} else {
			repo, err = client.FindFork(ctx, upstreamSlug)
			if err == nil && repo == nil {
				err = remote.ErrNotFound
			}
		}
		if err != nil {
			return retry.RetryableError(err)
		}
		if !repo.Ready {
			return retry.RetryableError(errForkNotReady)
		}
		ready = repo
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("wait for fork: %w", err)
	}
	return ready, nil
}

func (c *Configurer) installGuard(ctx context.Context, dir string, upstreamURL string, pushURL string, sink runner.Sink) error {
	if err := c.git(ctx, dir, sink, "config", "--local", UpstreamURLKey, NormalizeRemoteURL(upstreamURL)); err != nil {
		return err
	}
	if err := c.git(ctx, dir, sink, "config", "--local", PushURLKey, NormalizeRemoteURL(pushURL)); err != nil {
		return err
	}
	return writePushGuard(dir)
}

func (c *Configurer) git(ctx context.Context, dir string, sink runner.Sink, args ...string) error {
	command := runner.Join(append([]string{"git", "-C", dir}, args...)...)
	return c.runner.Run(ctx, command, runner.Options{Sink: sink})
}
