package providers

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/hookvibe/hookcode-sub000/internals/credentials"
	"github.com/hookvibe/hookcode-sub000/internals/redact"
	"github.com/hookvibe/hookcode-sub000/internals/runner"
	"github.com/hookvibe/hookcode-sub000/internals/schemas"
)

type Request struct {
	RepoDir         string
	PromptFile      string
	OutputFile      string
	ResumeSessionID string
	Sink            runner.Sink
}

type Dispatcher struct {
	registry *Registry
	logger   *slog.Logger
}

func NewDispatcher(registry *Registry, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Dispatcher{registry: registry, logger: logger}
}

func (d *Dispatcher) Dispatch(ctx context.Context, execution *schemas.ExecutionContext, req Request) (Output, error) {
	robot := execution.Robot
	provider := robot.ModelProvider
	executor, err := d.registry.Get(provider)
	if err != nil {
		return Output{}, schemas.NewConfigError("robot %q uses unsupported model provider %q", robot.ID, provider)
	}

	cred, err := credentials.Resolve(provider, robot, execution.UserCredentials, execution.RepoCredentials)
	if err != nil {
		emit(req.Sink, "[provider] "+err.Error())
		return Output{}, err
	}

	sandbox := robot.Model.Sandbox
	if sandbox == "" {
		sandbox = schemas.SandboxReadOnly
	}
	env := map[string]string{}
	if sandbox.AllowsWrite() {
		if !robot.GitIdentity.Valid() {
			return Output{}, schemas.NewConfigError("robot %q needs a git identity to run with sandbox %q", robot.ID, sandbox)
		}
		env["GIT_AUTHOR_NAME"] = robot.GitIdentity.Name
		env["GIT_AUTHOR_EMAIL"] = robot.GitIdentity.Email
		env["GIT_COMMITTER_NAME"] = robot.GitIdentity.Name
		env["GIT_COMMITTER_EMAIL"] = robot.GitIdentity.Email
	}

	emit(req.Sink, fmt.Sprintf("[provider] %s model=%s sandbox=%s credentials=%s", provider, robot.Model.Model, sandbox, cred.Describe()))
	d.logger.Info("Dispatching provider",
		slog.String("provider", string(provider)),
		slog.String("robotId", robot.ID),
		slog.Bool("resume", req.ResumeSessionID != ""),
	)

	return executor.Execute(ctx, Input{
		RepoDir:         req.RepoDir,
		PromptFile:      req.PromptFile,
		Model:           robot.Model.Model,
		Sandbox:         sandbox,
		ResumeSessionID: req.ResumeSessionID,
		Credential:      cred,
		OutputFile:      req.OutputFile,
		Env:             env,
		Redact:          redact.String,
		Sink:            req.Sink,
	})
}

func emit(sink runner.Sink, line string) {
	if sink != nil {
		_ = sink(line)
	}
}
