// Package orchestrator runs one task end to end: resolve, prepare the
// workspace, configure the git workflow, dispatch the agent and report.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/hookvibe/hookcode-sub000/internals/agentstream"
	"github.com/hookvibe/hookcode-sub000/internals/logbuf"
	"github.com/hookvibe/hookcode-sub000/internals/providers"
	"github.com/hookvibe/hookcode-sub000/internals/redact"
	"github.com/hookvibe/hookcode-sub000/internals/schemas"
)

// AgentExecutionError is the single error CallAgent returns on failure.
// Message, Logs and the message of the unwrapped error are redacted; only
// Cause keeps the original error.
type AgentExecutionError struct {
	TaskID  string
	Message string
	// Logs is the buffered log snapshot and LogsSeq the number of lines
	// ever appended, so LogsSeq > len(Logs) means older lines were dropped.
	Logs    []string
	LogsSeq uint64
	// ProviderCommentURL is the failure comment, when one was posted.
	ProviderCommentURL string
	// Retry is set when the failure was not final and the attempt may run
	// again; no failure comment is posted then.
	Retry bool
	Cause error
}

func (e *AgentExecutionError) Error() string {
	return fmt.Sprintf("task %s failed: %s", e.TaskID, e.Message)
}

// Unwrap keeps errors.Is and errors.As working on the cause while its
// message stays redacted.
func (e *AgentExecutionError) Unwrap() error {
	if e.Cause == nil {
		return nil
	}
	return redactedError{cause: e.Cause}
}

type redactedError struct {
	cause error
}

func (e redactedError) Error() string { return redact.Error(e.cause) }

func (e redactedError) Unwrap() error { return e.cause }

type Outcome struct {
	TaskID     string
	SessionID  string
	OutputText string
	Workflow   schemas.GitWorkflowResult
	CommentURL string
	Usage      schemas.TokenUsage
}

type Orchestrator struct {
	deps   Deps
	logger *slog.Logger
}

func New(deps Deps) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if deps.Reporter == nil {
		deps.Reporter = PlatformReporter{}
	}
	return &Orchestrator{deps: deps, logger: logger}
}

// run carries the state of one CallAgent invocation.
type run struct {
	task      *schemas.Task
	execution *schemas.ExecutionContext
	pipeline  *logbuf.Pipeline
	logger    *slog.Logger
	final     bool
	// caller is the context handed in, before the execution timeout.
	caller context.Context
}

// CallAgent runs the task as its last attempt.
func (o *Orchestrator) CallAgent(ctx context.Context, taskID string) (*Outcome, error) {
	return o.Attempt(ctx, taskID, true)
}

// Attempt runs the task once. When final is false, a failure that is neither
// a configuration error nor caused by the caller's cancellation comes back
// with Retry set and without a failure comment.
func (o *Orchestrator) Attempt(ctx context.Context, taskID string, final bool) (*Outcome, error) {
	caller := ctx
	if o.deps.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.deps.Timeout)
		defer cancel()
	}
	logger := o.logger.With(slog.String("taskId", taskID))

	task, err := o.deps.Store.Get(ctx, taskID)
	if err != nil {
		logger.Error("failed to load task", slog.String("error", redact.Error(err)))
		return nil, &AgentExecutionError{TaskID: taskID, Message: redact.Error(err), Cause: err}
	}

	r := &run{task: task, logger: logger, final: final, caller: caller}
	if task.Result.Error != "" {
		cleared := ""
		o.patch(ctx, r, schemas.ResultPatch{Error: &cleared})
	}
	r.pipeline = logbuf.New(task.ID, o.deps.Store, logbuf.Options{
		MaxLines:        o.deps.MaxLogLines,
		PersistCooldown: o.deps.PersistCooldown,
		Logger:          logger,
		OnSession: func(ctx context.Context, sessionID string) error {
			return o.deps.Store.BindGroupSession(ctx, task.GroupID, sessionID)
		},
	})
	o.deps.Hub.Register(r.pipeline)
	defer o.deps.Hub.Unregister(task.ID)
	ctx = logbuf.WithContext(ctx, r.pipeline)

	outcome, err := o.execute(ctx, r)
	if err != nil {
		return nil, o.fail(ctx, r, err)
	}
	return outcome, nil
}

func (o *Orchestrator) execute(ctx context.Context, r *run) (*Outcome, error) {
	task := r.task
	sink := r.pipeline.Sink(ctx, false)
	r.pipeline.Append(ctx, fmt.Sprintf("Task %s started (event %s)", task.ID, task.EventType))

	execution, err := o.deps.Resolver.Resolve(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("resolve task: %w", err)
	}
	r.execution = execution
	r.pipeline.SetDecoder(agentstream.For(execution.Robot.ModelProvider))

	prepared, err := o.deps.Workspaces.Prepare(ctx, task, execution, sink)
	if err != nil {
		return nil, fmt.Errorf("prepare workspace: %w", err)
	}

	workflow := o.deps.Workflows.Configure(ctx, task, execution, prepared.Dir, sink)
	o.patch(ctx, r, schemas.ResultPatch{RepoWorkflow: &workflow})

	prompt, err := o.deps.Prompts.Build(ctx, task, execution)
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}

	scratch, err := os.MkdirTemp(o.deps.ScratchDir, "task-"+task.ID+"-")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)
	promptFile := filepath.Join(scratch, "prompt.md")
	if err := os.WriteFile(promptFile, []byte(prompt), 0o600); err != nil {
		return nil, fmt.Errorf("write prompt: %w", err)
	}

	resume, err := o.deps.Store.LookupGroupSession(ctx, task.GroupID)
	if err != nil {
		r.logger.Warn("failed to look up group session", slog.String("error", redact.Error(err)))
		resume = ""
	}
	if resume != "" {
		r.pipeline.Append(ctx, "Resuming session "+resume)
	}

	output, err := o.deps.Dispatcher.Dispatch(ctx, execution, providers.Request{
		RepoDir:         prepared.Dir,
		PromptFile:      promptFile,
		OutputFile:      filepath.Join(scratch, "output.txt"),
		ResumeSessionID: resume,
		Sink:            r.pipeline.Sink(ctx, true),
	})
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", execution.Robot.ModelProvider, err)
	}

	sessionID := output.SessionID
	if sessionID == "" {
		sessionID = r.pipeline.SessionID()
	}
	if sessionID != "" && sessionID != resume {
		if err := o.deps.Store.BindGroupSession(ctx, task.GroupID, sessionID); err != nil {
			r.logger.Warn("failed to bind group session", slog.String("error", redact.Error(err)))
		}
	}

	text := output.FinalResponse
	if text == "" {
		text = r.pipeline.LastText()
	}
	text = redact.String(text)
	o.patch(ctx, r, schemas.ResultPatch{OutputText: &text})

	outcome := &Outcome{
		TaskID:     task.ID,
		SessionID:  sessionID,
		OutputText: text,
		Workflow:   workflow,
		Usage:      r.pipeline.Usage(),
	}
	outcome.CommentURL = o.report(ctx, r, text)
	r.pipeline.Append(ctx, "Task finished")
	return outcome, nil
}

// report posts the agent's answer. Failures are logged only.
func (o *Orchestrator) report(ctx context.Context, r *run, text string) string {
	if r.task.SkipProviderPost || strings.TrimSpace(text) == "" {
		return ""
	}
	url, err := o.deps.Reporter.Post(ctx, r.task, r.execution, text)
	if err != nil {
		r.logger.Warn("failed to post result", slog.String("error", redact.Error(err)))
		r.pipeline.Append(ctx, "Posting result failed: "+redact.Error(err))
		return ""
	}
	o.patch(ctx, r, schemas.ResultPatch{ProviderCommentURL: &url})
	return url
}

func (o *Orchestrator) fail(ctx context.Context, r *run, cause error) error {
	message := redact.Error(cause)
	config := errors.Is(cause, schemas.ErrConfiguration)
	retry := !r.final && !config && r.caller.Err() == nil
	r.logger.Error("task failed", slog.String("error", message), slog.Bool("config", config), slog.Bool("retry", retry))

	// Everything below must still be recorded after a timeout.
	reportCtx := context.WithoutCancel(ctx)
	if retry {
		r.pipeline.Append(reportCtx, "Task failed, will retry: "+message)
	} else {
		r.pipeline.Append(reportCtx, "Task failed: "+message)
	}
	if err := r.pipeline.Flush(reportCtx); err != nil {
		r.logger.Warn("failed to persist task logs", slog.String("error", redact.Error(err)))
	}

	lines, seq := r.pipeline.Snapshot()
	agentErr := &AgentExecutionError{TaskID: r.task.ID, Message: message, Logs: lines, LogsSeq: seq, Retry: retry, Cause: cause}
	if !r.task.SkipProviderPost && !retry {
		body := FailureBody(ConsoleURL(o.deps.ConsoleBaseURL, r.task.ID), message, lines)
		url, err := o.deps.Reporter.Post(reportCtx, r.task, r.execution, body)
		if err != nil {
			r.logger.Warn("failed to post failure comment", slog.String("error", redact.Error(err)))
		} else {
			r.logger.Info("posted failure comment", slog.String("url", url))
			agentErr.ProviderCommentURL = url
			o.patch(reportCtx, r, schemas.ResultPatch{ProviderCommentURL: &url})
		}
	}
	o.patch(reportCtx, r, schemas.ResultPatch{Error: &message})
	return agentErr
}

func (o *Orchestrator) patch(ctx context.Context, r *run, patch schemas.ResultPatch) {
	if err := o.deps.Store.PatchResult(ctx, r.task.ID, patch); err != nil {
		r.logger.Warn("failed to persist task result", slog.String("error", redact.Error(err)))
	}
}
