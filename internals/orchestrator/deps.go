package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/hookvibe/hookcode-sub000/internals/logbuf"
	"github.com/hookvibe/hookcode-sub000/internals/providers"
	"github.com/hookvibe/hookcode-sub000/internals/runner"
	"github.com/hookvibe/hookcode-sub000/internals/schemas"
	"github.com/hookvibe/hookcode-sub000/internals/workspace"
)

type TaskStore interface {
	Get(ctx context.Context, id string) (*schemas.Task, error)
	PatchResult(ctx context.Context, taskID string, patch schemas.ResultPatch) error
	LookupGroupSession(ctx context.Context, groupID string) (string, error)
	BindGroupSession(ctx context.Context, groupID string, threadID string) error
}

// Resolver loads the repository, robot, platform clients and credential
// stores a task runs with.
type Resolver interface {
	Resolve(ctx context.Context, task *schemas.Task) (*schemas.ExecutionContext, error)
}

type PromptBuilder interface {
	Build(ctx context.Context, task *schemas.Task, execution *schemas.ExecutionContext) (string, error)
}

type Workspaces interface {
	Prepare(ctx context.Context, task *schemas.Task, execution *schemas.ExecutionContext, sink runner.Sink) (*workspace.Prepared, error)
}

type Workflows interface {
	Configure(ctx context.Context, task *schemas.Task, execution *schemas.ExecutionContext, dir string, sink runner.Sink) schemas.GitWorkflowResult
}

type Dispatcher interface {
	Dispatch(ctx context.Context, execution *schemas.ExecutionContext, req providers.Request) (providers.Output, error)
}

// Reporter posts a comment about the task back to the hosting platform.
type Reporter interface {
	Post(ctx context.Context, task *schemas.Task, execution *schemas.ExecutionContext, body string) (string, error)
}

// Deps is built once at process start and shared by every call.
type Deps struct {
	Store      TaskStore
	Resolver   Resolver
	Prompts    PromptBuilder
	Workspaces Workspaces
	Workflows  Workflows
	Dispatcher Dispatcher
	Reporter   Reporter
	Hub        *logbuf.Hub
	Logger     *slog.Logger

	ConsoleBaseURL  string
	ScratchDir      string
	Timeout         time.Duration
	MaxLogLines     int
	PersistCooldown time.Duration
}
