package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/hookvibe/hookcode-sub000/internals/catalog"
	"github.com/hookvibe/hookcode-sub000/internals/conf"
	"github.com/hookvibe/hookcode-sub000/internals/env"
	"github.com/hookvibe/hookcode-sub000/internals/gitflow"
	"github.com/hookvibe/hookcode-sub000/internals/logbuf"
	"github.com/hookvibe/hookcode-sub000/internals/orchestrator"
	"github.com/hookvibe/hookcode-sub000/internals/prompt"
	"github.com/hookvibe/hookcode-sub000/internals/providers"
	"github.com/hookvibe/hookcode-sub000/internals/remote"
	"github.com/hookvibe/hookcode-sub000/internals/runner"
	"github.com/hookvibe/hookcode-sub000/internals/schemas"
	"github.com/hookvibe/hookcode-sub000/internals/store"
	"github.com/hookvibe/hookcode-sub000/internals/tasky"
	"github.com/hookvibe/hookcode-sub000/internals/workspace"
)

// BaseServer owns every long-lived component of the daemon.
type BaseServer struct {
	Config       *conf.Config
	Env          *env.EnvStruct
	Logger       *slog.Logger
	Store        *store.Store
	Catalog      *catalog.Catalog
	Hub          *logbuf.Hub
	Orchestrator *orchestrator.Orchestrator
	TaskQueue    *tasky.Queue[Jobs]

	closeQueue func() error
	retryDelay func(attempts int) time.Duration
	now        func() time.Time
}

type Options struct {
	Config *conf.Config
	Env    *env.EnvStruct
	Logger *slog.Logger
	// Catalog overrides the catalog file named in Config.
	Catalog *catalog.Catalog
	// Registry overrides the provider executors.
	Registry *providers.Registry
	// RetryDelay overrides the queue backoff.
	RetryDelay func(attempts int) time.Duration
}

func New(ctx context.Context, opts Options) (*BaseServer, error) {
	config := opts.Config
	if config == nil {
		return nil, errors.New("config is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	scratchDir := filepath.Join(config.Server.DataDir, "scratch")
	for _, dir := range []string{config.Server.DataDir, config.Workspaces.Dir, scratchDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	cat := opts.Catalog
	if cat == nil {
		loaded, err := catalog.Load(config.Catalog.Path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, err
			}
			logger.Warn("catalog not found, starting empty", slog.String("path", config.Catalog.Path))
			loaded, _ = catalog.FromFile(catalog.File{})
		}
		cat = loaded
	}

	prompts, err := prompt.New(config.Prompt.TemplatePath)
	if err != nil {
		return nil, err
	}

	db, err := store.Open(ctx, config.DBPath())
	if err != nil {
		return nil, err
	}

	r := runner.New(logger)
	registry := opts.Registry
	if registry == nil {
		registry = providers.DefaultRegistry(r)
	}
	hub := logbuf.NewHub()

	base := &BaseServer{
		Config:  config,
		Env:     opts.Env,
		Logger:  logger,
		Store:   db,
		Catalog: cat,
		Hub:     hub,
		now:     time.Now,

		retryDelay: opts.RetryDelay,
	}
	base.Orchestrator = orchestrator.New(orchestrator.Deps{
		Store: db,
		Resolver: catalog.NewResolver(cat, map[remote.Provider]string{
			remote.ProviderGitHub: config.Providers.GitHub.APIBaseURL,
			remote.ProviderGitLab: config.Providers.GitLab.APIBaseURL,
		}),
		Prompts:    prompts,
		Workspaces: workspace.NewManager(config.Workspaces.Dir, r, logger),
		Workflows: gitflow.NewConfigurer(r, logger, gitflow.Options{
			PollInterval: config.ForkPollInterval(),
			ForkDeadline: config.ForkDeadline(),
		}),
		Dispatcher:      providers.NewDispatcher(registry, logger),
		Hub:             hub,
		Logger:          logger,
		ConsoleBaseURL:  config.Server.ConsoleBaseURL,
		ScratchDir:      scratchDir,
		Timeout:         config.ExecutionTimeout(),
		MaxLogLines:     config.Logs.MaxLines,
		PersistCooldown: config.PersistCooldown(),
	})

	if err := base.initQueue(); err != nil {
		db.Close()
		return nil, err
	}
	return base, nil
}

// CreateTask stores a validated console request as a queued task and
// enqueues it.
func (b *BaseServer) CreateTask(ctx context.Context, request schemas.TaskCreateRequest) (*schemas.Task, error) {
	task := request.NewTask(uuid.Must(uuid.NewV7()).String(), b.now().UTC())
	if err := b.Store.Create(ctx, task); err != nil {
		return nil, err
	}
	if err := b.EnqueueTask(ctx, task.ID); err != nil {
		return nil, err
	}
	return task, nil
}

// ConsoleURL is where a human can inspect the task.
func (b *BaseServer) ConsoleURL(taskID string) string {
	return orchestrator.ConsoleURL(b.Config.Server.ConsoleBaseURL, taskID)
}

func (b *BaseServer) Close() error {
	var errs []error
	if b.closeQueue != nil {
		errs = append(errs, b.closeQueue())
	}
	if b.Store != nil {
		errs = append(errs, b.Store.Close())
	}
	return errors.Join(errs...)
}
