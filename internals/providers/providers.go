// Package providers dispatches a prepared task to the coding agent CLI
// selected by the robot.
package providers

import (
	"context"
	"errors"
	"sync"

	"github.com/hookvibe/hookcode-sub000/internals/credentials"
	"github.com/hookvibe/hookcode-sub000/internals/runner"
	"github.com/hookvibe/hookcode-sub000/internals/schemas"
)

// Input is everything an executor needs for one run.
type Input struct {
	RepoDir         string
	PromptFile      string
	Model           string
	Sandbox         schemas.Sandbox
	ResumeSessionID string
	Credential      credentials.Credential
	OutputFile      string
	Env             map[string]string
	Redact          func(string) string
	Sink            runner.Sink
}

type Output struct {
	SessionID     string
	FinalResponse string
}

type Executor interface {
	Provider() schemas.ModelProvider
	Execute(ctx context.Context, in Input) (Output, error)
}

var ErrUnknownProvider = errors.New("unknown model provider")

type Registry struct {
	mu        sync.RWMutex
	executors map[schemas.ModelProvider]Executor
}

func NewRegistry(executors ...Executor) *Registry {
	registry := &Registry{executors: map[schemas.ModelProvider]Executor{}}
	for _, executor := range executors {
		registry.Register(executor)
	}
	return registry
}

func (r *Registry) Register(executor Executor) {
	if r == nil || executor == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[executor.Provider()] = executor
}

func (r *Registry) Get(provider schemas.ModelProvider) (Executor, error) {
	if r == nil {
		return nil, ErrUnknownProvider
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	executor, ok := r.executors[provider]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return executor, nil
}

var AllProviders = []schemas.ModelProvider{
	schemas.ModelProviderCodex,
	schemas.ModelProviderClaude,
	schemas.ModelProviderGeminiCLI,
}

// DefaultRegistry registers the CLI executors for every known provider.
func DefaultRegistry(r *runner.Runner) *Registry {
	registry := NewRegistry()
	for _, provider := range AllProviders {
		registry.Register(NewCLI(provider, r))
	}
	return registry
}
