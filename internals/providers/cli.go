package providers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/hookvibe/hookcode-sub000/internals/agentstream"
	"github.com/hookvibe/hookcode-sub000/internals/runner"
	"github.com/hookvibe/hookcode-sub000/internals/schemas"
)

// command describes how one agent CLI is invoked.
type command struct {
	binary     string
	keyEnv     string
	baseURLEnv string
	args       func(in Input) []string
}

var commands = map[schemas.ModelProvider]command{
	schemas.ModelProviderCodex: {
		binary:     "codex",
		keyEnv:     "OPENAI_API_KEY",
		baseURLEnv: "OPENAI_BASE_URL",
		args:       codexArgs,
	},
	schemas.ModelProviderClaude: {
		binary:     "claude",
		keyEnv:     "ANTHROPIC_API_KEY",
		baseURLEnv: "ANTHROPIC_BASE_URL",
		args:       claudeArgs,
	},
	schemas.ModelProviderGeminiCLI: {
		binary:     "gemini",
		keyEnv:     "GEMINI_API_KEY",
		baseURLEnv: "GOOGLE_GEMINI_BASE_URL",
		args:       geminiArgs,
	},
}

func codexArgs(in Input) []string {
	args := []string{"exec", "--json", "--skip-git-repo-check", "--sandbox", string(in.Sandbox)}
	if in.Model != "" {
		args = append(args, "--model", in.Model)
	}
	if in.OutputFile != "" {
		args = append(args, "--output-last-message", in.OutputFile)
	}
	if in.ResumeSessionID != "" {
		args = append(args, "resume", in.ResumeSessionID)
	}
	return append(args, "-")
}

func claudeArgs(in Input) []string {
	args := []string{"--print", "--output-format", "stream-json", "--verbose"}
	if in.Model != "" {
		args = append(args, "--model", in.Model)
	}
	switch in.Sandbox {
	case schemas.SandboxFullAccess:
		args = append(args, "--dangerously-skip-permissions")
	case schemas.SandboxWorkspaceWrite:
		args = append(args, "--permission-mode", "acceptEdits")
	default:
		args = append(args, "--permission-mode", "plan")
	}
	if in.ResumeSessionID != "" {
		args = append(args, "--resume", in.ResumeSessionID)
	}
	return args
}

func geminiArgs(in Input) []string {
	args := []string{"--output-format", "stream-json"}
	if in.Model != "" {
		args = append(args, "--model", in.Model)
	}
	switch in.Sandbox {
	case schemas.SandboxFullAccess:
		args = append(args, "--approval-mode", "yolo")
	case schemas.SandboxWorkspaceWrite:
		args = append(args, "--approval-mode", "auto_edit")
	default:
		args = append(args, "--approval-mode", "default")
	}
	if in.ResumeSessionID != "" {
		args = append(args, "--resume", in.ResumeSessionID)
	}
	return args
}

// CLI runs an agent binary through the command runner, feeding the prompt
// file on stdin and decoding its JSON event stream.
type CLI struct {
	provider schemas.ModelProvider
	command  command
	runner   *runner.Runner
}

func NewCLI(provider schemas.ModelProvider, r *runner.Runner) *CLI {
	return &CLI{provider: provider, command: commands[provider], runner: r}
}

func (c *CLI) Provider() schemas.ModelProvider {
	return c.provider
}

// CommandLine renders the shell command for in, including stdin redirection.
func (c *CLI) CommandLine(in Input) string {
	argv := append([]string{c.command.binary}, c.command.args(in)...)
	line := runner.Join(argv...)
	if in.PromptFile != "" {
		line += " < " + runner.Join(in.PromptFile)
	}
	return line
}

func (c *CLI) Execute(ctx context.Context, in Input) (Output, error) {
	if c.command.binary == "" {
		return Output{}, schemas.NewConfigError("no command line known for provider %q", c.provider)
	}
	env := map[string]string{}
	for key, value := range in.Env {
		env[key] = value
	}
	env[c.command.keyEnv] = in.Credential.APIKey
	if in.Credential.APIBaseURL != "" && c.command.baseURLEnv != "" {
		env[c.command.baseURLEnv] = in.Credential.APIBaseURL
	}

	decoder := agentstream.For(c.provider)
	var (
		mu        sync.Mutex
		sessionID string
		lastText  string
	)
	sink := func(line string) error {
		event := decoder.Decode(line)
		mu.Lock()
		if event.SessionID != "" && sessionID == "" {
			sessionID = event.SessionID
		}
		if event.Text != "" {
			lastText = event.Text
		}
		mu.Unlock()
		if in.Sink == nil {
			return nil
		}
		return in.Sink(line)
	}

	runErr := c.runner.Run(ctx, c.CommandLine(in), runner.Options{Dir: in.RepoDir, Env: env, Sink: sink})

	mu.Lock()
	out := Output{SessionID: sessionID, FinalResponse: lastText}
	mu.Unlock()
	if out.SessionID == "" {
		out.SessionID = in.ResumeSessionID
	}
	if text, err := readOutputFile(in.OutputFile); err == nil && text != "" {
		out.FinalResponse = text
	}
	if in.Redact != nil {
		out.FinalResponse = in.Redact(out.FinalResponse)
	}

	if runErr != nil {
		return out, fmt.Errorf("%s run failed: %w", c.provider, runErr)
	}
	return out, nil
}

func readOutputFile(path string) (string, error) {
	if path == "" {
		return "", os.ErrNotExist
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		return "", fmt.Errorf("failed to read output file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
