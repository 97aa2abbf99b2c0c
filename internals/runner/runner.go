// Package runner executes shell commands and streams their redacted output,
// one line at a time, to a caller supplied sink.
package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
	"golang.org/x/sync/errgroup"

	"github.com/hookvibe/hookcode-sub000/internals/redact"
)

// Sink receives every output line in production order.
type Sink func(line string) error

type Options struct {
	Dir  string
	Env  map[string]string
	Sink Sink
}

const (
	tailLines   = 20
	lineBacklog = 256
	waitDelay   = 2 * time.Second
)

type commandFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

var execCommand commandFunc = exec.CommandContext

// ExitError is returned when the command exits non-zero.
type ExitError struct {
	Code    int
	Command string
	Tail    []string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("command failed with exit code %d: %s", e.Code, e.Command)
	if len(e.Tail) > 0 {
		msg += "\n" + strings.Join(e.Tail, "\n")
	}
	return msg
}

type Runner struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Runner{logger: logger}
}

// Join quotes args so the result survives "sh -c" unchanged.
func Join(args ...string) string {
	return shellquote.Join(args...)
}

// Run executes command through "sh -c". stdout and stderr are read
// concurrently but delivered to the sink by a single consumer.
func (r *Runner) Run(ctx context.Context, command string, opts Options) error {
	display := redact.String(command)
	cmd := execCommand(ctx, "sh", "-c", command)
	cmd.Dir = opts.Dir
	cmd.Env = mergeEnv(os.Environ(), opts.Env)
	cmd.WaitDelay = waitDelay

	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		_ = stdoutW.Close()
		_ = stderrW.Close()
		return fmt.Errorf("start %s: %w", display, err)
	}

	lines := make(chan string, lineBacklog)
	tail := newRing(tailLines)
	consumed := make(chan struct{})
	go func() {
		defer close(consumed)
		for line := range lines {
			tail.push(line)
			if opts.Sink == nil {
				continue
			}
			if err := opts.Sink(line); err != nil {
				r.logger.Warn("log sink failed", slog.String("command", display), slog.String("error", redact.Error(err)))
			}
		}
	}()

	var readers errgroup.Group
	readers.Go(func() error { return readLines(stdoutR, lines) })
	readers.Go(func() error { return readLines(stderrR, lines) })

	// Wait returns once the copy goroutines drain or WaitDelay expires,
	// so orphaned grandchildren cannot hold the readers open.
	waitErr := cmd.Wait()
	_ = stdoutW.Close()
	_ = stderrW.Close()
	readErr := readers.Wait()
	close(lines)
	<-consumed

	if waitErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s: %w", display, ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return &ExitError{Code: exitErr.ExitCode(), Command: display, Tail: tail.items()}
		}
		return fmt.Errorf("wait %s: %w", display, waitErr)
	}
	if readErr != nil {
		return fmt.Errorf("read output of %s: %w", display, readErr)
	}
	return nil
}

func readLines(reader io.Reader, out chan<- string) error {
	buffered := bufio.NewReader(reader)
	for {
		line, err := buffered.ReadString('\n')
		if line != "" {
			out <- redact.String(strings.TrimRight(line, "\r\n"))
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				return nil
			}
			return err
		}
	}
}

func mergeEnv(base []string, overrides map[string]string) []string {
	merged := make([]string, 0, len(base)+len(overrides)+1)
	for _, entry := range base {
		key, _, _ := strings.Cut(entry, "=")
		if _, overridden := overrides[key]; overridden || key == "GIT_TERMINAL_PROMPT" {
			continue
		}
		merged = append(merged, entry)
	}
	for key, value := range overrides {
		if key == "GIT_TERMINAL_PROMPT" {
			continue
		}
		merged = append(merged, key+"="+value)
	}
	return append(merged, "GIT_TERMINAL_PROMPT=0")
}

type ring struct {
	limit int
	lines []string
}

func newRing(limit int) *ring {
	return &ring{limit: limit}
}

func (r *ring) push(line string) {
	r.lines = append(r.lines, line)
	if len(r.lines) > r.limit {
		r.lines = r.lines[len(r.lines)-r.limit:]
	}
}

func (r *ring) items() []string {
	return append([]string(nil), r.lines...)
}
