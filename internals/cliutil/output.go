package cliutil

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/hookvibe/hookcode-sub000/internals/gitflow"
	"github.com/hookvibe/hookcode-sub000/internals/logbuf"
	"github.com/hookvibe/hookcode-sub000/internals/schemas"
	"github.com/hookvibe/hookcode-sub000/internals/term"
)

// Printer renders CLI output, styled only when the stream is a terminal.
type Printer struct {
	out  io.Writer
	caps term.Caps

	label   lipgloss.Style
	dim     lipgloss.Style
	success lipgloss.Style
	failure lipgloss.Style
	pending lipgloss.Style
}

func NewPrinter(out *os.File) *Printer {
	return newPrinter(out, term.Detect(out))
}

func newPrinter(out io.Writer, caps term.Caps) *Printer {
	renderer := lipgloss.NewRenderer(out)
	p := &Printer{
		out:     out,
		caps:    caps,
		label:   renderer.NewStyle(),
		dim:     renderer.NewStyle(),
		success: renderer.NewStyle(),
		failure: renderer.NewStyle(),
		pending: renderer.NewStyle(),
	}
	if caps.Color {
		p.label = p.label.Bold(true)
		p.dim = p.dim.Faint(true)
		p.success = p.success.Foreground(lipgloss.Color("2")).Bold(true)
		p.failure = p.failure.Foreground(lipgloss.Color("1")).Bold(true)
		p.pending = p.pending.Foreground(lipgloss.Color("3"))
	}
	return p
}

func (p *Printer) status(status schemas.TaskStatus) string {
	switch status {
	case schemas.TaskStatusSucceeded:
		return p.success.Render(string(status))
	case schemas.TaskStatusFailed:
		return p.failure.Render(string(status))
	default:
		return p.pending.Render(string(status))
	}
}

func (p *Printer) field(name string, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	fmt.Fprintf(p.out, "%s %s\n", p.label.Render(name+":"), value)
}

// Task prints the summary of a task as the daemon reports it.
func (p *Printer) Task(task *schemas.TaskResponse) {
	p.field("task", task.TaskID)
	p.field("status", p.status(task.Status))
	p.field("console", p.caps.Link(task.ConsoleURL, task.ConsoleURL))
	if task.Result == nil {
		return
	}
	result := task.Result
	if result.RepoWorkflow != nil {
		workflow := string(result.RepoWorkflow.Mode)
		if result.RepoWorkflow.Fork != nil {
			workflow += " via " + result.RepoWorkflow.Fork.Slug
		}
		p.field("workflow", workflow)
	}
	if result.TokenUsage != nil && !result.TokenUsage.IsZero() {
		p.field("tokens", fmt.Sprintf("%d in / %d out", result.TokenUsage.InputTokens, result.TokenUsage.OutputTokens))
	}
	p.field("comment", p.caps.Link(result.ProviderCommentURL, result.ProviderCommentURL))
	p.field("error", result.Error)
	if result.OutputText != "" {
		fmt.Fprintf(p.out, "%s\n%s\n", p.label.Render("output:"), result.OutputText)
	}
}

func (p *Printer) LogLine(line logbuf.Line) {
	fmt.Fprintf(p.out, "%s %s\n", p.dim.Render(fmt.Sprintf("%5d", line.Seq)), line.Text)
}

// Guard prints the push guard verdict for dir.
func (p *Printer) Guard(dir string, mismatches []gitflow.Mismatch) {
	if len(mismatches) == 0 {
		fmt.Fprintf(p.out, "%s %s\n", p.success.Render("ok"), dir)
		return
	}
	fmt.Fprintf(p.out, "%s %s\n", p.failure.Render("push would be rejected"), dir)
	for _, mismatch := range mismatches {
		fmt.Fprintf(p.out, "  %s\n", mismatch.String())
	}
}
