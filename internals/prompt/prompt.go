// Package prompt renders the instructions handed to the coding agent.
package prompt

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/tidwall/gjson"

	"github.com/hookvibe/hookcode-sub000/internals/schemas"
)

const defaultTemplate = `You are {{ .Robot.Name | fallback "hookcode" }}, an automation bot working on {{ .Repository.Slug }} ({{ .Repository.Provider }}).
{{- if .Title }}

Subject: {{ .Title }}
{{- end }}
{{- if .Target }}
Target: {{ .Target }}
{{- end }}
{{- if .Ref }}
Branch: {{ .Ref }}
{{- end }}

Request:
{{ .Request | fallback "(no request text was provided)" }}
{{- if not .CanWrite }}

You have read-only access. Do not modify files, commit or push.
{{- else }}

Commit your changes with clear messages. Push only to the configured origin.
{{- end }}
`

// Data is what a template can reference.
type Data struct {
	Task       *schemas.Task
	Repository schemas.Repository
	Robot      schemas.Robot
	// Payload is the raw event payload for templates that need more.
	Payload  map[string]any
	Title    string
	Request  string
	Target   string
	Ref      string
	CanWrite bool
}

type Builder struct {
	tmpl *template.Template
}

var funcs = template.FuncMap{
	"fallback": func(fallback string, value string) string {
		if strings.TrimSpace(value) == "" {
			return fallback
		}
		return value
	},
}

// New parses the template at path, or the built-in template when path is
// empty.
func New(path string) (*Builder, error) {
	text := defaultTemplate
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read prompt template: %w", err)
		}
		text = string(data)
	}
	tmpl, err := template.New("prompt").Funcs(funcs).Option("missingkey=zero").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt template: %w", err)
	}
	return &Builder{tmpl: tmpl}, nil
}

func (b *Builder) Build(ctx context.Context, task *schemas.Task, execution *schemas.ExecutionContext) (string, error) {
	data := Data{
		Task:       task,
		Repository: execution.Repository,
		Robot:      execution.Robot,
		Title:      firstString(task.Payload, "issue.title", "pull_request.title", "object_attributes.title", "merge_request.title"),
		Request:    firstString(task.Payload, "comment.body", "object_attributes.note", "prompt", "issue.body", "pull_request.body", "object_attributes.description"),
		Target:     target(task),
		Ref:        task.Ref,
		CanWrite:   execution.Robot.CanWrite() && execution.Robot.Model.Sandbox.AllowsWrite(),
	}
	if len(task.Payload) > 0 && gjson.ValidBytes(task.Payload) {
		if payload, ok := gjson.ParseBytes(task.Payload).Value().(map[string]any); ok {
			data.Payload = payload
		}
	}

	var out strings.Builder
	if err := b.tmpl.Execute(&out, data); err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return out.String(), nil
}

func firstString(payload []byte, paths ...string) string {
	if len(payload) == 0 {
		return ""
	}
	for _, result := range gjson.GetManyBytes(payload, paths...) {
		if result.Type == gjson.String && strings.TrimSpace(result.Str) != "" {
			return strings.TrimSpace(result.Str)
		}
	}
	return ""
}

func target(task *schemas.Task) string {
	switch {
	case task.MergeRequestID != "":
		return "merge request " + task.MergeRequestID
	case task.IssueID != "":
		return "issue " + task.IssueID
	case task.CommitSHA != "":
		return "commit " + task.CommitSHA
	}
	return ""
}
