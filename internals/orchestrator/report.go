package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hookvibe/hookcode-sub000/internals/remote"
	"github.com/hookvibe/hookcode-sub000/internals/schemas"
)

const failureLogLines = 50

var errNoClient = errors.New("no platform client for repository")

// PlatformReporter comments on the task's issue, merge request or commit
// through the repository's platform client.
type PlatformReporter struct{}

func (PlatformReporter) Post(ctx context.Context, task *schemas.Task, execution *schemas.ExecutionContext, body string) (string, error) {
	if execution == nil {
		return "", errNoClient
	}
	client := execution.Client()
	if client == nil {
		return "", errNoClient
	}
	target := remote.CommentTarget{
		RepoSlug:       execution.Repository.Slug,
		IssueID:        task.IssueID,
		MergeRequestID: task.MergeRequestID,
		CommitSHA:      task.CommitSHA,
	}
	if target.Empty() {
		return "", fmt.Errorf("task %s has nothing to comment on", task.ID)
	}
	return client.PostComment(ctx, target, body)
}

// ConsoleURL links to the task's page in the web console.
func ConsoleURL(baseURL string, taskID string) string {
	return strings.TrimRight(baseURL, "/") + "/tasks/" + taskID
}

// FailureBody is the platform comment for a failed task. Lines are
// expected to be redacted already.
func FailureBody(consoleURL string, message string, lines []string) string {
	var b strings.Builder
	b.WriteString("hookcode could not complete this task.\n\n")
	fmt.Fprintf(&b, "Error: %s\n\n", message)
	fmt.Fprintf(&b, "Details: %s\n", consoleURL)
	if len(lines) > 0 {
		if len(lines) > failureLogLines {
			lines = lines[len(lines)-failureLogLines:]
		}
		excerpt := strings.Join(lines, "\n")
		fence := "```"
		for strings.Contains(excerpt, fence) {
			fence += "`"
		}
		fmt.Fprintf(&b, "\nLast %d log lines:\n\n%stext\n%s\n%s\n", len(lines), fence, excerpt, fence)
	}
	return b.String()
}
