package workspace

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

type commandFunc func(name string, args ...string) *exec.Cmd

var execCommand commandFunc = exec.Command

func GitIsInsideWorkTree(repoPath string) error {
	cmd := execCommand("git", "-C", repoPath, "rev-parse", "--is-inside-work-tree")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git check failed: %s", strings.TrimSpace(string(output)))
	}
	if strings.TrimSpace(string(output)) != "true" {
		return fmt.Errorf("not a git worktree")
	}
	return nil
}

// RemoteURL reads origin's fetch URL, or its push URL when push is set.
func RemoteURL(repoPath string, push bool) (string, error) {
	args := []string{"-C", repoPath, "remote", "get-url"}
	if push {
		args = append(args, "--push")
	}
	args = append(args, "origin")
	output, err := execCommand("git", args...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("failed to get origin URL: %s", strings.TrimSpace(string(output)))
	}
	return strings.TrimSpace(string(output)), nil
}

// ConfigValue reads a repo-local git config key; unset keys yield "".
func ConfigValue(repoPath string, key string) (string, error) {
	output, err := execCommand("git", "-C", repoPath, "config", "--local", "--get", key).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return "", nil
		}
		return "", fmt.Errorf("failed to read git config %s: %w", key, err)
	}
	return strings.TrimSpace(string(output)), nil
}
