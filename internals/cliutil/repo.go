package cliutil

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// RepoRoot returns the top level of the git checkout containing dir, or
// of the working directory when dir is empty.
func RepoRoot(dir string) (string, error) {
	args := []string{"rev-parse", "--show-toplevel"}
	if dir != "" {
		args = append([]string{"-C", dir}, args...)
	}
	output, err := exec.Command("git", args...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("failed to determine repo root: %s", strings.TrimSpace(string(output)))
	}
	root := strings.TrimSpace(string(output))
	if root == "" {
		return "", errors.New("failed to determine repo root")
	}
	return root, nil
}
