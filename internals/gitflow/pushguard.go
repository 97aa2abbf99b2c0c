package gitflow

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"

	"github.com/hookvibe/hookcode-sub000/internals/workspace"
)

const (
	UpstreamURLKey = "hookcode.upstream_url"
	PushURLKey     = "hookcode.push_url"
)

// Keep in sync with NormalizeRemoteURL.
const pushGuardSource = `#!/bin/sh
# hookcode push guard: refuse to push when origin drifted from the remotes
# recorded at workspace setup.

normalize() {
	printf '%s' "$1" | sed \
		-e 's#^\([A-Za-z][A-Za-z0-9+.-]*://\)[^/@]*@#\1#' \
		-e 's#/*$##' \
		-e 's#\.git$##' \
		-e 's#/*$##'
}

expected_upstream=$(normalize "$(git config --local --get {{.UpstreamKey}} 2>/dev/null)")
expected_push=$(normalize "$(git config --local --get {{.PushKey}} 2>/dev/null)")
actual_fetch=$(normalize "$(git remote get-url origin 2>/dev/null)")
actual_push=$(normalize "$(git remote get-url --push origin 2>/dev/null)")

if [ -z "$expected_upstream" ] || [ -z "$expected_push" ]; then
	echo "hookcode push guard: {{.UpstreamKey}} or {{.PushKey}} is not set" >&2
	exit 1
fi

status=0
if [ "$actual_fetch" != "$expected_upstream" ]; then
	echo "hookcode push guard: origin fetch URL is $actual_fetch, expected $expected_upstream" >&2
	status=1
fi
if [ "$actual_push" != "$expected_push" ]; then
	echo "hookcode push guard: origin push URL is $actual_push, expected $expected_push" >&2
	status=1
fi
if [ -n "$2" ]; then
	target=$(normalize "$2")
	if [ "$target" != "$expected_push" ]; then
		echo "hookcode push guard: push target is $target, expected $expected_push" >&2
		status=1
	fi
fi
exit $status
`

var pushGuardTemplate = template.Must(template.New("pre-push").Parse(pushGuardSource))

type pushGuardData struct {
	UpstreamKey string
	PushKey     string
}

var schemeUserInfo = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9+.\-]*://)[^/@]*@`)

// NormalizeRemoteURL strips credentials, trailing slashes and a ".git"
// suffix, matching the shell normalisation in the hook.
func NormalizeRemoteURL(remoteURL string) string {
	normalized := schemeUserInfo.ReplaceAllString(strings.TrimSpace(remoteURL), "${1}")
	normalized = strings.TrimRight(normalized, "/")
	normalized = strings.TrimSuffix(normalized, ".git")
	return strings.TrimRight(normalized, "/")
}

// HookPath is where the guard lives inside a workspace.
func HookPath(dir string) string {
	return filepath.Join(dir, ".git", "hooks", "pre-push")
}

func writePushGuard(dir string) error {
	path := HookPath(dir)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create hook dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
	if err != nil {
		return fmt.Errorf("create hook file: %w", err)
	}
	defer f.Close()
	if err := pushGuardTemplate.Execute(f, pushGuardData{UpstreamKey: UpstreamURLKey, PushKey: PushURLKey}); err != nil {
		return fmt.Errorf("render push guard: %w", err)
	}
	// OpenFile keeps the old mode when the file already exists.
	return os.Chmod(path, 0o755)
}

// Mismatch describes why a push would be rejected.
type Mismatch struct {
	Field    string
	Actual   string
	Expected string
}

func (m Mismatch) String() string {
	return fmt.Sprintf("origin %s URL is %s, expected %s", m.Field, m.Actual, m.Expected)
}

// CheckRemotes is the Go twin of the hook's decision.
func CheckRemotes(fetchURL, pushURL, expectedUpstream, expectedPush string) []Mismatch {
	var mismatches []Mismatch
	if got, want := NormalizeRemoteURL(fetchURL), NormalizeRemoteURL(expectedUpstream); got != want {
		mismatches = append(mismatches, Mismatch{Field: "fetch", Actual: got, Expected: want})
	}
	if got, want := NormalizeRemoteURL(pushURL), NormalizeRemoteURL(expectedPush); got != want {
		mismatches = append(mismatches, Mismatch{Field: "push", Actual: got, Expected: want})
	}
	return mismatches
}

// ErrGuardUnconfigured means the workspace has no recorded remotes.
var ErrGuardUnconfigured = errors.New("push guard remotes are not recorded")

// CheckWorkspace evaluates the guard against the workspace at dir.
func CheckWorkspace(dir string) ([]Mismatch, error) {
	expectedUpstream, err := workspace.ConfigValue(dir, UpstreamURLKey)
	if err != nil {
		return nil, err
	}
	expectedPush, err := workspace.ConfigValue(dir, PushURLKey)
	if err != nil {
		return nil, err
	}
	if expectedUpstream == "" || expectedPush == "" {
		return nil, fmt.Errorf("%s: %w", dir, ErrGuardUnconfigured)
	}
	fetchURL, err := workspace.RemoteURL(dir, false)
	if err != nil {
		return nil, err
	}
	pushURL, err := workspace.RemoteURL(dir, true)
	if err != nil {
		return nil, err
	}
	return CheckRemotes(fetchURL, pushURL, expectedUpstream, expectedPush), nil
}
