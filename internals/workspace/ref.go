package workspace

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/hookvibe/hookcode-sub000/internals/schemas"
)

// ResolveRef picks the branch to check out. The first non-empty of: the
// event ref, the robot default branch, the branch mapped to the robot's
// branch role, the repository default branch, the payload's default
// branch. An empty result means the remote default.
func ResolveRef(task *schemas.Task, execution *schemas.ExecutionContext) string {
	candidates := []string{
		eventRef(task),
		execution.Robot.DefaultBranch,
		execution.Repository.BranchForRole(execution.Robot.BranchRole),
		execution.Repository.DefaultBranch,
		payloadDefaultBranch(task.Payload),
	}
	for _, candidate := range candidates {
		if ref := normalizeRef(candidate); ref != "" {
			return ref
		}
	}
	return ""
}

var payloadRefPaths = []string{
	"pull_request.head.ref",
	"object_attributes.source_branch",
	"ref",
}

func eventRef(task *schemas.Task) string {
	if ref := normalizeRef(task.Ref); ref != "" {
		return ref
	}
	if len(task.Payload) == 0 || !gjson.ValidBytes(task.Payload) {
		return ""
	}
	parsed := gjson.ParseBytes(task.Payload)
	for _, path := range payloadRefPaths {
		if value := parsed.Get(path); value.Type == gjson.String {
			if ref := normalizeRef(value.String()); ref != "" {
				return ref
			}
		}
	}
	return ""
}

func payloadDefaultBranch(payload []byte) string {
	if len(payload) == 0 || !gjson.ValidBytes(payload) {
		return ""
	}
	parsed := gjson.ParseBytes(payload)
	for _, path := range []string{"repository.default_branch", "project.default_branch"} {
		if value := parsed.Get(path); value.Type == gjson.String && value.String() != "" {
			return value.String()
		}
	}
	return ""
}

func normalizeRef(ref string) string {
	ref = strings.TrimSpace(ref)
	ref = strings.TrimPrefix(ref, "refs/heads/")
	ref = strings.TrimPrefix(ref, "refs/tags/")
	return ref
}

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func slugify(value string) string {
	value = unsafeKeyChars.ReplaceAllString(strings.TrimSpace(value), "-")
	value = strings.Trim(value, "-.")
	return value
}

// Key is the deterministic directory name for a (provider, repo, ref) triple.
// The readable part is lossy ("feature/x" and "feature-x" look alike), so a
// hash of the raw triple keeps distinct triples apart.
func Key(provider string, repoSlug string, ref string) string {
	refSlug := slugify(ref)
	if refSlug == "" {
		refSlug = "default"
	}
	sum := sha256.Sum256([]byte(provider + "\x00" + repoSlug + "\x00" + ref))
	return slugify(provider) + "__" + slugify(repoSlug) + "__" + refSlug + "__" + hex.EncodeToString(sum[:4])
}
