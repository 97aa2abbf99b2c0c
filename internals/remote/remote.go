// Package remote talks to git hosting platforms: fork discovery and
// creation, repository lookups and comment posting.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

type Provider string

const (
	ProviderGitHub Provider = "github"
	ProviderGitLab Provider = "gitlab"
)

func (p Provider) String() string {
	return string(p)
}

var (
	ErrNotFound        = errors.New("not found")
	ErrUnknownProvider = errors.New("unknown provider")
)

// Repo is the platform's view of a repository.
type Repo struct {
	Slug       string
	WebURL     string
	CloneURL   string
	ParentSlug string
	// Ready is false while the platform is still importing a new fork.
	Ready bool
}

// CommentTarget identifies where a comment is posted. The first non-empty
// of MergeRequestID, IssueID and CommitSHA wins.
type CommentTarget struct {
	RepoSlug       string
	IssueID        string
	MergeRequestID string
	CommitSHA      string
}

func (t CommentTarget) Empty() bool {
	return t.IssueID == "" && t.MergeRequestID == "" && t.CommitSHA == ""
}

type Client interface {
	Provider() Provider
	// FindFork returns the caller's fork of upstream, or nil when none exists.
	FindFork(ctx context.Context, upstreamSlug string) (*Repo, error)
	CreateFork(ctx context.Context, upstreamSlug string) (*Repo, error)
	GetRepo(ctx context.Context, slug string) (*Repo, error)
	// PostComment returns the web URL of the created comment.
	PostComment(ctx context.Context, target CommentTarget, body string) (string, error)
}

// NewClient builds the platform client for provider authenticated with token.
func NewClient(provider Provider, token string, opts ...Option) (Client, error) {
	switch provider {
	case ProviderGitHub:
		return NewGitHub(token, opts...), nil
	case ProviderGitLab:
		return NewGitLab(token, opts...), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
}

// ParseRepoURL extracts host and "owner/name" slug from https or scp-like
// ssh remote URLs. GitLab subgroups are kept in the slug.
func ParseRepoURL(remoteURL string) (host string, slug string, err error) {
	remoteURL = strings.TrimSpace(remoteURL)
	if strings.HasPrefix(remoteURL, "git@") {
		rest := strings.TrimPrefix(remoteURL, "git@")
		host, path, ok := strings.Cut(rest, ":")
		if !ok || host == "" {
			return "", "", fmt.Errorf("invalid SSH URL: %s", remoteURL)
		}
		slug, err := slugFromPath(path)
		if err != nil {
			return "", "", fmt.Errorf("invalid SSH URL format: %s", remoteURL)
		}
		return host, slug, nil
	}

	parsed, err := url.Parse(remoteURL)
	if err != nil || parsed.Host == "" {
		return "", "", fmt.Errorf("invalid repository URL: %s", remoteURL)
	}
	slug, err = slugFromPath(parsed.Path)
	if err != nil {
		return "", "", fmt.Errorf("invalid repository URL format: %s", remoteURL)
	}
	return parsed.Hostname(), slug, nil
}

func slugFromPath(path string) (string, error) {
	path = strings.Trim(path, "/")
	path = strings.TrimSuffix(path, ".git")
	parts := strings.Split(path, "/")
	if len(parts) < 2 {
		return "", errors.New("expected owner/name")
	}
	for _, part := range parts {
		if part == "" {
			return "", errors.New("empty path segment")
		}
	}
	return path, nil
}

func splitSlug(slug string) (namespace string, name string) {
	idx := strings.LastIndex(slug, "/")
	if idx < 0 {
		return "", slug
	}
	return slug[:idx], slug[idx+1:]
}
