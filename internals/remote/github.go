package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const defaultGitHubAPI = "https://api.github.com"

// GitHub implements Client against the GitHub REST API.
type GitHub struct {
	api *apiClient
}

var _ Client = (*GitHub)(nil)

func NewGitHub(token string, opts ...Option) *GitHub {
	return &GitHub{api: newAPIClient(defaultGitHubAPI, token, opts)}
}

func (g *GitHub) Provider() Provider {
	return ProviderGitHub
}

type githubRepo struct {
	FullName string `json:"full_name"`
	HTMLURL  string `json:"html_url"`
	CloneURL string `json:"clone_url"`
	Fork     bool   `json:"fork"`
	Parent   *struct {
		FullName string `json:"full_name"`
	} `json:"parent"`
}

func (r githubRepo) toRepo() *Repo {
	repo := &Repo{
		Slug:     r.FullName,
		WebURL:   r.HTMLURL,
		CloneURL: r.CloneURL,
		Ready:    r.FullName != "",
	}
	if r.Parent != nil {
		repo.ParentSlug = r.Parent.FullName
	}
	return repo
}

func (g *GitHub) login(ctx context.Context) (string, error) {
	var user struct {
		Login string `json:"login"`
	}
	if err := g.api.do(ctx, http.MethodGet, "/user", nil, &user); err != nil {
		return "", fmt.Errorf("resolve token owner: %w", err)
	}
	if user.Login == "" {
		return "", errors.New("resolve token owner: empty login")
	}
	return user.Login, nil
}

func (g *GitHub) FindFork(ctx context.Context, upstreamSlug string) (*Repo, error) {
	login, err := g.login(ctx)
	if err != nil {
		return nil, err
	}
	_, name := splitSlug(upstreamSlug)
	repo, err := g.GetRepo(ctx, login+"/"+name)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(repo.ParentSlug, upstreamSlug) {
		return nil, nil
	}
	return repo, nil
}

func (g *GitHub) CreateFork(ctx context.Context, upstreamSlug string) (*Repo, error) {
	var created githubRepo
	if err := g.api.do(ctx, http.MethodPost, "/repos/"+upstreamSlug+"/forks", map[string]any{}, &created); err != nil {
		return nil, fmt.Errorf("create fork of %s: %w", upstreamSlug, err)
	}
	repo := created.toRepo()
	// GitHub answers 202 before the fork is usable.
	repo.Ready = false
	return repo, nil
}

func (g *GitHub) GetRepo(ctx context.Context, slug string) (*Repo, error) {
	var found githubRepo
	if err := g.api.do(ctx, http.MethodGet, "/repos/"+slug, nil, &found); err != nil {
		return nil, err
	}
	return found.toRepo(), nil
}

func (g *GitHub) PostComment(ctx context.Context, target CommentTarget, body string) (string, error) {
	var path string
	switch {
	case target.MergeRequestID != "":
		path = fmt.Sprintf("/repos/%s/issues/%s/comments", target.RepoSlug, target.MergeRequestID)
	case target.IssueID != "":
		path = fmt.Sprintf("/repos/%s/issues/%s/comments", target.RepoSlug, target.IssueID)
	case target.CommitSHA != "":
		path = fmt.Sprintf("/repos/%s/commits/%s/comments", target.RepoSlug, target.CommitSHA)
	default:
		return "", errors.New("comment target is empty")
	}

	var comment struct {
		HTMLURL string `json:"html_url"`
	}
	if err := g.api.do(ctx, http.MethodPost, path, map[string]string{"body": body}, &comment); err != nil {
		return "", fmt.Errorf("post comment: %w", err)
	}
	return comment.HTMLURL, nil
}
