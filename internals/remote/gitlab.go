package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const defaultGitLabAPI = "https://gitlab.com/api/v4"

// GitLab implements Client against the GitLab v4 REST API.
type GitLab struct {
	api *apiClient
}

var _ Client = (*GitLab)(nil)

func NewGitLab(token string, opts ...Option) *GitLab {
	return &GitLab{api: newAPIClient(defaultGitLabAPI, token, opts)}
}

func (g *GitLab) Provider() Provider {
	return ProviderGitLab
}

type gitlabProject struct {
	PathWithNamespace string `json:"path_with_namespace"`
	WebURL            string `json:"web_url"`
	HTTPURLToRepo     string `json:"http_url_to_repo"`
	ImportStatus      string `json:"import_status"`
	ForkedFrom        *struct {
		PathWithNamespace string `json:"path_with_namespace"`
	} `json:"forked_from_project"`
}

func (p gitlabProject) toRepo() *Repo {
	repo := &Repo{
		Slug:     p.PathWithNamespace,
		WebURL:   p.WebURL,
		CloneURL: p.HTTPURLToRepo,
		Ready:    p.PathWithNamespace != "" && (p.ImportStatus == "" || p.ImportStatus == "none" || p.ImportStatus == "finished"),
	}
	if p.ForkedFrom != nil {
		repo.ParentSlug = p.ForkedFrom.PathWithNamespace
	}
	return repo
}

func projectPath(slug string) string {
	return "/projects/" + url.PathEscape(slug)
}

func (g *GitLab) username(ctx context.Context) (string, error) {
	var user struct {
		Username string `json:"username"`
	}
	if err := g.api.do(ctx, http.MethodGet, "/user", nil, &user); err != nil {
		return "", fmt.Errorf("resolve token owner: %w", err)
	}
	if user.Username == "" {
		return "", errors.New("resolve token owner: empty username")
	}
	return user.Username, nil
}

func (g *GitLab) FindFork(ctx context.Context, upstreamSlug string) (*Repo, error) {
	username, err := g.username(ctx)
	if err != nil {
		return nil, err
	}
	_, name := splitSlug(upstreamSlug)
	repo, err := g.GetRepo(ctx, username+"/"+name)
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

func (g *GitLab) CreateFork(ctx context.Context, upstreamSlug string) (*Repo, error) {
	var created gitlabProject
	if err := g.api.do(ctx, http.MethodPost, projectPath(upstreamSlug)+"/fork", map[string]any{}, &created); err != nil {
		return nil, fmt.Errorf("create fork of %s: %w", upstreamSlug, err)
	}
	return created.toRepo(), nil
}

func (g *GitLab) GetRepo(ctx context.Context, slug string) (*Repo, error) {
	var found gitlabProject
	if err := g.api.do(ctx, http.MethodGet, projectPath(slug), nil, &found); err != nil {
		return nil, err
	}
	return found.toRepo(), nil
}

func (g *GitLab) PostComment(ctx context.Context, target CommentTarget, body string) (string, error) {
	project, err := g.GetRepo(ctx, target.RepoSlug)
	if err != nil {
		return "", fmt.Errorf("post comment: %w", err)
	}
	base := projectPath(target.RepoSlug)

	var note struct {
		ID int64 `json:"id"`
	}
	switch {
	case target.MergeRequestID != "":
		if err := g.api.do(ctx, http.MethodPost, base+"/merge_requests/"+target.MergeRequestID+"/notes", map[string]string{"body": body}, &note); err != nil {
			return "", fmt.Errorf("post comment: %w", err)
		}
		return fmt.Sprintf("%s/-/merge_requests/%s#note_%d", project.WebURL, target.MergeRequestID, note.ID), nil
	case target.IssueID != "":
		if err := g.api.do(ctx, http.MethodPost, base+"/issues/"+target.IssueID+"/notes", map[string]string{"body": body}, &note); err != nil {
			return "", fmt.Errorf("post comment: %w", err)
		}
		return fmt.Sprintf("%s/-/issues/%s#note_%d", project.WebURL, target.IssueID, note.ID), nil
	case target.CommitSHA != "":
		if err := g.api.do(ctx, http.MethodPost, base+"/repository/commits/"+target.CommitSHA+"/comments", map[string]string{"note": body}, nil); err != nil {
			return "", fmt.Errorf("post comment: %w", err)
		}
		return fmt.Sprintf("%s/-/commit/%s", project.WebURL, target.CommitSHA), nil
	default:
		return "", errors.New("comment target is empty")
	}
}
