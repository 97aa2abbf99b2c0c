package schemas

import (
	"github.com/hookvibe/hookcode-sub000/internals/remote"
)

type RepoBranch struct {
	Name string `json:"name" yaml:"name"`
	Role string `json:"role,omitempty" yaml:"role"`
}

type Repository struct {
	ID            string          `json:"id" yaml:"id"`
	Provider      remote.Provider `json:"provider" yaml:"provider"`
	Slug          string          `json:"slug" yaml:"slug"`
	CloneURL      string          `json:"cloneUrl" yaml:"clone_url"`
	WebURL        string          `json:"webUrl,omitempty" yaml:"web_url"`
	APIBaseURL    string          `json:"apiBaseUrl,omitempty" yaml:"api_base_url"`
	DefaultBranch string          `json:"defaultBranch,omitempty" yaml:"default_branch"`
	Branches      []RepoBranch    `json:"branches,omitempty" yaml:"branches"`
}

// BranchForRole returns the first branch tagged with role.
func (r Repository) BranchForRole(role string) string {
	if role == "" {
		return ""
	}
	for _, branch := range r.Branches {
		if branch.Role == role && branch.Name != "" {
			return branch.Name
		}
	}
	return ""
}

type Permission string

const (
	PermissionRead  Permission = "read"
	PermissionWrite Permission = "write"
)

type CredentialSource string

const (
	CredentialSourceRobot CredentialSource = "robot"
	CredentialSourceUser  CredentialSource = "user"
	CredentialSourceRepo  CredentialSource = "repo"
)

type Sandbox string

const (
	SandboxReadOnly       Sandbox = "read-only"
	SandboxWorkspaceWrite Sandbox = "workspace-write"
	SandboxFullAccess     Sandbox = "danger-full-access"
)

func (s Sandbox) AllowsWrite() bool {
	return s == SandboxWorkspaceWrite || s == SandboxFullAccess
}

type ModelProvider string

const (
	ModelProviderCodex     ModelProvider = "codex"
	ModelProviderClaude    ModelProvider = "claude_code"
	ModelProviderGeminiCLI ModelProvider = "gemini_cli"
)

type GitIdentity struct {
	Name  string `json:"name" yaml:"name"`
	Email string `json:"email" yaml:"email"`
}

func (g *GitIdentity) Valid() bool {
	return g != nil && g.Name != "" && g.Email != ""
}

type ModelConfig struct {
	Model            string           `json:"model,omitempty" yaml:"model"`
	Sandbox          Sandbox          `json:"sandbox,omitempty" yaml:"sandbox"`
	CredentialSource CredentialSource `json:"credentialSource,omitempty" yaml:"credential_source"`
	ProfileID        string           `json:"profileId,omitempty" yaml:"profile_id"`
	APIKey           string           `json:"-" yaml:"api_key"`
	APIBaseURL       string           `json:"apiBaseUrl,omitempty" yaml:"api_base_url"`
}

type Robot struct {
	ID            string        `json:"id" yaml:"id"`
	Name          string        `json:"name" yaml:"name"`
	RepoID        string        `json:"repoId" yaml:"repo_id"`
	Permission    Permission    `json:"permission" yaml:"permission"`
	Token         string        `json:"-" yaml:"token"`
	RepoRole      string        `json:"repoRole,omitempty" yaml:"repo_role"`
	GitIdentity   *GitIdentity  `json:"gitIdentity,omitempty" yaml:"git_identity"`
	DefaultBranch string        `json:"defaultBranch,omitempty" yaml:"default_branch"`
	BranchRole    string        `json:"branchRole,omitempty" yaml:"branch_role"`
	ModelProvider ModelProvider `json:"modelProvider" yaml:"model_provider"`
	Model         ModelConfig   `json:"model" yaml:"model"`
}

func (r Robot) CanWrite() bool {
	return r.Permission == PermissionWrite
}

type CredentialProfile struct {
	ID         string `json:"id" yaml:"id"`
	Name       string `json:"name,omitempty" yaml:"name"`
	APIKey     string `json:"-" yaml:"api_key"`
	APIBaseURL string `json:"apiBaseUrl,omitempty" yaml:"api_base_url"`
}

type CredentialStore struct {
	DefaultProfileID string              `json:"defaultProfileId,omitempty" yaml:"default_profile_id"`
	Profiles         []CredentialProfile `json:"profiles" yaml:"profiles"`
}

// ProviderCredentials holds one store per model provider.
type ProviderCredentials map[ModelProvider]CredentialStore

type WorkflowMode string

const (
	WorkflowDirect WorkflowMode = "direct"
	WorkflowFork   WorkflowMode = "fork"
)

type RepoDescriptor struct {
	Slug     string `json:"slug"`
	WebURL   string `json:"webUrl,omitempty"`
	CloneURL string `json:"cloneUrl,omitempty"`
}

type GitWorkflowResult struct {
	Mode     WorkflowMode    `json:"mode"`
	Provider remote.Provider `json:"provider"`
	Upstream RepoDescriptor  `json:"upstream"`
	Fork     *RepoDescriptor `json:"fork,omitempty"`
}

// ExecutionContext is resolved once per call and never persisted.
type ExecutionContext struct {
	Repository      Repository
	Robot           Robot
	Clients         map[remote.Provider]remote.Client
	UserCredentials ProviderCredentials
	RepoCredentials ProviderCredentials
}

func (e *ExecutionContext) Provider() remote.Provider {
	return e.Repository.Provider
}

// Client returns the platform client for the repository's provider, or nil.
func (e *ExecutionContext) Client() remote.Client {
	if e.Clients == nil {
		return nil
	}
	return e.Clients[e.Repository.Provider]
}

func (e *ExecutionContext) Upstream() RepoDescriptor {
	return RepoDescriptor{
		Slug:     e.Repository.Slug,
		WebURL:   e.Repository.WebURL,
		CloneURL: e.Repository.CloneURL,
	}
}
