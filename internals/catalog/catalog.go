// Package catalog loads repositories, robots and credential stores from a
// YAML file and resolves the execution context of a task from them.
package catalog

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/hookvibe/hookcode-sub000/internals/remote"
	"github.com/hookvibe/hookcode-sub000/internals/schemas"
)

// File is the on-disk catalog layout.
type File struct {
	Repositories []schemas.Repository `yaml:"repositories"`
	Robots       []schemas.Robot      `yaml:"robots"`
	// UserCredentials is keyed by actor user id.
	UserCredentials map[string]schemas.ProviderCredentials `yaml:"user_credentials"`
	// RepoCredentials is keyed by repository id.
	RepoCredentials map[string]schemas.ProviderCredentials `yaml:"repo_credentials"`
}

type Catalog struct {
	path string

	mu    sync.RWMutex
	file  File
	repos map[string]schemas.Repository
	bots  map[string]schemas.Robot
}

// Load reads the catalog at path.
func Load(path string) (*Catalog, error) {
	c := &Catalog{path: path}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// FromFile builds a catalog from an in-memory definition.
func FromFile(file File) (*Catalog, error) {
	c := &Catalog{}
	if err := c.set(file); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload re-reads the file. On error the previous contents stay in use.
func (c *Catalog) Reload() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("failed to read catalog: %w", err)
	}
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to decode catalog %s: %w", c.path, err)
	}
	return c.set(file)
}

func (c *Catalog) set(file File) error {
	repos := make(map[string]schemas.Repository, len(file.Repositories))
	for _, repo := range file.Repositories {
		if repo.ID == "" {
			return fmt.Errorf("catalog repository without id")
		}
		if repo.Slug == "" && repo.CloneURL != "" {
			if _, slug, err := remote.ParseRepoURL(repo.CloneURL); err == nil {
				repo.Slug = slug
			}
		}
		repos[repo.ID] = repo
	}
	bots := make(map[string]schemas.Robot, len(file.Robots))
	for _, robot := range file.Robots {
		if robot.ID == "" {
			return fmt.Errorf("catalog robot without id")
		}
		bots[robot.ID] = robot
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.file = file
	c.repos = repos
	c.bots = bots
	return nil
}

func (c *Catalog) Repository(id string) (schemas.Repository, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	repo, ok := c.repos[id]
	return repo, ok
}

func (c *Catalog) Robot(id string) (schemas.Robot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	robot, ok := c.bots[id]
	return robot, ok
}

func (c *Catalog) credentials(userID string, repoID string) (schemas.ProviderCredentials, schemas.ProviderCredentials) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.file.UserCredentials[userID], c.file.RepoCredentials[repoID]
}

// ClientFactory builds the platform client for a robot token.
type ClientFactory func(provider remote.Provider, token string, apiBaseURL string) (remote.Client, error)

// DefaultClientFactory uses the REST clients in package remote.
func DefaultClientFactory(provider remote.Provider, token string, apiBaseURL string) (remote.Client, error) {
	return remote.NewClient(provider, token, remote.WithBaseURL(apiBaseURL))
}

// Resolver turns a task into its execution context.
type Resolver struct {
	catalog *Catalog
	// APIBaseURLs overrides the platform API per provider when the
	// repository does not set its own.
	APIBaseURLs map[remote.Provider]string
	NewClient   ClientFactory
}

func NewResolver(catalog *Catalog, apiBaseURLs map[remote.Provider]string) *Resolver {
	return &Resolver{catalog: catalog, APIBaseURLs: apiBaseURLs, NewClient: DefaultClientFactory}
}

func (r *Resolver) Resolve(ctx context.Context, task *schemas.Task) (*schemas.ExecutionContext, error) {
	repo, ok := r.catalog.Repository(task.RepoID)
	if !ok {
		return nil, schemas.NewConfigError("repository %q not found", task.RepoID)
	}
	robot, ok := r.catalog.Robot(task.RobotID)
	if !ok {
		return nil, schemas.NewConfigError("robot %q not found", task.RobotID)
	}
	if robot.RepoID != "" && robot.RepoID != repo.ID {
		return nil, schemas.NewConfigError("robot %q belongs to repository %q, not %q", robot.ID, robot.RepoID, repo.ID)
	}

	execution := &schemas.ExecutionContext{
		Repository: repo,
		Robot:      robot,
		Clients:    map[remote.Provider]remote.Client{},
	}
	execution.UserCredentials, execution.RepoCredentials = r.catalog.credentials(task.ActorUserID, repo.ID)

	if robot.Token != "" && r.NewClient != nil {
		baseURL := repo.APIBaseURL
		if baseURL == "" {
			baseURL = r.APIBaseURLs[repo.Provider]
		}
		client, err := r.NewClient(repo.Provider, robot.Token, baseURL)
		if err != nil {
			return nil, schemas.NewConfigError("repository %q: %v", repo.ID, err)
		}
		execution.Clients[repo.Provider] = client
	}
	return execution, nil
}
