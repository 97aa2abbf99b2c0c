package conf

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	z "github.com/Oudwins/zog"
	"gopkg.in/yaml.v3"

	"github.com/hookvibe/hookcode-sub000/internals/version"
)

type Config struct {
	Version    string
	Server     ServerConfig     `zog:"server"`
	Workspaces WorkspacesConfig `zog:"workspaces"`
	Execution  ExecutionConfig  `zog:"execution"`
	Logs       LogsConfig       `zog:"logs"`
	Forks      ForksConfig      `zog:"forks"`
	Catalog    CatalogConfig    `zog:"catalog"`
	Prompt     PromptConfig     `zog:"prompt"`
	Providers  ProvidersConfig  `zog:"providers"`
	Queue      QueueConfig      `zog:"queue"`
}

type ServerConfig struct {
	DataDir        string `zog:"data_dir"`
	ConsoleBaseURL string `zog:"console_base_url"`
}

type WorkspacesConfig struct {
	Dir string `zog:"dir"`
}

type ExecutionConfig struct {
	Timeout string `zog:"timeout"`
}

type LogsConfig struct {
	MaxLines        int    `zog:"max_lines"`
	PersistCooldown string `zog:"persist_cooldown"`
}

type ForksConfig struct {
	PollInterval string `zog:"poll_interval"`
	Deadline     string `zog:"deadline"`
}

type CatalogConfig struct {
	Path string `zog:"path"`
}

type PromptConfig struct {
	TemplatePath string `zog:"template_path"`
}

type ProvidersConfig struct {
	GitHub PlatformConfig `zog:"github"`
	GitLab PlatformConfig `zog:"gitlab"`
}

type PlatformConfig struct {
	APIBaseURL string `zog:"api_base_url"`
}

type QueueConfig struct {
	// Backend is "sqlite" (survives restarts) or "memory".
	Backend  string `zog:"backend"`
	Workers  int    `zog:"workers"`
	RetryMax int    `zog:"retry_max"`
}

const (
	QueueBackendSQLite = "sqlite"
	QueueBackendMemory = "memory"
)

var serverSchema = z.Struct(z.Shape{
	"DataDir":        z.String().Default("~/.hookcode").Transform(expandPathTransform),
	"ConsoleBaseURL": z.String().Default("http://localhost:57877").Trim(),
})

var workspacesSchema = z.Struct(z.Shape{
	"Dir": z.String().Default("~/.hookcode/workspaces").Transform(expandPathTransform),
})

var executionSchema = z.Struct(z.Shape{
	"Timeout": z.String().Default("30m").Transform(durationTransform),
})

var logsSchema = z.Struct(z.Shape{
	"MaxLines":        z.Int().Default(1000),
	"PersistCooldown": z.String().Default("5s").Transform(durationTransform),
})

var forksSchema = z.Struct(z.Shape{
	"PollInterval": z.String().Default("2s").Transform(durationTransform),
	"Deadline":     z.String().Default("60s").Transform(durationTransform),
})

var catalogSchema = z.Struct(z.Shape{
	"Path": z.String().Default("~/.hookcode/catalog.yaml").Transform(expandPathTransform),
})

var promptSchema = z.Struct(z.Shape{
	"TemplatePath": z.String().Optional().Transform(expandPathTransform),
})

var platformSchema = z.Struct(z.Shape{
	"APIBaseURL": z.String().Optional().Trim(),
})

var providersSchema = z.Struct(z.Shape{
	"GitHub": platformSchema,
	"GitLab": platformSchema,
})

var queueSchema = z.Struct(z.Shape{
	"Backend":  z.String().Default(QueueBackendSQLite).Trim().OneOf([]string{QueueBackendSQLite, QueueBackendMemory}),
	"Workers":  z.Int().Default(2),
	"RetryMax": z.Int().Default(0),
})

var ConfigSchema = z.Struct(z.Shape{
	"Server":     serverSchema,
	"Workspaces": workspacesSchema,
	"Execution":  executionSchema,
	"Logs":       logsSchema,
	"Forks":      forksSchema,
	"Catalog":    catalogSchema,
	"Prompt":     promptSchema,
	"Providers":  providersSchema,
	"Queue":      queueSchema,
})

// Default returns the configuration used when no file exists.
func Default() (*Config, error) {
	return parse(map[string]any{})
}

// Load reads a YAML config file. A missing or empty file yields defaults.
func Load(path string) (*Config, error) {
	path, err := expandPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default()
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return Default()
	}
	var payload map[string]any
	if err := yaml.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
	}
	return parse(payload)
}

func parse(payload map[string]any) (*Config, error) {
	cfg := &Config{}
	if issues := ConfigSchema.Parse(payload, cfg); issues != nil {
		return nil, fmt.Errorf("invalid config:\n%s", z.Issues.Prettify(issues))
	}
	cfg.Version = version.Version()
	return cfg, nil
}

func (c *Config) DBPath() string {
	return filepath.Join(c.Server.DataDir, "db", "hookcode.db")
}

func (c *Config) LogPath() string {
	return filepath.Join(c.Server.DataDir, "log.txt")
}

func (c *Config) ExecutionTimeout() time.Duration {
	return mustDuration(c.Execution.Timeout)
}

func (c *Config) PersistCooldown() time.Duration {
	return mustDuration(c.Logs.PersistCooldown)
}

func (c *Config) ForkPollInterval() time.Duration {
	return mustDuration(c.Forks.PollInterval)
}

func (c *Config) ForkDeadline() time.Duration {
	return mustDuration(c.Forks.Deadline)
}

// mustDuration reads a value already validated by the schema; "0" and ""
// disable the setting.
func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func durationTransform(ptr *string, c z.Ctx) error {
	value := strings.TrimSpace(*ptr)
	if value == "" || value == "0" {
		*ptr = "0s"
		return nil
	}
	if _, err := time.ParseDuration(value); err != nil {
		return fmt.Errorf("invalid duration %q", value)
	}
	*ptr = value
	return nil
}

func expandPathTransform(ptr *string, c z.Ctx) error {
	expanded, err := expandPath(*ptr)
	*ptr = expanded
	return err
}

func expandPath(path string) (string, error) {
	if path == "" {
		return path, nil
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		if path == "~" {
			return home, nil
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
	}
	return path, nil
}
