package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// ConfigPath returns the path to the config file
func ConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".relay", "config.json"), nil
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".relay"), nil
}

// Config is the root configuration struct
type Config struct {
	// Global settings
	LogLevel string `json:"log_level,omitempty" envconfig:"RELAY_LOG_LEVEL" default:"info"`

	Git      GitConfig      `json:"git,omitempty"`
	Registry RegistryConfig `json:"registry,omitempty"`
	Test     TestConfig     `json:"test,omitempty"`
	Cluster  ClusterConfig  `json:"cluster,omitempty"`
	Slack    SlackConfig    `json:"slack,omitempty"`
	History  HistoryConfig  `json:"history,omitempty"`
}

// GitConfig holds source checkout configuration
type GitConfig struct {
	RemoteURL string `json:"remote_url,omitempty" envconfig:"RELAY_GIT_REMOTE_URL"`
	WorkDir   string `json:"work_dir,omitempty" envconfig:"RELAY_GIT_WORK_DIR"`
}

// RegistryConfig holds image registry configuration
type RegistryConfig struct {
	Server   string `json:"server,omitempty" envconfig:"RELAY_REGISTRY_SERVER"`
	Username string `json:"username,omitempty" envconfig:"RELAY_REGISTRY_USERNAME"`
	Password string `json:"password,omitempty" envconfig:"RELAY_REGISTRY_PASSWORD"`
}

// TestConfig holds test stage configuration
type TestConfig struct {
	// Command run inside the built image; empty uses the image default.
	Command []string `json:"command,omitempty" envconfig:"RELAY_TEST_COMMAND"`
}

// ClusterConfig holds deployment target configuration
type ClusterConfig struct {
	Namespace      string        `json:"namespace,omitempty" envconfig:"RELAY_CLUSTER_NAMESPACE"`
	RolloutTimeout time.Duration `json:"rollout_timeout,omitempty" envconfig:"RELAY_ROLLOUT_TIMEOUT" default:"5m"`
	PollInterval   time.Duration `json:"poll_interval,omitempty" envconfig:"RELAY_POLL_INTERVAL" default:"3s"`
}

// SlackConfig holds Slack notification configuration
type SlackConfig struct {
	BotToken string `json:"bot_token,omitempty" envconfig:"RELAY_SLACK_BOT_TOKEN"`
	Channel  string `json:"channel,omitempty" envconfig:"RELAY_SLACK_CHANNEL"`
}

// HistoryConfig holds connection info for the run history database
type HistoryConfig struct {
	Host     string `json:"host,omitempty" envconfig:"RELAY_HISTORY_HOST"`
	Port     int    `json:"port,omitempty" envconfig:"RELAY_HISTORY_PORT"` // Default: 3306
	Username string `json:"username,omitempty" envconfig:"RELAY_HISTORY_USERNAME"`
	Password string `json:"password,omitempty" envconfig:"RELAY_HISTORY_PASSWORD"`
	Database string `json:"database,omitempty" envconfig:"RELAY_HISTORY_DATABASE"`
}

// Load reads config from file and applies environment variable overrides
func Load() (*Config, error) {
	cfg, err := LoadFromFile()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	if cfg == nil {
		cfg = &Config{}
	}

	// Apply defaults and env overrides
	if err := envconfig.Process("", cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile reads config from file only (no env overrides)
// Used when we want to modify and write back without losing env-only values
func LoadFromFile() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the config to file
func Save(cfg *Config) error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	path, err := ConfigPath()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// RequireGit validates that the source remote is configured
func (c *Config) RequireGit() error {
	if c.Git.RemoteURL == "" {
		return errors.New("git remote not configured. Set RELAY_GIT_REMOTE_URL or add to ~/.relay/config.json")
	}
	return nil
}

// RequireRegistry validates that the registry config is present
func (c *Config) RequireRegistry() error {
	if c.Registry.Server == "" {
		return errors.New("registry server not configured. Set RELAY_REGISTRY_SERVER or add to ~/.relay/config.json")
	}
	return nil
}

// RequireSlack validates that Slack notification config is present
func (c *Config) RequireSlack() error {
	if c.Slack.BotToken == "" || c.Slack.Channel == "" {
		return errors.New("Slack not configured. Set RELAY_SLACK_BOT_TOKEN and RELAY_SLACK_CHANNEL or add to ~/.relay/config.json")
	}
	return nil
}

// RequireHistory validates that the history database is configured
func (c *Config) RequireHistory() error {
	if c.History.Host == "" || c.History.Database == "" {
		return errors.New("history database not configured. Set RELAY_HISTORY_HOST and RELAY_HISTORY_DATABASE or add to ~/.relay/config.json")
	}
	return nil
}

// HistoryEnabled reports whether run history persistence is configured.
func (c *Config) HistoryEnabled() bool {
	return c.RequireHistory() == nil
}

// SlackEnabled reports whether Slack notifications are configured.
func (c *Config) SlackEnabled() bool {
	return c.RequireSlack() == nil
}
