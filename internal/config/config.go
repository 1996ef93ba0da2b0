package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider-specific defaults
const (
	DefaultOpenRouterModel = "deepseek/deepseek-chat-v3-0324"
	DefaultMockModel       = "mock-model"

	DefaultJulesBaseURL   = "https://jules.googleapis.com/v1alpha"
	DefaultStartingBranch = "main"
	DefaultPollSeconds    = 2
	DefaultMaxPolls       = 600
	DefaultPageSize       = 100
)

// Config captures the tunable runtime settings for the assistant.
type Config struct {
	Provider              string  `yaml:"provider"`
	Model                 string  `yaml:"model"`
	BaseURL               string  `yaml:"base_url"`
	Temperature           float64 `yaml:"temperature"`
	SystemPrompt          string  `yaml:"system_prompt"`
	RequestTimeoutSeconds int     `yaml:"request_timeout_seconds"`
	ConversationDir       string  `yaml:"conversation_dir"`
	WorkspaceRoot         string  `yaml:"workspace_root"`
	ShellTimeoutSeconds   int     `yaml:"shell_timeout_seconds"`
	HistoryPath           string  `yaml:"history_path"`
	LogPath               string  `yaml:"log_path"`
	TranscriptPath        string  `yaml:"transcript_path"`

	// Remote coding-agent settings. Source identifies the repository the
	// agent works against, e.g. sources/github/owner/repo.
	JulesBaseURL        string `yaml:"jules_base_url"`
	JulesSource         string `yaml:"jules_source"`
	JulesStartingBranch string `yaml:"jules_starting_branch"`
	PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
	MaxPolls            int    `yaml:"max_polls"`
	ActivityPageSize    int    `yaml:"activity_page_size"`
}

// LoadUserConfig loads configuration from ~/.julep/config.yaml.
// Checks JULEP_CONFIG_PATH environment variable first.
// If the file doesn't exist, returns defaults.
func LoadUserConfig() (Config, error) {
	configPath := os.Getenv("JULEP_CONFIG_PATH")
	if configPath == "" {
		configPath = filepath.Join(GetConfigDir(), "config.yaml")
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := Config{}
		cfg.applyDefaults()
		return cfg, nil
	}

	return Load(configPath)
}

// Load reads the YAML configuration from disk and injects sane defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// EnsureDefaultConfig creates config.yaml with provider-appropriate defaults
// if it doesn't exist yet.
func EnsureDefaultConfig(provider string) error {
	configDir := GetConfigDir()
	configPath := filepath.Join(configDir, "config.yaml")

	if _, err := os.Stat(configPath); err == nil {
		return nil
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	cfg := Config{Provider: strings.ToLower(provider)}
	switch cfg.Provider {
	case "openrouter":
		cfg.Model = DefaultOpenRouterModel
	case "mock":
		cfg.Model = DefaultMockModel
	}
	cfg.applyDefaults()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// applyDefaults fills in optional values to keep the YAML file concise.
func (c *Config) applyDefaults() {
	if c.Provider == "" {
		c.Provider = "jules"
	}
	if c.BaseURL == "" {
		c.BaseURL = "https://openrouter.ai/api/v1"
	}
	if c.Model == "" && strings.EqualFold(c.Provider, "openrouter") {
		c.Model = DefaultOpenRouterModel
	}
	if c.Temperature == 0 {
		c.Temperature = 0.2
	}
	if c.RequestTimeoutSeconds <= 0 {
		c.RequestTimeoutSeconds = 90
	}
	if c.ConversationDir == "" {
		c.ConversationDir = filepath.Join(GetConfigDir(), "conversations")
	}
	if c.WorkspaceRoot == "" {
		c.WorkspaceRoot = "."
	}
	if c.ShellTimeoutSeconds <= 0 {
		c.ShellTimeoutSeconds = 60
	}
	if c.HistoryPath == "" {
		c.HistoryPath = filepath.Join(c.WorkspaceRoot, ".julep_history")
	}
	if c.LogPath == "" {
		c.LogPath = filepath.Join(GetConfigDir(), "julep.log")
	}
	if c.TranscriptPath == "" {
		c.TranscriptPath = filepath.Join(GetConfigDir(), "transcripts.db")
	}
	if c.JulesBaseURL == "" {
		c.JulesBaseURL = DefaultJulesBaseURL
	}
	if c.JulesStartingBranch == "" {
		c.JulesStartingBranch = DefaultStartingBranch
	}
	if c.PollIntervalSeconds <= 0 {
		c.PollIntervalSeconds = DefaultPollSeconds
	}
	if c.MaxPolls <= 0 {
		c.MaxPolls = DefaultMaxPolls
	}
	if c.ActivityPageSize <= 0 {
		c.ActivityPageSize = DefaultPageSize
	}
}

func (c Config) validate() error {
	// Temperature validation (typical LLM range is 0-2.0)
	if c.Temperature < 0 || c.Temperature > 2.0 {
		return fmt.Errorf("temperature must be between 0 and 2.0 (got %f)", c.Temperature)
	}
	if c.RequestTimeoutSeconds > 600 {
		return fmt.Errorf("request_timeout_seconds cannot exceed 600 (10 minutes)")
	}
	if c.ShellTimeoutSeconds > 600 {
		return fmt.Errorf("shell_timeout_seconds cannot exceed 600 (10 minutes)")
	}
	if c.PollIntervalSeconds > 60 {
		return fmt.Errorf("poll_interval_seconds cannot exceed 60")
	}
	if c.MaxPolls > 10000 {
		return fmt.Errorf("max_polls cannot exceed 10000")
	}
	if c.ActivityPageSize > 1000 {
		return fmt.Errorf("activity_page_size cannot exceed 1000")
	}
	if strings.TrimSpace(c.HistoryPath) == "" {
		return fmt.Errorf("history_path must be set")
	}
	return nil
}

// RequestTimeout turns the integer value into a duration for HTTP clients.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// ShellTimeout exposes the configured duration for sandboxed shell commands.
func (c Config) ShellTimeout() time.Duration {
	return time.Duration(c.ShellTimeoutSeconds) * time.Second
}

// PollInterval is the fixed delay between successive activity-list calls.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// OverrideWorkspaceRoot swaps the workspace root at runtime.
func (c *Config) OverrideWorkspaceRoot(root string) {
	if c == nil {
		return
	}
	trimmed := strings.TrimSpace(root)
	if trimmed == "" {
		return
	}
	c.WorkspaceRoot = trimmed
}

func GetConfigDir() string {
	if configDir := os.Getenv("JULEP_CONFIG_DIR"); configDir != "" {
		return configDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".julep"
	}
	return filepath.Join(home, ".julep")
}
