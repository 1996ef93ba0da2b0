package credentials

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Credentials stores API keys and provider configuration
type Credentials struct {
	DefaultProvider string              `yaml:"default_provider"`
	Providers       map[string]Provider `yaml:"providers"`
}

// Provider stores authentication details for a single provider
type Provider struct {
	APIKey string `yaml:"api_key"`
}

// Manager handles credential storage and retrieval
type Manager struct {
	path string
}

// NewManager creates a new credential manager.
// Checks JULEP_CREDENTIALS_PATH environment variable first.
// If not set, defaults to ~/.julep/credentials.yaml
func NewManager() (*Manager, error) {
	credPath := os.Getenv("JULEP_CREDENTIALS_PATH")
	if credPath == "" {
		credPath = filepath.Join(configDir(), "credentials.yaml")
	}
	return &Manager{path: credPath}, nil
}

func configDir() string {
	if dir := os.Getenv("JULEP_CONFIG_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".julep"
	}
	return filepath.Join(home, ".julep")
}

// Load reads credentials from disk
func (m *Manager) Load() (*Credentials, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Credentials{Providers: make(map[string]Provider)}, nil
		}
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	var creds Credentials
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	if creds.Providers == nil {
		creds.Providers = make(map[string]Provider)
	}
	return &creds, nil
}

// Save writes credentials to disk with user-only permissions.
func (m *Manager) Save(creds *Credentials) error {
	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create credentials directory: %w", err)
	}

	data, err := yaml.Marshal(creds)
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return nil
}

// Exists checks if credentials file exists
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.path)
	return err == nil
}

// Path returns the credentials file path
func (m *Manager) Path() string {
	return m.path
}

// IsConfigured checks if a provider has an API key stored
func (c *Credentials) IsConfigured(provider string) bool {
	if c.Providers == nil {
		return false
	}
	p, exists := c.Providers[provider]
	return exists && p.APIKey != ""
}

// HasAnyProvider reports whether any provider is configured.
func (c *Credentials) HasAnyProvider() bool {
	for _, p := range c.Providers {
		if p.APIKey != "" {
			return true
		}
	}
	return false
}

// GetAPIKey returns the API key for a provider
func (c *Credentials) GetAPIKey(provider string) string {
	if c.Providers == nil {
		return ""
	}
	return c.Providers[provider].APIKey
}

// SetProvider sets the API key for a provider
func (c *Credentials) SetProvider(name, apiKey string) {
	if c.Providers == nil {
		c.Providers = make(map[string]Provider)
	}
	c.Providers[name] = Provider{APIKey: apiKey}
}

// RemoveProvider removes a provider
func (c *Credentials) RemoveProvider(name string) {
	if c.Providers != nil {
		delete(c.Providers, name)
	}
}
