package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		modifyFunc  func(*Config)
		expectError bool
		errorString string
	}{
		{
			name:        "valid config passes",
			modifyFunc:  func(c *Config) {},
			expectError: false,
		},
		{
			name: "negative temperature fails",
			modifyFunc: func(c *Config) {
				c.Temperature = -0.5
			},
			expectError: true,
			errorString: "temperature must be between",
		},
		{
			name: "temperature > 2.0 fails",
			modifyFunc: func(c *Config) {
				c.Temperature = 3.0
			},
			expectError: true,
			errorString: "temperature must be between",
		},
		{
			name: "request timeout > 600 fails",
			modifyFunc: func(c *Config) {
				c.RequestTimeoutSeconds = 9999
			},
			expectError: true,
			errorString: "request_timeout_seconds cannot exceed",
		},
		{
			name: "poll interval > 60 fails",
			modifyFunc: func(c *Config) {
				c.PollIntervalSeconds = 120
			},
			expectError: true,
			errorString: "poll_interval_seconds cannot exceed",
		},
		{
			name: "max polls > 10000 fails",
			modifyFunc: func(c *Config) {
				c.MaxPolls = 99999
			},
			expectError: true,
			errorString: "max_polls cannot exceed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{}
			cfg.applyDefaults()
			tt.modifyFunc(&cfg)
			err := cfg.validate()
			if tt.expectError {
				if err == nil {
					t.Fatalf("expected error containing %q, got nil", tt.errorString)
				}
				if !strings.Contains(err.Error(), tt.errorString) {
					t.Fatalf("expected error containing %q, got %q", tt.errorString, err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "provider: jules\njules_source: sources/github/acme/widgets\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.JulesBaseURL != DefaultJulesBaseURL {
		t.Errorf("JulesBaseURL = %q, want default", cfg.JulesBaseURL)
	}
	if cfg.JulesSource != "sources/github/acme/widgets" {
		t.Errorf("JulesSource = %q", cfg.JulesSource)
	}
	if cfg.PollIntervalSeconds != DefaultPollSeconds {
		t.Errorf("PollIntervalSeconds = %d, want %d", cfg.PollIntervalSeconds, DefaultPollSeconds)
	}
	if cfg.MaxPolls != DefaultMaxPolls {
		t.Errorf("MaxPolls = %d, want %d", cfg.MaxPolls, DefaultMaxPolls)
	}
	if cfg.JulesStartingBranch != DefaultStartingBranch {
		t.Errorf("JulesStartingBranch = %q, want %q", cfg.JulesStartingBranch, DefaultStartingBranch)
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("provider: [unterminated"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error, got nil")
	}
}
