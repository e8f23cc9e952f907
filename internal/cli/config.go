package cli

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk CLI configuration. Every field may be overridden by a
// flag; the API key also falls back to GEMINI_API_KEY.
type Config struct {
	APIKey        string  `yaml:"api_key,omitempty"`
	BaseURL       string  `yaml:"base_url,omitempty"`
	APIVersion    string  `yaml:"api_version,omitempty"`
	Model         string  `yaml:"model,omitempty"`
	System        string  `yaml:"system,omitempty"`
	MaxIterations *int    `yaml:"max_iterations,omitempty"`
	RateLimit     float64 `yaml:"rate_limit,omitempty"`
}

const defaultModel = "gemini-2.0-flash"

// DefaultConfigPath returns ~/.config/gemini/config.yaml (or the platform equivalent).
func DefaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(dir, "gemini", "config.yaml")
}

// LoadConfig reads path. A missing file yields an empty config.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
