// Package config provides configuration loading and structs for the Hikaku server.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug  bool         `yaml:"debug"`
	Server ServerConfig `yaml:"server"`
	Model  ModelConfig  `yaml:"model"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// ModelConfig holds embedding model identity, cache location and runtime settings.
type ModelConfig struct {
	// Name is the model identifier; the local cache entry lives at <dir>/<name>/.
	Name string `yaml:"name"`
	// Dir is the local model cache root.
	Dir string `yaml:"dir"`
	// Registry is the remote registry base URL used when no local copy exists.
	Registry string `yaml:"registry"`
	// Namespace is the registry namespace; the registry identifier is <namespace>/<name>.
	Namespace string `yaml:"namespace"`
	// Checksum is an optional sha256 hex digest of the model artifact; empty skips verification.
	Checksum   string `yaml:"checksum"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	CacheSize  int    `yaml:"cache_size"`
}

// RegistryID returns the conventional registry identifier for the model.
func (m *ModelConfig) RegistryID() string {
	return m.Namespace + "/" + m.Name
}

// LocalPath returns the model's cache directory.
func (m *ModelConfig) LocalPath() string {
	return filepath.Join(m.Dir, m.Name)
}

// Default returns a configuration with all defaults applied, for running
// without a config file.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// Load reads and parses the config file at path, applies defaults, and
// resolves the model cache dir relative to the config file's directory.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	cfg.Model.Dir = expandPath(cfg.Model.Dir, filepath.Dir(path))

	return &cfg, nil
}

// expandPath converts a relative path to absolute, anchored at baseDir.
func expandPath(path, baseDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}
