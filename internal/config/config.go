// Package config provides configuration loading and structs for the Hinto server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Embedding strategy selectors.
const (
	StrategyTFIDF  = "tfidf"
	StrategyRemote = "remote"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Ingest    IngestConfig    `yaml:"ingest"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds the database location and table namespace. Multiple
// logical collections can share one database file under different namespaces.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
	Namespace    string `yaml:"namespace"`
}

// EmbeddingConfig selects and configures the embedding strategy.
type EmbeddingConfig struct {
	// Strategy is "tfidf" (locally fitted, persisted with the corpus) or
	// "remote" (OpenAI-compatible service).
	Strategy   string       `yaml:"strategy"`
	Dimensions int          `yaml:"dimensions"`
	Remote     RemoteConfig `yaml:"remote"`
}

// RemoteConfig holds remote embedding service settings.
type RemoteConfig struct {
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	APIKeyEnv      string `yaml:"api_key_env"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	CacheSize      int    `yaml:"cache_size"`
}

// SearchConfig holds search limits.
type SearchConfig struct {
	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`
}

// IngestConfig holds slide ingestion settings.
type IngestConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	BatchSize   int      `yaml:"batch_size"`
	Watch       bool     `yaml:"watch"`
}

// Load reads and parses the config file at path, expands paths, and applies
// defaults. Returns an error if the file cannot be read or parsed.
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
	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	for i := range cfg.Ingest.Directories {
		cfg.Ingest.Directories[i] = expandPath(cfg.Ingest.Directories[i], configDir)
	}
	return &cfg, nil
}

// Validate rejects configurations the rest of the system cannot honor.
func Validate(cfg *Config) error {
	switch cfg.Embedding.Strategy {
	case StrategyTFIDF, StrategyRemote:
	default:
		return fmt.Errorf("unknown embedding strategy %q (supported: %s, %s)",
			cfg.Embedding.Strategy, StrategyTFIDF, StrategyRemote)
	}
	if cfg.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be positive, got %d", cfg.Embedding.Dimensions)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are
// relative to configDir; other relative paths are relative to the home
// directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
