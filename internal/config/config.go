package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/l3aro/go-commit-miner/pkg/facts"
	"github.com/l3aro/go-commit-miner/pkg/flow"
)

// Config holds all configuration for go-commit-miner
type Config struct {
	// Workers is the number of files analyzed in parallel
	Workers int `yaml:"workers" env:"GCM_WORKERS"`

	// EdgeVisitCeiling bounds the edge traversals of one function analysis
	EdgeVisitCeiling int `yaml:"edge_visit_ceiling" env:"GCM_EDGE_VISIT_CEILING"`

	// PathSensitive selects the path-sensitive walk
	PathSensitive bool `yaml:"path_sensitive" env:"GCM_PATH_SENSITIVE"`

	// Fact output
	OutputFormat facts.Format `yaml:"output_format" env:"GCM_OUTPUT_FORMAT"`
	OutputPath   string       `yaml:"output_path" env:"GCM_OUTPUT_PATH"`

	// Result cache; an empty path disables persistence
	CachePath string `yaml:"cache_path" env:"GCM_CACHE_PATH"`
	CacheSize int    `yaml:"cache_size" env:"GCM_CACHE_SIZE"`

	// IgnoreFile holds gitignore-style patterns excluded from batch runs
	IgnoreFile string `yaml:"ignore_file" env:"GCM_IGNORE_FILE"`

	// Logging
	Verbose  bool `yaml:"verbose" env:"GCM_VERBOSE"`
	JSONLogs bool `yaml:"json_logs" env:"GCM_JSON_LOGS"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Workers:          runtime.NumCPU(),
		EdgeVisitCeiling: flow.DefaultEdgeVisitCeiling,
		PathSensitive:    false,
		OutputFormat:     facts.FormatJSONL,
		OutputPath:       "-",
		CachePath:        "",
		CacheSize:        10000,
		IgnoreFile:       ".gcmignore",
		Verbose:          false,
		JSONLogs:         false,
	}
}

// GlobalConfigFilePath returns the global config file path (~/.gcm/config.yaml)
func GlobalConfigFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".gcm", "config.yaml")
	}
	return filepath.Join(home, ".gcm", "config.yaml")
}

// ProjectConfigFilePath returns the project-level config file path (./.gcm/config.yaml)
func ProjectConfigFilePath() string {
	return filepath.Join(".gcm", "config.yaml")
}

// Load reads configuration with the following priority (highest to lowest):
// 1. Environment variables
// 2. Project-level config (./.gcm/config.yaml)
// 3. Global config (~/.gcm/config.yaml)
// 4. Defaults
func Load() (*Config, error) {
	return LoadFrom(GlobalConfigFilePath(), ProjectConfigFilePath())
}

// LoadFrom is Load with explicit config file paths. Missing files are
// skipped.
func LoadFrom(paths ...string) (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile reads configuration from a specific YAML file path
func LoadFromFile(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return LoadFrom(path)
}

// Save writes the configuration to the specified YAML file path.
// It creates parent directories if they don't exist.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}

	return nil
}

// applyEnvOverrides applies GCM_* environment variable overrides to the
// config. Malformed numbers are reported.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("GCM_WORKERS"); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("GCM_WORKERS: %w", err)
		}
		cfg.Workers = i
	}
	if v := os.Getenv("GCM_EDGE_VISIT_CEILING"); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("GCM_EDGE_VISIT_CEILING: %w", err)
		}
		cfg.EdgeVisitCeiling = i
	}
	if v := os.Getenv("GCM_PATH_SENSITIVE"); v != "" {
		cfg.PathSensitive = parseBool(v)
	}
	if v := os.Getenv("GCM_OUTPUT_FORMAT"); v != "" {
		cfg.OutputFormat = facts.Format(v)
	}
	if v := os.Getenv("GCM_OUTPUT_PATH"); v != "" {
		cfg.OutputPath = v
	}
	if v := os.Getenv("GCM_CACHE_PATH"); v != "" {
		cfg.CachePath = v
	}
	if v := os.Getenv("GCM_CACHE_SIZE"); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("GCM_CACHE_SIZE: %w", err)
		}
		cfg.CacheSize = i
	}
	if v := os.Getenv("GCM_IGNORE_FILE"); v != "" {
		cfg.IgnoreFile = v
	}
	if v := os.Getenv("GCM_VERBOSE"); v != "" {
		cfg.Verbose = parseBool(v)
	}
	if v := os.Getenv("GCM_JSON_LOGS"); v != "" {
		cfg.JSONLogs = parseBool(v)
	}
	return nil
}

func parseBool(v string) bool {
	return v == "true" || v == "1" || v == "yes"
}

// Validate checks that the configuration has valid required fields
func (c *Config) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if c.EdgeVisitCeiling <= 0 {
		return fmt.Errorf("edge_visit_ceiling must be positive")
	}
	if _, err := facts.ParseFormat(string(c.OutputFormat)); err != nil {
		return fmt.Errorf("invalid output_format: %w", err)
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("cache_size must be non-negative")
	}
	return nil
}
