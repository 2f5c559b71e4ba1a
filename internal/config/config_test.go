package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/l3aro/go-commit-miner/pkg/facts"
	"github.com/l3aro/go-commit-miner/pkg/flow"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name     string
		got      interface{}
		expected interface{}
	}{
		{"Workers", cfg.Workers, runtime.NumCPU()},
		{"EdgeVisitCeiling", cfg.EdgeVisitCeiling, flow.DefaultEdgeVisitCeiling},
		{"PathSensitive", cfg.PathSensitive, false},
		{"OutputFormat", cfg.OutputFormat, facts.FormatJSONL},
		{"OutputPath", cfg.OutputPath, "-"},
		{"CachePath", cfg.CachePath, ""},
		{"CacheSize", cfg.CacheSize, 10000},
		{"IgnoreFile", cfg.IgnoreFile, ".gcmignore"},
		{"Verbose", cfg.Verbose, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("DefaultConfig().%s = %v, want %v", tt.name, tt.got, tt.expected)
			}
		})
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		errContains string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "zero workers", mutate: func(c *Config) { c.Workers = 0 }, errContains: "workers"},
		{name: "negative ceiling", mutate: func(c *Config) { c.EdgeVisitCeiling = -1 }, errContains: "edge_visit_ceiling"},
		{name: "unknown format", mutate: func(c *Config) { c.OutputFormat = "csv" }, errContains: "output_format"},
		{name: "negative cache", mutate: func(c *Config) { c.CacheSize = -5 }, errContains: "cache_size"},
		{name: "msgpack format", mutate: func(c *Config) { c.OutputFormat = facts.FormatMsgpack }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errContains == "" {
				if err != nil {
					t.Errorf("Unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.errContains)
			}
		})
	}
}

func TestLoadLayersFiles(t *testing.T) {
	dir := t.TempDir()
	global := filepath.Join(dir, "global.yaml")
	project := filepath.Join(dir, "project.yaml")

	if err := os.WriteFile(global, []byte("workers: 3\ncache_size: 50\nverbose: true\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(project, []byte("workers: 5\npath_sensitive: true\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(global, project, filepath.Join(dir, "missing.yaml"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.Workers != 5 {
		t.Errorf("Workers = %d, want 5", cfg.Workers)
	}
	if cfg.CacheSize != 50 {
		t.Errorf("CacheSize = %d, want 50", cfg.CacheSize)
	}
	if !cfg.Verbose || !cfg.PathSensitive {
		t.Errorf("Verbose = %v, PathSensitive = %v, want both true", cfg.Verbose, cfg.PathSensitive)
	}
}

func TestLoadFromFile(t *testing.T) {
	tests := []struct {
		name        string
		configYAML  string
		envVars     map[string]string
		check       func(*testing.T, *Config)
		errContains string
	}{
		{
			name: "load valid config from file",
			configYAML: `
workers: 2
edge_visit_ceiling: 500
output_format: msgpack
output_path: out.msgpack
cache_path: /tmp/gcm.cache
ignore_file: .ignore
`,
			check: func(t *testing.T, cfg *Config) {
				if cfg.Workers != 2 {
					t.Errorf("Workers = %d, want 2", cfg.Workers)
				}
				if cfg.EdgeVisitCeiling != 500 {
					t.Errorf("EdgeVisitCeiling = %d, want 500", cfg.EdgeVisitCeiling)
				}
				if cfg.OutputFormat != facts.FormatMsgpack {
					t.Errorf("OutputFormat = %s, want msgpack", cfg.OutputFormat)
				}
				if cfg.OutputPath != "out.msgpack" || cfg.CachePath != "/tmp/gcm.cache" || cfg.IgnoreFile != ".ignore" {
					t.Errorf("paths = %q %q %q", cfg.OutputPath, cfg.CachePath, cfg.IgnoreFile)
				}
			},
		},
		{
			name:       "env overrides file",
			configYAML: "workers: 2\n",
			envVars: map[string]string{
				"GCM_WORKERS":        "7",
				"GCM_OUTPUT_FORMAT":  "msgpack",
				"GCM_PATH_SENSITIVE": "yes",
				"GCM_JSON_LOGS":      "1",
			},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Workers != 7 {
					t.Errorf("Workers = %d, want 7", cfg.Workers)
				}
				if cfg.OutputFormat != facts.FormatMsgpack {
					t.Errorf("OutputFormat = %s, want msgpack", cfg.OutputFormat)
				}
				if !cfg.PathSensitive || !cfg.JSONLogs {
					t.Errorf("PathSensitive = %v, JSONLogs = %v, want both true", cfg.PathSensitive, cfg.JSONLogs)
				}
			},
		},
		{
			name:        "malformed env number",
			configYAML:  "workers: 2\n",
			envVars:     map[string]string{"GCM_CACHE_SIZE": "lots"},
			errContains: "GCM_CACHE_SIZE",
		},
		{
			name:        "invalid yaml",
			configYAML:  "workers: [\n",
			errContains: "failed to parse",
		},
		{
			name:        "invalid value",
			configYAML:  "output_format: xml\n",
			errContains: "output_format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.configYAML), 0644); err != nil {
				t.Fatal(err)
			}

			cfg, err := LoadFromFile(path)
			if tt.errContains != "" {
				if err == nil || !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("LoadFromFile() error = %v, want containing %q", err, tt.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.Workers = 9
	cfg.OutputFormat = facts.FormatMsgpack

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if loaded.Workers != 9 || loaded.OutputFormat != facts.FormatMsgpack {
		t.Errorf("loaded = %+v", loaded)
	}
}
