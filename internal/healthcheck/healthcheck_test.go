package healthcheck

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/l3aro/go-commit-miner/internal/config"
	"github.com/l3aro/go-commit-miner/pkg/cache"
)

func TestCheckWithNilConfig(t *testing.T) {
	_, err := Check(nil, "", "")
	if err == nil {
		t.Error("Expected error for nil config, got nil")
	}
}

func statusOf(result *HealthCheckResult, name string) ComponentStatus {
	for _, c := range result.Components {
		if c.Name == name {
			return c
		}
	}
	return ComponentStatus{}
}

func TestCheckDefaults(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.IgnoreFile = filepath.Join(t.TempDir(), ".gcmignore")

	result, err := Check(cfg, "", "")
	if err != nil {
		t.Fatalf("Check() failed: %v", err)
	}
	if result.HasError() {
		t.Fatalf("unexpected error: %+v", result.Components)
	}

	tests := []struct {
		name   string
		status string
	}{
		{"parser", StatusReady},
		{"output", StatusReady},
		{"cache", StatusSkipped},
		{"ignore file", StatusSkipped},
	}
	for _, tt := range tests {
		if got := statusOf(result, tt.name).Status; got != tt.status {
			t.Errorf("%s status = %q, want %q", tt.name, got, tt.status)
		}
	}
}

func TestCheckCacheAndOutput(t *testing.T) {
	dir := t.TempDir()
	cachePath := filepath.Join(dir, "results.msgpack")
	c := cache.New(cache.Options{})
	c.Set("k", cache.Entry{})
	if err := c.PersistToFile(cachePath); err != nil {
		t.Fatal(err)
	}

	cfg := config.DefaultConfig()
	cfg.CachePath = cachePath
	cfg.OutputPath = filepath.Join(dir, "facts.jsonl")

	result, err := Check(cfg, "", "")
	if err != nil {
		t.Fatalf("Check() failed: %v", err)
	}
	if s := statusOf(result, "cache"); s.Status != StatusReady || s.Detail != cachePath+" (1 entries)" {
		t.Errorf("cache = %+v", s)
	}
	if s := statusOf(result, "output"); s.Status != StatusReady {
		t.Errorf("output = %+v", s)
	}
}

func TestCheckReportsErrors(t *testing.T) {
	dir := t.TempDir()
	corrupt := filepath.Join(dir, "bad.msgpack")
	if err := os.WriteFile(corrupt, []byte{0xc1}, 0644); err != nil {
		t.Fatal(err)
	}

	cfg := config.DefaultConfig()
	cfg.CachePath = corrupt
	cfg.OutputPath = filepath.Join(dir, "missing", "facts.jsonl")

	result, err := Check(cfg, "", "")
	if err != nil {
		t.Fatalf("Check() failed: %v", err)
	}
	if !result.HasError() {
		t.Fatal("expected an error")
	}
	if s := statusOf(result, "cache"); s.Status != StatusError {
		t.Errorf("cache = %+v", s)
	}
	if s := statusOf(result, "output"); s.Status != StatusError {
		t.Errorf("output = %+v", s)
	}
}

func TestScopeFromPath(t *testing.T) {
	home, _ := os.UserHomeDir()
	globalPath := ""
	if home != "" {
		globalPath = filepath.Join(home, ".gcm", "config.yaml")
	}

	tests := []struct {
		name     string
		path     string
		expected string
	}{
		{"empty path", "", ""},
		{"project path", "/project/.gcm/config.yaml", "project"},
	}
	if globalPath != "" {
		tests = append(tests, struct {
			name     string
			path     string
			expected string
		}{"global path", globalPath, "global"})
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := scopeFromPath(tt.path); got != tt.expected {
				t.Errorf("scopeFromPath(%q) = %q, want %q", tt.path, got, tt.expected)
			}
		})
	}
}
