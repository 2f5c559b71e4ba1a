package healthcheck

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/l3aro/go-commit-miner/internal/config"
	"github.com/l3aro/go-commit-miner/pkg/ast"
	"github.com/l3aro/go-commit-miner/pkg/cache"
	"github.com/l3aro/go-commit-miner/pkg/cfg"
)

// Status values reported for a component.
const (
	StatusReady   = "ready"
	StatusSkipped = "skipped"
	StatusError   = "error"
)

// ComponentStatus represents the health of one component the miner needs.
type ComponentStatus struct {
	Name   string
	Detail string
	Status string // "ready", "skipped" or "error"
	Error  string
}

// HealthCheckResult contains the full health check output for display.
type HealthCheckResult struct {
	SavedPath      string
	SavedScope     string // "global" or "project"
	EffectivePath  string
	EffectiveScope string // "global" or "project"
	Components     []ComponentStatus
}

// HasError reports whether any component failed.
func (r *HealthCheckResult) HasError() bool {
	for _, c := range r.Components {
		if c.Status == StatusError {
			return true
		}
	}
	return false
}

// Check performs a health check against the given config.
// savedPath is where the user saved config (may be empty outside init).
// effectivePath is the config file actually in use (considering priority).
func Check(c *config.Config, savedPath string, effectivePath string) (*HealthCheckResult, error) {
	if c == nil {
		return nil, fmt.Errorf("config is nil")
	}

	result := &HealthCheckResult{
		SavedPath:      savedPath,
		SavedScope:     scopeFromPath(savedPath),
		EffectivePath:  effectivePath,
		EffectiveScope: scopeFromPath(effectivePath),
	}

	result.Components = []ComponentStatus{
		checkParser(),
		checkOutput(c.OutputPath),
		checkCache(c.CachePath),
		checkIgnoreFile(c.IgnoreFile),
	}
	return result, nil
}

// scopeFromPath determines "global" or "project" scope from a config file path.
// Returns empty string if path is empty.
func scopeFromPath(path string) string {
	if path == "" {
		return ""
	}

	home, err := os.UserHomeDir()
	if err == nil {
		globalDir := filepath.Join(home, ".gcm")
		if strings.HasPrefix(path, globalDir) {
			return "global"
		}
	}

	return "project"
}

const sample = "function sample(a) { if (a) { return 1; } return 2; }"

// checkParser parses and builds the CFG of a small program.
func checkParser() ComponentStatus {
	s := ComponentStatus{Name: "parser", Detail: "tree-sitter javascript"}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	f, err := ast.NewParser().Parse(ctx, "sample.js", []byte(sample))
	if err != nil {
		s.Status, s.Error = StatusError, err.Error()
		return s
	}
	graphs, err := cfg.BuildFile(f)
	if err == nil {
		_, err = cfg.Find(graphs, "sample")
	}
	if err != nil {
		s.Status, s.Error = StatusError, err.Error()
		return s
	}
	s.Status = StatusReady
	return s
}

// checkOutput verifies that the fact file's directory is writable.
func checkOutput(path string) ComponentStatus {
	s := ComponentStatus{Name: "output", Detail: path}
	if path == "" || path == "-" {
		s.Detail = "stdout"
		s.Status = StatusReady
		return s
	}
	if err := writable(filepath.Dir(path)); err != nil {
		s.Status, s.Error = StatusError, err.Error()
		return s
	}
	s.Status = StatusReady
	return s
}

// checkCache loads the persisted result cache, if any.
func checkCache(path string) ComponentStatus {
	s := ComponentStatus{Name: "cache", Detail: path}
	if path == "" {
		s.Detail = "disabled"
		s.Status = StatusSkipped
		return s
	}
	c := cache.New(cache.Options{})
	if err := c.LoadFromFile(path); err != nil {
		s.Status, s.Error = StatusError, err.Error()
		return s
	}
	if err := writable(filepath.Dir(path)); err != nil && !os.IsNotExist(err) {
		s.Status, s.Error = StatusError, err.Error()
		return s
	}
	s.Detail = fmt.Sprintf("%s (%d entries)", path, c.Len())
	s.Status = StatusReady
	return s
}

// checkIgnoreFile reports whether the project has an ignore file.
func checkIgnoreFile(name string) ComponentStatus {
	s := ComponentStatus{Name: "ignore file", Detail: name}
	if name == "" {
		s.Status = StatusSkipped
		return s
	}
	if _, err := os.Stat(name); err != nil {
		if os.IsNotExist(err) {
			s.Detail = name + " (not present)"
			s.Status = StatusSkipped
			return s
		}
		s.Status, s.Error = StatusError, err.Error()
		return s
	}
	s.Status = StatusReady
	return s
}

func writable(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	f, err := os.CreateTemp(dir, ".gcm-check-*")
	if err != nil {
		return fmt.Errorf("%s is not writable: %w", dir, err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
