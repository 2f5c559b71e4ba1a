package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-commit-miner/internal/config"
	"github.com/l3aro/go-commit-miner/internal/log"
	"github.com/l3aro/go-commit-miner/pkg/cache"
	"github.com/l3aro/go-commit-miner/pkg/miner"
)

// loadConfig reads the config named by --config, or the project and global
// config files, and applies the persistent flag overrides. It also returns
// the path of the file in effect, empty when only defaults are used.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	var (
		cfg  *config.Config
		path string
		err  error
	)
	if explicit, _ := cmd.Flags().GetString("config"); explicit != "" {
		path = explicit
		cfg, err = config.LoadFromFile(explicit)
	} else {
		path = effectiveConfigPath()
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("verbose") {
		cfg.Verbose, _ = flags.GetBool("verbose")
	}
	if flags.Changed("json-logs") {
		cfg.JSONLogs, _ = flags.GetBool("json-logs")
	}
	if flags.Changed("path-sensitive") {
		cfg.PathSensitive, _ = flags.GetBool("path-sensitive")
	}
	if ceiling, _ := flags.GetInt("ceiling"); ceiling > 0 {
		cfg.EdgeVisitCeiling = ceiling
	}
	return cfg, path, nil
}

func effectiveConfigPath() string {
	if p := config.ProjectConfigFilePath(); fileExists(p) {
		return p
	}
	if p := config.GlobalConfigFilePath(); fileExists(p) {
		return p
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

func newLogger(cfg *config.Config) log.Logger {
	level := log.InfoLevel
	if cfg.Verbose {
		level = log.DebugLevel
	}
	return log.New(log.LoggerConfig{Level: level, JSONOutput: cfg.JSONLogs})
}

// session holds a miner built from the config and the cache it persists.
type session struct {
	cfg    *config.Config
	logger log.Logger
	miner  *miner.Miner
	cache  *cache.ResultCache
}

func newSession(cfg *config.Config) (*session, error) {
	s := &session{cfg: cfg, logger: newLogger(cfg)}

	options := []miner.Option{miner.WithLogger(s.logger)}
	if cfg.CachePath != "" {
		s.cache = cache.New(cache.Options{MaxSize: cfg.CacheSize})
		if err := s.cache.LoadFromFile(cfg.CachePath); err != nil {
			return nil, fmt.Errorf("loading cache: %w", err)
		}
		s.logger.Debug("cache loaded", "path", cfg.CachePath, "entries", s.cache.Len())
		options = append(options, miner.WithCache(s.cache))
	}

	s.miner = miner.New(miner.Options{
		PathSensitive:    cfg.PathSensitive,
		EdgeVisitCeiling: cfg.EdgeVisitCeiling,
	}, options...)
	return s, nil
}

// close persists the cache, if any.
func (s *session) close() error {
	if s.cache == nil {
		return nil
	}
	stats := s.cache.Stats()
	s.logger.Debug("cache stats", "hits", stats.Hits, "misses", stats.Misses, "entries", s.cache.Len())
	if err := s.cache.PersistToFile(s.cfg.CachePath); err != nil {
		return fmt.Errorf("saving cache: %w", err)
	}
	return nil
}

// signalContext is canceled on interrupt so that batches stop early and
// still persist what they have.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func readFile(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory, expected a file: %s", path)
	}
	return os.ReadFile(path)
}
