package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Ning0612/revlink/internal/domain"
	"github.com/Ning0612/revlink/internal/logger"
	"github.com/Ning0612/revlink/internal/scheduler"
)

// Default values
const (
	DefaultPageSize = 50
	DefaultDataDir  = "~/.local/share/revlink"
	DefaultLogLevel = "info"
	DefaultLogFmt   = "text"

	// PID file name under the data directory
	PIDFileName = "revlink.pid"
)

// Config represents the complete configuration for revlink
type Config struct {
	// Enabled switches reverse linking on for events and scheduled scans
	Enabled bool `mapstructure:"enabled"`

	// Enforced allows replacing whatever occupies a source path
	Enforced bool `mapstructure:"enforced"`

	// EnabledDirs is a newline-separated list of source directories.
	// Empty means every directory is in scope.
	EnabledDirs string `mapstructure:"enabled_dirs"`

	// Cron is the 5-field schedule of the backlog scan (empty disables it)
	Cron string `mapstructure:"cron"`

	// OnlyOnce requests a single backlog scan shortly after the config is applied
	OnlyOnce bool `mapstructure:"onlyonce"`

	// DataDir holds the history database, scan lock and PID file
	DataDir string `mapstructure:"data_dir"`

	Scan ScanConfig `mapstructure:"scan"`
	Log  LogConfig  `mapstructure:"log"`
}

// ScanConfig tunes the backlog scan
type ScanConfig struct {
	PageSize             int  `mapstructure:"page_size"`
	RelaxedDirectoryMode bool `mapstructure:"relaxed_directory_mode"`
}

// LogConfig configures logging
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// Default returns the configuration used when no file exists
func Default() *Config {
	return &Config{
		DataDir: DefaultDataDir,
		Scan:    ScanConfig{PageSize: DefaultPageSize},
		Log: LogConfig{
			Level:      DefaultLogLevel,
			Format:     DefaultLogFmt,
			MaxSizeMB:  10,
			MaxAgeDays: 30,
			MaxBackups: 5,
		},
	}
}

// Validate checks if the configuration is complete and consistent
func (c *Config) Validate() error {
	if c.Scan.PageSize <= 0 {
		return fmt.Errorf("%w: scan.page_size must be positive, got %d", domain.ErrConfigInvalid, c.Scan.PageSize)
	}

	if strings.TrimSpace(c.Cron) != "" {
		if _, err := scheduler.ParseCron(c.Cron); err != nil {
			return fmt.Errorf("%w: cron %q: %v", domain.ErrConfigInvalid, c.Cron, err)
		}
	}

	for _, d := range c.Directories() {
		if !filepath.IsAbs(d) {
			return fmt.Errorf("%w: enabled directory must be absolute: %s", domain.ErrConfigInvalid, d)
		}
	}

	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: unknown log level: %s", domain.ErrConfigInvalid, c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: unknown log format: %s", domain.ErrConfigInvalid, c.Log.Format)
	}

	return nil
}

// Directories returns the enabled directories, one per non-blank line, expanded
func (c *Config) Directories() []string {
	var dirs []string
	for _, line := range strings.Split(c.EnabledDirs, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		dirs = append(dirs, ExpandPath(line))
	}
	return dirs
}

// DataPath returns the expanded data directory
func (c *Config) DataPath() string {
	if c.DataDir == "" {
		return ExpandPath(DefaultDataDir)
	}
	return ExpandPath(c.DataDir)
}

// PIDPath returns the path of the daemon PID file
func (c *Config) PIDPath() string {
	return filepath.Join(c.DataPath(), PIDFileName)
}

// Snapshot returns the immutable settings the reconciliation engine runs on
func (c *Config) Snapshot() Snapshot {
	return Snapshot{
		Enabled:              c.Enabled,
		Enforced:             c.Enforced,
		EnabledDirs:          c.Directories(),
		Cron:                 strings.TrimSpace(c.Cron),
		RunOnce:              c.OnlyOnce,
		PageSize:             c.Scan.PageSize,
		RelaxedDirectoryMode: c.Scan.RelaxedDirectoryMode,
	}
}

// LoggerConfig converts the log section into a logger configuration
func (c *Config) LoggerConfig() logger.Config {
	cfg := logger.ConsoleConfig(c.Log.Level, c.Log.Format)
	if c.Log.File == "" {
		return cfg
	}
	return cfg.WithFile(logger.FileConfig{
		Path:       ExpandPath(c.Log.File),
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxAgeDays: c.Log.MaxAgeDays,
		MaxBackups: c.Log.MaxBackups,
		Compress:   c.Log.Compress,
	})
}

// ExpandPath expands ~ and environment variables in a path
func ExpandPath(path string) string {
	// Expand ~ to home directory
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			if len(path) > 1 && (path[1] == '/' || path[1] == filepath.Separator) {
				path = filepath.Join(home, path[2:])
			} else if len(path) == 1 {
				path = home
			}
		}
	}
	// Expand environment variables
	path = os.ExpandEnv(path)
	return filepath.Clean(path)
}
