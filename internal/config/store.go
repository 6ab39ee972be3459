package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Ning0612/revlink/internal/domain"
	"github.com/Ning0612/revlink/internal/logger"
)

// Store is a long-lived handle on a configuration file.
// It serves the current configuration, persists updates back to the file,
// and reloads on external edits.
type Store struct {
	mu   sync.RWMutex
	v    *viper.Viper
	cfg  *Config
	path string
}

// FlagBinding overrides a configuration key with a command-line flag when
// the flag is set
type FlagBinding struct {
	Key  string
	Flag *pflag.Flag
}

// Open loads the configuration at path (or the default search locations when
// path is empty). Without a file the store serves defaults and Update keeps
// changes in memory only. Bound flags take precedence over the file and the
// environment, including on reload.
func Open(path string, flags ...FlagBinding) (*Store, error) {
	v := newViper()
	configure(v, path)
	for _, b := range flags {
		if b.Flag == nil {
			continue
		}
		if err := v.BindPFlag(b.Key, b.Flag); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", b.Flag.Name, err)
		}
	}

	if err := read(v); err != nil {
		if path != "" || !errors.Is(err, domain.ErrConfigNotFound) {
			return nil, err
		}
		logger.Debug("no config file found, using defaults")
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	return &Store{v: v, cfg: cfg, path: v.ConfigFileUsed()}, nil
}

// Path returns the backing file, empty when running on defaults
func (s *Store) Path() string {
	return s.path
}

// Config returns a copy of the current configuration
func (s *Store) Config() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.clone()
}

// Update applies fn to a copy of the configuration, validates the result,
// and writes it back to the backing file
func (s *Store) Update(fn func(*Config)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := *s.cfg
	fn(&next)
	if err := next.Validate(); err != nil {
		return err
	}

	if s.path != "" {
		if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
		// A separate instance keeps overrides out of s.v, so later
		// external edits are not shadowed when the watcher re-reads the file.
		w := viper.New()
		for key, value := range next.settings() {
			w.Set(key, value)
		}
		if err := w.WriteConfigAs(s.path); err != nil {
			return fmt.Errorf("write config %s: %w", s.path, err)
		}
	}

	s.cfg = &next
	return nil
}

// Watch calls onChange with the reloaded configuration every time the
// backing file changes on disk. Invalid edits are logged and ignored, the
// previous configuration stays in effect.
func (s *Store) Watch(onChange func(*Config)) {
	if s.path == "" {
		return
	}

	s.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}

		s.mu.Lock()
		cfg, err := decode(s.v)
		if err != nil {
			s.mu.Unlock()
			logger.Warn("config reload rejected, keeping previous configuration",
				"path", e.Name, "error", err)
			return
		}
		s.cfg = cfg
		s.mu.Unlock()

		logger.Info("config reloaded", "path", e.Name)
		onChange(cfg.clone())
	})
	s.v.WatchConfig()
}

// settings flattens the configuration into viper keys
func (c *Config) settings() map[string]any {
	return map[string]any{
		"enabled":                     c.Enabled,
		"enforced":                    c.Enforced,
		"enabled_dirs":                c.EnabledDirs,
		"cron":                        c.Cron,
		"onlyonce":                    c.OnlyOnce,
		"data_dir":                    c.DataDir,
		"scan.page_size":              c.Scan.PageSize,
		"scan.relaxed_directory_mode": c.Scan.RelaxedDirectoryMode,
		"log.level":                   c.Log.Level,
		"log.format":                  c.Log.Format,
		"log.file":                    c.Log.File,
		"log.max_size_mb":             c.Log.MaxSizeMB,
		"log.max_age_days":            c.Log.MaxAgeDays,
		"log.max_backups":             c.Log.MaxBackups,
		"log.compress":                c.Log.Compress,
	}
}

func (c *Config) clone() *Config {
	cp := *c
	return &cp
}
