package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/Ning0612/revlink/internal/domain"
)

// EnvPrefix is the prefix of environment overrides, e.g. REVLINK_ENFORCED
const EnvPrefix = "REVLINK"

// DefaultConfigPaths returns the default paths to search for config files
func DefaultConfigPaths() []string {
	paths := []string{
		".",
		"./configs",
	}

	// Add user config directory
	if configDir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(configDir, "revlink"))
	}

	// Add home directory
	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".config", "revlink"))
		paths = append(paths, filepath.Join(homeDir, ".revlink"))
	}

	paths = append(paths, "/etc/revlink")
	return paths
}

// newViper creates a viper instance with defaults and env overrides applied
func newViper() *viper.Viper {
	v := viper.New()

	d := Default()
	v.SetDefault("enabled", d.Enabled)
	v.SetDefault("enforced", d.Enforced)
	v.SetDefault("enabled_dirs", d.EnabledDirs)
	v.SetDefault("cron", d.Cron)
	v.SetDefault("onlyonce", d.OnlyOnce)
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("scan.page_size", d.Scan.PageSize)
	v.SetDefault("scan.relaxed_directory_mode", d.Scan.RelaxedDirectoryMode)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.compress", d.Log.Compress)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// configure points v at path, or at the default search locations when empty
func configure(v *viper.Viper, path string) {
	if path != "" {
		v.SetConfigFile(path)
		return
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range DefaultConfigPaths() {
		v.AddConfigPath(p)
	}
}

// read loads the file v points at
func read(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			return domain.ErrConfigNotFound
		}
		return fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}
	return nil
}

// decode unmarshals and validates the configuration held by v
func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads and parses a configuration file.
// If path is empty, searches default locations for config.yaml.
func Load(path string) (*Config, error) {
	v := newViper()
	configure(v, path)
	if err := read(v); err != nil {
		return nil, err
	}
	return decode(v)
}

// LoadOrDefault behaves like Load but falls back to defaults (plus env
// overrides) when no config file exists and none was explicitly requested
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil || path != "" || !errors.Is(err, domain.ErrConfigNotFound) {
		return cfg, err
	}
	return decode(newViper())
}

// LoadFromString parses configuration from a YAML string
func LoadFromString(yamlContent string) (*Config, error) {
	v := newViper()
	v.SetConfigType("yaml")

	if err := v.ReadConfig(strings.NewReader(yamlContent)); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}
	return decode(v)
}
