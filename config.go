package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gobwas/glob"
	"github.com/spf13/viper"
)

// Config is the file/env-backed configuration. Precedence, lowest first:
// defaults, config file, SPEKTR_* environment, CLI flags.
type Config struct {
	// Skip lists extra directory names never descended into.
	Skip []string `mapstructure:"skip"`
	// Exclude lists glob patterns (slash-separated, relative to the scan
	// root) pruned from the walk.
	Exclude []string `mapstructure:"exclude"`
	// Disable lists strategy names to leave out of the scan.
	Disable []string `mapstructure:"disable"`
	// Workers sizes the scan worker pools; 0 means one per CPU.
	Workers int `mapstructure:"workers"`
	// MaxDepth bounds traversal depth; 0 means unbounded.
	MaxDepth int `mapstructure:"max_depth"`
	// LogFile enables log output to the given path.
	LogFile string `mapstructure:"log_file"`
	// Confirm overrides the deletion confirmation default.
	Confirm *bool `mapstructure:"confirm"`
}

// loadConfig reads .spektr.yaml from the scan root, then the user config
// directory, unless an explicit path is given. A missing file is not an
// error; a malformed one is.
func loadConfig(scanRoot, explicit string) (Config, error) {
	v := viper.New()
	v.SetDefault("workers", 0)
	v.SetDefault("max_depth", 0)
	v.SetEnvPrefix("SPEKTR")
	v.AutomaticEnv()

	if explicit != "" {
		v.SetConfigFile(explicit)
	} else {
		v.SetConfigName(".spektr")
		v.SetConfigType("yaml")
		v.AddConfigPath(scanRoot)
		for _, dir := range userConfigDirs() {
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if explicit != "" {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func userConfigDirs() []string {
	var dirs []string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		dirs = append(dirs, filepath.Join(xdg, "spektr"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".config", "spektr"))
	}
	return dirs
}

func validateConfig(cfg Config) error {
	if cfg.Workers < 0 {
		return errors.New("config: workers must be >= 0")
	}
	if cfg.MaxDepth < 0 {
		return errors.New("config: max_depth must be >= 0")
	}
	return nil
}

// compileExcludes turns configured patterns into matchers up front so a bad
// pattern fails the run instead of one path check at a time.
func compileExcludes(patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		compiled, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("config: bad exclude pattern %q: %w", pattern, err)
		}
		globs = append(globs, compiled)
	}
	return globs, nil
}

// mergeSkipDirs folds configured extra names into the default skip set.
func mergeSkipDirs(base map[string]struct{}, extra []string) map[string]struct{} {
	if base == nil {
		base = map[string]struct{}{}
	}
	for _, name := range extra {
		if name == "" {
			continue
		}
		base[name] = struct{}{}
	}
	return base
}
