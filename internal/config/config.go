// Package config loads the opening book settings from an optional YAML file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/jieqibox/openingbook/internal/store"
)

// DefaultDBPath is the database file used when none is configured.
const DefaultDBPath = "jieqi_openings.jb"

// Config is the on-disk configuration.
type Config struct {
	DBPath      string        `yaml:"db_path"`
	Compression string        `yaml:"compression"`
	LockTimeout time.Duration `yaml:"lock_timeout"`
	ProcessLock bool          `yaml:"process_lock"`
	SyncWrites  bool          `yaml:"sync_writes"`
	Log         LogConfig     `yaml:"log"`
}

// LogConfig configures logx.NewLogger.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DBPath:      DefaultDBPath,
		Compression: "default",
		LockTimeout: store.DefaultLockTimeout,
		ProcessLock: true,
		SyncWrites:  true,
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads path over the defaults. A missing or empty file yields the
// defaults; unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field values.
func (c Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	switch c.Compression {
	case "none", "fastest", "default", "better", "best":
	default:
		return fmt.Errorf("compression must be one of none, fastest, default, better, best; got %q", c.Compression)
	}
	if c.LockTimeout <= 0 {
		return fmt.Errorf("lock_timeout must be positive, got %v", c.LockTimeout)
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level)); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// StoreConfig builds the store configuration.
func (c Config) StoreConfig(logger zerolog.Logger) store.Config {
	return store.Config{
		Path:               c.DBPath,
		Compression:        c.Compression,
		LockTimeout:        c.LockTimeout,
		DisableProcessLock: !c.ProcessLock,
		NoSync:             !c.SyncWrites,
		Logger:             logger,
	}
}
