package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/organization-ai-projects/ai-search/internal/logger"
)

// Config represents the brainkit configuration file
// (~/.config/brainkit/config.yaml). Pointer fields distinguish "not set"
// from zero values.
type Config struct {
	// Network
	DIn     *int64 `yaml:"d_in"`
	DHidden *int64 `yaml:"d_hidden"`
	DOut    *int64 `yaml:"d_out"`
	Seed    *int64 `yaml:"seed"`

	// Runner and loop
	Steps     *int64   `yaml:"steps"`
	KCand     *int64   `yaml:"k_cand"`
	KPool     *int64   `yaml:"k_pool"`
	TieMargin *float64 `yaml:"tie_margin"`
	Workers   *int64   `yaml:"workers"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Storage
	SnapshotDir string `yaml:"snapshot_dir"`
	JournalPath string `yaml:"journal_path"`

	// Server
	ServerAddress string   `yaml:"server_address"`
	RateLimit     *float64 `yaml:"rate_limit"`
	RateBurst     *int64   `yaml:"rate_burst"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "brainkit", "config.yaml")
}

// LoadConfig reads the config file at path. A missing file yields a zero
// Config.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// applyConfig copies config file values into o for every flag the user
// did not set explicitly on c.
func applyConfig(c *cli.Command, cfg Config, o *options) {
	setInt := func(flag string, v *int64, dst *int64) {
		if v != nil && !c.IsSet(flag) {
			*dst = *v
		}
	}
	setString := func(flag, v string, dst *string) {
		if v != "" && !c.IsSet(flag) {
			*dst = v
		}
	}

	setInt("d-in", cfg.DIn, &o.DIn)
	setInt("d-hidden", cfg.DHidden, &o.DHidden)
	setInt("d-out", cfg.DOut, &o.DOut)
	setInt("seed", cfg.Seed, &o.Seed)
	setInt("steps", cfg.Steps, &o.Steps)
	setInt("k-cand", cfg.KCand, &o.KCand)
	setInt("k-pool", cfg.KPool, &o.KPool)
	setInt("workers", cfg.Workers, &o.Workers)
	setInt("rate-burst", cfg.RateBurst, &o.RateBurst)
	if cfg.TieMargin != nil && !c.IsSet("tie-margin") {
		o.TieMargin = *cfg.TieMargin
	}
	if cfg.RateLimit != nil && !c.IsSet("rate-limit") {
		o.RateLimit = *cfg.RateLimit
	}

	setString("log-level", cfg.LogLevel, &o.LogLevel)
	setString("log-format", cfg.LogFormat, &o.LogFormat)
	setString("snapshot", cfg.SnapshotDir, &o.SnapshotDir)
	setString("journal", cfg.JournalPath, &o.JournalPath)
	setString("addr", cfg.ServerAddress, &o.Addr)
}

// prepare loads the config file into o and returns a context carrying the
// logger the options describe.
func prepare(ctx context.Context, c *cli.Command, o *options) (context.Context, error) {
	cfg, err := LoadConfig(o.ConfigPath)
	if err != nil {
		return ctx, err
	}
	applyConfig(c, cfg, o)

	level := o.LogLevel
	if o.Debug {
		level = "debug"
	}
	log, err := logger.Open(os.Stderr, o.LogFormat, level)
	if err != nil {
		return ctx, err
	}
	return logger.WithContext(ctx, log), nil
}
