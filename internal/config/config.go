package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/swiftlens/swiftlens-go/internal/engine"
)

// Config represents the swiftlens.yaml configuration. Environment
// variables override file values; everything is clamped to safe ranges.
type Config struct {
	// Workers is the analysis pool size. Clamped to [1, min(32, 2×CPU)].
	Workers int `yaml:"workers"`
	// MaxFiles bounds how many files a single batch call may name.
	MaxFiles int `yaml:"max_files"`
	// CacheSize is the number of LSP clients each worker keeps alive.
	CacheSize int `yaml:"cache_size"`
	// LSPTimeoutSeconds is the per-operation backend timeout.
	LSPTimeoutSeconds int `yaml:"lsp_timeout_seconds"`
	// AllowOutsideCWD permits analyzing files outside the working directory.
	AllowOutsideCWD bool `yaml:"allow_outside_cwd"`
	// Debug enables verbose stderr logging.
	Debug bool `yaml:"debug"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Workers:           engine.DefaultWorkers,
		MaxFiles:          engine.DefaultMaxFiles,
		CacheSize:         engine.DefaultMaxCacheSize,
		LSPTimeoutSeconds: int(engine.DefaultTimeout / time.Second),
	}
}

// Load reads a configuration file from the given path, fills missing
// fields with defaults, and applies environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.applyEnv()
	cfg.clamp()
	return cfg, nil
}

// FromEnv returns the default config with environment overrides applied.
// Used when no config file is present.
func FromEnv() *Config {
	cfg := Default()
	cfg.applyEnv()
	cfg.clamp()
	return cfg
}

func (c *Config) applyEnv() {
	c.Workers = envInt("SWIFTLENS_MAX_WORKERS", c.Workers)
	c.MaxFiles = envInt("SWIFTLENS_MAX_FILES", c.MaxFiles)
	c.CacheSize = envInt("SWIFTLENS_CACHE_SIZE", c.CacheSize)
	c.LSPTimeoutSeconds = envInt("SWIFTLENS_LSP_TIMEOUT_SECONDS", c.LSPTimeoutSeconds)
	if envBool("SWIFTLENS_DEBUG") {
		c.Debug = true
	}
	if envBool("SWIFTLENS_ALLOW_OUTSIDE_CWD") {
		c.AllowOutsideCWD = true
	}
}

// clamp forces every numeric setting into a safe positive range. Bad
// values fall back rather than fail: a misconfigured environment must
// never keep the server from starting.
func (c *Config) clamp() {
	if c.Workers < 1 {
		c.Workers = engine.DefaultWorkers
	}
	if limit := engine.MaxWorkerClamp(); c.Workers > limit {
		c.Workers = limit
	}
	if c.MaxFiles < 1 {
		c.MaxFiles = engine.DefaultMaxFiles
	}
	if c.CacheSize < 1 {
		c.CacheSize = engine.DefaultMaxCacheSize
	}
	if c.LSPTimeoutSeconds < 1 {
		c.LSPTimeoutSeconds = int(engine.DefaultTimeout / time.Second)
	}
}

// EngineOptions maps the config onto engine options.
func (c *Config) EngineOptions() engine.Options {
	return engine.Options{
		Workers:   c.Workers,
		MaxFiles:  c.MaxFiles,
		CacheSize: c.CacheSize,
		Timeout:   time.Duration(c.LSPTimeoutSeconds) * time.Second,
	}
}

// envInt reads a positive integer from the environment, falling back to
// def when unset, unparseable, or non-positive.
func envInt(name string, def int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return def
	}
	return v
}

func envBool(name string) bool {
	switch os.Getenv(name) {
	case "1", "true", "yes":
		return true
	}
	return false
}
