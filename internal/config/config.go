// Package config loads the configuration of the reload host from a YAML or TOML file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	manager "github.com/DataDog/reload-manager"
	"github.com/DataDog/reload-manager/internal/logging"
)

// ErrNoArtifact - Neither the configuration file nor the command line named an artifact
var ErrNoArtifact = errors.New("artifact is required")

// Config - Settings of the reload host
type Config struct {
	// Artifact - Path of the unit to run and watch
	Artifact string
	// CacheDir - Directory receiving the private copy of every loaded generation
	CacheDir string
	// PollInterval - Delay between two polls of the artifact
	PollInterval time.Duration
	// MaxBackoff - Upper bound of the delay between two stat retries
	MaxBackoff time.Duration
	// StatRetry - Number of times a failed stat is retried within a poll
	StatRetry uint
	// LoadRetry - Number of times reading the artifact is retried
	LoadRetry uint
	// LoadRetryDelay - Initial delay between two read attempts
	LoadRetryDelay time.Duration
	// LogLevel - logrus level name
	LogLevel string
	// LogFormat - text or json
	LogFormat string
}

// Default returns the configuration used when no file is provided
func Default() Config {
	return Config{
		PollInterval:   100 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		StatRetry:      5,
		LoadRetry:      3,
		LoadRetryDelay: 50 * time.Millisecond,
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// fileConfig is the on-disk layout. Durations are Go duration strings ("250ms").
type fileConfig struct {
	Artifact       string `yaml:"artifact" toml:"artifact"`
	CacheDir       string `yaml:"cache_dir" toml:"cache_dir"`
	PollInterval   string `yaml:"poll_interval" toml:"poll_interval"`
	MaxBackoff     string `yaml:"max_backoff" toml:"max_backoff"`
	StatRetry      *uint  `yaml:"stat_retry" toml:"stat_retry"`
	LoadRetry      *uint  `yaml:"load_retry" toml:"load_retry"`
	LoadRetryDelay string `yaml:"load_retry_delay" toml:"load_retry_delay"`
	LogLevel       string `yaml:"log_level" toml:"log_level"`
	LogFormat      string `yaml:"log_format" toml:"log_format"`
}

// Load reads the configuration file at path. The format is chosen from the extension: .yml and .yaml for YAML,
// .toml for TOML. Unknown keys are rejected; missing keys keep their default value. The result is not validated:
// command line flags may still complete it.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	var raw fileConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yml", ".yaml":
		err = decodeYAML(data, &raw)
	case ".toml":
		err = decodeTOML(data, &raw)
	default:
		return Config{}, fmt.Errorf("unsupported config format %q (expected .yml, .yaml or .toml)", ext)
	}
	if err != nil {
		return Config{}, err
	}

	cfg := Default()
	if err := cfg.apply(raw); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeYAML(data []byte, raw *fileConfig) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(raw); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

func decodeTOML(data []byte, raw *fileConfig) error {
	meta, err := toml.Decode(string(data), raw)
	if err != nil {
		return fmt.Errorf("failed to parse TOML: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return fmt.Errorf("failed to parse TOML: unknown keys %s", strings.Join(keys, ", "))
	}
	return nil
}

func (c *Config) apply(raw fileConfig) error {
	if v := strings.TrimSpace(raw.Artifact); v != "" {
		c.Artifact = v
	}
	if v := strings.TrimSpace(raw.CacheDir); v != "" {
		c.CacheDir = v
	}
	if raw.StatRetry != nil {
		c.StatRetry = *raw.StatRetry
	}
	if raw.LoadRetry != nil {
		c.LoadRetry = *raw.LoadRetry
	}
	if v := strings.TrimSpace(raw.LogLevel); v != "" {
		c.LogLevel = v
	}
	if v := strings.TrimSpace(raw.LogFormat); v != "" {
		c.LogFormat = v
	}

	durations := []struct {
		key string
		raw string
		out *time.Duration
	}{
		{"poll_interval", raw.PollInterval, &c.PollInterval},
		{"max_backoff", raw.MaxBackoff, &c.MaxBackoff},
		{"load_retry_delay", raw.LoadRetryDelay, &c.LoadRetryDelay},
	}
	for _, d := range durations {
		v := strings.TrimSpace(d.raw)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.out = parsed
	}
	return nil
}

// Validate checks the configuration is usable
func (c Config) Validate() error {
	if strings.TrimSpace(c.Artifact) == "" {
		return ErrNoArtifact
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval)
	}
	if c.MaxBackoff < 0 {
		return fmt.Errorf("max_backoff must not be negative, got %s", c.MaxBackoff)
	}
	if c.LoadRetryDelay < 0 {
		return fmt.Errorf("load_retry_delay must not be negative, got %s", c.LoadRetryDelay)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if _, err := logging.ParseFormat(c.LogFormat); err != nil {
		return fmt.Errorf("log_format must be text or json: %w", err)
	}
	return nil
}

// ManagerOptions returns the manager options matching the configuration
func (c Config) ManagerOptions(logger logrus.FieldLogger) manager.Options {
	return manager.Options{
		ArtifactPath:   c.Artifact,
		CacheDir:       c.CacheDir,
		PollInterval:   c.PollInterval,
		MaxPollBackoff: c.MaxBackoff,
		StatRetry:      c.StatRetry,
		LoadRetry:      c.LoadRetry,
		LoadRetryDelay: c.LoadRetryDelay,
		Logger:         logger,
	}
}
