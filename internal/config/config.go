// Package config carries the pipeline tunables and checks startup
// credentials.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "5m" or "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the set of pipeline tunables. Zero values fall back to the
// defaults below.
type Config struct {
	Provider    string   `yaml:"provider"`
	Model       string   `yaml:"model"`
	ValTimes    int      `yaml:"val_times"`
	MinVotes    int      `yaml:"min_votes"`
	Concurrency int      `yaml:"concurrency"`
	DeploySpan  Duration `yaml:"deploy_span"`
	UploadSpan  Duration `yaml:"upload_span"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Provider:   "openai",
		Model:      "openai/gpt-4o",
		ValTimes:   5,
		MinVotes:   4,
		DeploySpan: Duration(5 * time.Minute),
		UploadSpan: Duration(30 * time.Second),
	}
}

// Load reads a YAML config file over the defaults. An empty path returns
// the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	if cfg.ValTimes < 1 {
		return cfg, fmt.Errorf("val_times must be at least 1, got %d", cfg.ValTimes)
	}
	if cfg.MinVotes < 1 || cfg.MinVotes > cfg.ValTimes {
		return cfg, fmt.Errorf("min_votes must be between 1 and val_times (%d), got %d", cfg.ValTimes, cfg.MinVotes)
	}
	return cfg, nil
}

// RequireEnv fails when any of the named environment variables is unset.
// Missing credentials are a startup-time fatal error, not a mid-run one.
func RequireEnv(names ...string) error {
	for _, name := range names {
		if os.Getenv(name) == "" {
			return fmt.Errorf("%s environment variable not set", name)
		}
	}
	return nil
}
