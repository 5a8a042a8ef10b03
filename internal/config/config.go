// Package config loads forge configuration from YAML with environment
// overrides. A missing config file is not an error; every field has a
// usable default so the tool works out of the box against a local server.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all forge configuration.
type Config struct {
	// Primary is the locally hosted backend tried first.
	Primary BackendConfig `yaml:"primary"`

	// Fallback is the cloud backend used when the primary is unavailable.
	Fallback BackendConfig `yaml:"fallback"`

	// FallbackEnabled permits routing to the fallback at all.
	FallbackEnabled bool `yaml:"fallback_enabled"`

	// RepairEnabled permits the single repair call after a failed attempt.
	RepairEnabled bool `yaml:"repair_enabled"`

	Generation GenerationConfig `yaml:"generation"`
	Breaker    BreakerConfig    `yaml:"breaker"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// BackendConfig describes one backend endpoint. Durations are strings in
// time.ParseDuration syntax so the YAML stays readable ("120s", "5m").
type BackendConfig struct {
	URL           string `yaml:"url"`
	Model         string `yaml:"model"`
	APIKey        string `yaml:"api_key"`
	Timeout       string `yaml:"timeout"`
	HealthTimeout string `yaml:"health_timeout"`
}

// GenerationConfig shapes the generation calls themselves.
type GenerationConfig struct {
	Temperature float64 `yaml:"temperature"`

	// MinInputLength rejects inputs too short to improve meaningfully.
	MinInputLength int `yaml:"min_input_length"`
}

// BreakerConfig configures the circuit breaker guarding the primary.
type BreakerConfig struct {
	FailureThreshold int    `yaml:"failure_threshold"`
	Cooldown         string `yaml:"cooldown"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	JSON  bool   `yaml:"json"`
}

// DefaultConfig returns the configuration used when no file is present:
// an Ollama-style local primary with a short deadline and a cloud fallback
// with a generous one.
func DefaultConfig() *Config {
	return &Config{
		Primary: BackendConfig{
			URL:           "http://localhost:11434",
			Model:         "llama3.1",
			Timeout:       "30s",
			HealthTimeout: "30s",
		},
		Fallback: BackendConfig{
			URL:     "https://api.openai.com",
			Model:   "gpt-4o-mini",
			Timeout: "120s",
		},
		FallbackEnabled: true,
		RepairEnabled:   true,
		Generation: GenerationConfig{
			Temperature:    0.2,
			MinInputLength: 5,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			Cooldown:         "5m",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from path, merging it over the defaults. A
// missing file returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides. API keys in
// particular should never live in the config file.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("FORGE_API_KEY"); key != "" {
		c.Fallback.APIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && c.Fallback.APIKey == "" {
		c.Fallback.APIKey = key
	}
	if url := os.Getenv("FORGE_PRIMARY_URL"); url != "" {
		c.Primary.URL = url
	}
	if url := os.Getenv("FORGE_FALLBACK_URL"); url != "" {
		c.Fallback.URL = url
	}
}

// TimeoutOr returns the backend's call deadline, or def when unset or
// unparseable.
func (b BackendConfig) TimeoutOr(def time.Duration) time.Duration {
	return parseDurationOr(b.Timeout, def)
}

// HealthTimeoutOr returns the health-probe deadline, or def.
func (b BackendConfig) HealthTimeoutOr(def time.Duration) time.Duration {
	return parseDurationOr(b.HealthTimeout, def)
}

// CooldownOr returns the breaker cooldown, or def.
func (b BreakerConfig) CooldownOr(def time.Duration) time.Duration {
	return parseDurationOr(b.Cooldown, def)
}

func parseDurationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// Validate rejects configurations the rest of the program cannot run with.
func (c *Config) Validate() error {
	if c.Primary.URL == "" {
		return fmt.Errorf("primary backend URL is required")
	}
	if c.FallbackEnabled && c.Fallback.URL == "" {
		return fmt.Errorf("fallback is enabled but no fallback URL is set")
	}
	if c.Generation.Temperature < 0 || c.Generation.Temperature > 2 {
		return fmt.Errorf("temperature %v out of range [0, 2]", c.Generation.Temperature)
	}
	if c.Breaker.FailureThreshold < 1 {
		return fmt.Errorf("breaker failure threshold must be at least 1")
	}
	return nil
}
