package reroute

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port   int    `yaml:"port"`
		Origin string `yaml:"origin"`
	} `yaml:"server"`

	Store struct {
		Path       string `yaml:"path"`
		Collection string `yaml:"collection"`
		Timeout    string `yaml:"timeout"`

		timeoutDur time.Duration
	} `yaml:"store"`

	Redirects struct {
		Exclude []string `yaml:"exclude"`
	} `yaml:"redirects"`

	Logging struct {
		Level         string `yaml:"level"`
		LogStatsEvery string `yaml:"logStatsEvery"`

		logStatsEveryDur time.Duration
	} `yaml:"logging"`
}

// StoreTimeout is the parsed store.timeout.
func (c Config) StoreTimeout() time.Duration { return c.Store.timeoutDur }

// LogStatsEvery is the parsed logging.logStatsEvery; zero disables stats.
func (c Config) LogStatsEvery() time.Duration { return c.Logging.logStatsEveryDur }

func LoadConfig(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return ParseConfig(b)
}

// ParseConfig decodes YAML and applies defaults. server.origin is only
// checked by callers that proxy to it.
func ParseConfig(b []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Normalize applies defaults and parses durations. It is safe to call again
// after changing fields.
func (cfg *Config) Normalize() error {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	cfg.Server.Origin = strings.TrimRight(strings.TrimSpace(cfg.Server.Origin), "/")
	if cfg.Server.Origin != "" {
		u, err := url.Parse(cfg.Server.Origin)
		if err != nil {
			return fmt.Errorf("server.origin: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("server.origin: scheme must be http or https, got %q", u.Scheme)
		}
	}

	if cfg.Store.Collection == "" {
		cfg.Store.Collection = DefaultCollection
	}
	cfg.Store.timeoutDur = DefaultStoreTimeout
	if cfg.Store.Timeout != "" {
		d, err := time.ParseDuration(cfg.Store.Timeout)
		if err != nil {
			return fmt.Errorf("store.timeout: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("store.timeout: must be positive, got %s", d)
		}
		cfg.Store.timeoutDur = d
	}

	if cfg.Redirects.Exclude == nil {
		cfg.Redirects.Exclude = append([]string(nil), DefaultExclude...)
	}
	for i, p := range cfg.Redirects.Exclude {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("redirects.exclude[%d]: must start with /, got %q", i, p)
		}
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.LogStatsEvery != "" {
		d, err := time.ParseDuration(cfg.Logging.LogStatsEvery)
		if err != nil {
			return fmt.Errorf("logging.logStatsEvery: %w", err)
		}
		cfg.Logging.logStatsEveryDur = d
	}
	return nil
}

// DefaultConfig is the configuration used when no file is given.
func DefaultConfig() Config {
	var cfg Config
	_ = cfg.Normalize()
	return cfg
}
