// Package config loads the settings of the cachetx binary from a YAML
// file and CACHETX_ environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	responsetransformer "github.com/always-cache/cachetx/pkg/response-transformer"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of all environment variables.
const EnvPrefix = "CACHETX_"

type Config struct {
	// Origin URL to proxy to.
	Origin string `yaml:"origin" env:"ORIGIN"`
	// Hostname of the origin, if the URL holds just an address.
	Host string `yaml:"host" env:"HOST"`
	Port int    `yaml:"port" env:"PORT"`
	// Cache DB file name, or "memory" for an in-memory cache.
	DB                 string        `yaml:"db" env:"DB"`
	LockTimeout        time.Duration `yaml:"lockTimeout" env:"LOCK_TIMEOUT"`
	PartialLockTimeout time.Duration `yaml:"partialLockTimeout" env:"PARTIAL_LOCK_TIMEOUT"`
	PrefetchReuse      time.Duration `yaml:"prefetchReuse" env:"PREFETCH_REUSE"`
	// Paths to load into the cache at startup.
	Prefetch            []string `yaml:"prefetch" env:"PREFETCH" envSeparator:","`
	PrefetchConcurrency int      `yaml:"prefetchConcurrency" env:"PREFETCH_CONCURRENCY"`
	// Validate all stored responses this often, disabled if zero.
	RefreshInterval time.Duration             `yaml:"refreshInterval" env:"REFRESH_INTERVAL"`
	Rules           responsetransformer.Rules `yaml:"rules"`
	Log             Log                       `yaml:"log" envPrefix:"LOG_"`
}

type Log struct {
	Level string `yaml:"level" env:"LEVEL"`
	// Log file to use in addition to stdout.
	File       string `yaml:"file" env:"FILE"`
	MaxSizeMB  int    `yaml:"maxSizeMB" env:"MAX_SIZE_MB"`
	MaxBackups int    `yaml:"maxBackups" env:"MAX_BACKUPS"`
	MaxAgeDays int    `yaml:"maxAgeDays" env:"MAX_AGE_DAYS"`
}

// Default returns the settings used for everything not configured.
func Default() Config {
	return Config{
		Port:                8080,
		DB:                  "cache.db",
		LockTimeout:         20 * time.Second,
		PartialLockTimeout:  time.Second,
		PrefetchReuse:       5 * time.Minute,
		PrefetchConcurrency: 4,
		Log: Log{
			Level:      "debug",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load reads the YAML file, if any, over the defaults and then applies the
// environment.
func Load(filename string) (Config, error) {
	config := Default()
	if filename != "" {
		configBytes, err := os.ReadFile(filename)
		if err != nil {
			return config, err
		}
		if err := yaml.Unmarshal(configBytes, &config); err != nil {
			return config, fmt.Errorf("parse %s: %w", filename, err)
		}
	}
	if err := env.ParseWithOptions(&config, env.Options{Prefix: EnvPrefix}); err != nil {
		return config, fmt.Errorf("parse env: %w", err)
	}
	return config, nil
}

// OriginURL returns the parsed origin.
func (c Config) OriginURL() (*url.URL, error) {
	if c.Origin == "" {
		return nil, errors.New("no origin configured")
	}
	u, err := url.Parse(c.Origin)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("origin %q is not an absolute URL", c.Origin)
	}
	if u.Path != "" && u.Path != "/" {
		return nil, fmt.Errorf("origin %q has a path, which is not supported", c.Origin)
	}
	return u, nil
}

// Validate checks the settings before they are used.
func (c Config) Validate() error {
	if _, err := c.OriginURL(); err != nil {
		return err
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.DB == "" {
		return errors.New("no cache db configured")
	}
	if c.LockTimeout <= 0 || c.PartialLockTimeout <= 0 {
		return errors.New("lock timeouts must be positive")
	}
	if c.RefreshInterval < 0 {
		return errors.New("refresh interval must not be negative")
	}
	return nil
}
