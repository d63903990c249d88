// Package config loads the engine's immutable startup configuration: one
// struct populated from a YAML file with environment-variable overrides,
// resolved once at process start and never mutated afterward. Hot-path
// tunables that change at runtime live in pkg/settings instead.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// SSHTimeouts mirrors the independently configurable connector timeouts.
type SSHTimeouts struct {
	ConnectSeconds  int `yaml:"connect_seconds"`
	AuthSeconds     int `yaml:"auth_seconds"`
	BannerSeconds   int `yaml:"banner_seconds"`
	BlockingSeconds int `yaml:"blocking_seconds"`
	ReadSeconds     int `yaml:"read_seconds"`
	SessionSeconds  int `yaml:"session_seconds"`
	OverallSeconds  int `yaml:"overall_seconds"`
}

// Config is the engine's one load-at-start configuration struct.
type Config struct {
	DatabaseURL     string `yaml:"database_url"`
	RedisURL        string `yaml:"redis_url"`
	WorkerConcurrency int  `yaml:"worker_concurrency"`

	DefaultBlobTTLMinutes int               `yaml:"default_blob_ttl_minutes"`
	CommandTTLOverrides   map[string]int    `yaml:"command_ttl_overrides"` // minutes, keyed by endpoint name

	SSH SSHTimeouts `yaml:"ssh_timeouts"`

	CredentialEncryptionKey string `yaml:"credential_encryption_key"`

	DefaultAdminUsername string `yaml:"default_admin_username"`
	DefaultAdminPassword string `yaml:"default_admin_password"`

	HTTPAddr string `yaml:"http_addr"`

	RuntimeSettingsTTLSeconds int `yaml:"runtime_settings_ttl_seconds"`
}

// Default returns a Config with the spec's documented default values.
func Default() *Config {
	return &Config{
		DatabaseURL:           "postgres://localhost:5432/noc?sslmode=disable",
		RedisURL:              "redis://localhost:6379/0",
		WorkerConcurrency:     4,
		DefaultBlobTTLMinutes: 30,
		CommandTTLOverrides:   map[string]int{},
		SSH: SSHTimeouts{
			ConnectSeconds:  10,
			AuthSeconds:     10,
			BannerSeconds:   15,
			BlockingSeconds: 20,
			ReadSeconds:     10,
			SessionSeconds:  60,
			OverallSeconds:  100,
		},
		HTTPAddr:                  ":8080",
		RuntimeSettingsTTLSeconds: 30,
	}
}

// Load reads a YAML file at path (if it exists) over the defaults, then
// applies environment-variable overrides, and returns the resolved Config.
// A missing file is not an error — defaults plus environment apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("config: database_url is required")
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("config: redis_url is required")
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("NOC_DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("NOC_REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := envInt("NOC_WORKER_CONCURRENCY"); v != nil {
		cfg.WorkerConcurrency = *v
	}
	if v := envInt("NOC_CACHE_TTL_MINUTES"); v != nil {
		cfg.DefaultBlobTTLMinutes = *v
	}
	if v := envInt("NOC_SSH_CONNECT_TIMEOUT"); v != nil {
		cfg.SSH.ConnectSeconds = *v
	}
	if v := envInt("NOC_SSH_AUTH_TIMEOUT"); v != nil {
		cfg.SSH.AuthSeconds = *v
	}
	if v := envInt("NOC_SSH_BANNER_TIMEOUT"); v != nil {
		cfg.SSH.BannerSeconds = *v
	}
	if v := envInt("NOC_SSH_BLOCKING_TIMEOUT"); v != nil {
		cfg.SSH.BlockingSeconds = *v
	}
	if v := envInt("NOC_SSH_READ_TIMEOUT"); v != nil {
		cfg.SSH.ReadSeconds = *v
	}
	if v := envInt("NOC_SSH_SESSION_TIMEOUT"); v != nil {
		cfg.SSH.SessionSeconds = *v
	}
	if v := envInt("NOC_SSH_OVERALL_TIMEOUT"); v != nil {
		cfg.SSH.OverallSeconds = *v
	}
	if v := os.Getenv("NOC_CREDENTIAL_ENCRYPTION_KEY"); v != "" {
		cfg.CredentialEncryptionKey = v
	}
	if v := os.Getenv("NOC_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("NOC_DEFAULT_ADMIN_USERNAME"); v != "" {
		cfg.DefaultAdminUsername = v
	}
	if v := os.Getenv("NOC_DEFAULT_ADMIN_PASSWORD"); v != "" {
		cfg.DefaultAdminPassword = v
	}
}

func envInt(key string) *int {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil
	}
	return &n
}

// DefaultBlobTTL returns the global JSON-blob TTL as a time.Duration.
func (c *Config) DefaultBlobTTL() time.Duration {
	return time.Duration(c.DefaultBlobTTLMinutes) * time.Minute
}

// CommandTTL returns the per-command override for endpoint, or the global
// default if none is configured.
func (c *Config) CommandTTL(endpoint string) time.Duration {
	if mins, ok := c.CommandTTLOverrides[endpoint]; ok {
		return time.Duration(mins) * time.Minute
	}
	return c.DefaultBlobTTL()
}

// SSHTimeoutsDuration converts SSH to the device package's Timeouts shape
// (avoids an import cycle; callers construct device.Timeouts from these).
func (c *Config) SSHTimeoutsDuration() (connect, auth, banner, blocking, read, session, overall time.Duration) {
	s := c.SSH
	return time.Duration(s.ConnectSeconds) * time.Second,
		time.Duration(s.AuthSeconds) * time.Second,
		time.Duration(s.BannerSeconds) * time.Second,
		time.Duration(s.BlockingSeconds) * time.Second,
		time.Duration(s.ReadSeconds) * time.Second,
		time.Duration(s.SessionSeconds) * time.Second,
		time.Duration(s.OverallSeconds) * time.Second
}
