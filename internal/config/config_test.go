package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WorkerConcurrency != 4 {
		t.Errorf("WorkerConcurrency = %d, want 4", cfg.WorkerConcurrency)
	}
	if cfg.SSH.ConnectSeconds != 10 {
		t.Errorf("ConnectSeconds = %d, want 10", cfg.SSH.ConnectSeconds)
	}
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "worker_concurrency: 8\ndatabase_url: postgres://db/custom\nredis_url: redis://cache:6379/1\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WorkerConcurrency != 8 {
		t.Errorf("WorkerConcurrency = %d, want 8", cfg.WorkerConcurrency)
	}
	if cfg.DatabaseURL != "postgres://db/custom" {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, []byte("database_url: postgres://db/yaml\nredis_url: redis://cache:6379/1\n"), 0644)

	os.Setenv("NOC_DATABASE_URL", "postgres://db/env")
	defer os.Unsetenv("NOC_DATABASE_URL")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DatabaseURL != "postgres://db/env" {
		t.Errorf("DatabaseURL = %q, want env override", cfg.DatabaseURL)
	}
}

func TestLoad_MissingDatabaseURLErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, []byte("database_url: \"\"\nredis_url: redis://cache:6379/1\n"), 0644)

	os.Unsetenv("NOC_DATABASE_URL")
	if _, err := Load(path); err == nil {
		t.Error("Load() should error with empty database_url")
	}
}

func TestCommandTTL_OverrideAndFallback(t *testing.T) {
	cfg := Default()
	cfg.CommandTTLOverrides["interfaces"] = 5

	if got := cfg.CommandTTL("interfaces"); got.Minutes() != 5 {
		t.Errorf("CommandTTL(interfaces) = %v, want 5m", got)
	}
	if got := cfg.CommandTTL("ip-arp"); got.Minutes() != 30 {
		t.Errorf("CommandTTL(ip-arp) = %v, want default 30m", got)
	}
}
