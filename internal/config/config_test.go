package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}

	if cfg.Server.Transport != "stdio" {
		t.Errorf("Transport: got %q, want stdio", cfg.Server.Transport)
	}
	if cfg.Server.Port != 6363 {
		t.Errorf("Port: got %d, want 6363", cfg.Server.Port)
	}
	if cfg.Storage.StorageEngine != "sqlite" {
		t.Errorf("StorageEngine: got %q, want sqlite", cfg.Storage.StorageEngine)
	}
	if cfg.Embedding.Model != "nomic-embed-text" {
		t.Errorf("Model: got %q, want nomic-embed-text", cfg.Embedding.Model)
	}
	if cfg.Embedding.Dimension != 768 {
		t.Errorf("Dimension: got %d, want 768", cfg.Embedding.Dimension)
	}
	if cfg.Backup.BackupRetention != 7 {
		t.Errorf("BackupRetention: got %d, want 7", cfg.Backup.BackupRetention)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config failed validation: %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ENGRAM_TRANSPORT", "websocket")
	t.Setenv("ENGRAM_PORT", "9000")
	t.Setenv("ENGRAM_EMBEDDING_MODEL", "all-minilm")
	t.Setenv("ENGRAM_EMBEDDING_RPS", "2.5")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}

	if cfg.Server.Transport != "websocket" {
		t.Errorf("Transport: got %q, want websocket", cfg.Server.Transport)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Port: got %d, want 9000", cfg.Server.Port)
	}
	if cfg.Embedding.Model != "all-minilm" {
		t.Errorf("Model: got %q, want all-minilm", cfg.Embedding.Model)
	}
	if cfg.Embedding.RequestsPerSecond != 2.5 {
		t.Errorf("RequestsPerSecond: got %v, want 2.5", cfg.Embedding.RequestsPerSecond)
	}
}

func TestUnparsableEnvIntKeepsDefault(t *testing.T) {
	t.Setenv("ENGRAM_PORT", "not-a-number")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}
	if cfg.Server.Port != 6363 {
		t.Errorf("Port: got %d, want default 6363", cfg.Server.Port)
	}
}

func TestConfigFileWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engram.yaml")
	data := []byte("server:\n  transport: websocket\n  port: 7000\nstorage:\n  storage_engine: sqlite\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	t.Setenv("ENGRAM_CONFIG_FILE", path)
	t.Setenv("ENGRAM_PORT", "8000")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}
	if cfg.Server.Transport != "websocket" {
		t.Errorf("Transport: got %q, want websocket (from file)", cfg.Server.Transport)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("Port: got %d, want 8000 (env overrides file)", cfg.Server.Port)
	}
	// Fields the file omits keep their defaults.
	if cfg.Embedding.Dimension != 768 {
		t.Errorf("Dimension: got %d, want default 768", cfg.Embedding.Dimension)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"bad transport", func(c *Config) { c.Server.Transport = "carrier-pigeon" }, true},
		{"bad engine", func(c *Config) { c.Storage.StorageEngine = "mongodb" }, true},
		{"postgres without dsn", func(c *Config) { c.Storage.StorageEngine = "postgres" }, true},
		{"postgres with dsn", func(c *Config) {
			c.Storage.StorageEngine = "postgres"
			c.Storage.PostgresDSN = "postgres://localhost/engram"
		}, false},
		{"zero dimension", func(c *Config) { c.Embedding.Dimension = 0 }, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr && err == nil {
				t.Error("Validate() succeeded, want error")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("Validate() failed: %v", err)
			}
		})
	}
}
