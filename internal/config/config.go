// Package config provides configuration management for Engram.
// Settings come from an optional YAML file plus environment variables with
// the ENGRAM_ prefix; environment variables override file values, and every
// option has a sensible default.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for the Engram application.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Backup    BackupConfig    `yaml:"backup"`
}

// ServerConfig contains transport configuration.
type ServerConfig struct {
	Transport string `yaml:"transport"` // Transport type: stdio, websocket (default: stdio)
	Host      string `yaml:"host"`      // WebSocket listen host (default: 127.0.0.1)
	Port      int    `yaml:"port"`      // WebSocket listen port (default: 6363)
}

// StorageConfig contains database and storage configuration.
type StorageConfig struct {
	StorageEngine string `yaml:"storage_engine"` // Storage engine type: sqlite, postgres (default: sqlite)
	DataPath      string `yaml:"data_path"`      // Path to the SQLite data directory (default: ./data)
	PostgresDSN   string `yaml:"postgres_dsn"`   // PostgreSQL connection string (used when storage_engine=postgres)
}

// EmbeddingConfig contains embedding provider configuration.
type EmbeddingConfig struct {
	OllamaURL         string  `yaml:"ollama_url"`          // Ollama API URL (default: http://localhost:11434)
	Model             string  `yaml:"model"`               // Embedding model name (default: nomic-embed-text)
	Dimension         int     `yaml:"dimension"`           // Embedding vector dimension (default: 768)
	RequestsPerSecond float64 `yaml:"requests_per_second"` // Client-side rate limit for embed calls (default: 10)
}

// BackupConfig contains backup configuration.
type BackupConfig struct {
	BackupPath      string `yaml:"backup_path"`      // Path to the backup directory (default: ./backups)
	BackupRetention int    `yaml:"backup_retention"` // Number of backups to keep (default: 7)
}

// LoadConfig loads configuration from an optional YAML file and environment
// variables. When ENGRAM_CONFIG_FILE points at a file, it is parsed first;
// environment variables then override any value it set. All environment
// variables use the ENGRAM_ prefix.
func LoadConfig() (*Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("ENGRAM_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// defaultConfig constructs a Config with all defaults applied.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Transport: "stdio",
			Host:      "127.0.0.1",
			Port:      6363,
		},
		Storage: StorageConfig{
			StorageEngine: "sqlite",
			DataPath:      "./data",
		},
		Embedding: EmbeddingConfig{
			OllamaURL:         "http://localhost:11434",
			Model:             "nomic-embed-text",
			Dimension:         768,
			RequestsPerSecond: 10,
		},
		Backup: BackupConfig{
			BackupPath:      "./backups",
			BackupRetention: 7,
		},
	}
}

// applyEnvOverrides replaces config values with ENGRAM_ environment
// variables where set.
func applyEnvOverrides(cfg *Config) {
	cfg.Server.Transport = getEnv("ENGRAM_TRANSPORT", cfg.Server.Transport)
	cfg.Server.Host = getEnv("ENGRAM_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvInt("ENGRAM_PORT", cfg.Server.Port)

	cfg.Storage.StorageEngine = getEnv("ENGRAM_STORAGE_ENGINE", cfg.Storage.StorageEngine)
	cfg.Storage.DataPath = getEnv("ENGRAM_DATA_PATH", cfg.Storage.DataPath)
	cfg.Storage.PostgresDSN = getEnv("ENGRAM_POSTGRES_DSN", cfg.Storage.PostgresDSN)

	cfg.Embedding.OllamaURL = getEnv("ENGRAM_OLLAMA_URL", cfg.Embedding.OllamaURL)
	cfg.Embedding.Model = getEnv("ENGRAM_EMBEDDING_MODEL", cfg.Embedding.Model)
	cfg.Embedding.Dimension = getEnvInt("ENGRAM_EMBEDDING_DIMENSION", cfg.Embedding.Dimension)
	cfg.Embedding.RequestsPerSecond = getEnvFloat("ENGRAM_EMBEDDING_RPS", cfg.Embedding.RequestsPerSecond)

	cfg.Backup.BackupPath = getEnv("ENGRAM_BACKUP_PATH", cfg.Backup.BackupPath)
	cfg.Backup.BackupRetention = getEnvInt("ENGRAM_BACKUP_RETENTION", cfg.Backup.BackupRetention)
}

// Validate checks cross-field constraints that cannot be defaulted away.
func (c *Config) Validate() error {
	switch c.Server.Transport {
	case "stdio", "websocket":
	default:
		return fmt.Errorf("config: unknown transport %q (want stdio or websocket)", c.Server.Transport)
	}

	switch c.Storage.StorageEngine {
	case "sqlite":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("config: storage_engine=postgres requires ENGRAM_POSTGRES_DSN")
		}
	default:
		return fmt.Errorf("config: unknown storage engine %q (want sqlite or postgres)", c.Storage.StorageEngine)
	}

	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("config: embedding dimension must be positive")
	}

	return nil
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value.
// If the environment variable exists but cannot be parsed as an integer,
// it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
