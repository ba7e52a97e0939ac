// Package config loads process configuration: built-in defaults, then an
// optional YAML file, then environment variables (a .env file is read
// first when present).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // json or console

	// Directory for native working copies; empty means os.TempDir.
	WorkDir string `yaml:"work_dir"`

	// Script evaluation
	ScriptTimeout time.Duration `yaml:"script_timeout"`

	// Shared document
	SchemaVersion string `yaml:"schema_version"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel:      "info",
		LogFormat:     "console",
		ScriptTimeout: 5 * time.Second,
		SchemaVersion: "3.0.0",
	}
}

// Load builds a Config. path names an optional YAML file; an empty path
// skips it.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: %s: %w", path, err)
		}
	}

	if err := loadDotEnv(); err != nil {
		return cfg, err
	}

	cfg.LogLevel = getEnv("CADSYNC_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("CADSYNC_LOG_FORMAT", cfg.LogFormat)
	cfg.WorkDir = getEnv("CADSYNC_WORK_DIR", cfg.WorkDir)
	cfg.SchemaVersion = getEnv("CADSYNC_SCHEMA_VERSION", cfg.SchemaVersion)
	if v := os.Getenv("CADSYNC_SCRIPT_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("config: CADSYNC_SCRIPT_TIMEOUT: %w", err)
		}
		cfg.ScriptTimeout = d
	}
	return cfg, nil
}

// loadDotEnv reads the nearest .env in the working directory or its two
// parents. Variables already set are kept. A malformed file is an error.
func loadDotEnv() error {
	for _, p := range []string{".env", filepath.Join("..", ".env"), filepath.Join("..", "..", ".env")} {
		if _, err := os.Stat(p); err == nil {
			if err := godotenv.Load(p); err != nil {
				return fmt.Errorf("config: %s: %w", p, err)
			}
			return nil
		}
	}
	return nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
