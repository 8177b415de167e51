// Package config loads application configuration from the environment,
// optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the full configuration surface of the field client.
type Config struct {
	API     APIConfig
	Storage StorageConfig
	Capture CaptureConfig
}

// APIConfig holds the backend routing surface.
type APIConfig struct {
	BaseURL  string        // backend host, e.g. https://api.example.co.id
	APIPath  string        // global prefix appended to BaseURL
	AuthPath string        // routing prefix for auth endpoints
	MainPath string        // routing prefix for opname endpoints
	Timeout  time.Duration // per-call HTTP timeout
}

// StorageConfig holds local persistence paths.
type StorageConfig struct {
	TokenFile string // JSON token store path
	LogFile   string // append-only application log
}

// CaptureConfig holds camera and composite render options.
type CaptureConfig struct {
	CameraCmd   string        // external capture command; prints the photo path
	OutputDir   string        // directory for composited photos
	SettleDelay time.Duration // render settle delay before compositing
	Watermark   string        // default watermark label
}

// Load reads environment variables (optionally from the provided file) and
// materializes a Config instance.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
			}
		}
	} else {
		// Missing .env files are acceptable when configuration comes from
		// the environment directly.
		_ = godotenv.Load()
	}

	cfg := &Config{
		API: APIConfig{
			BaseURL:  os.Getenv("API_BASE_URL"),
			APIPath:  getenvWithDefault("API_PATH", "/api/v1"),
			AuthPath: getenvWithDefault("AUTH_PATH", "/auth"),
			MainPath: getenvWithDefault("MAIN_PATH", "/so"),
			Timeout:  getenvDuration("HTTP_TIMEOUT", 10*time.Second),
		},
		Storage: StorageConfig{
			TokenFile: getenvWithDefault("TOKEN_FILE", filepath.Join(stateDir(), "token.json")),
			LogFile:   getenvWithDefault("LOG_FILE", filepath.Join(stateDir(), "app.log")),
		},
		Capture: CaptureConfig{
			CameraCmd:   os.Getenv("CAMERA_CMD"),
			OutputDir:   getenvWithDefault("CAPTURE_DIR", os.TempDir()),
			SettleDelay: getenvDuration("CAPTURE_SETTLE_DELAY", 100*time.Millisecond),
			Watermark:   getenvWithDefault("WATERMARK_LABEL", "Opname"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate ensures that required configuration fields are populated.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.API.BaseURL == "" {
		return errors.New("API_BASE_URL must be provided")
	}
	if !strings.HasPrefix(c.API.BaseURL, "http://") && !strings.HasPrefix(c.API.BaseURL, "https://") {
		return fmt.Errorf("API_BASE_URL must be an http(s) URL, got %q", c.API.BaseURL)
	}
	if c.API.Timeout <= 0 {
		return errors.New("HTTP_TIMEOUT must be > 0")
	}
	if c.Storage.TokenFile == "" {
		return errors.New("TOKEN_FILE must be provided")
	}
	if c.Storage.LogFile == "" {
		return errors.New("LOG_FILE must be provided")
	}
	if c.Capture.SettleDelay < 0 {
		return errors.New("CAPTURE_SETTLE_DELAY must not be negative")
	}
	return nil
}

func stateDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "opname")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "opname")
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
