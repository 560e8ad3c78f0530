package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"reviewsync/internal/domain/submission"
)

// Config is the client's externally supplied settings. Bounded values are
// clamped on load, never trusted as-is.
type Config struct {
	BaseURL                string        `yaml:"baseUrl"`
	Email                  string        `yaml:"email"`
	EmployeeValuesPageSize int           `yaml:"employeeValuesPageSize"`
	DraftAutosaveDelay     time.Duration `yaml:"draftAutosaveDelay"`
	ExportDir              string        `yaml:"exportDir"`
	DevServer              bool          `yaml:"devServer"`
}

func Load() Config {
	cfg := Config{
		BaseURL:                getEnv("REVIEWSYNC_BASE_URL", ""),
		Email:                  getEnv("REVIEWSYNC_EMAIL", ""),
		EmployeeValuesPageSize: getEnvInt("REVIEWSYNC_VALUES_PAGE_SIZE", 20),
		DraftAutosaveDelay:     getEnvDuration("REVIEWSYNC_AUTOSAVE_DELAY", 2*time.Second),
		ExportDir:              getEnv("REVIEWSYNC_EXPORT_DIR", "exports"),
		DevServer:              getEnvBool("REVIEWSYNC_DEV_SERVER", false),
	}
	return cfg.clamped()
}

// ApplyFile overlays settings from a YAML config file; unset fields keep
// their current values. A missing file is not an error.
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var overlay Config
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	if overlay.BaseURL != "" {
		c.BaseURL = overlay.BaseURL
	}
	if overlay.Email != "" {
		c.Email = overlay.Email
	}
	if overlay.EmployeeValuesPageSize != 0 {
		c.EmployeeValuesPageSize = overlay.EmployeeValuesPageSize
	}
	if overlay.DraftAutosaveDelay != 0 {
		c.DraftAutosaveDelay = overlay.DraftAutosaveDelay
	}
	if overlay.ExportDir != "" {
		c.ExportDir = overlay.ExportDir
	}
	if overlay.DevServer {
		c.DevServer = true
	}
	*c = c.clamped()
	return nil
}

func (c Config) clamped() Config {
	c.EmployeeValuesPageSize = submission.ClampPageSize(c.EmployeeValuesPageSize)
	c.DraftAutosaveDelay = submission.ClampAutosaveDelay(c.DraftAutosaveDelay)
	return c
}

func (c Config) Validate() error {
	if !c.DevServer && strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("REVIEWSYNC_BASE_URL is required")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
