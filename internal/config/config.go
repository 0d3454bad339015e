package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	SpreadsheetID       string `envconfig:"CLIPSHEET_SPREADSHEET_ID" required:"true"`
	SourceSpreadsheetID string `envconfig:"CLIPSHEET_SOURCE_SPREADSHEET_ID" default:""`
	SourceTab           string `envconfig:"CLIPSHEET_SOURCE_TAB" default:"Yahoo"`
	SourceLabel         string `envconfig:"CLIPSHEET_SOURCE_LABEL" default:"Yahoo"`

	GoogleCredentials     string `envconfig:"GOOGLE_CREDENTIALS" default:""`
	GoogleCredentialsFile string `envconfig:"GOOGLE_CREDENTIALS_FILE" default:"key.json"`

	GeminiAPIKey string `envconfig:"GEMINI_API_KEY" default:""`
	GeminiModel  string `envconfig:"GEMINI_MODEL" default:"gemini-1.5-flash"`

	ClassifyBatchSize   int           `envconfig:"CLASSIFY_BATCH_SIZE" default:"50"`
	ClassifyBatchPause  time.Duration `envconfig:"CLASSIFY_BATCH_PAUSE" default:"500ms"`
	ClassifyTemperature float64       `envconfig:"CLASSIFY_TEMPERATURE" default:"0.2"`

	WindowAnchorHour int    `envconfig:"WINDOW_ANCHOR_HOUR" default:"15"`
	RunAt            string `envconfig:"RUN_AT" default:"15:05"`

	DatabaseURL string `envconfig:"DATABASE_URL" default:""`
	DBMaxConns  int32  `envconfig:"CLIPSHEET_DB_MAX_CONNS" default:"4"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.SpreadsheetID) == "" {
		return fmt.Errorf("CLIPSHEET_SPREADSHEET_ID is required")
	}
	if strings.TrimSpace(c.SourceTab) == "" {
		return fmt.Errorf("CLIPSHEET_SOURCE_TAB is required")
	}
	if c.ClassifyBatchSize < 1 {
		return fmt.Errorf("CLASSIFY_BATCH_SIZE must be >= 1")
	}
	if c.ClassifyBatchPause < 0 {
		return fmt.Errorf("CLASSIFY_BATCH_PAUSE must be >= 0")
	}
	if c.ClassifyTemperature < 0 || c.ClassifyTemperature > 2 {
		return fmt.Errorf("CLASSIFY_TEMPERATURE must be between 0 and 2")
	}
	if c.WindowAnchorHour < 0 || c.WindowAnchorHour > 23 {
		return fmt.Errorf("WINDOW_ANCHOR_HOUR must be between 0 and 23")
	}
	if _, _, err := c.RunAtClock(); err != nil {
		return fmt.Errorf("RUN_AT must be HH:MM: %w", err)
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("CLIPSHEET_DB_MAX_CONNS must be >= 1")
	}
	return nil
}

// ResolvedSourceSpreadsheetID returns the source spreadsheet, falling back to
// the destination spreadsheet when no separate source is configured.
func (c *Config) ResolvedSourceSpreadsheetID() string {
	if c == nil {
		return ""
	}
	if id := strings.TrimSpace(c.SourceSpreadsheetID); id != "" {
		return id
	}
	return strings.TrimSpace(c.SpreadsheetID)
}

// CredentialsJSON resolves the service account key. Inline JSON wins over the
// key file path.
func (c *Config) CredentialsJSON() ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if inline := strings.TrimSpace(c.GoogleCredentials); inline != "" {
		return []byte(inline), nil
	}
	path := strings.TrimSpace(c.GoogleCredentialsFile)
	if path == "" {
		return nil, fmt.Errorf("GOOGLE_CREDENTIALS or GOOGLE_CREDENTIALS_FILE is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read credentials file %s: %w", path, err)
	}
	return data, nil
}

// LedgerEnabled reports whether the optional run ledger is configured.
func (c *Config) LedgerEnabled() bool {
	return c != nil && strings.TrimSpace(c.DatabaseURL) != ""
}

// ClassifierEnabled reports whether the remote classification service is
// configured. Without a key every pass uses keyword rules only.
func (c *Config) ClassifierEnabled() bool {
	return c != nil && strings.TrimSpace(c.GeminiAPIKey) != ""
}

// RunAtClock parses RUN_AT into an hour and minute pair.
func (c *Config) RunAtClock() (int, int, error) {
	raw := strings.TrimSpace(c.RunAt)
	parts := strings.Split(raw, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid clock value %q", raw)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", raw)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", raw)
	}
	return hour, minute, nil
}
