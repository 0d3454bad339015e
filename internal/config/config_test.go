package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		Environment:         "local",
		LogLevel:            "info",
		SpreadsheetID:       "sheet-1",
		SourceTab:           "Yahoo",
		SourceLabel:         "Yahoo",
		ClassifyBatchSize:   50,
		ClassifyBatchPause:  500 * time.Millisecond,
		ClassifyTemperature: 0.2,
		WindowAnchorHour:    15,
		RunAt:               "15:05",
		DBMaxConns:          4,
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing spreadsheet", func(c *Config) { c.SpreadsheetID = " " }, "CLIPSHEET_SPREADSHEET_ID"},
		{"missing source tab", func(c *Config) { c.SourceTab = "" }, "CLIPSHEET_SOURCE_TAB"},
		{"zero batch size", func(c *Config) { c.ClassifyBatchSize = 0 }, "CLASSIFY_BATCH_SIZE"},
		{"negative pause", func(c *Config) { c.ClassifyBatchPause = -time.Second }, "CLASSIFY_BATCH_PAUSE"},
		{"temperature too high", func(c *Config) { c.ClassifyTemperature = 2.5 }, "CLASSIFY_TEMPERATURE"},
		{"anchor hour out of range", func(c *Config) { c.WindowAnchorHour = 24 }, "WINDOW_ANCHOR_HOUR"},
		{"malformed run-at", func(c *Config) { c.RunAt = "quarter past" }, "RUN_AT"},
		{"zero db conns", func(c *Config) { c.DBMaxConns = 0 }, "CLIPSHEET_DB_MAX_CONNS"},
	}
	for _, tc := range cases {
		cfg := validConfig()
		tc.mutate(&cfg)
		err := cfg.Validate()
		if err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
		if !strings.Contains(err.Error(), tc.wantErr) {
			t.Fatalf("%s: error %q does not name %q", tc.name, err, tc.wantErr)
		}
	}
}

func TestRunAtClock(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	hour, minute, err := cfg.RunAtClock()
	if err != nil {
		t.Fatalf("RunAtClock: %v", err)
	}
	if hour != 15 || minute != 5 {
		t.Fatalf("unexpected clock: got %d:%d want 15:5", hour, minute)
	}

	for _, raw := range []string{"", "15", "15:05:00", "24:00", "15:60", "aa:bb"} {
		cfg := validConfig()
		cfg.RunAt = raw
		if _, _, err := cfg.RunAtClock(); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestResolvedSourceSpreadsheetID(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	if got := cfg.ResolvedSourceSpreadsheetID(); got != "sheet-1" {
		t.Fatalf("fallback not applied: got %q", got)
	}

	cfg.SourceSpreadsheetID = " sheet-2 "
	if got := cfg.ResolvedSourceSpreadsheetID(); got != "sheet-2" {
		t.Fatalf("explicit source ignored: got %q", got)
	}
}

func TestCredentialsJSON(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "key.json")
	if err := os.WriteFile(path, []byte(`{"from":"file"}`), 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}

	cfg := validConfig()
	cfg.GoogleCredentialsFile = path
	data, err := cfg.CredentialsJSON()
	if err != nil {
		t.Fatalf("CredentialsJSON: %v", err)
	}
	if string(data) != `{"from":"file"}` {
		t.Fatalf("unexpected file credentials: %q", data)
	}

	// Inline JSON wins over the file path.
	cfg.GoogleCredentials = `{"inline":true}`
	data, err = cfg.CredentialsJSON()
	if err != nil {
		t.Fatalf("CredentialsJSON (inline): %v", err)
	}
	if string(data) != `{"inline":true}` {
		t.Fatalf("unexpected inline credentials: %q", data)
	}

	cfg = validConfig()
	cfg.GoogleCredentialsFile = filepath.Join(t.TempDir(), "missing.json")
	if _, err := cfg.CredentialsJSON(); err == nil {
		t.Fatal("expected error for missing key file")
	}

	cfg = validConfig()
	cfg.GoogleCredentialsFile = ""
	if _, err := cfg.CredentialsJSON(); err == nil {
		t.Fatal("expected error when nothing is configured")
	}
}

func TestFeatureToggles(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	if cfg.LedgerEnabled() {
		t.Fatal("ledger enabled without DATABASE_URL")
	}
	if cfg.ClassifierEnabled() {
		t.Fatal("classifier enabled without GEMINI_API_KEY")
	}

	cfg.DatabaseURL = "postgres://localhost/clipsheet"
	cfg.GeminiAPIKey = "key-123"
	if !cfg.LedgerEnabled() || !cfg.ClassifierEnabled() {
		t.Fatalf("toggles not enabled: ledger=%t classifier=%t", cfg.LedgerEnabled(), cfg.ClassifierEnabled())
	}

	var nilCfg *Config
	if nilCfg.LedgerEnabled() || nilCfg.ClassifierEnabled() {
		t.Fatal("nil config must report features disabled")
	}
}
