package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

type Config struct {
	// HTTP Server
	Port            string
	ShutdownTimeout time.Duration

	// Storage
	DataBackend  string
	SQLiteDBPath string

	// Ledger change feed
	LedgerFeed   string
	PollInterval time.Duration

	// AMQP, empty URL selects the in-process feed
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Aggregation
	Timezone      string
	ViewCacheSize int
	ViewCacheTTL  time.Duration

	// Google Sheets export
	GoogleSpreadsheetID string
	GoogleSheetName     string
	ExportInterval      time.Duration

	LogLevel string
}

func Load() *Config {
	cfg := &Config{
		Port:            getEnv("PORT", "8081"),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),

		DataBackend:  getEnv("DATA_BACKEND", "sqlite"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/gastos.db"),

		LedgerFeed:   getEnv("LEDGER_FEED", "push"),
		PollInterval: getEnvDuration("POLL_INTERVAL", 30*time.Second),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "gastos"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "export_ledgers"),

		Timezone:      getEnv("TIMEZONE", "Local"),
		ViewCacheSize: getEnvInt("VIEW_CACHE_SIZE", 64),
		ViewCacheTTL:  getEnvDuration("VIEW_CACHE_TTL", 5*time.Minute),

		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:     getEnv("GOOGLE_SHEET_NAME", "Gastos"),
		ExportInterval:      getEnvDuration("EXPORT_INTERVAL", time.Hour),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg
}

// Location resolves the configured timezone. Local midnight of this zone
// bounds the day, week, month and year windows.
func (c *Config) Location() (*time.Location, error) {
	switch c.Timezone {
	case "", "Local":
		return time.Local, nil
	case "UTC":
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// ExportEnabled reports whether a spreadsheet is configured for the export worker.
func (c *Config) ExportEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	validBackends := []string{"memory", "sqlite"}
	if !oneOf(c.DataBackend, validBackends) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			// Check if directory exists or can be created
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	validFeeds := []string{"push", "poll"}
	if !oneOf(c.LedgerFeed, validFeeds) {
		errors = append(errors, fmt.Sprintf("invalid ledger feed '%s': must be one of %v", c.LedgerFeed, validFeeds))
	}
	if c.LedgerFeed == "poll" && c.PollInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid poll interval %v: must be at least 1 second", c.PollInterval))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if _, err := c.Location(); err != nil {
		errors = append(errors, fmt.Sprintf("invalid timezone '%s': %v", c.Timezone, err))
	}

	if c.ViewCacheSize < 0 {
		errors = append(errors, fmt.Sprintf("invalid view cache size %d: must not be negative", c.ViewCacheSize))
	}
	if c.ViewCacheSize > 0 && c.ViewCacheTTL <= 0 {
		errors = append(errors, fmt.Sprintf("invalid view cache TTL %v: must be positive", c.ViewCacheTTL))
	}

	if c.ExportEnabled() {
		if c.GoogleSheetName == "" {
			errors = append(errors, "Google Sheet name is required when a spreadsheet ID is set")
		}
		if c.ExportInterval < time.Minute {
			errors = append(errors, fmt.Sprintf("invalid export interval %v: must be at least 1 minute", c.ExportInterval))
		} else if c.ExportInterval > 24*time.Hour {
			errors = append(errors, fmt.Sprintf("invalid export interval %v: must be at most 24 hours", c.ExportInterval))
		}
	}

	if c.ShutdownTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("invalid shutdown timeout %v: must be positive", c.ShutdownTimeout))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func oneOf(v string, valid []string) bool {
	for _, s := range valid {
		if v == s {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
