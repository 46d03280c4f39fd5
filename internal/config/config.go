package config

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Environment represents different deployment environments
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// Store drivers accepted by STORE_DRIVER.
const (
	DriverAuto     = "auto"
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds the configuration for the hide service.
// Environment variables are parsed with the HIDE_ prefix.
type Config struct {
	Environment Environment `envconfig:"ENVIRONMENT" default:"development"`

	// HTTP Configuration
	HTTPPort               int `envconfig:"HTTP_PORT" default:"8000"`
	StreamKeepaliveSeconds int `envconfig:"STREAM_KEEPALIVE_SECONDS" default:"15"`

	// Card store
	StoreDriver string `envconfig:"STORE_DRIVER" default:"auto"`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:""`
	PostgresDSN string `envconfig:"POSTGRES_DSN" default:""`

	// Inbound pipeline
	DebounceSeconds      int  `envconfig:"DEBOUNCE_SECONDS" default:"15"`
	HistoryLimit         int  `envconfig:"HISTORY_LIMIT" default:"20"`
	HistoryConversations int  `envconfig:"HISTORY_CONVERSATIONS" default:"1000"`
	OmitGroupMessages    bool `envconfig:"OMIT_GROUP_MESSAGES" default:"false"`

	// Fanout and commands
	SubscriberBuffer int `envconfig:"SUBSCRIBER_BUFFER" default:"64"`
	CommandQueueSize int `envconfig:"COMMAND_QUEUE_SIZE" default:"128"`

	// External collaborators
	TelegramBotToken         string `envconfig:"TELEGRAM_BOT_TOKEN" default:""`
	TelegramAPIURL           string `envconfig:"TELEGRAM_API_URL" default:"https://api.telegram.org"`
	SummarizerURL            string `envconfig:"SUMMARIZER_URL" default:""`
	SummarizerTimeoutSeconds int    `envconfig:"SUMMARIZER_TIMEOUT_SECONDS" default:"60"`
	CalendarWebhookURL       string `envconfig:"CALENDAR_WEBHOOK_URL" default:""`
	CalendarTimezone         string `envconfig:"CALENDAR_TIMEZONE" default:"Asia/Singapore"`
	CalendarAlertMinutes     int    `envconfig:"CALENDAR_ALERT_MINUTES" default:"30"`
	CalendarDedupeMinutes    int    `envconfig:"CALENDAR_DEDUPE_MINUTES" default:"1440"`

	// Health
	HealthIntervalSeconds     int `envconfig:"HEALTH_INTERVAL_SECONDS" default:"15"`
	HealthProbeTimeoutSeconds int `envconfig:"HEALTH_PROBE_TIMEOUT_SECONDS" default:"2"`

	location *time.Location
}

// ResolveDefaults validates the config and derives StoreDriver when set to "auto" or empty.
func (c *Config) ResolveDefaults() error {
	if c.StoreDriver == "" || c.StoreDriver == DriverAuto {
		switch {
		case c.PostgresDSN != "":
			c.StoreDriver = DriverPostgres
		case c.SQLitePath != "":
			c.StoreDriver = DriverSQLite
		default:
			c.StoreDriver = DriverMemory
		}
	}

	switch c.StoreDriver {
	case DriverMemory:
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when STORE_DRIVER=sqlite")
		}
	case DriverPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required when STORE_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unsupported STORE_DRIVER: %s", c.StoreDriver)
	}

	if c.DebounceSeconds < 0 {
		return fmt.Errorf("DEBOUNCE_SECONDS must not be negative")
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 20
	}
	if c.HistoryConversations <= 0 {
		c.HistoryConversations = 1000
	}
	if c.SubscriberBuffer <= 0 {
		c.SubscriberBuffer = 64
	}
	if c.CommandQueueSize <= 0 {
		c.CommandQueueSize = 128
	}

	loc, err := time.LoadLocation(c.CalendarTimezone)
	if err != nil {
		return fmt.Errorf("invalid CALENDAR_TIMEZONE %q: %w", c.CalendarTimezone, err)
	}
	c.location = loc
	return nil
}

// New creates a new Config by parsing environment variables
// Environment variables should be prefixed with HIDE_
// Example: HIDE_HTTP_PORT, HIDE_DEBOUNCE_SECONDS
func New() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("HIDE", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}

	log.Info().
		Str("environment", string(cfg.Environment)).
		Str("store_driver", cfg.StoreDriver).
		Int("port", cfg.HTTPPort).
		Int("debounce_seconds", cfg.DebounceSeconds).
		Int("history_limit", cfg.HistoryLimit).
		Int("history_conversations", cfg.HistoryConversations).
		Bool("omit_group_messages", cfg.OmitGroupMessages).
		Int("subscriber_buffer", cfg.SubscriberBuffer).
		Bool("telegram_configured", cfg.TelegramBotToken != "").
		Bool("summarizer_configured", cfg.SummarizerURL != "").
		Bool("calendar_configured", cfg.CalendarWebhookURL != "").
		Str("calendar_timezone", cfg.CalendarTimezone).
		Msg("Configuration loaded")

	return &cfg, nil
}

// NewForTesting creates a config specifically for testing
func NewForTesting() *Config {
	cfg := &Config{
		Environment:               EnvTesting,
		HTTPPort:                  8000,
		StreamKeepaliveSeconds:    15,
		StoreDriver:               DriverMemory,
		DebounceSeconds:           0,
		HistoryLimit:              20,
		HistoryConversations:      1000,
		SubscriberBuffer:          64,
		CommandQueueSize:          128,
		TelegramAPIURL:            "https://api.telegram.org",
		SummarizerTimeoutSeconds:  5,
		CalendarTimezone:          "UTC",
		CalendarAlertMinutes:      30,
		CalendarDedupeMinutes:     1440,
		HealthIntervalSeconds:     1,
		HealthProbeTimeoutSeconds: 1,
		location:                  time.UTC,
	}
	return cfg
}

// IsTesting returns true if the environment is set to testing
func (c *Config) IsTesting() bool {
	return c.Environment == EnvTesting
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// Location returns the calendar timezone, UTC until ResolveDefaults has run.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

func (c *Config) DebounceDelay() time.Duration {
	return time.Duration(c.DebounceSeconds) * time.Second
}

func (c *Config) StreamKeepalive() time.Duration {
	if c.StreamKeepaliveSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.StreamKeepaliveSeconds) * time.Second
}

func (c *Config) CalendarDedupeWindow() time.Duration {
	return time.Duration(c.CalendarDedupeMinutes) * time.Minute
}
