// Package config provides configuration loading and validation for the service.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration. Values come from an optional
// feedback.yaml, then FEEDBACK_* environment variables, then defaults.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Progress    ProgressConfig    `mapstructure:"progress"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	Notify      NotifyConfig      `mapstructure:"notify"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Transitions TransitionsConfig `mapstructure:"transitions"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RateLimit       float64       `mapstructure:"rate_limit"` // requests per second per identity and route, 0 disables
	RateBurst       int           `mapstructure:"rate_burst"`
}

// DatabaseConfig holds the Postgres connection string.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// ProgressConfig selects the draft store.
type ProgressConfig struct {
	Driver      string `mapstructure:"driver"` // memory or sqlite
	Path        string `mapstructure:"path"`
	Environment string `mapstructure:"environment"`
}

// SchedulerConfig holds reminder pass settings.
type SchedulerConfig struct {
	DueSoonDays    int    `mapstructure:"due_soon_days"`
	OverdueWeekday string `mapstructure:"overdue_weekday"`
	Timezone       string `mapstructure:"timezone"`
	Concurrency    int    `mapstructure:"concurrency"`
	TokenHash      string `mapstructure:"token_hash"` // bcrypt hash of the invoker token
}

// NotifyConfig selects reminder channels.
type NotifyConfig struct {
	Driver          string `mapstructure:"driver"` // log or google
	From            string `mapstructure:"from"`
	CalendarID      string `mapstructure:"calendar_id"`
	CredentialsFile string `mapstructure:"credentials_file"`
	InboxURL        string `mapstructure:"inbox_url"`
}

// AuthConfig lists identities with the admin role when tokens are minted.
type AuthConfig struct {
	Admins []string `mapstructure:"admins"`
}

// TransitionsConfig selects where the transition graphs come from.
type TransitionsConfig struct {
	Source string `mapstructure:"source"` // embedded, file or db
	File   string `mapstructure:"file"`
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.rate_limit", 5.0)
	v.SetDefault("server.rate_burst", 20)
	v.SetDefault("progress.driver", "memory")
	v.SetDefault("progress.path", "drafts.db")
	v.SetDefault("progress.environment", "default")
	v.SetDefault("scheduler.due_soon_days", 2)
	v.SetDefault("scheduler.overdue_weekday", "monday")
	v.SetDefault("scheduler.timezone", "UTC")
	v.SetDefault("scheduler.concurrency", 4)
	v.SetDefault("notify.driver", "log")
	v.SetDefault("notify.calendar_id", "primary")
	v.SetDefault("transitions.source", "embedded")
}

// Load reads configuration. path may be empty, in which case feedback.yaml
// is looked up in the working directory and a missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix("FEEDBACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Keys without a default are only seen by Unmarshal when bound.
	for _, key := range []string{"database.url", "scheduler.token_hash", "notify.from", "notify.credentials_file", "notify.inbox_url", "auth.admins", "transitions.file"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("feedback")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if len(cfg.Auth.Admins) == 1 && strings.Contains(cfg.Auth.Admins[0], ",") {
		cfg.Auth.Admins = splitList(cfg.Auth.Admins[0])
	}
	return &cfg, nil
}

// Validate checks that the configuration has valid values.
// The database URL is not required here since the memory store needs none.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config error: 'server.port' out of range: %d", c.Server.Port)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("config error: 'server.rate_limit' must be non-negative")
	}
	switch c.Progress.Driver {
	case "memory":
	case "sqlite":
		if c.Progress.Path == "" {
			return fmt.Errorf("config error: 'progress.path' is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("config error: unknown progress driver %q", c.Progress.Driver)
	}
	if c.Scheduler.DueSoonDays < 0 {
		return fmt.Errorf("config error: 'scheduler.due_soon_days' must be non-negative")
	}
	if _, err := c.Scheduler.Weekday(); err != nil {
		return err
	}
	if _, err := c.Scheduler.Location(); err != nil {
		return err
	}
	switch c.Notify.Driver {
	case "log":
	case "google":
		if c.Notify.From == "" {
			return fmt.Errorf("config error: 'notify.from' is required for the google driver")
		}
	default:
		return fmt.Errorf("config error: unknown notify driver %q", c.Notify.Driver)
	}
	switch c.Transitions.Source {
	case "embedded", "db":
	case "file":
		if c.Transitions.File == "" {
			return fmt.Errorf("config error: 'transitions.file' is required for the file source")
		}
	default:
		return fmt.Errorf("config error: unknown transitions source %q", c.Transitions.Source)
	}
	return nil
}

// Weekday parses OverdueWeekday.
func (s SchedulerConfig) Weekday() (time.Weekday, error) {
	d, ok := weekdays[strings.ToLower(strings.TrimSpace(s.OverdueWeekday))]
	if !ok {
		return 0, fmt.Errorf("config error: unknown weekday %q", s.OverdueWeekday)
	}
	return d, nil
}

// Location loads Timezone.
func (s SchedulerConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config error: invalid timezone %q: %w", s.Timezone, err)
	}
	return loc, nil
}

// IsAdmin reports whether email is listed as an admin.
func (a AuthConfig) IsAdmin(email string) bool {
	for _, admin := range a.Admins {
		if strings.EqualFold(strings.TrimSpace(admin), email) {
			return true
		}
	}
	return false
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
