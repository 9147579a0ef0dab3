// Package config loads application configuration from defaults, an optional
// YAML file and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/bissquit/subscription-garden/internal/domain"
	"github.com/bissquit/subscription-garden/internal/subscriptions"
)

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Database      DatabaseConfig      `koanf:"database"`
	Log           LogConfig           `koanf:"log"`
	CORS          CORSConfig          `koanf:"cors"`
	RateLimit     RateLimitConfig     `koanf:"rate_limit"`
	Subscriptions SubscriptionsConfig `koanf:"subscriptions"`
	Email         EmailConfig         `koanf:"email"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL settings.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
	MigrationsPath  string        `koanf:"migrations_path"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// CORSConfig holds cross-origin settings.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// RateLimitConfig holds per-client rate limiting for write endpoints.
// A zero RequestsPerSecond disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	Burst             int     `koanf:"burst"`
}

// SubscriptionsConfig holds the subscription model settings.
type SubscriptionsConfig struct {
	Policy     string   `koanf:"policy"`
	Categories []string `koanf:"categories"`
}

// EmailConfig holds confirmation email settings.
type EmailConfig struct {
	Enabled         bool          `koanf:"enabled"`
	SMTPHost        string        `koanf:"smtp_host"`
	SMTPPort        int           `koanf:"smtp_port"`
	SMTPUser        string        `koanf:"smtp_user"`
	SMTPPassword    string        `koanf:"smtp_password"`
	FromAddress     string        `koanf:"from_address"`
	BreakerFailures uint32        `koanf:"breaker_failures"`
	BreakerTimeout  time.Duration `koanf:"breaker_timeout"`
	Timeout         time.Duration `koanf:"timeout"`
}

// sections are the top-level keys environment variables may target.
var sections = map[string]bool{
	"server":        true,
	"database":      true,
	"log":           true,
	"cors":          true,
	"rate_limit":    true,
	"subscriptions": true,
	"email":         true,
}

func defaults() map[string]interface{} {
	categories := make([]string, len(domain.DefaultCategories))
	for i, c := range domain.DefaultCategories {
		categories[i] = string(c)
	}

	return map[string]interface{}{
		"server.host":                "0.0.0.0",
		"server.port":                "8080",
		"server.metrics_port":        "9090",
		"server.read_timeout":        15 * time.Second,
		"server.read_header_timeout": 5 * time.Second,
		"server.write_timeout":       15 * time.Second,
		"server.idle_timeout":        60 * time.Second,
		"server.shutdown_timeout":    10 * time.Second,

		"database.max_open_conns":    10,
		"database.max_idle_conns":    2,
		"database.conn_max_lifetime": 30 * time.Minute,
		"database.connect_timeout":   30 * time.Second,
		"database.connect_attempts":  5,
		"database.migrations_path":   "migrations",

		"log.level":  "info",
		"log.format": "json",

		"cors.allowed_origins": []string{"*"},

		"rate_limit.requests_per_second": 0.0,
		"rate_limit.burst":               10,

		"subscriptions.policy":     string(subscriptions.PolicyRetain),
		"subscriptions.categories": categories,

		"email.enabled":          false,
		"email.smtp_port":        587,
		"email.breaker_failures": 5,
		"email.breaker_timeout":  30 * time.Second,
		"email.timeout":          5 * time.Second,
	}
}

// Load builds the configuration. Sources are applied in order: defaults,
// the YAML file at path (skipped when empty), then environment variables.
// A .env file in the working directory is loaded into the environment first.
func Load(path string) (*Config, error) {
	// Missing .env is fine.
	_ = godotenv.Load()

	k := koanf.New(".")
	for key, val := range defaults() {
		if err := k.Set(key, val); err != nil {
			return nil, fmt.Errorf("set default %s: %w", key, err)
		}
	}

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue("", ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// listKeys are split on commas when set from the environment.
var listKeys = map[string]bool{
	"cors.allowed_origins":     true,
	"subscriptions.categories": true,
}

// envValue maps an environment variable to a config key and value.
// List keys become []string with surrounding spaces trimmed.
func envValue(name, value string) (string, interface{}) {
	key := envKey(name)
	if key == "" || !listKeys[key] {
		return key, value
	}

	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			items = append(items, p)
		}
	}
	return key, items
}

// envKey maps SECTION_SOME_KEY to section.some_key. Variables outside known
// sections are ignored. PORT is accepted as server.port.
func envKey(s string) string {
	s = strings.ToLower(s)
	if s == "port" {
		return "server.port"
	}

	for section := range sections {
		if rest, ok := strings.CutPrefix(s, section+"_"); ok && rest != "" {
			return section + "." + rest
		}
	}
	return ""
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error

	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not one of json, text", c.Log.Format))
	}

	if _, err := subscriptions.ParsePolicy(c.Subscriptions.Policy); err != nil {
		errs = append(errs, fmt.Errorf("subscriptions.policy: %w", err))
	}
	if _, err := domain.NewCategoryRegistry(c.CategoryList()); err != nil {
		errs = append(errs, fmt.Errorf("subscriptions.categories: %w", err))
	}

	if c.Email.Timeout >= c.Server.WriteTimeout && c.Server.WriteTimeout > 0 {
		errs = append(errs, errors.New("email.timeout must be shorter than server.write_timeout"))
	}

	if c.RateLimit.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("rate_limit.requests_per_second must not be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// CategoryList returns the configured categories as domain values.
func (c *Config) CategoryList() []domain.Category {
	out := make([]domain.Category, len(c.Subscriptions.Categories))
	for i, name := range c.Subscriptions.Categories {
		out[i] = domain.Category(name)
	}
	return out
}
