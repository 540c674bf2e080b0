package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration. Values come from defaults, then
// an optional YAML file, then the environment.
type Config struct {
	Env       string `yaml:"env"`        // dev, staging, prod (default: dev)
	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error (default: info)
	LogFormat string `yaml:"log_format"` // json, text (default: json)
	Port      int    `yaml:"port"`       // HTTP server port (default: 8080)

	DatabaseDriver string `yaml:"database_driver"` // sqlite, postgres, memory (default: sqlite)
	DatabaseFile   string `yaml:"database_file"`   // sqlite file (default: kanbee.db)
	DatabaseURL    string `yaml:"database_url"`    // postgres DSN

	CacheDriver string `yaml:"cache_driver"` // memory, redis (default: memory)
	RedisURL    string `yaml:"redis_url"`

	Issuer         string        `yaml:"issuer"`           // iss claim (default: kanbee)
	SigningKeyFile string        `yaml:"signing_key_file"` // Ed25519 PEM; empty means ephemeral
	PepperFile     string        `yaml:"pepper_file"`      // password pepper (default: pepper)
	AccessTokenTTL time.Duration `yaml:"access_token_ttl"`
	SessionTTL     time.Duration `yaml:"session_ttl"`

	ProjectCacheTTL time.Duration `yaml:"project_cache_ttl"`
	QuoteCacheTTL   time.Duration `yaml:"quote_cache_ttl"`

	RefreshCookieName string `yaml:"refresh_cookie_name"`
	CookieSecure      bool   `yaml:"cookie_secure"`
	ClientURL         string `yaml:"client_url"` // where federated logins land
	PublicURL         string `yaml:"public_url"` // this server, as browsers reach it

	Google OAuthConfig `yaml:"google"`
	GitHub OAuthConfig `yaml:"github"`

	WSAllowedOrigins []string      `yaml:"ws_allowed_origins"`
	WSSendQueue      int           `yaml:"ws_send_queue"`
	WSRateEvents     int           `yaml:"ws_rate_events"`
	WSRateWindow     time.Duration `yaml:"ws_rate_window"`

	ShutdownGracePeriod  time.Duration `yaml:"shutdown_grace_period"`
	HousekeepingSchedule string        `yaml:"housekeeping_schedule"` // cron spec (default: @every 1h)
}

// OAuthConfig holds one provider's client credentials. A provider without a
// client id is disabled.
type OAuthConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

func (c OAuthConfig) Enabled() bool { return c.ClientID != "" }

// DefaultConfig is what an empty environment runs with.
func DefaultConfig() Config {
	return Config{
		Env:                  "dev",
		LogLevel:             "info",
		LogFormat:            "json",
		Port:                 8080,
		DatabaseDriver:       "sqlite",
		DatabaseFile:         "kanbee.db",
		CacheDriver:          "memory",
		Issuer:               "kanbee",
		PepperFile:           "pepper",
		AccessTokenTTL:       15 * time.Minute,
		SessionTTL:           24 * time.Hour,
		ProjectCacheTTL:      60 * time.Second,
		QuoteCacheTTL:        time.Hour,
		RefreshCookieName:    "_my-bee",
		ShutdownGracePeriod:  10 * time.Second,
		HousekeepingSchedule: "@every 1h",
	}
}

// LoadConfig builds the configuration. path may be empty; a named file that
// does not exist is an error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) applyEnv() {
	cfg.Env = getEnvOrDefault("ENV", cfg.Env)
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnvOrDefault("LOG_FORMAT", cfg.LogFormat)
	cfg.Port = getEnvIntOrDefault("PORT", cfg.Port)

	cfg.DatabaseDriver = getEnvOrDefault("DATABASE_DRIVER", cfg.DatabaseDriver)
	cfg.DatabaseFile = getEnvOrDefault("DATABASE_FILE", cfg.DatabaseFile)
	cfg.DatabaseURL = getEnvOrDefault("DATABASE_URL", cfg.DatabaseURL)
	cfg.CacheDriver = getEnvOrDefault("CACHE_DRIVER", cfg.CacheDriver)
	cfg.RedisURL = getEnvOrDefault("REDIS_URL", cfg.RedisURL)

	cfg.Issuer = getEnvOrDefault("AUTH_ISSUER", cfg.Issuer)
	cfg.SigningKeyFile = getEnvOrDefault("AUTH_SIGNING_KEY_FILE", cfg.SigningKeyFile)
	cfg.PepperFile = getEnvOrDefault("AUTH_PEPPER_FILE", cfg.PepperFile)
	cfg.AccessTokenTTL = getEnvDurationOrDefault("ACCESS_TOKEN_TTL", cfg.AccessTokenTTL)
	cfg.SessionTTL = getEnvDurationOrDefault("SESSION_TTL", cfg.SessionTTL)
	cfg.ProjectCacheTTL = getEnvDurationOrDefault("PROJECT_CACHE_TTL", cfg.ProjectCacheTTL)
	cfg.QuoteCacheTTL = getEnvDurationOrDefault("QUOTE_CACHE_TTL", cfg.QuoteCacheTTL)

	cfg.RefreshCookieName = getEnvOrDefault("REFRESH_COOKIE_NAME", cfg.RefreshCookieName)
	cfg.CookieSecure = getEnvBoolOrDefault("COOKIE_SECURE", cfg.CookieSecure)
	cfg.ClientURL = getEnvOrDefault("CLIENT_URL", cfg.ClientURL)
	cfg.PublicURL = getEnvOrDefault("PUBLIC_URL", cfg.PublicURL)

	cfg.Google.ClientID = getEnvOrDefault("GOOGLE_CLIENT_ID", cfg.Google.ClientID)
	cfg.Google.ClientSecret = getEnvOrDefault("GOOGLE_CLIENT_SECRET", cfg.Google.ClientSecret)
	cfg.GitHub.ClientID = getEnvOrDefault("GITHUB_CLIENT_ID", cfg.GitHub.ClientID)
	cfg.GitHub.ClientSecret = getEnvOrDefault("GITHUB_CLIENT_SECRET", cfg.GitHub.ClientSecret)

	cfg.WSAllowedOrigins = getEnvListOrDefault("WS_ALLOWED_ORIGINS", cfg.WSAllowedOrigins)
	cfg.WSSendQueue = getEnvIntOrDefault("WS_SEND_QUEUE", cfg.WSSendQueue)
	cfg.WSRateEvents = getEnvIntOrDefault("WS_RATE_EVENTS", cfg.WSRateEvents)
	cfg.WSRateWindow = getEnvDurationOrDefault("WS_RATE_WINDOW", cfg.WSRateWindow)

	cfg.ShutdownGracePeriod = getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", cfg.ShutdownGracePeriod)
	cfg.HousekeepingSchedule = getEnvOrDefault("HOUSEKEEPING_SCHEDULE", cfg.HousekeepingSchedule)
}

// Validate rejects driver combinations the application cannot start with.
func (cfg Config) Validate() error {
	var errs []error

	switch cfg.DatabaseDriver {
	case "sqlite":
		if cfg.DatabaseFile == "" {
			errs = append(errs, errors.New("DATABASE_FILE is required for the sqlite driver"))
		}
	case "postgres":
		if cfg.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres driver"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown DATABASE_DRIVER %q", cfg.DatabaseDriver))
	}

	switch cfg.CacheDriver {
	case "memory":
	case "redis":
		if cfg.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for the redis cache"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown CACHE_DRIVER %q", cfg.CacheDriver))
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid PORT %d", cfg.Port))
	}
	if (cfg.Google.Enabled() || cfg.GitHub.Enabled()) && cfg.PublicURL == "" {
		errs = append(errs, errors.New("PUBLIC_URL is required when an OAuth provider is configured"))
	}

	return errors.Join(errs...)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are minutes
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}

// getEnvListOrDefault splits a comma separated value, dropping blanks.
func getEnvListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for part := range strings.SplitSeq(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
