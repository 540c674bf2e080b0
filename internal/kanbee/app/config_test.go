package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aussiebroadwan/kanbee/pkg/slogx"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every key LoadConfig reads so the host environment does
// not leak into assertions.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"ENV", "LOG_LEVEL", "LOG_FORMAT", "PORT",
		"DATABASE_DRIVER", "DATABASE_FILE", "DATABASE_URL", "CACHE_DRIVER", "REDIS_URL",
		"AUTH_ISSUER", "AUTH_SIGNING_KEY_FILE", "AUTH_PEPPER_FILE",
		"ACCESS_TOKEN_TTL", "SESSION_TTL", "PROJECT_CACHE_TTL", "QUOTE_CACHE_TTL",
		"REFRESH_COOKIE_NAME", "COOKIE_SECURE", "CLIENT_URL", "PUBLIC_URL",
		"GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET", "GITHUB_CLIENT_ID", "GITHUB_CLIENT_SECRET",
		"WS_ALLOWED_ORIGINS", "WS_SEND_QUEUE", "WS_RATE_EVENTS", "WS_RATE_WINDOW",
		"SHUTDOWN_GRACE_PERIOD", "HOUSEKEEPING_SCHEDULE",
	} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kanbee.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)
	require.Equal(t, "_my-bee", cfg.RefreshCookieName)
	require.Equal(t, 60*time.Second, cfg.ProjectCacheTTL)
	require.Equal(t, "@every 1h", cfg.HousekeepingSchedule)
}

func TestLoadConfigLayers(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, `
port: 9090
database_driver: memory
cache_driver: redis
redis_url: redis://localhost:6379/0
session_ttl: 12h
ws_allowed_origins: ["https://app.kanbee.dev"]
github:
  client_id: gh-id
  client_secret: gh-secret
public_url: https://api.kanbee.dev
`)

	t.Run("file overrides defaults", func(t *testing.T) {
		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		require.Equal(t, 9090, cfg.Port)
		require.Equal(t, "memory", cfg.DatabaseDriver)
		require.Equal(t, "redis", cfg.CacheDriver)
		require.Equal(t, 12*time.Hour, cfg.SessionTTL)
		require.Equal(t, []string{"https://app.kanbee.dev"}, cfg.WSAllowedOrigins)
		require.True(t, cfg.GitHub.Enabled())
		require.False(t, cfg.Google.Enabled())
		require.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		t.Setenv("PORT", "7070")
		t.Setenv("SESSION_TTL", "90") // bare minutes
		t.Setenv("COOKIE_SECURE", "true")
		t.Setenv("WS_ALLOWED_ORIGINS", "https://a.dev, ,https://b.dev")

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		require.Equal(t, 7070, cfg.Port)
		require.Equal(t, 90*time.Minute, cfg.SessionTTL)
		require.True(t, cfg.CookieSecure)
		require.Equal(t, []string{"https://a.dev", "https://b.dev"}, cfg.WSAllowedOrigins)
	})

	t.Run("unparsable environment values keep the previous layer", func(t *testing.T) {
		t.Setenv("PORT", "eighty")
		t.Setenv("SESSION_TTL", "soon")

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		require.Equal(t, 9090, cfg.Port)
		require.Equal(t, 12*time.Hour, cfg.SessionTTL)
	})
}

func TestLoadConfigErrors(t *testing.T) {
	clearEnv(t)

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
		require.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("malformed file", func(t *testing.T) {
		_, err := LoadConfig(writeConfig(t, "port: [nope"))
		require.Error(t, err)
	})

	t.Run("postgres without url", func(t *testing.T) {
		t.Setenv("DATABASE_DRIVER", "postgres")
		_, err := LoadConfig("")
		require.ErrorContains(t, err, "DATABASE_URL")
	})

	t.Run("redis without url", func(t *testing.T) {
		t.Setenv("CACHE_DRIVER", "redis")
		_, err := LoadConfig("")
		require.ErrorContains(t, err, "REDIS_URL")
	})

	t.Run("unknown drivers", func(t *testing.T) {
		t.Setenv("DATABASE_DRIVER", "mysql")
		t.Setenv("CACHE_DRIVER", "memcached")
		_, err := LoadConfig("")
		require.ErrorContains(t, err, "mysql")
		require.ErrorContains(t, err, "memcached")
	})

	t.Run("oauth without public url", func(t *testing.T) {
		t.Setenv("GOOGLE_CLIENT_ID", "g-id")
		_, err := LoadConfig("")
		require.ErrorContains(t, err, "PUBLIC_URL")
	})
}

func TestInitAuthKeys(t *testing.T) {
	clearEnv(t)
	logger := slogx.Discard()

	t.Run("ephemeral", func(t *testing.T) {
		cfg := DefaultConfig()
		km, err := InitAuthKeys(cfg, logger)
		require.NoError(t, err)
		require.True(t, km.IsReady())
	})

	t.Run("persistent key survives a restart", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.SigningKeyFile = filepath.Join(t.TempDir(), "keys", "signing.pem")

		first, err := InitAuthKeys(cfg, logger)
		require.NoError(t, err)
		second, err := InitAuthKeys(cfg, logger)
		require.NoError(t, err)

		require.Equal(t, first.Signer.KID(), second.Signer.KID())
	})

	t.Run("pepper is created once", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.PepperFile = filepath.Join(t.TempDir(), "pepper")

		p1, err := LoadPepper(cfg)
		require.NoError(t, err)
		p2, err := LoadPepper(cfg)
		require.NoError(t, err)
		require.NotEmpty(t, p1)
		require.Equal(t, p1, p2)
	})
}
