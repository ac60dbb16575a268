package app

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr string
	}{
		{in: "15m", want: 15 * time.Minute},
		{in: "1h30m", want: 90 * time.Minute},
		{in: "7d", want: 7 * 24 * time.Hour},
		{in: " 2d ", want: 48 * time.Hour},
		{in: "900s", want: 15 * time.Minute},
		{in: "900", wantErr: "no unit"},
		{in: "30", wantErr: "no unit"},
		{in: "", wantErr: "invalid duration"},
		{in: "soon", wantErr: "invalid duration"},
		{in: "xd", wantErr: "invalid duration"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseDuration(tt.in)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Chdir(t.TempDir())
		cfg := LoadConfig()

		require.Equal(t, 15*time.Minute, cfg.AccessTTL)
		require.Equal(t, 7*24*time.Hour, cfg.RefreshTTL)
		require.Equal(t, "quill-auth", cfg.Issuer)
		require.Equal(t, DriverSQLite, cfg.StoreDriver)
		require.Equal(t, []string{"http://localhost:5173"}, cfg.CORSOrigins)
		require.Equal(t, 8080, cfg.Port)
		require.Equal(t, 30*time.Second, cfg.ShutdownGracePeriod)
		require.False(t, cfg.ReuseDetection)
		require.False(t, cfg.SingleSession)
		require.False(t, cfg.CookieSecure)
	})

	t.Run("environment", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("JWT_ACCESS_SECRET", strings.Repeat("s", 40))
		t.Setenv("JWT_ACCESS_EXPIRES", "5m")
		t.Setenv("JWT_REFRESH_EXPIRES", "30d")
		t.Setenv("CORS_ORIGIN", "https://a.example, https://b.example ,")
		t.Setenv("STORE_DRIVER", "MONGO")
		t.Setenv("CREDENTIAL_BACKEND", "redis")
		t.Setenv("REDIS_DB", "3")
		t.Setenv("REFRESH_REUSE_DETECTION", "true")
		t.Setenv("SINGLE_SESSION", "1")
		t.Setenv("COOKIE_SECURE", "true")
		t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 127.0.0.1")

		cfg := LoadConfig()
		require.Equal(t, []string{"10.0.0.0/8", "127.0.0.1"}, cfg.TrustedProxies)
		require.Equal(t, 5*time.Minute, cfg.AccessTTL)
		require.Equal(t, 30*24*time.Hour, cfg.RefreshTTL)
		require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
		require.Equal(t, DriverMongo, cfg.StoreDriver)
		require.Equal(t, BackendRedis, cfg.CredentialBackend)
		require.Equal(t, 3, cfg.RedisDB)
		require.True(t, cfg.ReuseDetection)
		require.True(t, cfg.SingleSession)
		require.True(t, cfg.CookieSecure)
		require.NoError(t, cfg.Validate())
	})

	t.Run("unitless expiry fails validation", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("JWT_ACCESS_SECRET", strings.Repeat("s", 40))
		t.Setenv("JWT_ACCESS_EXPIRES", "900")

		cfg := LoadConfig()
		require.Equal(t, 15*time.Minute, cfg.AccessTTL, "unparsable values keep the default")

		err := cfg.Validate()
		require.ErrorContains(t, err, "JWT_ACCESS_EXPIRES")
		require.ErrorContains(t, err, "no unit")
	})

	t.Run("dotenv files", func(t *testing.T) {
		dir := t.TempDir()
		t.Chdir(dir)
		writeFile(t, dir+"/.env", "JWT_ISSUER=from-env-file\nPORT=9000\n")
		writeFile(t, dir+"/.env.development.local", "PORT=9100\n")
		unsetEnv(t, "ENV", "JWT_ISSUER", "PORT")

		cfg := LoadConfig()
		require.Equal(t, "from-env-file", cfg.Issuer)
		require.Equal(t, 9100, cfg.Port)
	})
}

func TestConfigValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			AccessSecret: strings.Repeat("s", 32),
			AccessTTL:    time.Minute,
			RefreshTTL:   time.Hour,
			StoreDriver:  DriverSQLite,
			DatabaseFile: "auth.db",
		}
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing secret", func(c *Config) { c.AccessSecret = "" }, "JWT_ACCESS_SECRET is required"},
		{"short secret", func(c *Config) { c.AccessSecret = "short" }, "at least 32 bytes"},
		{"zero access ttl", func(c *Config) { c.AccessTTL = 0 }, "JWT_ACCESS_EXPIRES"},
		{"unknown driver", func(c *Config) { c.StoreDriver = "postgres" }, "unknown STORE_DRIVER"},
		{"unknown backend", func(c *Config) { c.CredentialBackend = "memcached" }, "unknown CREDENTIAL_BACKEND"},
		{"half admin seed", func(c *Config) { c.AdminEmail = "admin@example.com" }, "must be set together"},
		{"bad trusted proxy", func(c *Config) { c.TrustedProxies = []string{"10.0.0.0/99"} }, "TRUSTED_PROXIES"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// unsetEnv removes keys for the duration of the test. godotenv treats an
// empty but present variable as set and would not load over it.
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}
