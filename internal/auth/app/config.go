package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/aussiebroadwan/quill/pkg/httpx"
	"github.com/aussiebroadwan/quill/pkg/jwtx"
)

const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"

	BackendRedis = "redis"
)

type Config struct {
	AccessSecret   string        // Required: HMAC secret for access tokens (>= 32 bytes)
	AccessTTL      time.Duration // Access token lifetime (default: 15m)
	RefreshTTL     time.Duration // Refresh token lifetime (default: 7d)
	Issuer         string        // "iss" claim, enforced on verify (default: quill-auth)
	ReuseDetection bool          // Presenting a used refresh token revokes the user's others (default: false)
	SingleSession  bool          // Login revokes the user's other refresh tokens (default: false)

	CookieSecure bool     // Secure flag on the refresh cookie (default: false)
	CookieDomain string   // Domain attribute on the refresh cookie (default: host only)
	CORSOrigins  []string // Allowed browser origins (default: http://localhost:5173)

	TrustedProxies []string // IPs/CIDRs whose X-Forwarded-For is honoured for rate limiting (default: none)

	StoreDriver       string // sqlite or mongo (default: sqlite)
	DatabaseFile      string // SQLite database path (default: auth.db)
	MongoURI          string // (default: mongodb://localhost:27017)
	MongoDatabase     string // (default: quill)
	CredentialBackend string // Empty keeps credentials in the store driver, or redis
	RedisAddr         string // (default: localhost:6379)
	RedisPassword     string
	RedisDB           int

	PepperFile string // Path to the password pepper, created on first start (default: pepper)

	AdminEmail    string // Optional: seed an admin account on start
	AdminPassword string
	AdminName     string // (default: Administrator)

	Env                  string        // Environment (development, staging, production) (default: development)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 30s)
	HousekeepingInterval time.Duration // Expired credential purge interval (default: 1h)

	// loadErrs holds values LoadConfig could not parse; Validate reports them.
	loadErrs []error
}

// LoadConfig reads the process environment after seeding it from .env files.
// Variables already set in the environment win over file values.
func LoadConfig() Config {
	loadDotEnv()

	var errs []error
	duration := func(key string, def time.Duration) time.Duration {
		d, err := getEnvDurationOrDefault(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return d
	}

	cfg := Config{
		AccessSecret:   os.Getenv("JWT_ACCESS_SECRET"),
		AccessTTL:      duration("JWT_ACCESS_EXPIRES", jwtx.DefaultAccessTokenTTL),
		RefreshTTL:     duration("JWT_REFRESH_EXPIRES", jwtx.DefaultRefreshTokenTTL),
		Issuer:         getEnvOrDefault("JWT_ISSUER", "quill-auth"),
		ReuseDetection: getEnvBoolOrDefault("REFRESH_REUSE_DETECTION", false),
		SingleSession:  getEnvBoolOrDefault("SINGLE_SESSION", false),

		CookieSecure: getEnvBoolOrDefault("COOKIE_SECURE", false),
		CookieDomain: os.Getenv("COOKIE_DOMAIN"),
		CORSOrigins:  splitList(getEnvOrDefault("CORS_ORIGIN", "http://localhost:5173")),

		TrustedProxies: splitList(os.Getenv("TRUSTED_PROXIES")),

		StoreDriver:       strings.ToLower(getEnvOrDefault("STORE_DRIVER", DriverSQLite)),
		DatabaseFile:      getEnvOrDefault("DATABASE_FILE", "auth.db"),
		MongoURI:          getEnvOrDefault("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase:     getEnvOrDefault("MONGO_DATABASE", "quill"),
		CredentialBackend: strings.ToLower(os.Getenv("CREDENTIAL_BACKEND")),
		RedisAddr:         getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		RedisDB:           getEnvIntOrDefault("REDIS_DB", 0),

		PepperFile: getEnvOrDefault("PEPPER_FILE", "pepper"),

		AdminEmail:    os.Getenv("ADMIN_EMAIL"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
		AdminName:     getEnvOrDefault("ADMIN_NAME", "Administrator"),

		Env:                  getEnvOrDefault("ENV", "development"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  duration("SHUTDOWN_GRACE_PERIOD", 30*time.Second),
		HousekeepingInterval: duration("HOUSEKEEPING_INTERVAL", time.Hour),
	}
	cfg.loadErrs = errs
	return cfg
}

// Validate reports every configuration problem that would stop the service
// from starting.
func (c Config) Validate() error {
	errs := append([]error(nil), c.loadErrs...)

	if c.AccessSecret == "" {
		errs = append(errs, errors.New("JWT_ACCESS_SECRET is required"))
	} else if len(c.AccessSecret) < jwtx.MinSecretLength {
		errs = append(errs, fmt.Errorf("JWT_ACCESS_SECRET must be at least %d bytes", jwtx.MinSecretLength))
	}
	if c.AccessTTL <= 0 {
		errs = append(errs, errors.New("JWT_ACCESS_EXPIRES must be positive"))
	}
	if c.RefreshTTL <= 0 {
		errs = append(errs, errors.New("JWT_REFRESH_EXPIRES must be positive"))
	}

	switch c.StoreDriver {
	case DriverSQLite:
		if c.DatabaseFile == "" {
			errs = append(errs, errors.New("DATABASE_FILE is required for the sqlite driver"))
		}
	case DriverMongo:
		if c.MongoURI == "" || c.MongoDatabase == "" {
			errs = append(errs, errors.New("MONGO_URI and MONGO_DATABASE are required for the mongo driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}

	switch c.CredentialBackend {
	case "", BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown CREDENTIAL_BACKEND %q", c.CredentialBackend))
	}

	if _, err := httpx.ParseTrustedProxies(c.TrustedProxies); err != nil {
		errs = append(errs, fmt.Errorf("TRUSTED_PROXIES: %w", err))
	}

	if (c.AdminEmail == "") != (c.AdminPassword == "") {
		errs = append(errs, errors.New("ADMIN_EMAIL and ADMIN_PASSWORD must be set together"))
	}

	return errors.Join(errs...)
}

// loadDotEnv seeds the environment from .env.<ENV>.local then .env. Missing
// files are ignored; godotenv never overrides variables that are already set,
// so the first file to define a key wins.
func loadDotEnv() {
	env := getEnvOrDefault("ENV", "development")
	for _, f := range []string{".env." + env + ".local", ".env"} {
		if _, err := os.Stat(f); err == nil {
			_ = godotenv.Load(f)
		}
	}
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

// getEnvDurationOrDefault returns defaultValue when key is unset. A value
// that does not parse is an error, never a silent fallback.
func getEnvDurationOrDefault(key string, defaultValue time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	d, err := parseDuration(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

// parseDuration accepts Go durations ("1h", "30m") and whole days ("7d").
// Numbers without a unit are rejected.
func parseDuration(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)

	if duration, err := time.ParseDuration(value); err == nil {
		return duration, nil
	}

	if days, ok := strings.CutSuffix(value, "d"); ok {
		if n, err := strconv.Atoi(days); err == nil {
			return time.Duration(n) * 24 * time.Hour, nil
		}
	}

	if _, err := strconv.Atoi(value); err == nil {
		return 0, fmt.Errorf("duration %q has no unit, use a suffix such as s, m, h or d", value)
	}

	return 0, fmt.Errorf("invalid duration %q", value)
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
