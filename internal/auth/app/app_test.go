package app

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/quill/internal/auth/domain"
	"github.com/aussiebroadwan/quill/pkg/authsdk"
	"github.com/aussiebroadwan/quill/pkg/cryptox"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	return Config{
		AccessSecret:         strings.Repeat("s", 32),
		AccessTTL:            15 * time.Minute,
		RefreshTTL:           time.Hour,
		Issuer:               "quill-auth",
		StoreDriver:          DriverSQLite,
		DatabaseFile:         filepath.Join(dir, "auth.db"),
		PepperFile:           filepath.Join(dir, "pepper"),
		AdminEmail:           "admin@example.com",
		AdminPassword:        "admin-password",
		AdminName:            "Admin",
		CORSOrigins:          []string{"http://localhost:5173"},
		ShutdownGracePeriod:  time.Second,
		HousekeepingInterval: time.Hour,
	}
}

func newTestApp(t *testing.T, cfg Config) (*Application, *authsdk.SDKClient) {
	t.Helper()
	application, err := New(context.Background(), cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Close() })

	srv := httptest.NewServer(application.Handler())
	t.Cleanup(srv.Close)
	return application, authsdk.NewSDKClient(srv.URL)
}

func TestNew(t *testing.T) {
	t.Run("invalid config", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.AccessSecret = "short"
		_, err := New(context.Background(), cfg, slog.New(slog.DiscardHandler))
		require.ErrorContains(t, err, "invalid configuration")
	})

	t.Run("seeds admin and serves", func(t *testing.T) {
		_, sdk := newTestApp(t, testConfig(t))
		ctx := context.Background()

		sess, err := sdk.AuthenticateWithPassword(ctx, "admin@example.com", "admin-password")
		require.NoError(t, err)
		require.True(t, sess.User().HasRole(string(domain.RoleAdmin)))

		ready, err := sdk.GetReadiness(ctx)
		require.NoError(t, err)
		require.Equal(t, "ok", ready.Status)
	})

	t.Run("restart keeps accounts and pepper", func(t *testing.T) {
		cfg := testConfig(t)
		first, sdk := newTestApp(t, cfg)
		_, err := sdk.Register(context.Background(), authsdk.RegisterRequest{
			Name: "Ada", Email: "ada@example.com", Password: "correct horse",
		})
		require.NoError(t, err)
		require.NoError(t, first.Close())

		_, sdk = newTestApp(t, cfg)
		_, err = sdk.Login(context.Background(), "ada@example.com", "correct horse")
		require.NoError(t, err)
	})
}

func TestOpenStoreWithRedisCredentials(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.CredentialBackend = BackendRedis
	cfg.RedisAddr = mr.Addr()

	_, sdk := newTestApp(t, cfg)
	ctx := context.Background()

	res, err := sdk.Register(ctx, authsdk.RegisterRequest{
		Name: "Ada", Email: "ada@example.com", Password: "correct horse",
	})
	require.NoError(t, err)

	hash := cryptox.FingerprintToken(res.RefreshToken)
	require.True(t, mr.Exists("quill:rt:"+hash), "credential should live in redis")

	_, err = sdk.Refresh(ctx, res.RefreshToken)
	require.NoError(t, err)
	_, err = sdk.Refresh(ctx, res.RefreshToken)
	require.ErrorIs(t, err, authsdk.ErrInvalidGrant)
}

func TestPurge(t *testing.T) {
	cfg := testConfig(t)
	cfg.AdminEmail, cfg.AdminPassword = "", ""
	logger := slog.New(slog.DiscardHandler)
	ctx := context.Background()

	db, err := OpenStore(ctx, cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	now := time.Now()
	require.NoError(t, db.Users().CreateUser(ctx, domain.User{
		ID: "01HUSER0000000000000000000", Name: "Ada", Email: "ada@example.com",
		PasswordHash: "x", Roles: []domain.Role{domain.RoleUser}, Active: true,
		CreatedAt: now, UpdatedAt: now,
	}))
	for i, exp := range []time.Time{now.Add(-time.Minute), now.Add(time.Hour)} {
		require.NoError(t, db.Credentials().CreateCredential(ctx, domain.Credential{
			ID:        "01HCRED000000000000000000" + string(rune('A'+i)),
			UserID:    "01HUSER0000000000000000000",
			TokenHash: cryptox.FingerprintToken(string(rune('a' + i))),
			ExpiresAt: exp,
			CreatedAt: now.Add(-2 * time.Minute),
		}))
	}

	n, err := Purge(ctx, db, logger)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}
