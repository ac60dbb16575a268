package auth_test

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/aussiebroadwan/quill/pkg/authsdk"
	"github.com/stretchr/testify/require"
)

// strictBurst is the default burst of the strict tier guarding login and
// register.
const strictBurst = 5

// TestRateLimitLoginEndpoint verifies that login is rate limited per IP to
// slow down password guessing.
func TestRateLimitLoginEndpoint(t *testing.T) {
	client := setupAuthContainerWithDefaultRateLimits(t)
	ctx := t.Context()

	for i := range strictBurst {
		_, err := client.Login(ctx, "nobody@example.com", "wrongpass")
		assertAPIError(t, err, authsdk.ErrInvalidCredentials, "Request should fail authentication, not be rate limited")
		t.Logf("Request %d rejected with invalid_credentials", i+1)
	}

	_, err := client.Login(ctx, "nobody@example.com", "wrongpass")
	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode, "Should be rate limited after %d requests", strictBurst)
	require.Equal(t, authsdk.ErrorCodeRateLimited, apiErr.Code)

	t.Logf("Successfully rate limited after %d requests to /api/auth/login", strictBurst)
}

// TestRateLimitRegisterEndpoint verifies account creation shares the strict tier.
func TestRateLimitRegisterEndpoint(t *testing.T) {
	client := setupAuthContainerWithDefaultRateLimits(t)
	ctx := t.Context()

	req := authsdk.RegisterRequest{Name: "Spam", Email: "not-an-email", Password: "x"}

	var lastErr error
	for range strictBurst + 1 {
		_, lastErr = client.Register(ctx, req)
		require.Error(t, lastErr)
	}

	var apiErr *authsdk.APIError
	require.ErrorAs(t, lastErr, &apiErr)
	require.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
}

// TestRateLimitHealthEndpoints verifies health check endpoints have lenient limits.
// Monitoring systems poll these frequently, so they need higher limits.
func TestRateLimitHealthEndpoints(t *testing.T) {
	client := setupAuthContainerWithDefaultRateLimits(t)

	for i := range 30 {
		health, err := client.GetLiveness(t.Context())
		require.NoError(t, err, "Liveness request %d should not be rate limited", i+1)
		require.Equal(t, "ok", health.Status)

		health, err = client.GetReadiness(t.Context())
		require.NoError(t, err, "Readiness request %d should not be rate limited", i+1)
		require.Equal(t, "ok", health.Status)
	}

	t.Logf("Successfully made 30 requests each to /livez and /readyz without rate limiting")
}

// TestRateLimitMeEndpoint verifies authenticated reads have lenient limits.
func TestRateLimitMeEndpoint(t *testing.T) {
	client := setupAuthContainerWithDefaultRateLimits(t)
	session := loginAdmin(t, client)

	for i := range 30 {
		_, err := session.Me(t.Context())
		require.NoError(t, err, "Request %d should not be rate limited", i+1)
	}

	t.Logf("Successfully made 30 requests to /api/users/me without rate limiting")
}

// TestRateLimitHeadersPresent verifies that a rate limited response carries
// Retry-After and X-RateLimit-Limit along with the JSON error body.
func TestRateLimitHeadersPresent(t *testing.T) {
	client := setupAuthContainerWithDefaultRateLimits(t)
	httpClient := &http.Client{}

	login := func() *http.Response {
		req, err := http.NewRequest(http.MethodPost, client.BaseURL+"/api/auth/login",
			strings.NewReader(`{"email":"nobody@example.com","password":"wrongpass"}`))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")

		resp, err := httpClient.Do(req)
		require.NoError(t, err)
		return resp
	}

	for range strictBurst {
		resp := login()
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}

	resp := login()
	defer resp.Body.Close()

	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode, "Should receive 429 status")
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	retryAfter := resp.Header.Get("Retry-After")
	require.NotEmpty(t, retryAfter, "Should include Retry-After header")

	rateLimit := resp.Header.Get("X-RateLimit-Limit")
	require.NotEmpty(t, rateLimit, "Should include X-RateLimit-Limit header")

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `"error":"rate_limit_exceeded"`)

	t.Logf("Rate limit headers present: Retry-After=%s, Limit=%s", retryAfter, rateLimit)
}
