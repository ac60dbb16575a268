package authsdk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// refreshBuffer is subtracted from the access token lifetime so requests
// never race the expiry.
const refreshBuffer = 30 * time.Second

var ErrNoRefreshToken = errors.New("authsdk: access token expired and no refresh token available")

// Session represents an authenticated session with automatic token refresh.
// It is safe for concurrent use.
type Session struct {
	client *SDKClient

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	expiresAt    time.Time
	user         UserResponse
}

func newSession(client *SDKClient, auth *AuthResponse) *Session {
	return &Session{
		client:       client,
		accessToken:  auth.AccessToken,
		refreshToken: auth.RefreshToken,
		expiresAt:    expiryWithBuffer(auth.ExpiresIn),
		user:         auth.User,
	}
}

func expiryWithBuffer(expiresIn int) time.Time {
	return time.Now().Add(time.Duration(expiresIn)*time.Second - refreshBuffer)
}

// getValidToken returns a valid access token, automatically refreshing if expired.
func (s *Session) getValidToken(ctx context.Context) (string, error) {
	s.mu.RLock()
	if time.Now().Before(s.expiresAt) {
		token := s.accessToken
		s.mu.RUnlock()
		return token, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another goroutine may have refreshed while we waited.
	if time.Now().Before(s.expiresAt) {
		return s.accessToken, nil
	}
	if err := s.refreshLocked(ctx); err != nil {
		return "", err
	}
	return s.accessToken, nil
}

// Refresh rotates the token pair now, regardless of expiry.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshLocked(ctx)
}

func (s *Session) refreshLocked(ctx context.Context) error {
	if s.refreshToken == "" {
		return ErrNoRefreshToken
	}

	auth, err := s.client.Refresh(ctx, s.refreshToken)
	if err != nil {
		return fmt.Errorf("failed to refresh token: %w", err)
	}

	s.accessToken = auth.AccessToken
	s.refreshToken = auth.RefreshToken
	s.expiresAt = expiryWithBuffer(auth.ExpiresIn)
	s.user = auth.User
	return nil
}

// AccessToken returns the current access token without checking expiration.
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// RefreshToken returns the current refresh secret.
func (s *Session) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}

// User returns the account snapshot from the last login or refresh.
func (s *Session) User() UserResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// Logout discards the session's refresh secret on the server. The access
// token stays valid until it expires.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	refreshToken := s.refreshToken
	s.refreshToken = ""
	s.mu.Unlock()

	if refreshToken == "" {
		return ErrNoRefreshToken
	}
	_, err := s.client.Logout(ctx, refreshToken)
	return err
}

// ============================================================================
// User Operations
// ============================================================================

// Me returns the authenticated user's current profile.
func (s *Session) Me(ctx context.Context) (*UserResponse, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodGet, "/api/users/me", nil)
	if err != nil {
		return nil, err
	}

	var user UserResponse
	if err := decodeJSON(resp, &user, http.StatusOK); err != nil {
		return nil, err
	}
	return &user, nil
}

// ============================================================================
// Admin Operations
// ============================================================================

// SetRoles replaces a user's roles. Requires the admin role.
func (s *Session) SetRoles(ctx context.Context, userID string, roles []string) (*UserResponse, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodPut,
		"/api/users/"+url.PathEscape(userID)+"/roles",
		SetRolesRequest{Roles: roles},
	)
	if err != nil {
		return nil, err
	}

	var user UserResponse
	if err := decodeJSON(resp, &user, http.StatusOK); err != nil {
		return nil, err
	}
	return &user, nil
}

// SetActive activates or deactivates a user. Requires the admin role.
func (s *Session) SetActive(ctx context.Context, userID string, active bool) error {
	resp, err := s.doAuthRequest(ctx, http.MethodPut,
		"/api/users/"+url.PathEscape(userID)+"/active",
		SetActiveRequest{Active: &active},
	)
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}
