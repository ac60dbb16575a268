package jwtx_test

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/quill/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func TestNewAccessClaims(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	c := jwtx.NewAccessClaims("user-1", "a@x.com", []string{"user"}, 15*time.Minute, "quill-auth", now)

	require.Equal(t, "user-1", c.Subject)
	require.Equal(t, "quill-auth", c.Issuer)
	require.Equal(t, now, c.IssuedAt.Time)
	require.Equal(t, now.Add(15*time.Minute), c.ExpiresAt.Time)
	require.NotEmpty(t, c.ID)
}

func TestNewJTIUnique(t *testing.T) {
	require.NotEqual(t, jwtx.NewJTI(), jwtx.NewJTI())
}

func TestClaimsHasAnyRole(t *testing.T) {
	c := jwtx.Claims{Roles: []string{"admin", "editor"}}

	require.True(t, c.HasAnyRole("admin"))
	require.True(t, c.HasAnyRole("user", "editor"))
	require.False(t, c.HasAnyRole("user"))
	require.False(t, c.HasAnyRole())
}
