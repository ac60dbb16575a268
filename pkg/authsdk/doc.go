/*
Package authsdk provides a client SDK for the Quill authentication service.

# Overview

The package is organized around two types:

  - SDKClient: unauthenticated operations (register, login, refresh, logout,
    health checks) and the entry point for creating sessions
  - Session: authenticated operations with automatic token refresh

The wire types in types.go and the APIError values in errors.go are shared
with the server, which writes them directly.

	client := authsdk.NewSDKClient("https://auth.example.com")

	// Check service health
	health, err := client.GetLiveness(ctx)

	// Create an account; the response carries the first token pair
	auth, err := client.Register(ctx, authsdk.RegisterRequest{
		Name:     "Ada",
		Email:    "ada@example.com",
		Password: "correct horse",
	})

	// Or log in and keep a session
	session, err := client.AuthenticateWithPassword(ctx, "ada@example.com", "correct horse")

	me, err := session.Me(ctx)

# Refresh Rotation

Refresh secrets are single use. Every refresh returns a new secret and the
old one stops working, so a Session replaces its stored secret each time.
Sessions refresh automatically when the access token is within 30 seconds
of expiry. Two processes sharing one refresh secret will race, and only
one of them wins.

# Errors

Non-2xx responses are returned as *APIError. Compare against the predefined
values with errors.Is, which matches on status code and error code:

	_, err := client.Login(ctx, email, password)
	if errors.Is(err, authsdk.ErrInvalidCredentials) {
		// wrong email or password
	}

Validation failures carry per-field messages in APIError.Details.

# Thread Safety

Sessions are safe for concurrent use. A refresh holds the session's write
lock, so concurrent callers wait for it instead of spending the secret twice.
*/
package authsdk
