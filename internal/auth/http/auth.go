package http

import (
	"net/http"

	"github.com/aussiebroadwan/quill/internal/auth/domain"
	"github.com/aussiebroadwan/quill/internal/auth/service"
	"github.com/aussiebroadwan/quill/pkg/authsdk"
	"github.com/aussiebroadwan/quill/pkg/httpx"
	"github.com/aussiebroadwan/quill/pkg/slogx"
)

// AuthHandler serves the /api/auth routes.
type AuthHandler struct {
	TokenService   *service.TokenService
	AccountService *service.AccountService
	Cookies        CookieConfig
}

// HandleRegister godoc
//
//	@Summary		Register an account
//	@Description	Creates an active account with the "user" role and returns its first token pair.
//	@Description	The refresh token is also set as an HttpOnly cookie scoped to /api/auth.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		authsdk.RegisterRequest	true	"name, email, password"
//	@Success		201		{object}	authsdk.AuthResponse	"access_token, expires_in, refresh_token, user"
//	@Failure		400		{object}	authsdk.ErrorResponse	"malformed body or validation failure"
//	@Failure		409		{object}	authsdk.ErrorResponse	"email already registered"
//	@Failure		429		{object}	authsdk.ErrorResponse	"rate limited"
//	@Failure		500		{object}	authsdk.ErrorResponse	"internal server error"
//	@Header			201		{string}	Set-Cookie				"refreshToken"
//	@Router			/api/auth/register [post].
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in service.RegisterInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	user, err := h.AccountService.Register(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.issue(w, r, user, http.StatusCreated)
}

// HandleLogin godoc
//
//	@Summary		Log in
//	@Description	Exchanges an email and password for a new token pair. Existing sessions stay valid.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		authsdk.LoginRequest	true	"email, password"
//	@Success		200		{object}	authsdk.AuthResponse	"access_token, expires_in, refresh_token, user"
//	@Failure		400		{object}	authsdk.ErrorResponse	"malformed body, validation failure or wrong credentials"
//	@Failure		403		{object}	authsdk.ErrorResponse	"account inactive"
//	@Failure		429		{object}	authsdk.ErrorResponse	"rate limited"
//	@Failure		500		{object}	authsdk.ErrorResponse	"internal server error"
//	@Header			200		{string}	Set-Cookie				"refreshToken"
//	@Router			/api/auth/login [post].
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var in service.LoginInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	user, err := h.AccountService.Authenticate(r.Context(), in)
	if err != nil {
		slogx.FromContext(r.Context()).Info("login rejected", "err", err)
		writeServiceError(w, r, err)
		return
	}

	h.issue(w, r, user, http.StatusOK)
}

// HandleRefresh godoc
//
//	@Summary		Rotate a refresh token
//	@Description	Consumes the refresh token from the refreshToken cookie (or the JSON body) and returns a new pair.
//	@Description	Each refresh token works exactly once.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		authsdk.RefreshRequest	false	"refresh_token, when no cookie is sent"
//	@Success		200		{object}	authsdk.AuthResponse	"access_token, expires_in, refresh_token, user"
//	@Failure		400		{object}	authsdk.ErrorResponse	"malformed body"
//	@Failure		401		{object}	authsdk.ErrorResponse	"missing, unknown, expired or already used refresh token"
//	@Failure		429		{object}	authsdk.ErrorResponse	"rate limited"
//	@Failure		500		{object}	authsdk.ErrorResponse	"internal server error"
//	@Header			200		{string}	Set-Cookie				"refreshToken"
//	@Router			/api/auth/refresh [post].
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	secret, err := refreshSecret(r)
	if err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	res, err := h.TokenService.Rotate(r.Context(), secret)
	if err != nil {
		h.Cookies.clear(w)
		writeServiceError(w, r, err)
		return
	}

	h.write(w, res, http.StatusOK)
}

// HandleLogout godoc
//
//	@Summary		Log out
//	@Description	Deletes the refresh token and clears the cookie. Succeeds even when the token is unknown;
//	@Description	"found" reports whether it was. Access tokens already issued remain valid until they expire.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body	authsdk.RefreshRequest	false	"refresh_token, when no cookie is sent"
//	@Success		200	{object}	authsdk.LogoutResponse
//	@Failure		400	{object}	authsdk.ErrorResponse	"malformed body"
//	@Failure		500	{object}	authsdk.ErrorResponse	"internal server error"
//	@Router			/api/auth/logout [post].
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	secret, err := refreshSecret(r)
	if err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	found, err := h.TokenService.Logout(r.Context(), secret)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	slogx.FromContext(r.Context()).Debug("logout", "found", found)

	resp := authsdk.LogoutResponse{Found: found, Message: "logout successful"}
	if !found {
		resp.Message = "token not found"
	}

	h.Cookies.clear(w)
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *AuthHandler) issue(w http.ResponseWriter, r *http.Request, user domain.User, status int) {
	res, err := h.TokenService.Issue(r.Context(), user)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.write(w, res, status)
}

func (h *AuthHandler) write(w http.ResponseWriter, res *domain.AuthResult, status int) {
	h.Cookies.set(w, res.RefreshToken, res.RefreshExpiresAt)
	httpx.WriteJSON(w, status, authsdk.AuthResponse{
		AccessToken:      res.AccessToken,
		TokenType:        "Bearer",
		ExpiresIn:        int(res.ExpiresIn.Seconds()),
		RefreshToken:     res.RefreshToken,
		RefreshExpiresAt: res.RefreshExpiresAt,
		User:             userResponse(res.User),
	})
}

func userResponse(u domain.PublicUser) authsdk.UserResponse {
	return authsdk.UserResponse{
		ID:    u.ID,
		Name:  u.Name,
		Email: u.Email,
		Roles: domain.RoleStrings(u.Roles),
	}
}
