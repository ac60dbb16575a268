package http

import (
	"net/http"

	"github.com/aussiebroadwan/quill/internal/auth/service"
	"github.com/aussiebroadwan/quill/pkg/authsdk"
	"github.com/aussiebroadwan/quill/pkg/httpx"
	"github.com/aussiebroadwan/quill/pkg/slogx"
)

// UsersHandler serves the /api/users routes.
type UsersHandler struct {
	AccountService *service.AccountService
}

// HandleMe godoc
//
//	@Summary		Current user
//	@Description	Returns the profile of the user the access token was issued to.
//	@Tags			Users
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.UserResponse	"id, name, email, roles"
//	@Failure		401	{object}	authsdk.ErrorResponse	"invalid or missing access token"
//	@Failure		404	{object}	authsdk.ErrorResponse	"user no longer exists"
//	@Failure		500	{object}	authsdk.ErrorResponse	"internal server error"
//	@Router			/api/users/me [get].
func (h *UsersHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID := httpx.UserIDFromContext(r.Context())
	if userID == "" {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	user, err := h.AccountService.Profile(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, userResponse(user.Public()))
}

// HandleSetRoles godoc
//
//	@Summary		Replace a user's roles
//	@Description	Requires the admin role. Tokens already issued keep their old roles until they expire.
//	@Tags			Users
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string					true	"user id"
//	@Param			body	body		authsdk.SetRolesRequest	true	"roles: any of user, editor, admin"
//	@Success		200		{object}	authsdk.UserResponse	"updated user"
//	@Failure		400		{object}	authsdk.ErrorResponse	"malformed body or unknown role"
//	@Failure		401		{object}	authsdk.ErrorResponse	"invalid or missing access token"
//	@Failure		403		{object}	authsdk.ErrorResponse	"caller is not an admin"
//	@Failure		404		{object}	authsdk.ErrorResponse	"user not found"
//	@Router			/api/users/{id}/roles [put].
func (h *UsersHandler) HandleSetRoles(w http.ResponseWriter, r *http.Request) {
	var body authsdk.SetRolesRequest
	if err := httpx.DecodeJSON(r, &body); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	user, err := h.AccountService.SetRoles(r.Context(), r.PathValue("id"), body.Roles)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	slogx.FromContext(r.Context()).Info("roles changed by admin", "target_user_id", user.ID)
	httpx.WriteJSON(w, http.StatusOK, userResponse(user.Public()))
}

// HandleSetActive godoc
//
//	@Summary		Activate or deactivate a user
//	@Description	Requires the admin role. Deactivation revokes every refresh token of the user.
//	@Tags			Users
//	@Security		BearerAuth
//	@Accept			json
//	@Param			id		path	string						true	"user id"
//	@Param			body	body	authsdk.SetActiveRequest	true	"active flag"
//	@Success		204
//	@Failure		400	{object}	authsdk.ErrorResponse	"malformed body"
//	@Failure		401	{object}	authsdk.ErrorResponse	"invalid or missing access token"
//	@Failure		403	{object}	authsdk.ErrorResponse	"caller is not an admin"
//	@Failure		404	{object}	authsdk.ErrorResponse	"user not found"
//	@Router			/api/users/{id}/active [put].
func (h *UsersHandler) HandleSetActive(w http.ResponseWriter, r *http.Request) {
	var body authsdk.SetActiveRequest
	if err := httpx.DecodeJSON(r, &body); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}
	if body.Active == nil {
		authsdk.NewValidationError(map[string]string{"active": "is required"}).WriteError(w)
		return
	}

	if err := h.AccountService.SetActive(r.Context(), r.PathValue("id"), *body.Active); err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
