package api

import (
	"net/http"

	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/rweb"
	"github.com/rohanthewiz/serr"
)

// SignIn handles POST /api/v1/session
// Body: {"token": "<jwt>"}
func (h *API) SignIn(ctx rweb.Context) error {
	var req struct {
		Token string `json:"token"`
	}
	if err := decode(ctx, &req); err != nil || req.Token == "" {
		return writeError(ctx, http.StatusBadRequest, "token is required")
	}
	if h.app.Tokens == nil {
		return writeError(ctx, http.StatusServiceUnavailable, "token sign-in is not configured")
	}
	user, err := h.app.Session.SignInWithToken(req.Token)
	if err != nil {
		logger.LogErr(serr.Wrap(err, "token sign-in failed"), "sign-in rejected")
		return writeError(ctx, http.StatusUnauthorized, "invalid token")
	}
	return writeSuccess(ctx, http.StatusOK, user)
}

// ContinueAsGuest handles POST /api/v1/session/guest
func (h *API) ContinueAsGuest(ctx rweb.Context) error {
	if err := h.app.Session.ContinueAsGuest(); err != nil {
		return fail(ctx, err, "failed to continue as guest")
	}
	return writeSuccess(ctx, http.StatusOK, h.app.Status())
}

// SignOut handles DELETE /api/v1/session
func (h *API) SignOut(ctx rweb.Context) error {
	c, cancel := opCtx()
	defer cancel()
	h.app.Notes.Flush(c)
	if err := h.app.Session.SignOut(); err != nil {
		return fail(ctx, err, "failed to sign out")
	}
	h.app.State.Reset()
	return writeSuccess(ctx, http.StatusOK, h.app.Status())
}

// Status handles GET /api/v1/status
func (h *API) Status(ctx rweb.Context) error {
	return writeSuccess(ctx, http.StatusOK, h.app.Status())
}
