package api

import (
	"net/http"

	"homenotes/models"

	"github.com/rohanthewiz/rweb"
)

// ReserveUsername handles POST /api/v1/usernames
// Body: {"username": "ann"}
func (h *API) ReserveUsername(ctx rweb.Context) error {
	var in struct {
		Username string `json:"username"`
	}
	if err := decode(ctx, &in); err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid JSON body")
	}
	if err := models.ValidateUsername(in.Username); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}
	c, cancel := opCtx()
	defer cancel()
	name, err := h.app.Sharing.ReserveUsername(c, in.Username)
	if err != nil {
		return fail(ctx, err, "failed to reserve username")
	}
	return writeSuccess(ctx, http.StatusCreated, map[string]string{"username": name})
}

// ShareNote handles POST /api/v1/notes/:id/share
// Body: {"username": "bob"}
func (h *API) ShareNote(ctx rweb.Context) error {
	var in struct {
		Username string `json:"username"`
	}
	if err := decode(ctx, &in); err != nil || in.Username == "" {
		return writeError(ctx, http.StatusBadRequest, "username is required")
	}
	c, cancel := opCtx()
	defer cancel()
	inv, err := h.app.Sharing.ShareNote(c, ctx.Request().Param("id"), in.Username)
	if err != nil {
		return fail(ctx, err, "failed to share note")
	}
	return writeSuccess(ctx, http.StatusCreated, inv)
}

// ListInvitations handles GET /api/v1/invitations
func (h *API) ListInvitations(ctx rweb.Context) error {
	c, cancel := opCtx()
	defer cancel()
	list, err := h.app.Sharing.PendingInvitations(c)
	if err != nil {
		return fail(ctx, err, "failed to list invitations")
	}
	return writeSuccess(ctx, http.StatusOK, list)
}

// AcceptInvitation handles POST /api/v1/invitations/:id/accept
func (h *API) AcceptInvitation(ctx rweb.Context) error {
	c, cancel := opCtx()
	defer cancel()
	n, err := h.app.Sharing.Accept(c, ctx.Request().Param("id"))
	if err != nil {
		return fail(ctx, err, "failed to accept invitation")
	}
	return writeSuccess(ctx, http.StatusOK, toOutput(n))
}

// DeclineInvitation handles POST /api/v1/invitations/:id/decline
func (h *API) DeclineInvitation(ctx rweb.Context) error {
	c, cancel := opCtx()
	defer cancel()
	if err := h.app.Sharing.Decline(c, ctx.Request().Param("id")); err != nil {
		return fail(ctx, err, "failed to decline invitation")
	}
	return writeSuccess(ctx, http.StatusOK, nil)
}
