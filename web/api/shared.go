package api

import (
	"net/http"

	"homenotes/models"
	"homenotes/realtime"

	"github.com/rohanthewiz/rweb"
)

func (h *API) channel(ctx rweb.Context) (*realtime.Channel, error) {
	ch, ok := h.app.Shared.Get(ctx.Request().Param("sid"))
	if !ok {
		return nil, realtime.ErrNotSubscribed
	}
	return ch, nil
}

// EnterShared handles POST /api/v1/shared/:sid/enter
func (h *API) EnterShared(ctx rweb.Context) error {
	c, cancel := opCtx()
	defer cancel()
	ch, err := h.app.Shared.Enter(c, ctx.Request().Param("sid"))
	if err != nil {
		return fail(ctx, err, "failed to open shared note")
	}
	h.app.State.SetCurrentNoteID(ch.Note().ID)
	return writeSuccess(ctx, http.StatusOK, toOutput(ch.Note()))
}

// LeaveShared handles POST /api/v1/shared/:sid/leave
func (h *API) LeaveShared(ctx rweb.Context) error {
	c, cancel := opCtx()
	defer cancel()
	if err := h.app.Shared.Leave(c, ctx.Request().Param("sid")); err != nil {
		return fail(ctx, err, "failed to leave shared note")
	}
	return writeSuccess(ctx, http.StatusOK, nil)
}

// EditShared handles PUT /api/v1/shared/:sid
// Body: {"title": "...", "content": "...", "listSections": [...]}; only present fields change.
func (h *API) EditShared(ctx rweb.Context) error {
	var in struct {
		Title        *string              `json:"title"`
		Content      *string              `json:"content"`
		ListSections []models.ListSection `json:"listSections"`
	}
	if err := decode(ctx, &in); err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid JSON body")
	}
	ch, err := h.channel(ctx)
	if err != nil {
		return fail(ctx, err, "shared note not open")
	}
	c, cancel := opCtx()
	defer cancel()
	if in.Title != nil {
		if err := ch.Edit(c, realtime.FieldTitle, *in.Title); err != nil {
			return fail(ctx, err, "failed to edit title")
		}
	}
	if in.Content != nil {
		if err := ch.Edit(c, realtime.FieldContent, *in.Content); err != nil {
			return fail(ctx, err, "failed to edit content")
		}
	}
	if in.ListSections != nil {
		if err := ch.EditSections(c, in.ListSections); err != nil {
			return fail(ctx, err, "failed to edit lists")
		}
	}
	return writeSuccess(ctx, http.StatusOK, toOutput(ch.Note()))
}

// FocusShared handles PUT /api/v1/shared/:sid/focus
// Body: {"field": "content", "section": "<list section id>"}; empty values clear focus.
func (h *API) FocusShared(ctx rweb.Context) error {
	var in struct {
		Field   string `json:"field"`
		Section string `json:"section"`
	}
	if err := decode(ctx, &in); err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid JSON body")
	}
	ch, err := h.channel(ctx)
	if err != nil {
		return fail(ctx, err, "shared note not open")
	}
	c, cancel := opCtx()
	defer cancel()
	ch.SetFocus(c, in.Field)
	ch.SetActiveSection(in.Section)
	return writeSuccess(ctx, http.StatusOK, nil)
}

// SharedPresence handles GET /api/v1/shared/:sid/presence
func (h *API) SharedPresence(ctx rweb.Context) error {
	ch, err := h.channel(ctx)
	if err != nil {
		return fail(ctx, err, "shared note not open")
	}
	return writeSuccess(ctx, http.StatusOK, ch.ActiveUsers(models.NowMillis()))
}
