package api

import (
	"net/http"

	"homenotes/models"

	"github.com/rohanthewiz/rweb"
)

// noteOutput hides the lock hash and reports whether a note is locked.
type noteOutput struct {
	models.Note
	Locked bool `json:"locked"`
}

func toOutput(n models.Note) noteOutput {
	locked := n.IsLocked()
	n.Password = ""
	return noteOutput{Note: n, Locked: locked}
}

// ListNotes handles GET /api/v1/notes
// Query parameters:
//   - cat: only notes in this category id
func (h *API) ListNotes(ctx rweb.Context) error {
	cat := ctx.Request().QueryParam("cat")
	list := h.app.Notes.Notes()
	out := make([]noteOutput, 0, len(list))
	for _, n := range list {
		if cat != "" && cat != models.AllCategoryID && !n.HasCategory(cat) {
			continue
		}
		out = append(out, toOutput(n))
	}
	return writeSuccess(ctx, http.StatusOK, out)
}

// GetNote handles GET /api/v1/notes/:id
func (h *API) GetNote(ctx rweb.Context) error {
	n, err := h.app.Notes.Note(ctx.Request().Param("id"))
	if err != nil {
		return fail(ctx, err, "failed to get note")
	}
	return writeSuccess(ctx, http.StatusOK, toOutput(n))
}

type noteInput struct {
	Title        string               `json:"title"`
	Content      string               `json:"content"`
	Categories   []string             `json:"categories"`
	ListSections []models.ListSection `json:"listSections"`
}

// CreateNote handles POST /api/v1/notes
func (h *API) CreateNote(ctx rweb.Context) error {
	var in noteInput
	if err := decode(ctx, &in); err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid JSON body")
	}
	c, cancel := opCtx()
	defer cancel()
	n, err := h.app.Notes.CreateNote(c, in.Title, in.Content, in.Categories)
	if err != nil {
		return fail(ctx, err, "failed to create note")
	}
	return writeSuccess(ctx, http.StatusCreated, toOutput(n))
}

// UpdateNote handles PUT /api/v1/notes/:id
// The stored categories of a private note are kept unless the body carries some.
func (h *API) UpdateNote(ctx rweb.Context) error {
	var in noteInput
	if err := decode(ctx, &in); err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid JSON body")
	}
	existing, err := h.app.Notes.Note(ctx.Request().Param("id"))
	if err != nil {
		return fail(ctx, err, "failed to get note")
	}
	if existing.IsLocked() {
		return writeError(ctx, http.StatusForbidden, "note is locked")
	}

	existing.Title = in.Title
	existing.Content = in.Content
	existing.Categories = in.Categories
	if in.ListSections != nil {
		existing.ListSections = in.ListSections
	}
	h.app.State.SetCurrentNoteID(existing.ID)

	c, cancel := opCtx()
	defer cancel()
	saved, err := h.app.Notes.SaveCurrentNote(c, existing)
	if err != nil {
		return fail(ctx, err, "failed to save note")
	}
	return writeSuccess(ctx, http.StatusOK, toOutput(saved))
}

// DeleteNote handles DELETE /api/v1/notes/:id
func (h *API) DeleteNote(ctx rweb.Context) error {
	c, cancel := opCtx()
	defer cancel()
	if err := h.app.Notes.DeleteNote(c, ctx.Request().Param("id")); err != nil {
		return fail(ctx, err, "failed to delete note")
	}
	return writeSuccess(ctx, http.StatusOK, nil)
}

// AssignCategories handles PUT /api/v1/notes/:id/categories
// Body: {"categories": ["work", "home"]}
func (h *API) AssignCategories(ctx rweb.Context) error {
	var in struct {
		Categories []string `json:"categories"`
	}
	if err := decode(ctx, &in); err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid JSON body")
	}
	c, cancel := opCtx()
	defer cancel()
	n, err := h.app.Notes.AssignCategories(c, ctx.Request().Param("id"), in.Categories)
	if err != nil {
		return fail(ctx, err, "failed to assign categories")
	}
	return writeSuccess(ctx, http.StatusOK, toOutput(n))
}

type passwordInput struct {
	Password string `json:"password"`
	Remove   bool   `json:"remove"`
}

// LockNote handles POST /api/v1/notes/:id/lock
func (h *API) LockNote(ctx rweb.Context) error {
	var in passwordInput
	if err := decode(ctx, &in); err != nil || in.Password == "" {
		return writeError(ctx, http.StatusBadRequest, "password is required")
	}
	c, cancel := opCtx()
	defer cancel()
	if err := h.app.Notes.LockNote(c, ctx.Request().Param("id"), in.Password); err != nil {
		return fail(ctx, err, "failed to lock note")
	}
	return writeSuccess(ctx, http.StatusOK, nil)
}

// UnlockNote handles POST /api/v1/notes/:id/unlock
// Body: {"password": "...", "remove": false}. The note is returned with its content.
func (h *API) UnlockNote(ctx rweb.Context) error {
	var in passwordInput
	if err := decode(ctx, &in); err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid JSON body")
	}
	c, cancel := opCtx()
	defer cancel()
	n, err := h.app.Notes.UnlockNote(c, ctx.Request().Param("id"), in.Password, in.Remove)
	if err != nil {
		return fail(ctx, err, "failed to unlock note")
	}
	return writeSuccess(ctx, http.StatusOK, toOutput(n))
}
