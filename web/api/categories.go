package api

import (
	"net/http"

	"github.com/rohanthewiz/rweb"
)

// ListCategories handles GET /api/v1/categories
func (h *API) ListCategories(ctx rweb.Context) error {
	return writeSuccess(ctx, http.StatusOK, h.app.Categories.Categories())
}

// CreateCategory handles POST /api/v1/categories
// Body: {"name": "Work"}
func (h *API) CreateCategory(ctx rweb.Context) error {
	var in struct {
		Name string `json:"name"`
	}
	if err := decode(ctx, &in); err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid JSON body")
	}
	c, cancel := opCtx()
	defer cancel()
	cat, err := h.app.Categories.AddCategory(c, in.Name)
	if err != nil {
		return fail(ctx, err, "failed to create category")
	}
	return writeSuccess(ctx, http.StatusCreated, cat)
}

// DeleteCategory handles DELETE /api/v1/categories/:id
func (h *API) DeleteCategory(ctx rweb.Context) error {
	c, cancel := opCtx()
	defer cancel()
	if err := h.app.Categories.DeleteCategory(c, ctx.Request().Param("id")); err != nil {
		return fail(ctx, err, "failed to delete category")
	}
	return writeSuccess(ctx, http.StatusOK, h.app.Categories.Categories())
}
