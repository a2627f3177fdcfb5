package api

import (
	"net/http"
	"strconv"

	"homenotes/models"

	"github.com/rohanthewiz/rweb"
)

func itemIndex(ctx rweb.Context) (int, bool) {
	idx, err := strconv.Atoi(ctx.Request().Param("index"))
	return idx, err == nil && idx >= 0
}

func textBody(ctx rweb.Context) (string, bool) {
	var in struct {
		Text string `json:"text"`
	}
	if err := decode(ctx, &in); err != nil {
		return "", false
	}
	return in.Text, true
}

func (h *API) shoppingResult(ctx rweb.Context, lists models.ShoppingLists, err error) error {
	if err != nil {
		return fail(ctx, err, "shopping list update failed")
	}
	return writeSuccess(ctx, http.StatusOK, lists)
}

// ShoppingLists handles GET /api/v1/shopping
func (h *API) ShoppingLists(ctx rweb.Context) error {
	return writeSuccess(ctx, http.StatusOK, h.app.Shopping.Lists())
}

// AddShoppingList handles POST /api/v1/shopping/lists
// Body: {"name": "hardware"}
func (h *API) AddShoppingList(ctx rweb.Context) error {
	var in struct {
		Name string `json:"name"`
	}
	if err := decode(ctx, &in); err != nil || in.Name == "" {
		return writeError(ctx, http.StatusBadRequest, "name is required")
	}
	lists, err := h.app.Shopping.AddList(in.Name)
	return h.shoppingResult(ctx, lists, err)
}

// AddShoppingItem handles POST /api/v1/shopping/:list/items
func (h *API) AddShoppingItem(ctx rweb.Context) error {
	text, ok := textBody(ctx)
	if !ok {
		return writeError(ctx, http.StatusBadRequest, "invalid JSON body")
	}
	lists, err := h.app.Shopping.AddItem(ctx.Request().Param("list"), text)
	return h.shoppingResult(ctx, lists, err)
}

// UpdateShoppingItem handles PUT /api/v1/shopping/:list/items/:index
// Text edits are synced once typing pauses.
func (h *API) UpdateShoppingItem(ctx rweb.Context) error {
	idx, ok := itemIndex(ctx)
	if !ok {
		return writeError(ctx, http.StatusBadRequest, "invalid item index")
	}
	text, ok := textBody(ctx)
	if !ok {
		return writeError(ctx, http.StatusBadRequest, "invalid JSON body")
	}
	lists, err := h.app.Shopping.UpdateItemText(ctx.Request().Param("list"), idx, text)
	return h.shoppingResult(ctx, lists, err)
}

// ToggleShoppingItem handles POST /api/v1/shopping/:list/items/:index/toggle
func (h *API) ToggleShoppingItem(ctx rweb.Context) error {
	idx, ok := itemIndex(ctx)
	if !ok {
		return writeError(ctx, http.StatusBadRequest, "invalid item index")
	}
	lists, err := h.app.Shopping.ToggleItem(ctx.Request().Param("list"), idx)
	return h.shoppingResult(ctx, lists, err)
}

// DeleteShoppingItem handles DELETE /api/v1/shopping/:list/items/:index
func (h *API) DeleteShoppingItem(ctx rweb.Context) error {
	idx, ok := itemIndex(ctx)
	if !ok {
		return writeError(ctx, http.StatusBadRequest, "invalid item index")
	}
	lists, err := h.app.Shopping.DeleteItem(ctx.Request().Param("list"), idx)
	return h.shoppingResult(ctx, lists, err)
}

// ClearCompleted handles POST /api/v1/shopping/:list/clear
func (h *API) ClearCompleted(ctx rweb.Context) error {
	lists, err := h.app.Shopping.ClearCompleted(ctx.Request().Param("list"))
	return h.shoppingResult(ctx, lists, err)
}
