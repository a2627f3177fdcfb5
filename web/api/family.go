package api

import (
	"errors"
	"net/http"
	"time"

	"homenotes/family"
	"homenotes/models"

	"github.com/rohanthewiz/rweb"
)

// MealPlan handles GET /api/v1/meal-plan
// Query parameters:
//   - week: week id such as week_2024_2_11 (default: the current week)
func (h *API) MealPlan(ctx rweb.Context) error {
	week := ctx.Request().QueryParam("week")
	if week == "" {
		week = models.WeekID(time.Now())
	}
	if cur, err := h.app.MealPlans.Current(); err == nil && cur.WeekID == week {
		return writeSuccess(ctx, http.StatusOK, cur)
	}
	c, cancel := opCtx()
	defer cancel()
	plan, err := h.app.MealPlans.Load(c, week)
	if err != nil {
		return fail(ctx, err, "failed to load meal plan")
	}
	return writeSuccess(ctx, http.StatusOK, plan)
}

// SubmitMealPlan handles POST /api/v1/meal-plan
// Body: {"meals": {"monday": "soup"}}; the plan moves to voting.
func (h *API) SubmitMealPlan(ctx rweb.Context) error {
	var in struct {
		Meals map[string]string `json:"meals"`
	}
	if err := decode(ctx, &in); err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid JSON body")
	}
	c, cancel := opCtx()
	defer cancel()
	if _, err := h.app.MealPlans.Current(); errors.Is(err, family.ErrNoPlan) {
		if _, err := h.app.MealPlans.Load(c, models.WeekID(time.Now())); err != nil {
			return fail(ctx, err, "failed to load meal plan")
		}
	}
	plan, err := h.app.MealPlans.Submit(c, in.Meals)
	if err != nil {
		return fail(ctx, err, "failed to submit meal plan")
	}
	return writeSuccess(ctx, http.StatusOK, plan)
}

// VoteMealPlan handles POST /api/v1/meal-plan/vote
// Body: {"approve": true}
func (h *API) VoteMealPlan(ctx rweb.Context) error {
	var in struct {
		Approve bool `json:"approve"`
	}
	if err := decode(ctx, &in); err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid JSON body")
	}
	c, cancel := opCtx()
	defer cancel()
	plan, err := h.app.MealPlans.Vote(c, in.Approve)
	if err != nil {
		return fail(ctx, err, "failed to record vote")
	}
	return writeSuccess(ctx, http.StatusOK, plan)
}

// Photos handles GET /api/v1/photos
func (h *API) Photos(ctx rweb.Context) error {
	return writeSuccess(ctx, http.StatusOK, h.app.Photos.Items())
}

// Recipes handles GET /api/v1/recipes
func (h *API) Recipes(ctx rweb.Context) error {
	return writeSuccess(ctx, http.StatusOK, h.app.Recipes.Items())
}
