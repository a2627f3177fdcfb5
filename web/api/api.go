// Package api exposes the reconcilers as JSON endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"homenotes/app"
	"homenotes/categories"
	"homenotes/family"
	"homenotes/models"
	"homenotes/notes"
	"homenotes/realtime"
	"homenotes/sharing"
	"homenotes/shopping"

	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/rweb"
)

// APIResponse is the envelope of every JSON response.
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// API holds the handlers. Every handler works on the one device session of the app.
type API struct {
	app *app.App
}

func New(a *app.App) *API {
	return &API{app: a}
}

const requestTimeout = 15 * time.Second

// opCtx bounds the remote work a single request may trigger.
func opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), requestTimeout)
}

func writeSuccess(ctx rweb.Context, status int, data any) error {
	ctx.SetStatus(status)
	return ctx.WriteJSON(APIResponse{Success: true, Data: data})
}

func writeError(ctx rweb.Context, status int, message string) error {
	ctx.SetStatus(status)
	return ctx.WriteJSON(APIResponse{Success: false, Error: message})
}

func decode(ctx rweb.Context, v any) error {
	return json.Unmarshal(ctx.Request().Body(), v)
}

// statusFor maps domain errors to HTTP statuses. Anything unknown is a 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, notes.ErrNoteNotFound),
		errors.Is(err, categories.ErrNotFound),
		errors.Is(err, shopping.ErrItemNotFound),
		errors.Is(err, shopping.ErrListNotFound),
		errors.Is(err, sharing.ErrUserNotFound),
		errors.Is(err, sharing.ErrInvitationNotFound),
		errors.Is(err, realtime.ErrNotShared),
		errors.Is(err, family.ErrNoPlan):
		return http.StatusNotFound
	case errors.Is(err, categories.ErrEmptyName),
		errors.Is(err, categories.ErrSentinelCategory),
		errors.Is(err, shopping.ErrEmptyText),
		errors.Is(err, sharing.ErrShareWithSelf),
		errors.Is(err, realtime.ErrUnknownField):
		return http.StatusBadRequest
	case errors.Is(err, categories.ErrDuplicateName),
		errors.Is(err, sharing.ErrUsernameTaken),
		errors.Is(err, notes.ErrSaveSuppressed),
		errors.Is(err, realtime.ErrNotSubscribed),
		errors.Is(err, family.ErrNotVoting),
		errors.Is(err, family.ErrPlanLocked):
		return http.StatusConflict
	case errors.Is(err, models.ErrWrongPassword):
		return http.StatusForbidden
	case errors.Is(err, sharing.ErrNotSignedIn),
		errors.Is(err, realtime.ErrNotSignedIn),
		errors.Is(err, family.ErrNotSignedIn):
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// fail writes err with its mapped status, logging only unexpected failures.
func fail(ctx rweb.Context, err error, msg string) error {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.LogErr(err, msg)
		return writeError(ctx, status, msg)
	}
	return writeError(ctx, status, err.Error())
}
