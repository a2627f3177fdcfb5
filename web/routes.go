package web

import (
	"homenotes/app"
	"homenotes/web/api"
	"homenotes/web/pages"

	"github.com/rohanthewiz/rweb"
)

func setupRoutes(s *rweb.Server, a *app.App) {
	h := api.New(a)

	s.Get("/", func(ctx rweb.Context) error {
		ctx.Response().SetHeader("Content-Type", "text/html; charset=utf-8")
		return ctx.WriteHTML(pages.NewStatus(a).Render())
	})

	// Session
	s.Post("/api/v1/session", h.SignIn)
	s.Post("/api/v1/session/guest", h.ContinueAsGuest)
	s.Delete("/api/v1/session", h.SignOut)
	s.Get("/api/v1/status", h.Status)

	// Notes
	s.Get("/api/v1/notes", h.ListNotes)
	s.Post("/api/v1/notes", h.CreateNote)
	s.Get("/api/v1/notes/:id", h.GetNote)
	s.Put("/api/v1/notes/:id", h.UpdateNote)
	s.Delete("/api/v1/notes/:id", h.DeleteNote)
	s.Put("/api/v1/notes/:id/categories", h.AssignCategories)
	s.Post("/api/v1/notes/:id/lock", h.LockNote)
	s.Post("/api/v1/notes/:id/unlock", h.UnlockNote)
	s.Post("/api/v1/notes/:id/share", h.ShareNote)

	// Categories
	s.Get("/api/v1/categories", h.ListCategories)
	s.Post("/api/v1/categories", h.CreateCategory)
	s.Delete("/api/v1/categories/:id", h.DeleteCategory)

	// Shopping lists
	s.Get("/api/v1/shopping", h.ShoppingLists)
	s.Post("/api/v1/shopping/lists", h.AddShoppingList)
	s.Post("/api/v1/shopping/:list/items", h.AddShoppingItem)
	s.Put("/api/v1/shopping/:list/items/:index", h.UpdateShoppingItem)
	s.Post("/api/v1/shopping/:list/items/:index/toggle", h.ToggleShoppingItem)
	s.Delete("/api/v1/shopping/:list/items/:index", h.DeleteShoppingItem)
	s.Post("/api/v1/shopping/:list/clear", h.ClearCompleted)

	// Shared notes
	s.Post("/api/v1/shared/:sid/enter", h.EnterShared)
	s.Post("/api/v1/shared/:sid/leave", h.LeaveShared)
	s.Put("/api/v1/shared/:sid", h.EditShared)
	s.Put("/api/v1/shared/:sid/focus", h.FocusShared)
	s.Get("/api/v1/shared/:sid/presence", h.SharedPresence)

	// Invitations
	s.Get("/api/v1/invitations", h.ListInvitations)
	s.Post("/api/v1/invitations/:id/accept", h.AcceptInvitation)
	s.Post("/api/v1/invitations/:id/decline", h.DeclineInvitation)
	s.Post("/api/v1/usernames", h.ReserveUsername)

	// Family
	s.Get("/api/v1/meal-plan", h.MealPlan)
	s.Post("/api/v1/meal-plan", h.SubmitMealPlan)
	s.Post("/api/v1/meal-plan/vote", h.VoteMealPlan)
	s.Get("/api/v1/photos", h.Photos)
	s.Get("/api/v1/recipes", h.Recipes)
}
