package models

import (
	"fmt"
	"time"
)

// Meal plan status values.
const (
	PlanPlanning  = "planning"
	PlanVoting    = "voting"
	PlanFinalized = "finalized"
)

// Vote values.
const (
	VoteApprove = "approve"
	VoteReject  = "reject"
)

// MealPlan is a household's plan for one week, keyed by WeekID.
type MealPlan struct {
	WeekID    string            `json:"weekId"`
	Meals     map[string]string `json:"meals"`
	Status    string            `json:"status"`
	Votes     map[string]string `json:"votes,omitempty"`
	UpdatedAt int64             `json:"updatedAt"`
	UpdatedBy string            `json:"updatedBy,omitempty"`
}

// NewMealPlan returns an empty plan in the planning state.
func NewMealPlan(weekID string) MealPlan {
	return MealPlan{WeekID: weekID, Meals: map[string]string{}, Status: PlanPlanning, Votes: map[string]string{}}
}

// ApproveCount counts approve votes.
func (p MealPlan) ApproveCount() int {
	n := 0
	for _, v := range p.Votes {
		if v == VoteApprove {
			n++
		}
	}
	return n
}

// WeekID names the week containing t by its Monday, as week_<year>_<month0>_<day>.
// The month is zero-based to stay compatible with documents already in the store.
func WeekID(t time.Time) string {
	offset := (int(t.Weekday()) + 6) % 7 // days since Monday
	monday := t.AddDate(0, 0, -offset)
	return fmt.Sprintf("week_%d_%d_%d", monday.Year(), int(monday.Month())-1, monday.Day())
}

// Identifiable is implemented by records kept in family collections.
type Identifiable interface {
	GetID() string
}

type Photo struct {
	ID        string `json:"id"`
	Caption   string `json:"caption,omitempty"`
	Data      string `json:"data,omitempty"`
	GroupID   string `json:"groupId,omitempty"`
	AddedBy   string `json:"addedBy,omitempty"`
	CreatedAt int64  `json:"createdAt"`
}

func (p Photo) GetID() string { return p.ID }

type PhotoGroup struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt int64  `json:"createdAt"`
}

func (g PhotoGroup) GetID() string { return g.ID }

type Recipe struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Ingredients  []string `json:"ingredients"`
	Instructions string   `json:"instructions,omitempty"`
	AddedBy      string   `json:"addedBy,omitempty"`
	CreatedAt    int64    `json:"createdAt"`
}

func (r Recipe) GetID() string { return r.ID }
