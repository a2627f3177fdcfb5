package models

import (
	"strings"
)

// AllCategoryID is the id of the sentinel category that every list contains.
const AllCategoryID = "all"

// Category labels notes. Names are unique case-insensitively.
type Category struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt int64  `json:"createdAt,omitempty"`
}

// AllCategory returns the sentinel category.
func AllCategory() Category {
	return Category{ID: AllCategoryID, Name: "All"}
}

// DefaultCategories is the list a brand new user starts with.
func DefaultCategories() []Category {
	return []Category{AllCategory()}
}

// EnsureSentinel returns a copy of list with exactly one sentinel category, placed first.
// Other entries keep their order.
func EnsureSentinel(list []Category) []Category {
	out := make([]Category, 0, len(list)+1)
	out = append(out, AllCategory())
	for _, c := range list {
		if c.ID == AllCategoryID {
			continue
		}
		out = append(out, c)
	}
	return out
}

// CloneCategories copies a category list; nil stays nil.
func CloneCategories(list []Category) []Category {
	if list == nil {
		return nil
	}
	return append([]Category{}, list...)
}

// HasCategoryName reports whether name matches an existing category, ignoring case and surrounding space.
func HasCategoryName(list []Category, name string) bool {
	want := strings.ToLower(strings.TrimSpace(name))
	for _, c := range list {
		if strings.ToLower(strings.TrimSpace(c.Name)) == want {
			return true
		}
	}
	return false
}
