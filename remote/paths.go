package remote

import "strings"

// Well-known singleton documents.
const (
	ShoppingListsPath = "sharedNotes/family_shopping_lists"
	RecipesPath       = "sharedNotes/global_recipes"
	PhotosPath        = "sharedNotes/family_photos"
	PhotoGroupsPath   = "sharedNotes/family_groups"
	InvitationsPath   = "invitations"
)

func UserPath(uid string) string { return "users/" + uid }

func UserCategoriesPath(uid string) string { return UserPath(uid) + "/categories" }

func SharedNotePath(sharedID string) string { return "sharedNotes/" + sharedID }

// PresencePath is a user's slot in a shared note's activeUsers subtree.
func PresencePath(sharedID, uid string) string {
	return SharedNotePath(sharedID) + "/activeUsers/" + uid
}

func InvitationPath(id string) string { return InvitationsPath + "/" + id }

func UsernamePath(username string) string { return "usernames/" + username }

func MealPlanPath(weekID string) string { return "mealPlans/" + weekID }

// SplitPath breaks a path into its non-empty segments.
func SplitPath(path string) []string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// JoinPath is the inverse of SplitPath.
func JoinPath(segs ...string) string {
	return strings.Join(SplitPath(strings.Join(segs, "/")), "/")
}

// Overlaps reports whether a write at one path can change the value at the other,
// i.e. one is an ancestor of (or equal to) the other.
func Overlaps(a, b string) bool {
	as, bs := SplitPath(a), SplitPath(b)
	n := len(as)
	if len(bs) < n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}
