package models

import (
	"strings"

	"github.com/rohanthewiz/serr"
)

// User is the signed-in identity as reported by the auth provider.
type User struct {
	UID   string `json:"uid"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// DisplayName falls back to the email and then to a generic label.
func (u *User) DisplayName() string {
	switch {
	case u == nil:
		return "Anonymous"
	case u.Name != "":
		return u.Name
	case u.Email != "":
		return u.Email
	}
	return "Anonymous"
}

// UserDocument is the remote profile at users/<uid>, with notes and categories embedded.
type UserDocument struct {
	Name                   string     `json:"name,omitempty"`
	Email                  string     `json:"email,omitempty"`
	Username               string     `json:"username,omitempty"`
	Notes                  []Note     `json:"notes"`
	Categories             []Category `json:"categories"`
	CategoriesLastModified int64      `json:"categoriesLastModified,omitempty"`
	CreatedAt              int64      `json:"createdAt,omitempty"`
	LastLogin              int64      `json:"lastLogin,omitempty"`
	LastUpdated            int64      `json:"lastUpdated,omitempty"`
	MigratedAt             int64      `json:"migratedAt,omitempty"`
}

// NewUserDocument builds the profile written the first time a user signs in.
func NewUserDocument(u User, now int64) UserDocument {
	return UserDocument{
		Name:       u.DisplayName(),
		Email:      u.Email,
		Notes:      []Note{},
		Categories: DefaultCategories(),
		CreatedAt:  now,
		LastLogin:  now,
	}
}

// ValidateUsername checks the rules for reserving a username.
// Usernames are stored lowercased, so case does not make two names distinct.
func ValidateUsername(username string) error {
	if len(username) < 3 {
		return serr.New("username must be at least 3 characters")
	}
	if len(username) > 50 {
		return serr.New("username must be at most 50 characters")
	}
	for _, c := range username {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_') {
			return serr.New("username can only contain letters, numbers, and underscores")
		}
	}
	return nil
}

// NormalizeUsername is the key form used under usernames/.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
