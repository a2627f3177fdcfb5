package localcache

import (
	"encoding/json"
	"strconv"

	"github.com/rohanthewiz/serr"
)

// Durable cache keys.
const (
	KeyNotes                  = "notes"
	KeyCategories             = "categories"
	KeyCategoriesLastModified = "categoriesLastModified"
	KeyShoppingLists          = "shoppingLists"
	KeyLastShoppingUpdate     = "lastShoppingListUpdate"
	KeyCurrentFilter          = "currentFilter"
	KeyTheme                  = "theme"
	KeyLanguage               = "language"
	KeyIsGuest                = "isGuest"
	KeyCachedInvitations      = "cachedInvitations"
	KeyCachedSharedNotes      = "cachedSharedNotes"
	KeyFamilyPhotos           = "familyPhotos"
	KeyFamilyGroups           = "familyGroups"
	KeyRecipes                = "recipes"
)

// Session cache keys.
const (
	KeyCategoriesBackup = "categoriesBackup"
)

// UsernameKey caches the reserved username of a user.
func UsernameKey(uid string) string { return "username_" + uid }

// MigratedKey marks that guest data was already moved to a user's account.
func MigratedKey(uid string) string { return "migrated_" + uid }

// MealPlanKey holds the local copy of one week's plan.
func MealPlanKey(weekID string) string { return "mealPlan_" + weekID }

// GetJSON decodes the document under key into v. It reports false when the key is absent.
func GetJSON(c Cache, key string, v any) (bool, error) {
	raw, ok, err := c.Get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, serr.Wrap(err, "failed to decode cached "+key)
	}
	return true, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(c Cache, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return serr.Wrap(err, "failed to encode "+key)
	}
	return c.Set(key, string(data))
}

// GetInt64 reads a numeric key such as a timestamp. Missing or malformed values read as zero.
func GetInt64(c Cache, key string) int64 {
	raw, ok, err := c.Get(key)
	if err != nil || !ok {
		return 0
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func SetInt64(c Cache, key string, n int64) error {
	return c.Set(key, strconv.FormatInt(n, 10))
}

// RemoveMatching deletes every key matching pattern and returns how many were removed.
func RemoveMatching(c Cache, pattern string) (int, error) {
	keys, err := c.Keys(pattern)
	if err != nil {
		return 0, err
	}
	for _, k := range keys {
		if err := c.Remove(k); err != nil {
			return 0, err
		}
	}
	return len(keys), nil
}

// Caches bundles the two storage scopes.
type Caches struct {
	Durable Cache
	Session Cache
	closers []func() error
}

// OpenCaches opens the durable cache at path and an in-memory session cache with the same driver.
func OpenCaches(driver, path string) (*Caches, error) {
	durable, err := OpenDurable(driver, path)
	if err != nil {
		return nil, err
	}
	session, err := Open(driver, "")
	if err != nil {
		_ = durable.Close()
		return nil, serr.Wrap(err, "failed to open session cache")
	}
	return &Caches{
		Durable: durable,
		Session: session,
		closers: []func() error{session.Close, durable.Close},
	}, nil
}

// NewMemoryCaches returns two in-memory caches, for tests and throwaway sessions.
func NewMemoryCaches(driver string) (*Caches, error) {
	durable, err := Open(driver, "")
	if err != nil {
		return nil, err
	}
	session, err := Open(driver, "")
	if err != nil {
		_ = durable.Close()
		return nil, err
	}
	return &Caches{Durable: durable, Session: session, closers: []func() error{session.Close, durable.Close}}, nil
}

func (c *Caches) Close() error {
	var first error
	for _, fn := range c.closers {
		if err := fn(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
