// Package categories owns the authoritative category list and keeps the durable cache,
// the session backup and the remote profile converging on it.
//
// Conflicts are resolved by size alone: a strictly longer list wins and a tie keeps
// what is already in memory. Renames and removals on another device are not detected.
package categories

import (
	"context"
	"errors"
	"strings"
	"sync"

	"homenotes/auth"
	"homenotes/localcache"
	"homenotes/models"
	"homenotes/remote"
	"homenotes/state"

	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/serr"
)

var (
	ErrEmptyName        = errors.New("category name cannot be empty")
	ErrDuplicateName    = errors.New("category already exists")
	ErrSentinelCategory = errors.New("the All category cannot be deleted")
	ErrNotFound         = errors.New("category not found")
)

// Reconcile returns the list that wins between the in-memory list and a candidate,
// and whether the candidate won.
func Reconcile(current, candidate []models.Category) ([]models.Category, bool) {
	if len(candidate) > len(current) {
		return candidate, true
	}
	return current, false
}

type Manager struct {
	durable localcache.Cache
	session localcache.Cache
	store   remote.Store // nil when running offline
	auth    auth.Provider
	state   *state.AppState
	bus     *state.Bus

	mu sync.Mutex // serializes read-modify-write of the list
}

func NewManager(caches *localcache.Caches, store remote.Store, p auth.Provider, st *state.AppState, bus *state.Bus) *Manager {
	return &Manager{
		durable: caches.Durable,
		session: caches.Session,
		store:   store,
		auth:    p,
		state:   st,
		bus:     bus,
	}
}

// Categories returns a copy of the current list.
func (m *Manager) Categories() []models.Category {
	return m.state.Categories()
}

// Initialize loads the cached list for an immediate UI. The remote refresh is left
// to the note loader, which runs it once the user's data has finished loading.
func (m *Manager) Initialize(ctx context.Context) {
	m.state.SetCategories(m.loadLocal())
}

// loadLocal prefers the durable list when it holds more than the sentinel,
// then the session backup, then the bare sentinel.
func (m *Manager) loadLocal() []models.Category {
	var cached []models.Category
	if ok, err := localcache.GetJSON(m.durable, localcache.KeyCategories, &cached); err != nil {
		logger.LogErr(err, "failed to read cached categories")
	} else if ok && len(cached) > 1 {
		return cached
	}

	var backup []models.Category
	if ok, err := localcache.GetJSON(m.session, localcache.KeyCategoriesBackup, &backup); err != nil {
		logger.LogErr(err, "failed to read categories backup")
	} else if ok && len(backup) > 0 {
		logger.Info("Restored categories from session backup", "count", len(backup))
		return backup
	}
	return models.DefaultCategories()
}

// RefreshFromRemote compares the remote list with memory. A longer remote list replaces
// the local one; otherwise the local list is written back as the correction.
func (m *Manager) RefreshFromRemote(ctx context.Context) {
	user, ok := auth.RemoteUser(m.auth)
	if !ok || m.store == nil {
		return
	}

	var remoteList []models.Category
	found, err := remote.ReadInto(ctx, m.store, remote.UserCategoriesPath(user.UID), &remoteList)
	if err != nil {
		logger.LogErr(err, "failed to read remote categories", "uid", user.UID)
		return
	}
	if !found || len(remoteList) == 0 {
		return
	}

	m.mu.Lock()
	current := m.state.Categories()
	winner, remoteWon := Reconcile(current, remoteList)
	if remoteWon {
		m.state.SetCategories(winner)
		m.writeLocal(m.state.Categories(), models.NowMillis())
	}
	m.mu.Unlock()

	if remoteWon {
		logger.Info("Categories replaced from remote", "local", len(current), "remote", len(remoteList))
		m.bus.Emit(state.EventCategoriesChanged, m.state.Categories())
		return
	}
	m.pushRemote(ctx, current, models.NowMillis())
}

// AddCategory appends a new category and persists it everywhere.
func (m *Manager) AddCategory(ctx context.Context, name string) (models.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		m.bus.Toast("error", "Please enter a category name")
		return models.Category{}, ErrEmptyName
	}

	m.mu.Lock()
	list := m.state.Categories()
	if models.HasCategoryName(list, name) {
		m.mu.Unlock()
		m.bus.Toast("error", "Category already exists")
		return models.Category{}, ErrDuplicateName
	}
	cat := models.Category{ID: models.NewID(), Name: name, CreatedAt: models.NowMillis()}
	list = append(list, cat)
	m.state.SetCategories(list)
	list = m.state.Categories()
	now := models.NowMillis()
	m.writeLocal(list, now)
	m.mu.Unlock()

	m.pushRemote(ctx, list, now)
	m.bus.Emit(state.EventCategoriesChanged, list)
	return cat, nil
}

// DeleteCategory removes a category. Notes keep referencing it.
func (m *Manager) DeleteCategory(ctx context.Context, id string) error {
	if id == models.AllCategoryID {
		m.bus.Toast("error", "The All category cannot be deleted")
		return ErrSentinelCategory
	}

	m.mu.Lock()
	list := m.state.Categories()
	out := make([]models.Category, 0, len(list))
	for _, c := range list {
		if c.ID != id {
			out = append(out, c)
		}
	}
	if len(out) == len(list) {
		m.mu.Unlock()
		return ErrNotFound
	}
	m.state.SetCategories(out)
	out = m.state.Categories()
	now := models.NowMillis()
	m.writeLocal(out, now)
	m.mu.Unlock()

	m.pushRemote(ctx, out, now)
	m.bus.Emit(state.EventCategoriesChanged, out)
	return nil
}

// ApplyLoaded reconciles a list produced by the note loader with memory.
// When memory is strictly longer it is written back to the remote profile.
func (m *Manager) ApplyLoaded(ctx context.Context, loaded []models.Category) {
	m.mu.Lock()
	current := m.state.Categories()
	var pushBack bool
	switch {
	case len(loaded) > len(current):
		m.state.SetCategories(loaded)
		m.writeLocal(m.state.Categories(), models.NowMillis())
	case len(current) > len(loaded):
		pushBack = true
	}
	result := m.state.Categories()
	m.mu.Unlock()

	if pushBack {
		m.pushRemote(ctx, result, models.NowMillis())
	}
	m.bus.Emit(state.EventCategoriesChanged, result)
}

func (m *Manager) writeLocal(list []models.Category, now int64) {
	if err := localcache.SetJSON(m.durable, localcache.KeyCategories, list); err != nil {
		logger.LogErr(err, "failed to cache categories")
	}
	if err := localcache.SetInt64(m.durable, localcache.KeyCategoriesLastModified, now); err != nil {
		logger.LogErr(err, "failed to cache categories timestamp")
	}
	if err := localcache.SetJSON(m.session, localcache.KeyCategoriesBackup, list); err != nil {
		logger.LogErr(err, "failed to back up categories")
	}
}

// pushRemote writes the list into the user's profile. Failures are logged only.
func (m *Manager) pushRemote(ctx context.Context, list []models.Category, now int64) {
	user, ok := auth.RemoteUser(m.auth)
	if !ok || m.store == nil {
		return
	}
	err := m.store.Update(ctx, remote.UserPath(user.UID), map[string]any{
		"categories":             list,
		"categoriesLastModified": now,
		"lastUpdated":            now,
	})
	if err != nil {
		logger.LogErr(serr.Wrap(err, "failed to save categories remotely"), "remote unavailable", "uid", user.UID)
		return
	}
	logger.Debug("Categories saved remotely", "uid", user.UID, "count", len(list))
}
