// Package notes merges the cached and remote copies of a user's notes and pushes edits
// back to both.
package notes

import (
	"context"
	"errors"
	"sync"
	"time"

	"homenotes/auth"
	"homenotes/categories"
	"homenotes/debounce"
	"homenotes/localcache"
	"homenotes/models"
	"homenotes/remote"
	"homenotes/state"

	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/serr"
)

var (
	// ErrSaveSuppressed is returned while a remote update is being applied.
	ErrSaveSuppressed = errors.New("save suppressed while applying a remote update")
	ErrNoteNotFound   = errors.New("note not found")
)

// DefaultSaveDelay is how long remote profile saves are held back for more edits.
const DefaultSaveDelay = time.Second

const remoteTimeout = 15 * time.Second

type Reconciler struct {
	durable localcache.Cache
	store   remote.Store
	auth    auth.Provider
	state   *state.AppState
	bus     *state.Bus
	cats    *categories.Manager

	saver *debounce.Debouncer
	mu    sync.Mutex // serializes read-modify-write of the notes list
}

// NewReconciler wires the note reconciler. store may be nil for offline use.
func NewReconciler(caches *localcache.Caches, store remote.Store, p auth.Provider, st *state.AppState,
	bus *state.Bus, cats *categories.Manager, saveDelay time.Duration) *Reconciler {
	if saveDelay <= 0 {
		saveDelay = DefaultSaveDelay
	}
	r := &Reconciler{
		durable: caches.Durable,
		store:   store,
		auth:    p,
		state:   st,
		bus:     bus,
		cats:    cats,
	}
	r.saver = debounce.New(saveDelay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), remoteTimeout)
		defer cancel()
		r.saveRemote(ctx)
	})
	return r
}

func (r *Reconciler) Notes() []models.Note { return r.state.Notes() }

func (r *Reconciler) Note(id string) (models.Note, error) {
	n, ok := r.state.Note(id)
	if !ok {
		return models.Note{}, ErrNoteNotFound
	}
	return n, nil
}

func (r *Reconciler) cachedNotes() []models.Note {
	var local []models.Note
	if _, err := localcache.GetJSON(r.durable, localcache.KeyNotes, &local); err != nil {
		logger.LogErr(err, "failed to read cached notes")
	}
	return local
}

func (r *Reconciler) cacheNotes(list []models.Note) {
	if err := localcache.SetJSON(r.durable, localcache.KeyNotes, list); err != nil {
		logger.LogErr(err, "failed to cache notes")
	}
}

// LoadLocal puts the cached notes in memory so the UI has something before sign-in resolves.
func (r *Reconciler) LoadLocal() {
	local := r.cachedNotes()
	if local == nil {
		local = []models.Note{}
	}
	r.state.SetNotes(local)
	r.bus.Emit(state.EventNotesChanged, len(local))
}

// LoadUserData merges the remote profile with the cache for a signed-in user.
// An unreachable store leaves the cached notes in place.
func (r *Reconciler) LoadUserData(ctx context.Context, user models.User) error {
	if r.store == nil {
		r.LoadLocal()
		return nil
	}

	var doc models.UserDocument
	found, err := remote.ReadInto(ctx, r.store, remote.UserPath(user.UID), &doc)
	if err != nil {
		logger.LogErr(err, "failed to load user data, continuing offline", "uid", user.UID)
		r.LoadLocal()
		return nil
	}

	now := models.NowMillis()
	if !found {
		doc = models.NewUserDocument(user, now)
		if err := r.store.Set(ctx, remote.UserPath(user.UID), doc); err != nil {
			logger.LogErr(err, "failed to create user document", "uid", user.UID)
		} else {
			logger.Info("Created user document", "uid", user.UID)
		}
	} else if err := r.store.Update(ctx, remote.UserPath(user.UID), map[string]any{"lastLogin": now}); err != nil {
		logger.LogErr(err, "failed to stamp last login", "uid", user.UID)
	}

	r.mu.Lock()
	merged := MergeNotes(r.cachedNotes(), doc.Notes)
	r.state.SetNotes(merged)
	r.cacheNotes(merged)
	r.mu.Unlock()
	r.saver.Trigger()

	loaded := doc.Categories
	var local []models.Category
	if _, err := localcache.GetJSON(r.durable, localcache.KeyCategories, &local); err != nil {
		logger.LogErr(err, "failed to read cached categories")
	}
	if len(local) > len(doc.Categories) {
		loaded = local
		r.saver.Trigger()
	}
	if len(loaded) == 0 {
		loaded = models.DefaultCategories()
	}
	if r.cats != nil {
		r.cats.ApplyLoaded(ctx, loaded)
	}

	logger.Info("User data loaded", "uid", user.UID, "notes", len(merged), "remote_notes", len(doc.Notes))
	r.bus.Emit(state.EventNotesChanged, len(merged))

	if r.cats != nil {
		r.cats.RefreshFromRemote(ctx)
	}
	return nil
}

// CreateNote adds a new private note at the top of the list.
func (r *Reconciler) CreateNote(ctx context.Context, title, content string, cats []string) (models.Note, error) {
	n := models.NewNote(title, content, models.NowMillis())
	n.Categories = cats
	n.Normalize()

	r.mu.Lock()
	list := r.state.MutateNotes(func(list []models.Note) []models.Note { return upsert(list, n) })
	r.cacheNotes(list)
	r.mu.Unlock()

	r.saver.Trigger()
	r.bus.Emit(state.EventNotesChanged, len(list))
	return n, nil
}

// SaveCurrentNote persists an edit of note. Shared notes go straight to their shared
// document; private notes keep their stored categories when those are non-empty.
func (r *Reconciler) SaveCurrentNote(ctx context.Context, note models.Note) (models.Note, error) {
	if r.state.IsReceiving() {
		logger.Debug("Save suppressed while receiving", "id", note.ID)
		return models.Note{}, ErrSaveSuppressed
	}
	if note.ID == "" {
		return models.Note{}, serr.New("note has no id")
	}

	note = note.Clone()
	note.Normalize()
	note.UpdatedAt = models.NowMillis()
	if note.CreatedAt == 0 {
		note.CreatedAt = note.UpdatedAt
	}

	if note.IsSharedNote() {
		r.saveShared(ctx, note)
		r.mirror(note)
		r.bus.Emit(state.EventNotesChanged, 1)
		return note, nil
	}

	r.mu.Lock()
	list := r.state.MutateNotes(func(list []models.Note) []models.Note {
		for _, existing := range list {
			if existing.ID == note.ID && len(existing.Categories) > 0 {
				note.Categories = append([]string{}, existing.Categories...)
				break
			}
		}
		return upsert(list, note)
	})
	r.cacheNotes(list)
	r.mu.Unlock()

	r.saver.Trigger()
	r.bus.Emit(state.EventNotesChanged, len(list))
	return note, nil
}

// AssignCategories is the explicit category edit and replaces the note's set.
func (r *Reconciler) AssignCategories(ctx context.Context, id string, cats []string) (models.Note, error) {
	r.mu.Lock()
	var updated models.Note
	var found bool
	list := r.state.MutateNotes(func(list []models.Note) []models.Note {
		for i := range list {
			if list[i].ID == id {
				list[i].Categories = models.UniqueStrings(cats)
				list[i].UpdatedAt = models.NowMillis()
				updated, found = list[i].Clone(), true
				break
			}
		}
		return list
	})
	if found {
		r.cacheNotes(list)
	}
	r.mu.Unlock()

	if !found {
		return models.Note{}, ErrNoteNotFound
	}
	if updated.IsSharedNote() {
		r.saveShared(ctx, updated)
	} else {
		r.saver.Trigger()
	}
	r.bus.Emit(state.EventNotesChanged, len(list))
	return updated, nil
}

// DeleteNote removes a note locally and schedules the remote profile save.
func (r *Reconciler) DeleteNote(ctx context.Context, id string) error {
	r.mu.Lock()
	var found bool
	list := r.state.MutateNotes(func(list []models.Note) []models.Note {
		out := list[:0]
		for _, n := range list {
			if n.ID == id {
				found = true
				continue
			}
			out = append(out, n)
		}
		return out
	})
	if found {
		r.cacheNotes(list)
	}
	r.mu.Unlock()

	if !found {
		return ErrNoteNotFound
	}
	r.saver.Trigger()
	r.bus.Emit(state.EventNotesChanged, len(list))
	logger.Info("Note deleted", "id", id)
	return nil
}

// LockNote protects a note with a password.
func (r *Reconciler) LockNote(ctx context.Context, id, password string) error {
	n, err := r.Note(id)
	if err != nil {
		return err
	}
	if err := n.Lock(password); err != nil {
		return err
	}
	r.replace(n)
	return nil
}

// UnlockNote checks the password and returns the note. With remove set the lock is dropped.
func (r *Reconciler) UnlockNote(ctx context.Context, id, password string, remove bool) (models.Note, error) {
	n, err := r.Note(id)
	if err != nil {
		return models.Note{}, err
	}
	if err := n.Unlock(password); err != nil {
		return models.Note{}, err
	}
	if remove && n.IsLocked() {
		n.Password = ""
		r.replace(n)
	}
	return n, nil
}

// Put stores n as-is, e.g. a note just shared or received, and schedules a save.
func (r *Reconciler) Put(n models.Note) {
	n = n.Clone()
	n.Normalize()
	r.replace(n)
}

// replace stores n as-is and schedules a save.
func (r *Reconciler) replace(n models.Note) {
	r.mu.Lock()
	list := r.state.MutateNotes(func(list []models.Note) []models.Note { return upsert(list, n) })
	r.cacheNotes(list)
	r.mu.Unlock()
	r.saver.Trigger()
	r.bus.Emit(state.EventNotesChanged, len(list))
}

// mirror upserts n verbatim into memory and the cache.
func (r *Reconciler) mirror(n models.Note) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.state.MutateNotes(func(list []models.Note) []models.Note { return upsert(list, n) })
	r.cacheNotes(list)
}

// MirrorShared applies a shared document to the local copy without saving it back.
func (r *Reconciler) MirrorShared(n models.Note) {
	r.mirror(n)
}

// saveShared overwrites the shared document with the note's full field set.
func (r *Reconciler) saveShared(ctx context.Context, note models.Note) {
	user, ok := auth.RemoteUser(r.auth)
	if !ok || r.store == nil {
		return
	}
	sn := models.SharedNoteFromNote(note)
	sn.ID = note.SharedID
	sn.LastEditedBy = user.UID
	sn.LastEditedByName = user.DisplayName()
	sn.UpdatedAt = note.UpdatedAt
	sn.LastModified = note.UpdatedAt
	if sn.OwnerID == "" {
		sn.OwnerID = user.UID
	}
	if err := r.store.Set(ctx, remote.SharedNotePath(note.SharedID), sn); err != nil {
		logger.LogErr(err, "failed to save shared note", "shared_id", note.SharedID)
		return
	}
	logger.Debug("Shared note saved", "shared_id", note.SharedID)
}

// saveRemote writes notes and categories into the user's profile.
func (r *Reconciler) saveRemote(ctx context.Context) {
	user, ok := auth.RemoteUser(r.auth)
	if !ok || r.store == nil {
		return
	}
	now := models.NowMillis()
	cats := r.state.Categories()
	catsModified := localcache.GetInt64(r.durable, localcache.KeyCategoriesLastModified)
	if catsModified == 0 {
		catsModified = now
	}
	err := r.store.Update(ctx, remote.UserPath(user.UID), map[string]any{
		"notes":                  r.state.Notes(),
		"categories":             cats,
		"categoriesLastModified": catsModified,
		"lastUpdated":            now,
	})
	if err != nil {
		logger.LogErr(err, "failed to save notes remotely", "uid", user.UID)
		r.bus.Emit(state.EventSyncStatus, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	r.bus.Emit(state.EventSyncStatus, map[string]any{"ok": true, "at": now})
}

// Flush runs a pending remote save immediately.
func (r *Reconciler) Flush(ctx context.Context) {
	if r.saver.Cancel() {
		r.saveRemote(ctx)
	}
}

// Close drops any pending save without running it.
func (r *Reconciler) Close() {
	r.saver.Cancel()
}
