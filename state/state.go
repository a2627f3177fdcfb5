// Package state holds the in-memory application state shared by every reconciler.
package state

import (
	"sync"
	"sync/atomic"

	"homenotes/models"
)

// AppState is the single owner of the notes, categories and shopping lists the UI shows.
// Accessors return copies so callers never share backing arrays with the state.
type AppState struct {
	mu            sync.RWMutex
	notes         []models.Note
	categories    []models.Category
	shoppingLists models.ShoppingLists
	currentUser   *models.User
	currentNoteID string

	receiving atomic.Int32
}

func New() *AppState {
	return &AppState{
		notes:         []models.Note{},
		categories:    []models.Category{models.AllCategory()},
		shoppingLists: models.DefaultShoppingLists(),
	}
}

func (s *AppState) Notes() []models.Note {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Note, len(s.notes))
	for i, n := range s.notes {
		out[i] = n.Clone()
	}
	return out
}

func (s *AppState) SetNotes(notes []models.Note) {
	cp := make([]models.Note, len(notes))
	for i, n := range notes {
		cp[i] = n.Clone()
		cp[i].Normalize()
	}
	s.mu.Lock()
	s.notes = cp
	s.mu.Unlock()
}

// Note returns a copy of the note with id.
func (s *AppState) Note(id string) (models.Note, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, n := range s.notes {
		if n.ID == id {
			return n.Clone(), true
		}
	}
	return models.Note{}, false
}

// NoteBySharedID finds the local copy of a shared note.
func (s *AppState) NoteBySharedID(sharedID string) (models.Note, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, n := range s.notes {
		if sharedID != "" && n.SharedID == sharedID {
			return n.Clone(), true
		}
	}
	return models.Note{}, false
}

// MutateNotes runs fn against the live slice under the write lock and returns a copy of the result.
// fn must not call back into AppState.
func (s *AppState) MutateNotes(fn func(notes []models.Note) []models.Note) []models.Note {
	s.mu.Lock()
	s.notes = fn(s.notes)
	out := make([]models.Note, len(s.notes))
	for i, n := range s.notes {
		out[i] = n.Clone()
	}
	s.mu.Unlock()
	return out
}

func (s *AppState) Categories() []models.Category {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.CloneCategories(s.categories)
}

// SetCategories stores list with the sentinel guaranteed first.
func (s *AppState) SetCategories(list []models.Category) {
	list = models.EnsureSentinel(models.CloneCategories(list))
	s.mu.Lock()
	s.categories = list
	s.mu.Unlock()
}

func (s *AppState) ShoppingLists() models.ShoppingLists {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shoppingLists.Clone()
}

func (s *AppState) SetShoppingLists(lists models.ShoppingLists) {
	s.mu.Lock()
	s.shoppingLists = lists.Clone()
	s.mu.Unlock()
}

// MutateShoppingLists applies fn to the live lists under the write lock.
func (s *AppState) MutateShoppingLists(fn func(models.ShoppingLists) error) (models.ShoppingLists, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shoppingLists == nil {
		s.shoppingLists = models.ShoppingLists{}
	}
	if err := fn(s.shoppingLists); err != nil {
		return nil, err
	}
	return s.shoppingLists.Clone(), nil
}

func (s *AppState) CurrentUser() *models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.currentUser == nil {
		return nil
	}
	u := *s.currentUser
	return &u
}

func (s *AppState) SetCurrentUser(u *models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u == nil {
		s.currentUser = nil
		return
	}
	cp := *u
	s.currentUser = &cp
}

// CurrentNoteID is the note open in the editor, if any.
func (s *AppState) CurrentNoteID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentNoteID
}

func (s *AppState) SetCurrentNoteID(id string) {
	s.mu.Lock()
	s.currentNoteID = id
	s.mu.Unlock()
}

// BeginReceiving marks that a remote update is being applied; saves are suppressed until
// the matching EndReceiving. Calls nest.
func (s *AppState) BeginReceiving() { s.receiving.Add(1) }

func (s *AppState) EndReceiving() {
	if s.receiving.Add(-1) < 0 {
		s.receiving.Store(0)
	}
}

func (s *AppState) IsReceiving() bool { return s.receiving.Load() > 0 }

// Reset clears user data, e.g. on sign-out.
func (s *AppState) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = []models.Note{}
	s.categories = []models.Category{models.AllCategory()}
	s.shoppingLists = models.DefaultShoppingLists()
	s.currentUser = nil
	s.currentNoteID = ""
}
