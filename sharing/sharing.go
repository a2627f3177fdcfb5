// Package sharing turns private notes into shared ones and manages the invitations
// and username reservations that go with it.
package sharing

import (
	"context"
	"errors"
	"sort"

	"homenotes/auth"
	"homenotes/localcache"
	"homenotes/models"
	"homenotes/notes"
	"homenotes/remote"
	"homenotes/state"

	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/serr"
)

var (
	ErrUsernameTaken      = errors.New("username is already taken")
	ErrUserNotFound       = errors.New("no user with that username")
	ErrInvitationNotFound = errors.New("invitation not found")
	ErrNotSignedIn        = errors.New("sharing requires a signed-in user")
	ErrShareWithSelf      = errors.New("cannot share a note with yourself")
)

type Service struct {
	durable localcache.Cache
	store   remote.Store
	auth    auth.Provider
	state   *state.AppState
	bus     *state.Bus
	notes   *notes.Reconciler
}

func New(caches *localcache.Caches, store remote.Store, p auth.Provider, st *state.AppState, bus *state.Bus, rec *notes.Reconciler) *Service {
	return &Service{durable: caches.Durable, store: store, auth: p, state: st, bus: bus, notes: rec}
}

func (s *Service) user() (*models.User, error) {
	u, ok := auth.RemoteUser(s.auth)
	if !ok || s.store == nil {
		return nil, ErrNotSignedIn
	}
	return u, nil
}

// ReserveUsername claims name for the current user. Re-reserving one's own name succeeds.
func (s *Service) ReserveUsername(ctx context.Context, name string) (string, error) {
	user, err := s.user()
	if err != nil {
		return "", err
	}
	if err := models.ValidateUsername(name); err != nil {
		return "", err
	}
	key := models.NormalizeUsername(name)

	var holder string
	found, err := remote.ReadInto(ctx, s.store, remote.UsernamePath(key), &holder)
	if err != nil {
		return "", serr.Wrap(err, "failed to check username")
	}
	if found && holder != user.UID {
		return "", ErrUsernameTaken
	}

	if err := s.store.Set(ctx, remote.UsernamePath(key), user.UID); err != nil {
		return "", serr.Wrap(err, "failed to reserve username")
	}
	if err := s.store.Update(ctx, remote.UserPath(user.UID), map[string]any{"username": key}); err != nil {
		logger.LogErr(err, "failed to store username on profile", "uid", user.UID)
	}
	if err := s.durable.Set(localcache.UsernameKey(user.UID), key); err != nil {
		logger.LogErr(err, "failed to cache username")
	}
	logger.Info("Username reserved", "uid", user.UID, "username", key)
	return key, nil
}

// Username returns the current user's cached username, if any.
func (s *Service) Username() string {
	u, ok := auth.RemoteUser(s.auth)
	if !ok {
		return ""
	}
	v, _, _ := s.durable.Get(localcache.UsernameKey(u.UID))
	return v
}

func (s *Service) lookup(ctx context.Context, username string) (string, error) {
	var uid string
	found, err := remote.ReadInto(ctx, s.store, remote.UsernamePath(models.NormalizeUsername(username)), &uid)
	if err != nil {
		return "", serr.Wrap(err, "failed to look up username")
	}
	if !found || uid == "" {
		return "", ErrUserNotFound
	}
	return uid, nil
}

// ShareNote invites username to collaborate on a note, creating the shared document
// on first share.
func (s *Service) ShareNote(ctx context.Context, noteID, username string) (models.Invitation, error) {
	user, err := s.user()
	if err != nil {
		return models.Invitation{}, err
	}
	note, err := s.notes.Note(noteID)
	if err != nil {
		return models.Invitation{}, err
	}
	target, err := s.lookup(ctx, username)
	if err != nil {
		return models.Invitation{}, err
	}
	if target == user.UID {
		return models.Invitation{}, ErrShareWithSelf
	}

	now := models.NowMillis()
	if !note.IsSharedNote() {
		note.SharedID = models.NewID()
		note.OwnerID = user.UID
		note.Collaborators = map[string]models.CollaboratorInfo{
			user.UID: {Role: models.RoleOwner, Name: user.DisplayName(), JoinedAt: now},
		}
		note.UpdatedAt = now
		note.Normalize()

		sn := models.SharedNoteFromNote(note)
		sn.ID = note.SharedID
		sn.LastEditedBy = user.UID
		sn.LastEditedByName = user.DisplayName()
		sn.LastModified = now
		if err := s.store.Set(ctx, remote.SharedNotePath(note.SharedID), sn); err != nil {
			return models.Invitation{}, serr.Wrap(err, "failed to create shared note")
		}
		s.notes.Put(note)
		logger.Info("Note shared", "id", note.ID, "shared_id", note.SharedID)
	}

	inv := models.Invitation{
		ID:        models.NewID(),
		To:        target,
		From:      user.UID,
		FromName:  user.DisplayName(),
		SharedID:  note.SharedID,
		NoteTitle: note.Title,
		Status:    models.InvitePending,
		CreatedAt: now,
	}
	if err := s.store.Set(ctx, remote.InvitationPath(inv.ID), inv); err != nil {
		return models.Invitation{}, serr.Wrap(err, "failed to create invitation")
	}
	return inv, nil
}

// PendingInvitations lists invitations waiting for the current user, oldest first.
// When the store is unreachable the last cached list is returned.
func (s *Service) PendingInvitations(ctx context.Context) ([]models.Invitation, error) {
	user, err := s.user()
	if err != nil {
		return nil, err
	}

	all := map[string]models.Invitation{}
	if _, err := remote.ReadInto(ctx, s.store, remote.InvitationsPath, &all); err != nil {
		logger.LogErr(err, "failed to read invitations, using cache")
		var cached []models.Invitation
		if _, cerr := localcache.GetJSON(s.durable, localcache.KeyCachedInvitations, &cached); cerr != nil {
			return nil, cerr
		}
		return cached, nil
	}

	pending := make([]models.Invitation, 0)
	for id, inv := range all {
		if inv.To != user.UID || inv.Status != models.InvitePending {
			continue
		}
		if inv.ID == "" {
			inv.ID = id
		}
		pending = append(pending, inv)
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].CreatedAt < pending[j].CreatedAt })

	if err := localcache.SetJSON(s.durable, localcache.KeyCachedInvitations, pending); err != nil {
		logger.LogErr(err, "failed to cache invitations")
	}
	return pending, nil
}

func (s *Service) invitation(ctx context.Context, user *models.User, id string) (models.Invitation, error) {
	var inv models.Invitation
	found, err := remote.ReadInto(ctx, s.store, remote.InvitationPath(id), &inv)
	if err != nil {
		return inv, serr.Wrap(err, "failed to read invitation")
	}
	if !found || inv.To != user.UID {
		return inv, ErrInvitationNotFound
	}
	if inv.ID == "" {
		inv.ID = id
	}
	return inv, nil
}

// Accept joins the shared note as an editor and adds a local copy of it.
// Accepting again returns the existing copy.
func (s *Service) Accept(ctx context.Context, id string) (models.Note, error) {
	user, err := s.user()
	if err != nil {
		return models.Note{}, err
	}
	inv, err := s.invitation(ctx, user, id)
	if err != nil {
		return models.Note{}, err
	}

	now := models.NowMillis()
	if inv.Status != models.InviteAccepted {
		err := s.store.Update(ctx, remote.InvitationPath(id), map[string]any{
			"status":     models.InviteAccepted,
			"acceptedAt": now,
		})
		if err != nil {
			return models.Note{}, serr.Wrap(err, "failed to accept invitation")
		}
		err = s.store.Update(ctx, remote.SharedNotePath(inv.SharedID), map[string]any{
			"collaborators/" + user.UID: models.CollaboratorInfo{Role: models.RoleEditor, Name: user.DisplayName(), JoinedAt: now},
		})
		if err != nil {
			logger.LogErr(err, "failed to join shared note", "shared_id", inv.SharedID)
		}
	}
	s.forgetCached(id)

	if existing, ok := s.state.NoteBySharedID(inv.SharedID); ok {
		return existing, nil
	}

	var sn models.SharedNote
	found, err := remote.ReadInto(ctx, s.store, remote.SharedNotePath(inv.SharedID), &sn)
	if err != nil {
		return models.Note{}, serr.Wrap(err, "failed to read shared note")
	}
	if !found {
		return models.Note{}, ErrInvitationNotFound
	}

	note := models.Note{ID: models.NewID(), SharedID: inv.SharedID, CreatedAt: now}
	sn.ApplyTo(&note)
	note.SharedID = inv.SharedID
	note.Normalize()
	s.notes.Put(note)
	logger.Info("Invitation accepted", "id", id, "shared_id", inv.SharedID)
	return note, nil
}

// Decline marks the invitation declined.
func (s *Service) Decline(ctx context.Context, id string) error {
	user, err := s.user()
	if err != nil {
		return err
	}
	if _, err := s.invitation(ctx, user, id); err != nil {
		return err
	}
	err = s.store.Update(ctx, remote.InvitationPath(id), map[string]any{
		"status":     models.InviteDeclined,
		"declinedAt": models.NowMillis(),
	})
	if err != nil {
		return serr.Wrap(err, "failed to decline invitation")
	}
	s.forgetCached(id)
	return nil
}

func (s *Service) forgetCached(id string) {
	var cached []models.Invitation
	if ok, err := localcache.GetJSON(s.durable, localcache.KeyCachedInvitations, &cached); err != nil || !ok {
		return
	}
	kept := cached[:0]
	for _, inv := range cached {
		if inv.ID != id {
			kept = append(kept, inv)
		}
	}
	if err := localcache.SetJSON(s.durable, localcache.KeyCachedInvitations, kept); err != nil {
		logger.LogErr(err, "failed to update cached invitations")
	}
}
