// Package realtime keeps an open shared note in step with its collaborators.
//
// A Channel is Disconnected until Enter subscribes to the shared document and
// announces presence; Leave undoes all of it. Remote pushes that are this client's own
// writes echoed back are dropped, and fields the user is editing are never overwritten.
package realtime

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"homenotes/auth"
	"homenotes/debounce"
	"homenotes/models"
	"homenotes/notes"
	"homenotes/remote"
	"homenotes/state"

	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/serr"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// Channel states.
type ChannelState int

const (
	Disconnected ChannelState = iota
	Subscribed
)

func (s ChannelState) String() string {
	if s == Subscribed {
		return "subscribed"
	}
	return "disconnected"
}

// Editable fields.
const (
	FieldTitle   = "title"
	FieldContent = "content"
)

var (
	ErrNotShared     = errors.New("note is not shared")
	ErrNotSignedIn   = errors.New("shared notes require a signed-in user")
	ErrNotSubscribed = errors.New("channel is not subscribed")
	ErrUnknownField  = errors.New("unknown field")
)

const (
	DefaultHeartbeat = 10 * time.Second
	DefaultAutosave  = 500 * time.Millisecond
)

// NoteSaver is the part of the note reconciler the channel saves through.
type NoteSaver interface {
	SaveCurrentNote(ctx context.Context, note models.Note) (models.Note, error)
	MirrorShared(note models.Note)
}

type Options struct {
	Heartbeat time.Duration
	Autosave  time.Duration
}

// FocusTracker records which input the user is in. Fields named here are not
// overwritten by remote pushes.
type FocusTracker struct {
	mu      sync.Mutex
	field   string
	section string
}

func (f *FocusTracker) SetField(field string) {
	f.mu.Lock()
	f.field = field
	f.mu.Unlock()
}

func (f *FocusTracker) SetSection(id string) {
	f.mu.Lock()
	f.section = id
	f.mu.Unlock()
}

func (f *FocusTracker) Field() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.field
}

func (f *FocusTracker) Section() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.section
}

// UpdatePayload accompanies shared-note-updated events.
type UpdatePayload struct {
	SharedID     string   `json:"sharedId"`
	NoteID       string   `json:"noteId"`
	EditedBy     string   `json:"editedBy,omitempty"`
	EditedByName string   `json:"editedByName,omitempty"`
	ContentPatch string   `json:"contentPatch,omitempty"`
	Deferred     []string `json:"deferred,omitempty"`
}

// ActiveUser is a non-stale presence entry.
type ActiveUser struct {
	UID string `json:"uid"`
	models.PresenceInfo
}

type Channel struct {
	store remote.Store
	auth  auth.Provider
	state *state.AppState
	bus   *state.Bus
	saver NoteSaver
	opts  Options
	Focus FocusTracker

	transition sync.Mutex // serializes Enter and Leave

	mu       sync.Mutex
	st       ChannelState
	sharedID string
	uid      string
	note     models.Note
	presence map[string]models.PresenceInfo
	unsub    func()
	stopBeat context.CancelFunc
	beatDone chan struct{}
	autosave *debounce.Debouncer
}

func NewChannel(store remote.Store, p auth.Provider, st *state.AppState, bus *state.Bus, saver NoteSaver, opts Options) *Channel {
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = DefaultHeartbeat
	}
	if opts.Autosave <= 0 {
		opts.Autosave = DefaultAutosave
	}
	c := &Channel{store: store, auth: p, state: st, bus: bus, saver: saver, opts: opts}
	c.autosave = debounce.New(opts.Autosave, c.runAutosave)
	return c
}

func (c *Channel) State() ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st
}

func (c *Channel) SharedID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sharedID
}

// Note returns the channel's in-memory copy of the shared note.
func (c *Channel) Note() models.Note {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.note.Clone()
}

// Enter subscribes to the shared document, writes this user's presence and starts the heartbeat.
func (c *Channel) Enter(ctx context.Context, note models.Note) error {
	if !note.IsSharedNote() {
		return ErrNotShared
	}
	user, ok := auth.RemoteUser(c.auth)
	if !ok {
		return ErrNotSignedIn
	}

	c.transition.Lock()
	defer c.transition.Unlock()

	c.mu.Lock()
	if c.st == Subscribed {
		same := c.sharedID == note.SharedID
		c.mu.Unlock()
		if same {
			return nil
		}
		return serr.New("channel already open on another note")
	}
	c.sharedID = note.SharedID
	c.uid = user.UID
	c.note = note.Clone()
	c.presence = map[string]models.PresenceInfo{}
	c.mu.Unlock()

	presencePath := remote.PresencePath(note.SharedID, user.UID)
	info := models.PresenceInfo{
		Name:         user.DisplayName(),
		Email:        user.Email,
		LastActive:   models.NowMillis(),
		Status:       models.StatusEditing,
		CurrentField: c.Focus.Field(),
	}
	if err := c.store.Set(ctx, presencePath, info); err != nil {
		logger.LogErr(err, "failed to write presence", "shared_id", note.SharedID)
	}
	if err := c.store.OnDisconnectRemove(ctx, presencePath); err != nil {
		logger.LogErr(err, "failed to register presence cleanup", "shared_id", note.SharedID)
	}

	// Mark subscribed before the first push arrives.
	c.mu.Lock()
	c.st = Subscribed
	c.mu.Unlock()

	unsub, err := c.store.Subscribe(ctx, remote.SharedNotePath(note.SharedID), c.handlePush)
	if err != nil {
		c.mu.Lock()
		c.st = Disconnected
		c.mu.Unlock()
		_ = c.store.Set(ctx, presencePath, nil)
		return serr.Wrap(err, "failed to subscribe to shared note")
	}

	beatCtx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.mu.Lock()
	c.unsub = unsub
	c.stopBeat = stop
	c.beatDone = done
	c.mu.Unlock()
	go c.heartbeat(beatCtx, presencePath, done)

	logger.Info("Entered shared note", "shared_id", note.SharedID, "uid", user.UID)
	return nil
}

func (c *Channel) heartbeat(ctx context.Context, path string, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(c.opts.Heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			bctx, cancel := context.WithTimeout(ctx, c.opts.Heartbeat)
			err := c.store.Update(bctx, path, map[string]any{
				"status":     models.StatusEditing,
				"lastActive": models.NowMillis(),
			})
			cancel()
			if err != nil && ctx.Err() == nil {
				logger.LogErr(err, "presence heartbeat failed", "path", path)
			}
		}
	}
}

// handlePush applies a remote version of the shared document.
func (c *Channel) handlePush(snap remote.Snapshot) {
	if !snap.Exists {
		return
	}
	var incoming models.SharedNote
	if err := snap.Decode(&incoming); err != nil {
		logger.LogErr(err, "failed to decode shared note push")
		return
	}

	c.mu.Lock()
	if c.st != Subscribed {
		c.mu.Unlock()
		return
	}
	c.presence = incoming.ActiveUsers
	local := c.note

	// Without an updatedAt stamp the document only carries presence so far.
	if incoming.UpdatedAt == 0 {
		sid := c.sharedID
		c.mu.Unlock()
		c.bus.Emit(state.EventPresenceChanged, sid)
		return
	}

	isNewer := incoming.UpdatedAt > local.UpdatedAt || local.UpdatedAt == 0
	isOwnEcho := incoming.LastEditedBy == c.uid
	if !isNewer && isOwnEcho {
		sid := c.sharedID
		c.mu.Unlock()
		logger.Debug("Discarded own echo", "shared_id", sid, "updated_at", incoming.UpdatedAt)
		c.bus.Emit(state.EventPresenceChanged, sid)
		return
	}

	c.state.BeginReceiving()
	defer c.state.EndReceiving()

	applied, deferred := applyRemote(local, incoming, c.Focus.Field(), c.Focus.Section())
	c.note = applied
	sid := c.sharedID
	c.mu.Unlock()

	payload := UpdatePayload{
		SharedID:     sid,
		NoteID:       applied.ID,
		EditedBy:     incoming.LastEditedBy,
		EditedByName: incoming.LastEditedByName,
		Deferred:     deferred,
	}
	if local.Content != incoming.Content {
		dmp := diffmatchpatch.New()
		payload.ContentPatch = dmp.PatchToText(dmp.PatchMake(local.Content, incoming.Content))
	}

	if c.saver != nil {
		c.saver.MirrorShared(applied)
	}
	c.bus.Emit(state.EventSharedNoteUpdated, payload)
	c.bus.Emit(state.EventPresenceChanged, sid)
}

// applyRemote copies the remote document onto local, skipping the focused field and
// the list section in use. It returns the names of the skipped parts.
func applyRemote(local models.Note, incoming models.SharedNote, focusField, focusSection string) (models.Note, []string) {
	out := local.Clone()
	var deferred []string

	if focusField == FieldTitle {
		deferred = append(deferred, FieldTitle)
	} else {
		out.Title = incoming.Title
	}
	if focusField == FieldContent {
		deferred = append(deferred, FieldContent)
	} else {
		out.Content = incoming.Content
	}
	out.Categories = append([]string{}, incoming.Categories...)
	out.Images = append([]models.ImageRef{}, incoming.Images...)

	sections := make([]models.ListSection, 0, len(incoming.ListSections))
	for _, s := range incoming.ListSections {
		if focusSection != "" && s.ID == focusSection {
			if mine, ok := findSection(local.ListSections, s.ID); ok {
				sections = append(sections, mine)
				deferred = append(deferred, "listSections/"+s.ID)
				continue
			}
		}
		s.Items = append([]models.ListItem{}, s.Items...)
		sections = append(sections, s)
	}
	out.ListSections = sections
	out.UpdatedAt = incoming.UpdatedAt
	if incoming.Collaborators != nil {
		out.Collaborators = incoming.Collaborators
	}
	out.Normalize()
	return out, deferred
}

func findSection(list []models.ListSection, id string) (models.ListSection, bool) {
	for _, s := range list {
		if s.ID == id {
			s.Items = append([]models.ListItem{}, s.Items...)
			return s, true
		}
	}
	return models.ListSection{}, false
}

// Edit changes a field of the open note and schedules the fast autosave.
func (c *Channel) Edit(ctx context.Context, field, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.st != Subscribed {
		return ErrNotSubscribed
	}
	switch field {
	case FieldTitle:
		c.note.Title = value
	case FieldContent:
		c.note.Content = value
	default:
		return ErrUnknownField
	}
	c.autosave.Trigger()
	return nil
}

// EditSections replaces the note's list sections, e.g. after a checkbox toggle.
func (c *Channel) EditSections(ctx context.Context, sections []models.ListSection) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.st != Subscribed {
		return ErrNotSubscribed
	}
	c.note.ListSections = sections
	c.autosave.Trigger()
	return nil
}

func (c *Channel) runAutosave() {
	c.mu.Lock()
	if c.st != Subscribed {
		c.mu.Unlock()
		return
	}
	n := c.note.Clone()
	sid := c.sharedID
	c.mu.Unlock()

	if c.saver == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	saved, err := c.saver.SaveCurrentNote(ctx, n)
	if errors.Is(err, notes.ErrSaveSuppressed) {
		// A remote update is being applied; try again once it settles.
		c.autosave.Trigger()
		return
	}
	if err != nil {
		logger.LogErr(err, "shared autosave failed", "shared_id", sid)
		return
	}

	c.mu.Lock()
	if c.st == Subscribed && c.sharedID == sid && saved.UpdatedAt > c.note.UpdatedAt {
		c.note.UpdatedAt = saved.UpdatedAt
	}
	c.mu.Unlock()
}

// SetFocus records the focused field and publishes it in this user's presence.
func (c *Channel) SetFocus(ctx context.Context, field string) {
	c.Focus.SetField(field)

	c.mu.Lock()
	subscribed, sid, uid := c.st == Subscribed, c.sharedID, c.uid
	c.mu.Unlock()
	if !subscribed {
		return
	}
	err := c.store.Update(ctx, remote.PresencePath(sid, uid), map[string]any{
		"currentField": field,
		"lastActive":   models.NowMillis(),
	})
	if err != nil {
		logger.LogErr(err, "failed to publish focus", "shared_id", sid)
	}
}

// SetActiveSection marks the list section the user is interacting with ("" for none).
func (c *Channel) SetActiveSection(id string) {
	c.Focus.SetSection(id)
}

// Leave unsubscribes, removes presence, stops the heartbeat and drops any pending autosave.
func (c *Channel) Leave(ctx context.Context) error {
	c.transition.Lock()
	defer c.transition.Unlock()

	c.mu.Lock()
	if c.st != Subscribed {
		c.mu.Unlock()
		return nil
	}
	c.st = Disconnected
	unsub, stop, done := c.unsub, c.stopBeat, c.beatDone
	sid, uid := c.sharedID, c.uid
	c.unsub, c.stopBeat, c.beatDone = nil, nil, nil
	c.presence = nil
	c.mu.Unlock()

	c.autosave.Cancel()
	if unsub != nil {
		unsub()
	}
	if stop != nil {
		stop()
		<-done
	}
	if err := c.store.Set(ctx, remote.PresencePath(sid, uid), nil); err != nil {
		logger.LogErr(err, "failed to remove presence", "shared_id", sid)
	}
	c.Focus.SetField("")
	c.Focus.SetSection("")
	logger.Info("Left shared note", "shared_id", sid)
	return nil
}

// ActiveUsers lists collaborators whose presence is fresh at now, by name.
func (c *Channel) ActiveUsers(now int64) []ActiveUser {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ActiveUser, 0, len(c.presence))
	for uid, p := range c.presence {
		if p.IsStale(now) {
			continue
		}
		out = append(out, ActiveUser{UID: uid, PresenceInfo: p})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].UID < out[j].UID
	})
	return out
}
