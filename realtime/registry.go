package realtime

import (
	"context"
	"sync"

	"homenotes/auth"
	"homenotes/models"
	"homenotes/remote"
	"homenotes/state"

	"github.com/rohanthewiz/serr"
)

// Registry keeps at most one open Channel per shared note.
type Registry struct {
	store remote.Store
	auth  auth.Provider
	state *state.AppState
	bus   *state.Bus
	saver NoteSaver
	opts  Options

	mu       sync.Mutex
	channels map[string]*Channel
}

func NewRegistry(store remote.Store, p auth.Provider, st *state.AppState, bus *state.Bus, saver NoteSaver, opts Options) *Registry {
	return &Registry{store: store, auth: p, state: st, bus: bus, saver: saver, opts: opts, channels: map[string]*Channel{}}
}

// Enter opens the channel for sharedID, using the local copy of the note when there
// is one and the remote document otherwise.
func (r *Registry) Enter(ctx context.Context, sharedID string) (*Channel, error) {
	if r.store == nil {
		return nil, ErrNotSignedIn
	}
	r.mu.Lock()
	ch, ok := r.channels[sharedID]
	if !ok {
		ch = NewChannel(r.store, r.auth, r.state, r.bus, r.saver, r.opts)
		r.channels[sharedID] = ch
	}
	r.mu.Unlock()

	note, found := r.state.NoteBySharedID(sharedID)
	if !found {
		var sn models.SharedNote
		exists, err := remote.ReadInto(ctx, r.store, remote.SharedNotePath(sharedID), &sn)
		if err != nil {
			r.drop(sharedID, ch)
			return nil, serr.Wrap(err, "failed to read shared note")
		}
		if !exists {
			r.drop(sharedID, ch)
			return nil, ErrNotShared
		}
		note = models.Note{ID: sn.ID, SharedID: sharedID, CreatedAt: sn.CreatedAt}
		sn.ApplyTo(&note)
		note.SharedID = sharedID
		note.Normalize()
	}

	if err := ch.Enter(ctx, note); err != nil {
		r.drop(sharedID, ch)
		return nil, err
	}
	return ch, nil
}

func (r *Registry) drop(sharedID string, ch *Channel) {
	r.mu.Lock()
	if r.channels[sharedID] == ch && ch.State() == Disconnected {
		delete(r.channels, sharedID)
	}
	r.mu.Unlock()
}

func (r *Registry) Get(sharedID string) (*Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.channels[sharedID]
	return ch, ok
}

// Leave closes the channel for sharedID, if open.
func (r *Registry) Leave(ctx context.Context, sharedID string) error {
	r.mu.Lock()
	ch, ok := r.channels[sharedID]
	delete(r.channels, sharedID)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return ch.Leave(ctx)
}

// CloseAll leaves every open channel.
func (r *Registry) CloseAll(ctx context.Context) {
	r.mu.Lock()
	chans := r.channels
	r.channels = map[string]*Channel{}
	r.mu.Unlock()
	for _, ch := range chans {
		_ = ch.Leave(ctx)
	}
}
