package realtime_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"homenotes/auth"
	"homenotes/localcache"
	"homenotes/models"
	"homenotes/realtime"
	"homenotes/remote"
	"homenotes/remote/memstore"
	"homenotes/state"
)

type fakeSaver struct {
	mu       sync.Mutex
	saved    []models.Note
	mirrored []models.Note
}

func (f *fakeSaver) SaveCurrentNote(ctx context.Context, n models.Note) (models.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n.UpdatedAt = models.NowMillis()
	f.saved = append(f.saved, n)
	return n, nil
}

func (f *fakeSaver) MirrorShared(n models.Note) {
	f.mu.Lock()
	f.mirrored = append(f.mirrored, n)
	f.mu.Unlock()
}

func (f *fakeSaver) savedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

type eventLog struct {
	mu     sync.Mutex
	events []state.Event
}

func (l *eventLog) on(ev state.Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) count(typ string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ev := range l.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func (l *eventLog) last(typ string) (state.Event, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.events) - 1; i >= 0; i-- {
		if l.events[i].Type == typ {
			return l.events[i], true
		}
	}
	return state.Event{}, false
}

type fixture struct {
	server *memstore.Server
	mine   remote.Store
	other  remote.Store
	state  *state.AppState
	saver  *fakeSaver
	events *eventLog
	ch     *realtime.Channel
}

func setup(t *testing.T, opts realtime.Options) (*fixture, func()) {
	t.Helper()
	cache, err := localcache.Open(localcache.DriverSQLite, "")
	if err != nil {
		t.Fatalf("failed to open cache: %v", err)
	}
	session := auth.NewSession(cache, nil)
	if err := session.SignIn(models.User{UID: "u1", Name: "Ann"}); err != nil {
		t.Fatal(err)
	}

	srv := memstore.New()
	f := &fixture{
		server: srv,
		mine:   srv.Connect(),
		other:  srv.Connect(),
		state:  state.New(),
		saver:  &fakeSaver{},
		events: &eventLog{},
	}
	bus := state.NewBus()
	bus.Listen(f.events.on)
	f.ch = realtime.NewChannel(f.mine, session, f.state, bus, f.saver, opts)
	return f, func() {
		_ = f.ch.Leave(context.Background())
		_ = f.mine.Close()
		_ = f.other.Close()
		_ = cache.Close()
	}
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func sharedNote(updatedAt int64) models.Note {
	return models.Note{ID: "n1", Title: "Local", Content: "local body", SharedID: "s1", IsShared: true, UpdatedAt: updatedAt}
}

func TestOwnEchoIsDiscarded(t *testing.T) {
	f, cleanup := setup(t, realtime.Options{})
	defer cleanup()
	ctx := context.Background()

	echo := models.SharedNote{ID: "n1", Title: "Echo", Content: "echo", UpdatedAt: 100, LastEditedBy: "u1"}
	if err := f.other.Set(ctx, remote.SharedNotePath("s1"), echo); err != nil {
		t.Fatal(err)
	}
	if err := f.ch.Enter(ctx, sharedNote(100)); err != nil {
		t.Fatalf("Enter failed: %v", err)
	}
	waitUntil(t, "initial push", func() bool { return f.events.count(state.EventPresenceChanged) > 0 })

	if got := f.ch.Note(); got.Title != "Local" || got.Content != "local body" {
		t.Errorf("own echo was applied: %+v", got)
	}
	if f.events.count(state.EventSharedNoteUpdated) != 0 {
		t.Error("own echo should not emit an update")
	}
}

func TestForeignUpdateRespectsFocus(t *testing.T) {
	f, cleanup := setup(t, realtime.Options{})
	defer cleanup()
	ctx := context.Background()

	f.ch.SetFocus(ctx, realtime.FieldContent)
	if err := f.ch.Enter(ctx, sharedNote(100)); err != nil {
		t.Fatalf("Enter failed: %v", err)
	}

	update := models.SharedNote{ID: "n1", Title: "Theirs", Content: "their body", Categories: []string{"home"}, UpdatedAt: 200, LastEditedBy: "u2"}
	if err := f.other.Set(ctx, remote.SharedNotePath("s1"), update); err != nil {
		t.Fatal(err)
	}
	waitUntil(t, "update event", func() bool { return f.events.count(state.EventSharedNoteUpdated) > 0 })

	got := f.ch.Note()
	if got.Title != "Theirs" || got.UpdatedAt != 200 || len(got.Categories) != 1 {
		t.Errorf("idle fields not applied: %+v", got)
	}
	if got.Content != "local body" {
		t.Errorf("focused content was overwritten: %q", got.Content)
	}

	ev, _ := f.events.last(state.EventSharedNoteUpdated)
	payload := ev.Payload.(realtime.UpdatePayload)
	if len(payload.Deferred) != 1 || payload.Deferred[0] != realtime.FieldContent {
		t.Errorf("expected content deferred, got %v", payload.Deferred)
	}
	if payload.ContentPatch == "" {
		t.Error("expected a content patch")
	}
	if f.state.IsReceiving() {
		t.Error("receiving flag left set")
	}
}

func TestActiveSectionKeepsLocalCopy(t *testing.T) {
	f, cleanup := setup(t, realtime.Options{})
	defer cleanup()
	ctx := context.Background()

	n := sharedNote(100)
	n.ListSections = []models.ListSection{{ID: "sec", Items: []models.ListItem{{Text: "mine"}}}}
	f.ch.SetActiveSection("sec")
	if err := f.ch.Enter(ctx, n); err != nil {
		t.Fatalf("Enter failed: %v", err)
	}

	update := models.SharedNote{
		ID: "n1", UpdatedAt: 200, LastEditedBy: "u2",
		ListSections: []models.ListSection{
			{ID: "sec", Items: []models.ListItem{{Text: "theirs"}}},
			{ID: "other", Items: []models.ListItem{{Text: "new"}}},
		},
	}
	if err := f.other.Set(ctx, remote.SharedNotePath("s1"), update); err != nil {
		t.Fatal(err)
	}
	waitUntil(t, "update event", func() bool { return f.events.count(state.EventSharedNoteUpdated) > 0 })

	got := f.ch.Note().ListSections
	if len(got) != 2 || got[0].Items[0].Text != "mine" || got[1].ID != "other" {
		t.Errorf("unexpected sections: %+v", got)
	}
}

func TestPresenceLifecycle(t *testing.T) {
	f, cleanup := setup(t, realtime.Options{Heartbeat: 20 * time.Millisecond})
	defer cleanup()
	ctx := context.Background()
	path := remote.PresencePath("s1", "u1")

	if err := f.ch.Enter(ctx, sharedNote(100)); err != nil {
		t.Fatalf("Enter failed: %v", err)
	}
	var first models.PresenceInfo
	if ok, err := remote.ReadInto(ctx, f.other, path, &first); err != nil || !ok {
		t.Fatalf("presence not written: %v", err)
	}
	if first.Status != models.StatusEditing || first.Name != "Ann" {
		t.Errorf("unexpected presence: %+v", first)
	}

	waitUntil(t, "heartbeat", func() bool {
		var p models.PresenceInfo
		ok, _ := remote.ReadInto(ctx, f.other, path, &p)
		return ok && p.LastActive > first.LastActive
	})

	if err := f.ch.Leave(ctx); err != nil {
		t.Fatalf("Leave failed: %v", err)
	}
	if f.ch.State() != realtime.Disconnected {
		t.Error("expected disconnected")
	}
	snap, _ := f.other.Read(ctx, path)
	if snap.Exists {
		t.Error("presence should be removed on leave")
	}

	// No heartbeat may resurrect it.
	time.Sleep(60 * time.Millisecond)
	snap, _ = f.other.Read(ctx, path)
	if snap.Exists {
		t.Error("heartbeat kept running after leave")
	}
}

func TestDisconnectRemovesPresence(t *testing.T) {
	f, cleanup := setup(t, realtime.Options{})
	defer cleanup()
	ctx := context.Background()

	if err := f.ch.Enter(ctx, sharedNote(100)); err != nil {
		t.Fatalf("Enter failed: %v", err)
	}
	_ = f.mine.Close()

	snap, err := f.other.Read(ctx, remote.PresencePath("s1", "u1"))
	if err != nil {
		t.Fatal(err)
	}
	if snap.Exists {
		t.Error("presence should be removed when the client disconnects")
	}
}

func TestEditAutosavesAndLeaveCancels(t *testing.T) {
	f, cleanup := setup(t, realtime.Options{Autosave: 30 * time.Millisecond})
	defer cleanup()
	ctx := context.Background()

	if err := f.ch.Enter(ctx, sharedNote(100)); err != nil {
		t.Fatalf("Enter failed: %v", err)
	}
	for _, v := range []string{"a", "ab", "abc"} {
		if err := f.ch.Edit(ctx, realtime.FieldContent, v); err != nil {
			t.Fatalf("Edit failed: %v", err)
		}
	}
	waitUntil(t, "autosave", func() bool { return f.saver.savedCount() == 1 })
	if f.saver.saved[0].Content != "abc" {
		t.Errorf("expected last edit saved, got %q", f.saver.saved[0].Content)
	}

	if err := f.ch.Edit(ctx, realtime.FieldTitle, "pending"); err != nil {
		t.Fatal(err)
	}
	if err := f.ch.Leave(ctx); err != nil {
		t.Fatal(err)
	}
	time.Sleep(80 * time.Millisecond)
	if f.saver.savedCount() != 1 {
		t.Error("autosave fired after leave")
	}
	if err := f.ch.Edit(ctx, realtime.FieldTitle, "x"); err != realtime.ErrNotSubscribed {
		t.Errorf("expected ErrNotSubscribed, got %v", err)
	}
}

func TestActiveUsersSkipsStale(t *testing.T) {
	f, cleanup := setup(t, realtime.Options{})
	defer cleanup()
	ctx := context.Background()

	if err := f.ch.Enter(ctx, sharedNote(100)); err != nil {
		t.Fatalf("Enter failed: %v", err)
	}
	now := models.NowMillis()
	if err := f.other.Set(ctx, remote.PresencePath("s1", "u2"), models.PresenceInfo{Name: "Bob", LastActive: now - 31_000, Status: models.StatusEditing}); err != nil {
		t.Fatal(err)
	}
	if err := f.other.Set(ctx, remote.PresencePath("s1", "u3"), models.PresenceInfo{Name: "Cy", LastActive: now, Status: models.StatusIdle}); err != nil {
		t.Fatal(err)
	}

	waitUntil(t, "presence", func() bool { return len(f.ch.ActiveUsers(now)) == 2 })
	users := f.ch.ActiveUsers(now)
	if users[0].Name != "Ann" || users[1].UID != "u3" {
		t.Errorf("unexpected active users: %+v", users)
	}
}

func TestEnterRequiresSharedNote(t *testing.T) {
	f, cleanup := setup(t, realtime.Options{})
	defer cleanup()

	if err := f.ch.Enter(context.Background(), models.Note{ID: "p"}); err != realtime.ErrNotShared {
		t.Errorf("expected ErrNotShared, got %v", err)
	}
}
