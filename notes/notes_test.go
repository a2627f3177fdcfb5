package notes_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"homenotes/auth"
	"homenotes/categories"
	"homenotes/localcache"
	"homenotes/models"
	"homenotes/notes"
	"homenotes/remote"
	"homenotes/remote/memstore"
	"homenotes/remote/remotetest"
	"homenotes/state"
)

type fixture struct {
	caches  *localcache.Caches
	store   *remotetest.Faulty
	session *auth.Session
	state   *state.AppState
	cats    *categories.Manager
	rec     *notes.Reconciler
	user    models.User
}

func setup(t *testing.T) (*fixture, func()) {
	t.Helper()
	caches, err := localcache.NewMemoryCaches(localcache.DriverSQLite)
	if err != nil {
		t.Fatalf("failed to open caches: %v", err)
	}
	f := &fixture{
		caches:  caches,
		store:   remotetest.NewFaulty(memstore.New().Connect()),
		session: auth.NewSession(caches.Durable, nil),
		state:   state.New(),
		user:    models.User{UID: "u1", Name: "Ann", Email: "ann@example.com"},
	}
	bus := state.NewBus()
	if err := f.session.SignIn(f.user); err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	f.cats = categories.NewManager(caches, f.store, f.session, f.state, bus)
	f.rec = notes.NewReconciler(caches, f.store, f.session, f.state, bus, f.cats, time.Hour)
	return f, func() {
		f.rec.Close()
		_ = f.store.Close()
		_ = caches.Close()
	}
}

func ids(list []models.Note) []string {
	out := make([]string, len(list))
	for i, n := range list {
		out[i] = n.ID
	}
	return out
}

func TestMergeScenario(t *testing.T) {
	local := []models.Note{{ID: "1", Categories: []string{"work"}}}
	remoteNotes := []models.Note{
		{ID: "1", Categories: []string{}},
		{ID: "2", Categories: []string{"home"}},
	}

	merged := notes.MergeNotes(local, remoteNotes)
	if !reflect.DeepEqual(ids(merged), []string{"1", "2"}) {
		t.Fatalf("unexpected order: %v", ids(merged))
	}
	if !reflect.DeepEqual(merged[0].Categories, []string{"work"}) {
		t.Errorf("note 1 should keep local categories, got %v", merged[0].Categories)
	}
	if !reflect.DeepEqual(merged[1].Categories, []string{"home"}) {
		t.Errorf("note 2 should keep remote categories, got %v", merged[1].Categories)
	}
}

func TestMergeTakesOtherFieldsFromRemote(t *testing.T) {
	local := []models.Note{{ID: "1", Title: "old", Categories: []string{}}, {ID: "3", Title: "local only"}}
	remoteNotes := []models.Note{{ID: "1", Title: "new", Categories: []string{"home"}}}

	merged := notes.MergeNotes(local, remoteNotes)
	if merged[0].Title != "new" || !reflect.DeepEqual(merged[0].Categories, []string{"home"}) {
		t.Errorf("empty local categories should defer to remote: %+v", merged[0])
	}
	if len(merged) != 2 || merged[1].ID != "3" {
		t.Errorf("local-only note should be appended: %v", ids(merged))
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	local := []models.Note{{ID: "a", Categories: []string{"x", "x"}}, {ID: "b"}}
	remoteNotes := []models.Note{{ID: "b", Title: "B", Categories: []string{"y"}}, {ID: "c"}}

	once := notes.MergeNotes(local, remoteNotes)
	twice := notes.MergeNotes(local, once)
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("merge not idempotent:\n%+v\n%+v", once, twice)
	}
}

func TestCategoryPreservationAcrossReload(t *testing.T) {
	f, cleanup := setup(t)
	defer cleanup()
	ctx := context.Background()

	n, err := f.rec.CreateNote(ctx, "t", "c", []string{"work"})
	if err != nil {
		t.Fatalf("CreateNote failed: %v", err)
	}
	// A stale in-memory copy tries to clear the categories.
	stale := n.Clone()
	stale.Categories = []string{"other"}
	saved, err := f.rec.SaveCurrentNote(ctx, stale)
	if err != nil {
		t.Fatalf("SaveCurrentNote failed: %v", err)
	}
	if !reflect.DeepEqual(saved.Categories, []string{"work"}) {
		t.Fatalf("stored categories should be preserved, got %v", saved.Categories)
	}

	remoteCopy := n.Clone()
	remoteCopy.Categories = []string{"home"}
	doc := models.NewUserDocument(f.user, 1)
	doc.Notes = []models.Note{remoteCopy}
	if err := f.store.Set(ctx, remote.UserPath("u1"), doc); err != nil {
		t.Fatal(err)
	}

	if err := f.rec.LoadUserData(ctx, f.user); err != nil {
		t.Fatalf("LoadUserData failed: %v", err)
	}
	got, err := f.rec.Note(n.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got.Categories, []string{"work"}) {
		t.Errorf("reload replaced local categories: %v", got.Categories)
	}
}

func TestAssignCategoriesBypassesGuard(t *testing.T) {
	f, cleanup := setup(t)
	defer cleanup()
	ctx := context.Background()

	n, _ := f.rec.CreateNote(ctx, "t", "", []string{"work"})
	got, err := f.rec.AssignCategories(ctx, n.ID, []string{"home", "home"})
	if err != nil {
		t.Fatalf("AssignCategories failed: %v", err)
	}
	if !reflect.DeepEqual(got.Categories, []string{"home"}) {
		t.Errorf("expected explicit assignment, got %v", got.Categories)
	}
	if _, err := f.rec.AssignCategories(ctx, "missing", nil); !errors.Is(err, notes.ErrNoteNotFound) {
		t.Errorf("expected ErrNoteNotFound, got %v", err)
	}
}

func TestLocalLongerCategoriesWrittenBack(t *testing.T) {
	f, cleanup := setup(t)
	defer cleanup()
	ctx := context.Background()

	work := models.Category{ID: "w", Name: "Work"}
	if err := localcache.SetJSON(f.caches.Durable, localcache.KeyCategories, []models.Category{models.AllCategory(), work}); err != nil {
		t.Fatal(err)
	}
	f.cats.Initialize(ctx)
	if err := f.store.Set(ctx, remote.UserPath("u1"), models.NewUserDocument(f.user, 1)); err != nil {
		t.Fatal(err)
	}

	if err := f.rec.LoadUserData(ctx, f.user); err != nil {
		t.Fatalf("LoadUserData failed: %v", err)
	}
	f.rec.Flush(ctx)

	var remoteCats []models.Category
	if _, err := remote.ReadInto(ctx, f.store, remote.UserCategoriesPath("u1"), &remoteCats); err != nil {
		t.Fatal(err)
	}
	want := []models.Category{models.AllCategory(), work}
	if !reflect.DeepEqual(remoteCats, want) {
		t.Errorf("expected remote %v, got %v", want, remoteCats)
	}
}

func TestFirstTimeUserGetsDocument(t *testing.T) {
	f, cleanup := setup(t)
	defer cleanup()
	ctx := context.Background()

	if err := f.rec.LoadUserData(ctx, f.user); err != nil {
		t.Fatalf("LoadUserData failed: %v", err)
	}
	var doc models.UserDocument
	found, err := remote.ReadInto(ctx, f.store, remote.UserPath("u1"), &doc)
	if err != nil || !found {
		t.Fatalf("expected user document, found=%v err=%v", found, err)
	}
	if doc.Name != "Ann" || len(doc.Categories) != 1 || doc.CreatedAt == 0 {
		t.Errorf("unexpected document: %+v", doc)
	}
}

func TestOfflineLoadKeepsLocalNotes(t *testing.T) {
	f, cleanup := setup(t)
	defer cleanup()
	ctx := context.Background()

	if err := localcache.SetJSON(f.caches.Durable, localcache.KeyNotes, []models.Note{{ID: "x"}}); err != nil {
		t.Fatal(err)
	}
	f.store.FailReads(true)

	if err := f.rec.LoadUserData(ctx, f.user); err != nil {
		t.Fatalf("offline load must not fail: %v", err)
	}
	if got := ids(f.rec.Notes()); !reflect.DeepEqual(got, []string{"x"}) {
		t.Errorf("expected cached notes, got %v", got)
	}
}

func TestSaveSuppressedWhileReceiving(t *testing.T) {
	f, cleanup := setup(t)
	defer cleanup()

	f.state.BeginReceiving()
	defer f.state.EndReceiving()
	if _, err := f.rec.SaveCurrentNote(context.Background(), models.Note{ID: "1"}); !errors.Is(err, notes.ErrSaveSuppressed) {
		t.Errorf("expected ErrSaveSuppressed, got %v", err)
	}
	if len(f.rec.Notes()) != 0 {
		t.Error("suppressed save changed state")
	}
}

func TestSharedSaveStampsEditor(t *testing.T) {
	f, cleanup := setup(t)
	defer cleanup()
	ctx := context.Background()

	n := models.Note{ID: "n1", Title: "Groceries", SharedID: "s1", IsShared: true}
	if _, err := f.rec.SaveCurrentNote(ctx, n); err != nil {
		t.Fatalf("SaveCurrentNote failed: %v", err)
	}

	var sn models.SharedNote
	found, err := remote.ReadInto(ctx, f.store, remote.SharedNotePath("s1"), &sn)
	if err != nil || !found {
		t.Fatalf("shared document missing: %v", err)
	}
	if sn.LastEditedBy != "u1" || sn.LastEditedByName != "Ann" || sn.UpdatedAt == 0 || sn.LastModified != sn.UpdatedAt {
		t.Errorf("unexpected stamps: %+v", sn)
	}
	if w := f.store.WritesTo(remote.SharedNotePath("s1")); len(w) != 1 || w[0].Op != "set" {
		t.Errorf("expected a single overwrite, got %v", w)
	}
	if _, err := f.rec.Note("n1"); err != nil {
		t.Error("shared save should mirror into local notes")
	}
}

func TestRemoteFailureKeepsLocalSave(t *testing.T) {
	f, cleanup := setup(t)
	defer cleanup()
	ctx := context.Background()
	f.store.FailWrites(true)

	n, _ := f.rec.CreateNote(ctx, "t", "", nil)
	f.rec.Flush(ctx)

	var cached []models.Note
	if ok, _ := localcache.GetJSON(f.caches.Durable, localcache.KeyNotes, &cached); !ok || len(cached) != 1 || cached[0].ID != n.ID {
		t.Errorf("cache should hold the note regardless of remote: %v", cached)
	}
}

func TestDeleteNote(t *testing.T) {
	f, cleanup := setup(t)
	defer cleanup()
	ctx := context.Background()

	n, _ := f.rec.CreateNote(ctx, "t", "", nil)
	if err := f.rec.DeleteNote(ctx, n.ID); err != nil {
		t.Fatalf("DeleteNote failed: %v", err)
	}
	if err := f.rec.DeleteNote(ctx, n.ID); !errors.Is(err, notes.ErrNoteNotFound) {
		t.Errorf("expected ErrNoteNotFound, got %v", err)
	}
}

func TestLockAndUnlock(t *testing.T) {
	f, cleanup := setup(t)
	defer cleanup()
	ctx := context.Background()

	n, _ := f.rec.CreateNote(ctx, "secret", "", nil)
	if err := f.rec.LockNote(ctx, n.ID, "pw"); err != nil {
		t.Fatalf("LockNote failed: %v", err)
	}
	if _, err := f.rec.UnlockNote(ctx, n.ID, "nope", false); !errors.Is(err, models.ErrWrongPassword) {
		t.Errorf("expected ErrWrongPassword, got %v", err)
	}
	if _, err := f.rec.UnlockNote(ctx, n.ID, "pw", true); err != nil {
		t.Fatalf("UnlockNote failed: %v", err)
	}
	got, _ := f.rec.Note(n.ID)
	if got.IsLocked() {
		t.Error("lock should be removed")
	}
}

func TestMigrateGuestData(t *testing.T) {
	f, cleanup := setup(t)
	defer cleanup()
	ctx := context.Background()

	guestNotes := []models.Note{{ID: "g1", Title: "from guest"}}
	if err := localcache.SetJSON(f.caches.Durable, localcache.KeyNotes, guestNotes); err != nil {
		t.Fatal(err)
	}

	if err := f.rec.MigrateGuestData(ctx, f.user); err != nil {
		t.Fatalf("MigrateGuestData failed: %v", err)
	}
	var doc models.UserDocument
	if _, err := remote.ReadInto(ctx, f.store, remote.UserPath("u1"), &doc); err != nil {
		t.Fatal(err)
	}
	if len(doc.Notes) != 1 || doc.Notes[0].ID != "g1" || doc.MigratedAt == 0 {
		t.Errorf("unexpected migrated document: %+v", doc)
	}

	writes := len(f.store.Writes())
	if err := f.rec.MigrateGuestData(ctx, f.user); err != nil {
		t.Fatal(err)
	}
	if len(f.store.Writes()) != writes {
		t.Error("second migration should be a no-op")
	}
}
