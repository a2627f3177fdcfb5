package categories_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"homenotes/auth"
	"homenotes/categories"
	"homenotes/localcache"
	"homenotes/models"
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
	bus     *state.Bus
	mgr     *categories.Manager
	toasts  []string
}

func setup(t *testing.T, signedIn bool) (*fixture, func()) {
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
		bus:     state.NewBus(),
	}
	f.bus.Listen(func(ev state.Event) {
		if ev.Type == state.EventToast {
			f.toasts = append(f.toasts, ev.Payload.(state.Toast).Message)
		}
	})
	if signedIn {
		if err := f.session.SignIn(models.User{UID: "u1", Name: "Ann"}); err != nil {
			t.Fatalf("SignIn failed: %v", err)
		}
	}
	f.mgr = categories.NewManager(caches, f.store, f.session, f.state, f.bus)
	return f, func() {
		_ = f.store.Close()
		_ = caches.Close()
	}
}

func cats(names ...string) []models.Category {
	out := []models.Category{models.AllCategory()}
	for _, n := range names {
		out = append(out, models.Category{ID: n, Name: n})
	}
	return out
}

func TestReconcileSizeWins(t *testing.T) {
	a := cats("Work", "Home")
	b := cats("Work")

	got, won := categories.Reconcile(b, a)
	if len(got) != 3 || !won {
		t.Errorf("longer candidate should win: %v %v", got, won)
	}
	got, won = categories.Reconcile(a, b)
	if len(got) != 3 || won {
		t.Errorf("longer current should stay: %v %v", got, won)
	}

	tie := cats("Other")
	got, won = categories.Reconcile(b, tie)
	if won || got[1].ID != "Work" {
		t.Errorf("tie must keep current, got %v", got)
	}
}

func TestSentinelInvariants(t *testing.T) {
	f, cleanup := setup(t, false)
	defer cleanup()
	ctx := context.Background()
	f.mgr.Initialize(ctx)

	if _, err := f.mgr.AddCategory(ctx, "Work"); err != nil {
		t.Fatalf("AddCategory failed: %v", err)
	}
	before := f.mgr.Categories()

	if err := f.mgr.DeleteCategory(ctx, models.AllCategoryID); !errors.Is(err, categories.ErrSentinelCategory) {
		t.Errorf("expected ErrSentinelCategory, got %v", err)
	}
	if _, err := f.mgr.AddCategory(ctx, "   "); !errors.Is(err, categories.ErrEmptyName) {
		t.Errorf("expected ErrEmptyName, got %v", err)
	}
	if _, err := f.mgr.AddCategory(ctx, " wORK "); !errors.Is(err, categories.ErrDuplicateName) {
		t.Errorf("expected ErrDuplicateName, got %v", err)
	}

	after := f.mgr.Categories()
	if len(after) != len(before) {
		t.Errorf("rejected operations changed the list: %v -> %v", before, after)
	}
	if len(f.toasts) != 3 {
		t.Errorf("expected 3 toasts, got %v", f.toasts)
	}
}

func TestAddPersistsToAllLayers(t *testing.T) {
	f, cleanup := setup(t, true)
	defer cleanup()
	ctx := context.Background()
	f.mgr.Initialize(ctx)

	cat, err := f.mgr.AddCategory(ctx, "  Work ")
	if err != nil {
		t.Fatalf("AddCategory failed: %v", err)
	}
	if cat.Name != "Work" {
		t.Errorf("expected trimmed name, got %q", cat.Name)
	}

	var durable, backup []models.Category
	if ok, _ := localcache.GetJSON(f.caches.Durable, localcache.KeyCategories, &durable); !ok || len(durable) != 2 {
		t.Errorf("durable cache not updated: %v", durable)
	}
	if ok, _ := localcache.GetJSON(f.caches.Session, localcache.KeyCategoriesBackup, &backup); !ok || len(backup) != 2 {
		t.Errorf("session backup not updated: %v", backup)
	}
	if localcache.GetInt64(f.caches.Durable, localcache.KeyCategoriesLastModified) == 0 {
		t.Error("expected categoriesLastModified")
	}

	var remoteList []models.Category
	found, err := remote.ReadInto(ctx, f.store, remote.UserCategoriesPath("u1"), &remoteList)
	if err != nil || !found || len(remoteList) != 2 {
		t.Errorf("remote not updated: found=%v err=%v list=%v", found, err, remoteList)
	}
}

func TestGuestSkipsRemote(t *testing.T) {
	f, cleanup := setup(t, false)
	defer cleanup()
	ctx := context.Background()
	if err := f.session.ContinueAsGuest(); err != nil {
		t.Fatalf("ContinueAsGuest failed: %v", err)
	}
	f.mgr.Initialize(ctx)

	if _, err := f.mgr.AddCategory(ctx, "Work"); err != nil {
		t.Fatalf("AddCategory failed: %v", err)
	}
	if n := len(f.store.Writes()); n != 0 {
		t.Errorf("guest wrote %d times to remote", n)
	}
}

func TestRefreshFromRemoteLongerWins(t *testing.T) {
	f, cleanup := setup(t, true)
	defer cleanup()
	ctx := context.Background()

	if err := f.store.Set(ctx, remote.UserCategoriesPath("u1"), cats("Work", "Home")); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	f.state.SetCategories(cats("Work"))

	f.mgr.RefreshFromRemote(ctx)

	got := f.mgr.Categories()
	if len(got) != 3 {
		t.Fatalf("expected remote list adopted, got %v", got)
	}
	var durable []models.Category
	if ok, _ := localcache.GetJSON(f.caches.Durable, localcache.KeyCategories, &durable); !ok || len(durable) != 3 {
		t.Errorf("adopted list not mirrored to cache: %v", durable)
	}
}

func TestRefreshFromRemoteLocalCorrects(t *testing.T) {
	f, cleanup := setup(t, true)
	defer cleanup()
	ctx := context.Background()

	if err := f.store.Set(ctx, remote.UserCategoriesPath("u1"), cats()); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	f.state.SetCategories(cats("Work"))

	f.mgr.RefreshFromRemote(ctx)

	var remoteList []models.Category
	if _, err := remote.ReadInto(ctx, f.store, remote.UserCategoriesPath("u1"), &remoteList); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(remoteList) != 2 || remoteList[1].Name != "Work" {
		t.Errorf("expected local list written back, got %v", remoteList)
	}
}

func TestRemoteFailureIsSwallowed(t *testing.T) {
	f, cleanup := setup(t, true)
	defer cleanup()
	ctx := context.Background()
	f.mgr.Initialize(ctx)
	f.store.FailWrites(true)

	if _, err := f.mgr.AddCategory(ctx, "Work"); err != nil {
		t.Fatalf("remote failure must not surface: %v", err)
	}
	if len(f.mgr.Categories()) != 2 {
		t.Error("local add should survive remote failure")
	}
}

func TestInitializeFallsBackToSessionBackup(t *testing.T) {
	f, cleanup := setup(t, false)
	defer cleanup()

	if err := localcache.SetJSON(f.caches.Durable, localcache.KeyCategories, cats()); err != nil {
		t.Fatal(err)
	}
	if err := localcache.SetJSON(f.caches.Session, localcache.KeyCategoriesBackup, cats("Work", "Home")); err != nil {
		t.Fatal(err)
	}

	f.mgr.Initialize(context.Background())
	if got := f.mgr.Categories(); len(got) != 3 {
		t.Errorf("expected backup list, got %v", got)
	}
}

func TestApplyLoadedWritesBackWhenMemoryLonger(t *testing.T) {
	f, cleanup := setup(t, true)
	defer cleanup()
	ctx := context.Background()
	f.state.SetCategories(cats("Work"))

	f.mgr.ApplyLoaded(ctx, cats())

	if len(f.store.WritesTo(remote.UserPath("u1"))) != 1 {
		t.Errorf("expected one write-back, got %v", f.store.Writes())
	}
	if len(f.mgr.Categories()) != 2 {
		t.Error("memory list should be kept")
	}
}

func TestSignInLeavesRefreshToLoader(t *testing.T) {
	f, cleanup := setup(t, true)
	defer cleanup()
	ctx := context.Background()

	if err := f.store.Set(ctx, remote.UserCategoriesPath("u1"), cats()); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if err := localcache.SetJSON(f.caches.Durable, localcache.KeyCategories, cats("Work")); err != nil {
		t.Fatal(err)
	}
	seeded := len(f.store.Writes())

	f.mgr.Initialize(ctx)
	time.Sleep(100 * time.Millisecond)
	if n := len(f.store.Writes()); n != seeded {
		t.Fatalf("categories written to remote before the user data loaded: %d writes", n-seeded)
	}
	if got := f.mgr.Categories(); len(got) != 2 {
		t.Errorf("expected cached list in memory, got %v", got)
	}
}
