package family_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"homenotes/auth"
	"homenotes/family"
	"homenotes/localcache"
	"homenotes/models"
	"homenotes/remote"
	"homenotes/remote/memstore"
	"homenotes/state"
)

type fixture struct {
	caches *localcache.Caches
	srv    *memstore.Server
	store  remote.Store
	bus    *state.Bus
	auth   *auth.Session
}

func setup(t *testing.T, uid string) (*fixture, func()) {
	t.Helper()
	caches, err := localcache.NewMemoryCaches(localcache.DriverSQLite)
	if err != nil {
		t.Fatalf("failed to open caches: %v", err)
	}
	srv := memstore.New()
	f := &fixture{caches: caches, srv: srv, store: srv.Connect(), bus: state.NewBus(), auth: auth.NewSession(caches.Durable, nil)}
	if uid != "" {
		if err := f.auth.SignIn(models.User{UID: uid}); err != nil {
			t.Fatal(err)
		}
	}
	return f, func() {
		_ = f.store.Close()
		_ = caches.Close()
	}
}

func recipe(id string) models.Recipe { return models.Recipe{ID: id, Title: id} }

func recipeIDs(list []models.Recipe) []string {
	out := make([]string, len(list))
	for i, r := range list {
		out[i] = r.ID
	}
	return out
}

func TestUnionMerge(t *testing.T) {
	got := family.UnionMerge([]models.Recipe{recipe("b"), recipe("a")}, []models.Recipe{recipe("a"), recipe("c")})
	ids := recipeIDs(got)
	if len(ids) != 3 || ids[0] != "b" || ids[1] != "a" || ids[2] != "c" {
		t.Errorf("unexpected merge order: %v", ids)
	}
}

func TestLoadSeedsEmptyRemote(t *testing.T) {
	f, cleanup := setup(t, "u1")
	defer cleanup()
	ctx := context.Background()

	if err := localcache.SetJSON(f.caches.Durable, localcache.KeyRecipes, []models.Recipe{recipe("local")}); err != nil {
		t.Fatal(err)
	}
	recipes := family.NewRecipes(f.caches, f.store, f.auth, f.bus)
	got, err := recipes.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected local recipe, got %v", got)
	}

	var doc struct {
		Items []models.Recipe `json:"items"`
	}
	if ok, err := remote.ReadInto(ctx, f.store, remote.RecipesPath, &doc); err != nil || !ok || len(doc.Items) != 1 {
		t.Errorf("expected remote seeded from cache: ok=%v err=%v %v", ok, err, doc.Items)
	}
}

func TestLoadMergesRemoteFirst(t *testing.T) {
	f, cleanup := setup(t, "u1")
	defer cleanup()
	ctx := context.Background()

	other := family.NewRecipes(f.caches, f.srv.Connect(), f.auth, f.bus)
	if err := other.Save(ctx, []models.Recipe{recipe("r1"), recipe("r2")}); err != nil {
		t.Fatal(err)
	}
	if err := localcache.SetJSON(f.caches.Durable, localcache.KeyRecipes, []models.Recipe{recipe("r2"), recipe("mine")}); err != nil {
		t.Fatal(err)
	}

	recipes := family.NewRecipes(f.caches, f.store, f.auth, f.bus)
	got, err := recipes.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if ids := recipeIDs(got); len(ids) != 3 || ids[0] != "r1" || ids[2] != "mine" {
		t.Errorf("unexpected merged ids: %v", ids)
	}
}

func TestSubscribeAdoptsRemoteChanges(t *testing.T) {
	f, cleanup := setup(t, "u1")
	defer cleanup()
	ctx := context.Background()

	photos := family.NewPhotos(f.caches, f.store, f.auth, f.bus)
	defer photos.Close()
	if err := photos.Subscribe(ctx); err != nil {
		t.Fatal(err)
	}

	other := family.NewPhotos(f.caches, f.srv.Connect(), f.auth, f.bus)
	if err := other.Save(ctx, []models.Photo{{ID: "p1"}}); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(photos.Items()) != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if len(photos.Items()) != 1 {
		t.Errorf("remote photo not adopted: %v", photos.Items())
	}
}

func TestMealPlanVoting(t *testing.T) {
	f, cleanup := setup(t, "u1")
	defer cleanup()
	ctx := context.Background()
	week := models.WeekID(time.Date(2024, 3, 13, 0, 0, 0, 0, time.UTC))

	plans := family.NewMealPlans(f.caches, f.store, f.auth, f.bus, 1)
	defer plans.Close()
	if _, err := plans.Vote(ctx, true); !errors.Is(err, family.ErrNoPlan) {
		t.Errorf("expected ErrNoPlan, got %v", err)
	}
	if _, err := plans.Load(ctx, week); err != nil {
		t.Fatal(err)
	}
	if _, err := plans.Vote(ctx, true); !errors.Is(err, family.ErrNotVoting) {
		t.Errorf("expected ErrNotVoting, got %v", err)
	}

	if _, err := plans.SetMeal(ctx, "monday", "soup"); err != nil {
		t.Fatal(err)
	}
	p, err := plans.Submit(ctx, nil)
	if err != nil || p.Status != models.PlanVoting || p.Meals["monday"] != "soup" {
		t.Fatalf("unexpected submit result %+v %v", p, err)
	}
	if _, err := plans.SetMeal(ctx, "tuesday", "pasta"); !errors.Is(err, family.ErrPlanLocked) {
		t.Errorf("expected ErrPlanLocked, got %v", err)
	}

	p, _ = plans.Vote(ctx, false)
	if p.Status != models.PlanPlanning || len(p.Votes) != 0 {
		t.Errorf("reject should reset to planning: %+v", p)
	}

	if _, err := plans.Submit(ctx, map[string]string{"friday": "pizza"}); err != nil {
		t.Fatal(err)
	}
	p, _ = plans.Vote(ctx, true)
	if p.Status != models.PlanFinalized {
		t.Errorf("one approval should finalize: %+v", p)
	}

	var stored models.MealPlan
	if ok, _ := remote.ReadInto(ctx, f.store, remote.MealPlanPath(week), &stored); !ok || stored.Status != models.PlanFinalized {
		t.Errorf("remote plan not saved: %+v", stored)
	}
	var cached models.MealPlan
	if ok, _ := localcache.GetJSON(f.caches.Durable, localcache.MealPlanKey(week), &cached); !ok || cached.Meals["friday"] != "pizza" {
		t.Errorf("cached plan not saved: %+v", cached)
	}
}

func TestMealPlanNeedsEnoughApprovals(t *testing.T) {
	f, cleanup := setup(t, "u1")
	defer cleanup()
	ctx := context.Background()

	plans := family.NewMealPlans(f.caches, f.store, f.auth, f.bus, 2)
	if _, err := plans.Load(ctx, "week_2024_2_11"); err != nil {
		t.Fatal(err)
	}
	if _, err := plans.Submit(ctx, map[string]string{"monday": "soup"}); err != nil {
		t.Fatal(err)
	}
	p, _ := plans.Vote(ctx, true)
	if p.Status != models.PlanVoting || p.ApproveCount() != 1 {
		t.Errorf("one of two approvals should keep voting: %+v", p)
	}
}

func TestRemotePlanWinsOnLoad(t *testing.T) {
	f, cleanup := setup(t, "u1")
	defer cleanup()
	ctx := context.Background()
	week := "week_2024_2_11"

	local := models.NewMealPlan(week)
	local.Meals["monday"] = "local"
	if err := localcache.SetJSON(f.caches.Durable, localcache.MealPlanKey(week), local); err != nil {
		t.Fatal(err)
	}
	remotePlan := models.NewMealPlan(week)
	remotePlan.Meals["monday"] = "remote"
	if err := f.store.Set(ctx, remote.MealPlanPath(week), remotePlan); err != nil {
		t.Fatal(err)
	}

	plans := family.NewMealPlans(f.caches, f.store, f.auth, f.bus, 1)
	p, err := plans.Load(ctx, week)
	if err != nil {
		t.Fatal(err)
	}
	if p.Meals["monday"] != "remote" {
		t.Errorf("expected remote plan, got %+v", p)
	}
}
