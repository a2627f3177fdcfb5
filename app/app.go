// Package app wires every reconciler over one AppState and drives their lifecycle
// from auth changes.
package app

import (
	"context"
	"sync"
	"time"

	"homenotes/auth"
	"homenotes/categories"
	"homenotes/config"
	"homenotes/family"
	"homenotes/localcache"
	"homenotes/models"
	"homenotes/notes"
	"homenotes/realtime"
	"homenotes/remote"
	"homenotes/remote/filestore"
	"homenotes/remote/firestoredb"
	"homenotes/remote/memstore"
	"homenotes/remote/relay"
	"homenotes/sharing"
	"homenotes/shopping"
	"homenotes/state"

	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/serr"
	"golang.org/x/sync/errgroup"
)

const (
	signInTimeout = 30 * time.Second
	closeTimeout  = 10 * time.Second
)

type App struct {
	cfg *config.Config

	Caches  *localcache.Caches
	Store   remote.Store
	Tokens  *auth.TokenIssuer
	Session *auth.Session
	State   *state.AppState
	Bus     *state.Bus

	Categories *categories.Manager
	Notes      *notes.Reconciler
	Shopping   *shopping.Sync
	Shared     *realtime.Registry
	Sharing    *sharing.Service
	Photos     *family.Collection[models.Photo]
	Groups     *family.Collection[models.PhotoGroup]
	Recipes    *family.Collection[models.Recipe]
	MealPlans  *family.MealPlans

	// MemServer backs the memory driver, so tests can attach more clients to it.
	MemServer *memstore.Server

	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup
	done      chan struct{}
	doneOnce  sync.Once

	mu        sync.Mutex
	ready     bool
	lastSync  *time.Time
	lastError string
	unsubs    []func()
}

// New opens the caches and the remote store chosen by cfg and builds every component.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	a := &App{cfg: cfg, State: state.New(), Bus: state.NewBus(), done: make(chan struct{})}

	var err error
	if cfg.Cache.Path == "" {
		a.Caches, err = localcache.NewMemoryCaches(cfg.Cache.Driver)
	} else {
		a.Caches, err = localcache.OpenCaches(cfg.Cache.Driver, cfg.Cache.Path)
	}
	if err != nil {
		return nil, serr.Wrap(err, "failed to open local cache")
	}

	if cfg.Auth.JWTSecret != "" {
		if a.Tokens, err = auth.NewTokenIssuer(cfg.Auth.JWTSecret); err != nil {
			_ = a.Caches.Close()
			return nil, err
		}
	}

	if a.Store, err = a.openRemote(ctx); err != nil {
		_ = a.Caches.Close()
		return nil, err
	}

	a.Session = auth.NewSession(a.Caches.Durable, a.Tokens)
	a.Categories = categories.NewManager(a.Caches, a.Store, a.Session, a.State, a.Bus)
	a.Notes = notes.NewReconciler(a.Caches, a.Store, a.Session, a.State, a.Bus, a.Categories, cfg.Sync.RemoteSaveDelay)
	a.Shopping = shopping.New(a.Caches, a.Store, a.Session, a.State, a.Bus, shopping.Options{
		TextDebounce: cfg.Sync.ShoppingTextDebounce,
		EchoBuffer:   cfg.Sync.ShoppingEchoBuffer,
		RetryInitial: cfg.Sync.ShoppingRetryInitial,
		MaxAttempts:  cfg.Sync.ShoppingMaxAttempts,
	})
	a.Shared = realtime.NewRegistry(a.Store, a.Session, a.State, a.Bus, a.Notes, realtime.Options{
		Heartbeat: cfg.Sync.PresenceHeartbeat,
		Autosave:  cfg.Sync.SharedAutosave,
	})
	a.Sharing = sharing.New(a.Caches, a.Store, a.Session, a.State, a.Bus, a.Notes)
	a.Photos = family.NewPhotos(a.Caches, a.Store, a.Session, a.Bus)
	a.Groups = family.NewPhotoGroups(a.Caches, a.Store, a.Session, a.Bus)
	a.Recipes = family.NewRecipes(a.Caches, a.Store, a.Session, a.Bus)
	a.MealPlans = family.NewMealPlans(a.Caches, a.Store, a.Session, a.Bus, cfg.Sync.MealPlanApprovals)
	return a, nil
}

func (a *App) openRemote(ctx context.Context) (remote.Store, error) {
	rc := a.cfg.Remote
	var (
		store remote.Store
		err   error
	)
	switch rc.Driver {
	case config.RemoteFile:
		var fs *filestore.Store
		if fs, err = filestore.Open(rc.Dir); err == nil {
			store = fs
		}
	case config.RemoteRelay:
		var c *relay.Client
		if c, err = relay.Dial(ctx, rc.URL, rc.Token); err == nil {
			store = c
		}
	case config.RemoteFirestore:
		var fsdb *firestoredb.Store
		if fsdb, err = firestoredb.Open(ctx, rc.ProjectID, rc.CredentialsFile); err == nil {
			store = fsdb
		}
	default:
		a.MemServer = memstore.New()
		store = a.MemServer.Connect()
	}
	if err != nil {
		return nil, serr.Wrap(err, "failed to open remote store", "driver", rc.Driver)
	}
	return store, nil
}

// Config returns the settings the app was built with.
func (a *App) Config() *config.Config { return a.cfg }

// Done is closed when Close starts, so long-lived consumers such as event streams can let go.
func (a *App) Done() <-chan struct{} { return a.done }

// Start shows cached data right away, hooks the per-user loaders to auth changes,
// then waits for auth up to the configured timeout. A timeout leaves the app offline.
func (a *App) Start(ctx context.Context) {
	a.runCtx, a.runCancel = context.WithCancel(context.Background())

	a.Categories.Initialize(ctx)
	a.Notes.LoadLocal()
	a.Shopping.LoadLocal()

	unsubBus := a.Bus.Listen(a.trackSync)
	unsubAuth := a.Session.OnAuthStateChanged(a.onAuthChanged)
	a.mu.Lock()
	a.unsubs = append(a.unsubs, unsubBus, unsubAuth)
	a.mu.Unlock()

	ready := auth.WaitReady(ctx, a.Session, a.cfg.Auth.Timeout)
	a.mu.Lock()
	a.ready = ready
	a.mu.Unlock()
	logger.Info("App started", "remote", a.cfg.Remote.Driver, "auth_ready", ready)
}

func (a *App) onAuthChanged(u *models.User) {
	if u == nil || a.Session.IsGuest() {
		a.State.SetCurrentUser(nil)
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.Shared.CloseAll(a.runCtx)
		}()
		return
	}
	user := *u
	a.State.SetCurrentUser(&user)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(a.runCtx, signInTimeout)
		defer cancel()
		a.loadUser(ctx, user)
	}()
}

// loadUser runs the sign-in sequence. Each step logs its own failure and the rest still run.
func (a *App) loadUser(ctx context.Context, user models.User) {
	if err := a.Notes.MigrateGuestData(ctx, user); err != nil {
		logger.LogErr(err, "guest migration failed", "uid", user.UID)
	}
	if err := a.Notes.LoadUserData(ctx, user); err != nil {
		logger.LogErr(err, "failed to load user data", "uid", user.UID)
	}
	if _, err := a.Shopping.Load(ctx); err != nil {
		logger.LogErr(err, "failed to load shopping lists")
	}
	if err := a.Shopping.Subscribe(a.runCtx); err != nil {
		logger.LogErr(err, "shopping subscription failed")
	}

	for _, c := range []interface {
		Subscribe(context.Context) error
	}{a.Photos, a.Groups, a.Recipes} {
		if err := c.Subscribe(a.runCtx); err != nil {
			logger.LogErr(err, "family subscription failed")
		}
	}
	if _, err := a.Photos.Load(ctx); err != nil {
		logger.LogErr(err, "failed to load photos")
	}
	if _, err := a.Groups.Load(ctx); err != nil {
		logger.LogErr(err, "failed to load photo groups")
	}
	if _, err := a.Recipes.Load(ctx); err != nil {
		logger.LogErr(err, "failed to load recipes")
	}

	week := models.WeekID(time.Now())
	if _, err := a.MealPlans.Load(ctx, week); err != nil {
		logger.LogErr(err, "failed to load meal plan", "week", week)
	}
	if err := a.MealPlans.Subscribe(a.runCtx, week); err != nil {
		logger.LogErr(err, "meal plan subscription failed")
	}
	logger.Info("User data loaded", "uid", user.UID, "notes", len(a.State.Notes()))
}

func (a *App) trackSync(ev state.Event) {
	if ev.Type != state.EventSyncStatus {
		return
	}
	m, ok := ev.Payload.(map[string]any)
	if !ok {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if okVal, _ := m["ok"].(bool); okVal {
		now := time.Now()
		a.lastSync = &now
		a.lastError = ""
		return
	}
	a.lastError, _ = m["error"].(string)
}

// Status is a snapshot for the status page and /api/v1/status.
type Status struct {
	RemoteDriver string       `json:"remote_driver"`
	CacheDriver  string       `json:"cache_driver"`
	User         *models.User `json:"user,omitempty"`
	Guest        bool         `json:"guest"`
	Ready        bool         `json:"ready"`
	Connected    bool         `json:"connected"` // the last profile save succeeded
	LastSync     *time.Time   `json:"last_sync"`
	LastError    string       `json:"last_error,omitempty"`
	Notes        int          `json:"notes"`
	Categories   int          `json:"categories"`
}

func (a *App) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Status{
		RemoteDriver: a.cfg.Remote.Driver,
		CacheDriver:  a.cfg.Cache.Driver,
		User:         a.Session.CurrentUser(),
		Guest:        a.Session.IsGuest(),
		Ready:        a.ready,
		Connected:    a.lastSync != nil && a.lastError == "",
		LastSync:     a.lastSync,
		LastError:    a.lastError,
		Notes:        len(a.State.Notes()),
		Categories:   len(a.State.Categories()),
	}
}

// Close flushes pending saves, leaves shared notes, drops subscriptions and closes
// both stores.
func (a *App) Close() error {
	a.doneOnce.Do(func() { close(a.done) })
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	var flush errgroup.Group
	flush.Go(func() error { a.Notes.Flush(ctx); return nil })
	flush.Go(func() error { a.Shopping.Flush(); return nil })
	flush.Go(func() error { a.Shared.CloseAll(ctx); return nil })
	_ = flush.Wait()

	a.mu.Lock()
	unsubs := a.unsubs
	a.unsubs = nil
	a.mu.Unlock()
	for _, fn := range unsubs {
		fn()
	}
	if a.runCancel != nil {
		a.runCancel()
	}
	a.wg.Wait()

	a.Shopping.Close()
	a.Notes.Close()
	a.Photos.Close()
	a.Groups.Close()
	a.Recipes.Close()
	a.MealPlans.Close()

	var closers errgroup.Group
	closers.Go(func() error {
		if err := a.Store.Close(); err != nil {
			return serr.Wrap(err, "failed to close remote store")
		}
		return nil
	})
	closers.Go(func() error {
		if err := a.Caches.Close(); err != nil {
			return serr.Wrap(err, "failed to close local cache")
		}
		return nil
	})
	if err := closers.Wait(); err != nil {
		return err
	}
	logger.Info("App closed")
	return nil
}
