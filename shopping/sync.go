// Package shopping keeps the household's single shopping document in sync.
//
// Every local change is cached at once and pushed as a whole document. Incoming
// documents are applied only when they are clearly newer than this client's last
// local change, so a write echoed back by the store is not re-applied. Two clients
// editing different items within the same window still overwrite each other.
package shopping

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"homenotes/auth"
	"homenotes/debounce"
	"homenotes/localcache"
	"homenotes/models"
	"homenotes/remote"
	"homenotes/state"

	"github.com/cenkalti/backoff/v4"
	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/serr"
)

var (
	ErrItemNotFound = errors.New("shopping item not found")
	ErrListNotFound = errors.New("shopping list not found")
	ErrEmptyText    = errors.New("item text cannot be empty")
)

const (
	DefaultTextDebounce = 200 * time.Millisecond
	DefaultEchoBuffer   = 500 * time.Millisecond
	DefaultRetryInitial = time.Second
	DefaultMaxAttempts  = 3
)

type Options struct {
	TextDebounce time.Duration
	EchoBuffer   time.Duration
	RetryInitial time.Duration
	MaxAttempts  int
}

func (o *Options) defaults() {
	if o.TextDebounce <= 0 {
		o.TextDebounce = DefaultTextDebounce
	}
	if o.EchoBuffer <= 0 {
		o.EchoBuffer = DefaultEchoBuffer
	}
	if o.RetryInitial <= 0 {
		o.RetryInitial = DefaultRetryInitial
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
}

type Sync struct {
	durable localcache.Cache
	store   remote.Store
	auth    auth.Provider
	state   *state.AppState
	bus     *state.Bus
	opts    Options

	text *debounce.Keyed

	// gen counts local changes; synced is the last gen the remote has seen.
	gen    atomic.Uint64
	synced atomic.Uint64
	kick   chan struct{}
	pushMu sync.Mutex

	mu     sync.Mutex
	unsub  func()
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(caches *localcache.Caches, store remote.Store, p auth.Provider, st *state.AppState, bus *state.Bus, opts Options) *Sync {
	opts.defaults()
	ctx, cancel := context.WithCancel(context.Background())
	s := &Sync{
		durable: caches.Durable,
		store:   store,
		auth:    p,
		state:   st,
		bus:     bus,
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
		kick:    make(chan struct{}, 1),
	}
	s.text = debounce.NewKeyed(opts.TextDebounce, func(string) { s.syncSoon() })
	s.wg.Add(1)
	go s.run()
	return s
}

func (s *Sync) Lists() models.ShoppingLists {
	return s.state.ShoppingLists()
}

// LoadLocal puts the cached lists in memory, or the defaults when there are none.
func (s *Sync) LoadLocal() models.ShoppingLists {
	var local models.ShoppingLists
	if _, err := localcache.GetJSON(s.durable, localcache.KeyShoppingLists, &local); err != nil {
		logger.LogErr(err, "failed to read cached shopping lists")
	}
	if local.IsEmpty() {
		local = models.DefaultShoppingLists()
	}
	s.state.SetShoppingLists(local)
	return local
}

// Load prepares the lists and creates the remote document when it does not exist yet.
func (s *Sync) Load(ctx context.Context) (models.ShoppingLists, error) {
	lists := s.LoadLocal()
	if _, ok := auth.RemoteUser(s.auth); !ok || s.store == nil {
		return lists, nil
	}

	snap, err := s.store.Read(ctx, remote.ShoppingListsPath)
	if err != nil {
		logger.LogErr(err, "failed to read shopping lists, using local copy")
		return lists, nil
	}
	if !snap.Exists {
		doc := models.ShoppingDocument{Lists: models.DefaultShoppingLists(), UpdatedAt: models.NowMillis(), UpdatedBy: s.author()}
		if err := s.store.Set(ctx, remote.ShoppingListsPath, doc); err != nil {
			logger.LogErr(err, "failed to initialize shopping lists")
		} else {
			logger.Info("Initialized shared shopping lists")
		}
	}
	return lists, nil
}

// Subscribe applies remote documents as they arrive until Close.
func (s *Sync) Subscribe(ctx context.Context) error {
	if _, ok := auth.RemoteUser(s.auth); !ok || s.store == nil {
		return nil
	}
	s.mu.Lock()
	if s.unsub != nil {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	unsub, err := s.store.Subscribe(ctx, remote.ShoppingListsPath, s.onRemote)
	if err != nil {
		return serr.Wrap(err, "failed to subscribe to shopping lists")
	}
	s.mu.Lock()
	s.unsub = unsub
	s.mu.Unlock()
	return nil
}

func (s *Sync) onRemote(snap remote.Snapshot) {
	if !snap.Exists {
		return
	}
	var doc models.ShoppingDocument
	if err := snap.Decode(&doc); err != nil {
		logger.LogErr(err, "failed to decode shopping lists")
		return
	}
	last := localcache.GetInt64(s.durable, localcache.KeyLastShoppingUpdate)
	if doc.UpdatedAt <= last+s.opts.EchoBuffer.Milliseconds() {
		logger.Debug("Ignored shopping update within echo buffer", "remote", doc.UpdatedAt, "local", last)
		return
	}
	if doc.Lists == nil {
		doc.Lists = models.ShoppingLists{}
	}

	s.state.SetShoppingLists(doc.Lists)
	if err := localcache.SetJSON(s.durable, localcache.KeyShoppingLists, doc.Lists); err != nil {
		logger.LogErr(err, "failed to cache shopping lists")
	}
	logger.Debug("Applied remote shopping lists", "updated_by", doc.UpdatedBy)
	s.bus.Emit(state.EventShoppingChanged, doc.Lists)
}

// mutate applies fn, caches the result and stamps the local change time.
func (s *Sync) mutate(fn func(models.ShoppingLists) error) (models.ShoppingLists, error) {
	lists, err := s.state.MutateShoppingLists(fn)
	if err != nil {
		return nil, err
	}
	if err := localcache.SetJSON(s.durable, localcache.KeyShoppingLists, lists); err != nil {
		logger.LogErr(err, "failed to cache shopping lists")
	}
	if err := localcache.SetInt64(s.durable, localcache.KeyLastShoppingUpdate, models.NowMillis()); err != nil {
		logger.LogErr(err, "failed to stamp shopping update")
	}
	s.bus.Emit(state.EventShoppingChanged, lists)
	return lists, nil
}

func checkIndex(lists models.ShoppingLists, list string, index int) error {
	items, ok := lists[list]
	if !ok {
		return ErrListNotFound
	}
	if index < 0 || index >= len(items) {
		return ErrItemNotFound
	}
	return nil
}

// AddItem appends an item, creating the list if needed.
func (s *Sync) AddItem(list, text string) (models.ShoppingLists, error) {
	if text == "" {
		return nil, ErrEmptyText
	}
	lists, err := s.mutate(func(l models.ShoppingLists) error {
		l[list] = append(l[list], models.ShoppingItem{Text: text})
		return nil
	})
	if err == nil {
		s.syncSoon()
	}
	return lists, err
}

// UpdateItemText edits an item's text. The remote sync waits for typing to pause.
func (s *Sync) UpdateItemText(list string, index int, text string) (models.ShoppingLists, error) {
	lists, err := s.mutate(func(l models.ShoppingLists) error {
		if err := checkIndex(l, list, index); err != nil {
			return err
		}
		l[list][index].Text = text
		return nil
	})
	if err == nil {
		s.gen.Add(1)
		s.text.Trigger(fmt.Sprintf("%s/%d", list, index))
	}
	return lists, err
}

func (s *Sync) ToggleItem(list string, index int) (models.ShoppingLists, error) {
	lists, err := s.mutate(func(l models.ShoppingLists) error {
		if err := checkIndex(l, list, index); err != nil {
			return err
		}
		l[list][index].Completed = !l[list][index].Completed
		return nil
	})
	if err == nil {
		s.syncSoon()
	}
	return lists, err
}

func (s *Sync) DeleteItem(list string, index int) (models.ShoppingLists, error) {
	lists, err := s.mutate(func(l models.ShoppingLists) error {
		if err := checkIndex(l, list, index); err != nil {
			return err
		}
		items := l[list]
		l[list] = append(items[:index:index], items[index+1:]...)
		return nil
	})
	if err == nil {
		s.syncSoon()
	}
	return lists, err
}

// AddList creates an empty named list. Adding an existing list is a no-op.
func (s *Sync) AddList(name string) (models.ShoppingLists, error) {
	if name == "" {
		return nil, ErrListNotFound
	}
	lists, err := s.mutate(func(l models.ShoppingLists) error {
		if _, ok := l[name]; !ok {
			l[name] = []models.ShoppingItem{}
		}
		return nil
	})
	if err == nil {
		s.syncSoon()
	}
	return lists, err
}

// ClearCompleted drops every checked item from list.
func (s *Sync) ClearCompleted(list string) (models.ShoppingLists, error) {
	lists, err := s.mutate(func(l models.ShoppingLists) error {
		items, ok := l[list]
		if !ok {
			return ErrListNotFound
		}
		kept := make([]models.ShoppingItem, 0, len(items))
		for _, it := range items {
			if !it.Completed {
				kept = append(kept, it)
			}
		}
		l[list] = kept
		return nil
	})
	if err == nil {
		s.syncSoon()
	}
	return lists, err
}

// syncSoon queues a push without blocking the caller. Queued pushes coalesce.
func (s *Sync) syncSoon() {
	s.gen.Add(1)
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// run is the only goroutine pushing queued changes, so pushes never overtake each other.
func (s *Sync) run() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.kick:
			s.syncNow()
		}
	}
}

func (s *Sync) author() string {
	if u, ok := auth.RemoteUser(s.auth); ok {
		return u.UID
	}
	return ""
}

var errSuperseded = errors.New("shopping sync superseded by a newer change")

// syncNow pushes the whole document, retrying with exponential backoff.
// Every attempt sends the lists as they are at that moment. A failed attempt
// is not retried when a newer change is already queued behind it.
// Exhausted retries are logged and surfaced as a toast only.
func (s *Sync) syncNow() {
	if _, ok := auth.RemoteUser(s.auth); !ok || s.store == nil {
		return
	}
	s.pushMu.Lock()
	defer s.pushMu.Unlock()
	if s.ctx.Err() != nil {
		return
	}
	gen := s.gen.Load()
	if gen == s.synced.Load() {
		return
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = s.opts.RetryInitial
	expo.Multiplier = 2
	expo.RandomizationFactor = 0
	expo.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(s.opts.MaxAttempts-1)), s.ctx)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		gen = s.gen.Load()
		doc := models.ShoppingDocument{
			Lists:     s.state.ShoppingLists(),
			UpdatedAt: models.NowMillis(),
			UpdatedBy: s.author(),
		}
		ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
		defer cancel()
		if err := s.store.Set(ctx, remote.ShoppingListsPath, doc); err != nil {
			logger.Debug("Shopping sync attempt failed", "attempt", attempt, "error", err.Error())
			if s.gen.Load() != gen {
				return backoff.Permanent(errSuperseded)
			}
			return err
		}
		return nil
	}, policy)

	if errors.Is(err, errSuperseded) {
		logger.Debug("Shopping sync handed over to a newer change", "attempts", attempt)
		return
	}
	if err != nil {
		if s.ctx.Err() != nil {
			return
		}
		logger.LogErr(err, "shopping list sync abandoned", "attempts", attempt)
		s.bus.Toast("error", "Shopping list could not be synced, changes are saved on this device")
		return
	}
	s.synced.Store(gen)
	logger.Debug("Shopping lists synced", "attempts", attempt)
}

// Flush pushes any change the remote has not seen yet, including pending text edits.
func (s *Sync) Flush() {
	s.text.CancelAll()
	s.syncNow()
}

// Close unsubscribes, drops pending edits and stops retries.
func (s *Sync) Close() {
	s.mu.Lock()
	unsub := s.unsub
	s.unsub = nil
	s.mu.Unlock()
	if unsub != nil {
		unsub()
	}
	s.text.CancelAll()
	s.cancel()
	s.wg.Wait()
}
