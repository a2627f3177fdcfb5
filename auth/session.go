// Package auth tracks who is using this device: a signed-in user, a guest, or nobody yet.
package auth

import (
	"context"
	"sync"
	"time"

	"homenotes/localcache"
	"homenotes/models"

	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/serr"
)

// DefaultReadyTimeout bounds how long startup waits for auth before going offline.
const DefaultReadyTimeout = 10 * time.Second

// Provider is what the reconcilers need to know about the current identity.
type Provider interface {
	CurrentUser() *models.User
	IsGuest() bool
	// OnAuthStateChanged calls fn on every change; if the state already resolved, fn runs once immediately.
	OnAuthStateChanged(fn func(*models.User)) (unsubscribe func())
}

// RemoteUser returns the user whose data may be synced remotely: signed in and not a guest.
func RemoteUser(p Provider) (*models.User, bool) {
	if p == nil || p.IsGuest() {
		return nil, false
	}
	u := p.CurrentUser()
	if u == nil || u.UID == "" {
		return nil, false
	}
	return u, true
}

// Session is the in-process auth state. The first resolution (sign-in, guest, or an
// explicit Resolve) closes Ready exactly once.
type Session struct {
	cache  localcache.Cache
	tokens *TokenIssuer

	mu        sync.RWMutex
	user      *models.User
	guest     bool
	resolved  bool
	listeners map[uint64]func(*models.User)
	nextID    uint64

	ready     chan struct{}
	readyOnce sync.Once
}

// NewSession restores a persisted guest choice from cache. tokens may be nil when
// token sign-in is not used.
func NewSession(cache localcache.Cache, tokens *TokenIssuer) *Session {
	s := &Session{
		cache:     cache,
		tokens:    tokens,
		listeners: map[uint64]func(*models.User){},
		ready:     make(chan struct{}),
	}
	if v, ok, err := cache.Get(localcache.KeyIsGuest); err == nil && ok && v == "true" {
		s.guest = true
		s.markResolvedLocked()
		logger.Info("Restored guest session")
	}
	return s
}

func (s *Session) CurrentUser() *models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

func (s *Session) IsGuest() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.guest
}

func (s *Session) OnAuthStateChanged(fn func(*models.User)) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = fn
	resolved := s.resolved
	s.mu.Unlock()

	if resolved {
		fn(s.CurrentUser())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// Ready is closed once the auth state first resolves.
func (s *Session) Ready() <-chan struct{} {
	return s.ready
}

func (s *Session) markResolvedLocked() {
	s.resolved = true
	s.readyOnce.Do(func() { close(s.ready) })
}

// change applies a new state and notifies listeners outside the lock.
func (s *Session) change(user *models.User, guest bool) {
	s.mu.Lock()
	s.user = user
	s.guest = guest
	s.markResolvedLocked()
	fns := make([]func(*models.User), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	current := s.CurrentUser()
	for _, fn := range fns {
		fn(current)
	}
}

// SignIn switches to a signed-in user and clears any guest flag.
func (s *Session) SignIn(user models.User) error {
	if user.UID == "" {
		return serr.New("user has no uid")
	}
	if err := s.cache.Remove(localcache.KeyIsGuest); err != nil {
		logger.LogErr(err, "failed to clear guest flag")
	}
	logger.Info("User signed in", "uid", user.UID)
	s.change(&user, false)
	return nil
}

// SignInWithToken verifies a token issued for this household and signs its user in.
func (s *Session) SignInWithToken(token string) (models.User, error) {
	if s.tokens == nil {
		return models.User{}, serr.New("token sign-in is not configured")
	}
	user, err := s.tokens.Parse(token)
	if err != nil {
		return models.User{}, err
	}
	return user, s.SignIn(user)
}

// ContinueAsGuest keeps all data local. The choice survives restarts.
func (s *Session) ContinueAsGuest() error {
	if err := s.cache.Set(localcache.KeyIsGuest, "true"); err != nil {
		return serr.Wrap(err, "failed to persist guest flag")
	}
	logger.Info("Continuing as guest")
	s.change(nil, true)
	return nil
}

// signOutKeys are the per-user documents dropped from the durable cache on sign-out.
var signOutKeys = []string{
	localcache.KeyNotes,
	localcache.KeyCategories,
	localcache.KeyCachedInvitations,
	localcache.KeyCachedSharedNotes,
	localcache.KeyIsGuest,
}

// SignOut forgets the user and clears their cached documents, including every username_* entry.
func (s *Session) SignOut() error {
	for _, key := range signOutKeys {
		if err := s.cache.Remove(key); err != nil {
			return serr.Wrap(err, "failed to clear "+key)
		}
	}
	n, err := localcache.RemoveMatching(s.cache, "username_*")
	if err != nil {
		return serr.Wrap(err, "failed to clear cached usernames")
	}
	logger.Info("User signed out", "cleared_usernames", n)
	s.change(nil, false)
	return nil
}

// Resolve marks the current (signed-out) state as final, e.g. after a startup check found no session.
func (s *Session) Resolve() {
	s.mu.Lock()
	already := s.resolved
	s.mu.Unlock()
	if already {
		return
	}
	s.change(s.CurrentUser(), s.IsGuest())
}

// ReadySource is anything exposing a readiness channel.
type ReadySource interface {
	Ready() <-chan struct{}
}

// WaitReady waits for r to resolve. It reports false on timeout or cancellation,
// in which case callers continue in offline mode.
func WaitReady(ctx context.Context, r ReadySource, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = DefaultReadyTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-r.Ready():
		return true
	case <-timer.C:
		logger.Info("Auth not ready in time, continuing offline", "timeout", timeout.String())
		return false
	case <-ctx.Done():
		return false
	}
}
