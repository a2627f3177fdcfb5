// Package memstore is an in-process remote store.
//
// One Server holds the document tree; every client gets its own Conn so that
// onDisconnect cleanups run when that client goes away. The relay serves a
// Server over websockets, and tests use Conns to stand in for separate devices.
package memstore

import (
	"context"
	"sync"

	"homenotes/remote"

	"github.com/rohanthewiz/logger"
)

type Server struct {
	mu     sync.Mutex
	tree   *remote.Tree
	subs   map[uint64]*subscription
	nextID uint64
}

type subscription struct {
	path     string
	listener *remote.Listener
}

func New() *Server {
	return &Server{tree: remote.NewTree(), subs: map[uint64]*subscription{}}
}

// Connect opens a client view of the tree.
func (s *Server) Connect() *Conn {
	return &Conn{srv: s, subs: map[uint64]struct{}{}}
}

// write applies fn to the tree and queues snapshots for every overlapping subscription.
func (s *Server) write(path string, fn func(t *remote.Tree)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn(s.tree)
	for _, sub := range s.subs {
		if !remote.Overlaps(path, sub.path) {
			continue
		}
		s.pushLocked(sub)
	}
}

func (s *Server) pushLocked(sub *subscription) {
	val, _ := s.tree.Get(sub.path)
	snap, err := remote.NewSnapshot(sub.path, val)
	if err != nil {
		logger.LogErr(err, "failed to build snapshot", "path", sub.path)
		return
	}
	sub.listener.Push(snap)
}

func (s *Server) read(path string) (remote.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	val, _ := s.tree.Get(path)
	return remote.NewSnapshot(path, val)
}

func (s *Server) subscribe(path string, fn func(remote.Snapshot)) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	sub := &subscription{path: path, listener: remote.NewListener(fn)}
	s.subs[s.nextID] = sub
	s.pushLocked(sub)
	return s.nextID
}

func (s *Server) unsubscribe(id uint64) {
	s.mu.Lock()
	sub, ok := s.subs[id]
	delete(s.subs, id)
	s.mu.Unlock()
	if ok {
		sub.listener.Stop()
	}
}

// Conn is one client's handle on a Server. It implements remote.Store.
type Conn struct {
	srv          *Server
	mu           sync.Mutex
	subs         map[uint64]struct{}
	onDisconnect []string
	closed       bool
}

func (c *Conn) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return remote.ErrClosed
	}
	return nil
}

func (c *Conn) Read(ctx context.Context, path string) (remote.Snapshot, error) {
	if err := c.checkOpen(); err != nil {
		return remote.Snapshot{}, err
	}
	return c.srv.read(path)
}

func (c *Conn) Set(ctx context.Context, path string, value any) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	g, err := remote.Generic(value)
	if err != nil {
		return err
	}
	c.srv.write(path, func(t *remote.Tree) { t.Set(path, g) })
	return nil
}

func (c *Conn) Update(ctx context.Context, path string, partial map[string]any) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	generic := make(map[string]any, len(partial))
	for k, v := range partial {
		g, err := remote.Generic(v)
		if err != nil {
			return err
		}
		generic[k] = g
	}
	c.srv.write(path, func(t *remote.Tree) { t.Update(path, generic) })
	return nil
}

func (c *Conn) Subscribe(ctx context.Context, path string, onChange func(remote.Snapshot)) (func(), error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	id := c.srv.subscribe(path, onChange)

	c.mu.Lock()
	c.subs[id] = struct{}{}
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
			c.srv.unsubscribe(id)
		})
	}, nil
}

func (c *Conn) OnDisconnectRemove(ctx context.Context, path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return remote.ErrClosed
	}
	c.onDisconnect = append(c.onDisconnect, path)
	return nil
}

// Close drops this client's subscriptions and runs its onDisconnect removals.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	paths := c.onDisconnect
	subs := c.subs
	c.onDisconnect, c.subs = nil, nil
	c.mu.Unlock()

	for id := range subs {
		c.srv.unsubscribe(id)
	}
	for _, p := range paths {
		c.srv.write(p, func(t *remote.Tree) { t.Set(p, nil) })
		logger.Debug("onDisconnect removal", "path", p)
	}
	return nil
}
