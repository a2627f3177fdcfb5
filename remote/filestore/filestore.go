// Package filestore keeps remote documents as msgpack files in a shared directory.
//
// Each top-level document (collection/doc) is one file, e.g. sharedNotes/abc.msgpack.
// Deeper paths address fields inside that document. Several processes may point at the
// same directory, such as a synced folder or a network share; changes made by any of them
// reach subscribers through fsnotify.
package filestore

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"homenotes/remote"

	"github.com/fsnotify/fsnotify"
	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/serr"
	"github.com/vmihailenco/msgpack/v5"
)

const docExt = ".msgpack"

type Store struct {
	dir     string
	mu      sync.Mutex // serializes read-modify-write of documents within this process
	watcher *fsnotify.Watcher
	watched map[string]bool

	subMu        sync.Mutex
	subs         map[uint64]*subscription
	nextID       uint64
	onDisconnect []string
	closed       bool
	done         chan struct{}
}

type subscription struct {
	path     string
	listener *remote.Listener
	lastRaw  []byte
	exists   bool
	primed   bool
}

// Open uses dir as the store root, creating it if needed.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, serr.Wrap(err, "failed to create store directory")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, serr.Wrap(err, "failed to create watcher")
	}
	s := &Store{
		dir:     dir,
		watcher: w,
		watched: map[string]bool{},
		subs:    map[uint64]*subscription{},
		done:    make(chan struct{}),
	}
	go s.watch()
	logger.Info("File store opened", "dir", dir)
	return s, nil
}

// docOf splits a path into its document key (collection/doc) and the field path inside it.
func docOf(path string) (collection, doc, field string, err error) {
	segs := remote.SplitPath(path)
	switch len(segs) {
	case 0:
		return "", "", "", serr.New("empty path")
	case 1:
		return segs[0], "", "", nil
	}
	return segs[0], segs[1], strings.Join(segs[2:], "/"), nil
}

func (s *Store) docFile(collection, doc string) string {
	return filepath.Join(s.dir, collection, doc+docExt)
}

func (s *Store) loadDoc(collection, doc string) (*remote.Tree, error) {
	data, err := os.ReadFile(s.docFile(collection, doc))
	if os.IsNotExist(err) {
		return remote.NewTree(), nil
	}
	if err != nil {
		return nil, serr.Wrap(err, "failed to read document")
	}
	var root map[string]any
	if err := msgpack.Unmarshal(data, &root); err != nil {
		return nil, serr.Wrap(err, "failed to decode document")
	}
	return remote.TreeFrom(root), nil
}

// saveDoc writes atomically via a temp file and rename; an empty document deletes the file.
func (s *Store) saveDoc(collection, doc string, t *remote.Tree) error {
	file := s.docFile(collection, doc)
	if len(t.Root()) == 0 {
		if err := os.Remove(file); err != nil && !os.IsNotExist(err) {
			return serr.Wrap(err, "failed to delete document")
		}
		return nil
	}
	data, err := msgpack.Marshal(t.Root())
	if err != nil {
		return serr.Wrap(err, "failed to encode document")
	}
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return serr.Wrap(err, "failed to create collection directory")
	}
	tmp := file + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return serr.Wrap(err, "failed to write document")
	}
	if err := os.Rename(tmp, file); err != nil {
		return serr.Wrap(err, "failed to replace document")
	}
	return nil
}

// readValue returns the generic value at path; a bare collection path yields a map of its documents.
func (s *Store) readValue(path string) (any, error) {
	collection, doc, field, err := docOf(path)
	if err != nil {
		return nil, err
	}
	if doc == "" {
		return s.readCollection(collection)
	}
	t, err := s.loadDoc(collection, doc)
	if err != nil {
		return nil, err
	}
	val, _ := t.Get(field)
	return val, nil
}

func (s *Store) readCollection(collection string) (any, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, collection))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, serr.Wrap(err, "failed to list collection")
	}
	out := map[string]any{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, docExt) {
			continue
		}
		doc := strings.TrimSuffix(name, docExt)
		t, err := s.loadDoc(collection, doc)
		if err != nil {
			logger.LogErr(err, "skipping unreadable document", "collection", collection, "doc", doc)
			continue
		}
		if len(t.Root()) > 0 {
			out[doc] = t.Root()
		}
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func (s *Store) Read(ctx context.Context, path string) (remote.Snapshot, error) {
	if s.isClosed() {
		return remote.Snapshot{}, remote.ErrClosed
	}
	s.mu.Lock()
	val, err := s.readValue(path)
	s.mu.Unlock()
	if err != nil {
		return remote.Snapshot{}, err
	}
	return remote.NewSnapshot(path, val)
}

// mutate applies fn to the document holding path, then notifies local subscribers.
func (s *Store) mutate(path string, fn func(t *remote.Tree, field string)) error {
	if s.isClosed() {
		return remote.ErrClosed
	}
	collection, doc, field, err := docOf(path)
	if err != nil {
		return err
	}
	if doc == "" {
		return serr.New("cannot write a whole collection: " + path)
	}

	s.mu.Lock()
	t, err := s.loadDoc(collection, doc)
	if err == nil {
		fn(t, field)
		err = s.saveDoc(collection, doc, t)
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.notify(collection + "/" + doc)
	return nil
}

func (s *Store) Set(ctx context.Context, path string, value any) error {
	g, err := remote.Generic(value)
	if err != nil {
		return err
	}
	return s.mutate(path, func(t *remote.Tree, field string) { t.Set(field, g) })
}

func (s *Store) Update(ctx context.Context, path string, partial map[string]any) error {
	generic := make(map[string]any, len(partial))
	for k, v := range partial {
		g, err := remote.Generic(v)
		if err != nil {
			return err
		}
		generic[k] = g
	}
	return s.mutate(path, func(t *remote.Tree, field string) { t.Update(field, generic) })
}

func (s *Store) Subscribe(ctx context.Context, path string, onChange func(remote.Snapshot)) (func(), error) {
	if s.isClosed() {
		return nil, remote.ErrClosed
	}
	collection, _, _, err := docOf(path)
	if err != nil {
		return nil, err
	}
	if err := s.watchCollection(collection); err != nil {
		return nil, err
	}

	s.subMu.Lock()
	s.nextID++
	id := s.nextID
	sub := &subscription{path: path, listener: remote.NewListener(onChange)}
	s.subs[id] = sub
	s.subMu.Unlock()

	s.refresh(sub)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
			sub.listener.Stop()
		})
	}, nil
}

func (s *Store) watchCollection(collection string) error {
	dir := filepath.Join(s.dir, collection)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return serr.Wrap(err, "failed to create collection directory")
	}
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if s.watched[dir] {
		return nil
	}
	if err := s.watcher.Add(dir); err != nil {
		return serr.Wrap(err, "failed to watch collection")
	}
	s.watched[dir] = true
	return nil
}

// notify re-reads every subscription overlapping docPath and pushes the ones that changed.
func (s *Store) notify(docPath string) {
	s.subMu.Lock()
	var affected []*subscription
	for _, sub := range s.subs {
		if remote.Overlaps(docPath, sub.path) {
			affected = append(affected, sub)
		}
	}
	s.subMu.Unlock()

	for _, sub := range affected {
		s.refresh(sub)
	}
}

func (s *Store) refresh(sub *subscription) {
	// Holding mu across read and push keeps concurrent refreshes from delivering out of order
	s.mu.Lock()
	defer s.mu.Unlock()

	val, err := s.readValue(sub.path)
	if err != nil {
		logger.LogErr(err, "failed to refresh subscription", "path", sub.path)
		return
	}
	snap, err := remote.NewSnapshot(sub.path, val)
	if err != nil {
		logger.LogErr(err, "failed to build snapshot", "path", sub.path)
		return
	}

	// fsnotify reports several events per write; deliver each distinct value once
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if sub.primed && sub.exists == snap.Exists && bytes.Equal(sub.lastRaw, snap.Raw) {
		return
	}
	sub.primed, sub.exists, sub.lastRaw = true, snap.Exists, snap.Raw
	sub.listener.Push(snap)
}

func (s *Store) watch() {
	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			name := filepath.Base(ev.Name)
			if !strings.HasSuffix(name, docExt) {
				continue
			}
			collection := filepath.Base(filepath.Dir(ev.Name))
			s.notify(collection + "/" + strings.TrimSuffix(name, docExt))
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			logger.LogErr(err, "file store watcher error")
		}
	}
}

// OnDisconnectRemove is honoured on Close. A crashed process leaves its entries behind;
// presence readers already ignore stale entries.
func (s *Store) OnDisconnectRemove(ctx context.Context, path string) error {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if s.closed {
		return remote.ErrClosed
	}
	s.onDisconnect = append(s.onDisconnect, path)
	return nil
}

func (s *Store) isClosed() bool {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return s.closed
}

func (s *Store) Close() error {
	s.subMu.Lock()
	paths := s.onDisconnect
	s.onDisconnect = nil
	s.subMu.Unlock()

	for _, p := range paths {
		if err := s.Set(context.Background(), p, nil); err != nil {
			logger.LogErr(err, "onDisconnect removal failed", "path", p)
		}
	}

	s.subMu.Lock()
	if s.closed {
		s.subMu.Unlock()
		return nil
	}
	s.closed = true
	for id, sub := range s.subs {
		sub.listener.Stop()
		delete(s.subs, id)
	}
	s.subMu.Unlock()

	close(s.done)
	return s.watcher.Close()
}
