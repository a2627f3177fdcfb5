// Package firestoredb maps the remote document tree onto Cloud Firestore.
//
// The first two path segments name a document (collection/doc); deeper segments
// are a field path inside it. A one-segment path reads a whole collection.
// Firestore has no server-side onDisconnect, so registered removals run on Close
// and presence readers rely on the staleness window for crashed clients.
package firestoredb

import (
	"context"
	"sync"
	"time"

	"homenotes/remote"

	"cloud.google.com/go/firestore"
	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/serr"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// scalarField wraps non-object values written at a document root, e.g. usernames/<name> = uid.
const scalarField = "_value"

type Store struct {
	client *firestore.Client

	mu           sync.Mutex
	onDisconnect []string
	cancels      map[uint64]func()
	nextID       uint64
	closed       bool
}

// Open connects to projectID. An empty credentialsFile uses application default credentials
// (or the emulator when FIRESTORE_EMULATOR_HOST is set).
func Open(ctx context.Context, projectID, credentialsFile string) (*Store, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, serr.Wrap(err, "failed to create firestore client")
	}
	logger.Info("Firestore store opened", "project", projectID)
	return New(client), nil
}

func New(client *firestore.Client) *Store {
	return &Store{client: client, cancels: map[uint64]func(){}}
}

func split(path string) (collection, doc string, field []string, err error) {
	segs := remote.SplitPath(path)
	switch len(segs) {
	case 0:
		return "", "", nil, serr.New("empty path")
	case 1:
		return segs[0], "", nil, nil
	}
	return segs[0], segs[1], segs[2:], nil
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// valueAt navigates a document's data to field, unwrapping scalar roots.
func valueAt(data map[string]any, field []string) any {
	if len(field) == 0 {
		if v, ok := data[scalarField]; ok && len(data) == 1 {
			return v
		}
		if len(data) == 0 {
			return nil
		}
		return data
	}
	var cur any = data
	for _, seg := range field {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		if cur, ok = m[seg]; !ok {
			return nil
		}
	}
	return cur
}

// nest places v at field inside m, creating intermediate maps.
func nest(m map[string]any, field []string, v any) {
	for _, seg := range field[:len(field)-1] {
		next, ok := m[seg].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[seg] = next
		}
		m = next
	}
	m[field[len(field)-1]] = v
}

func (s *Store) Read(ctx context.Context, path string) (remote.Snapshot, error) {
	collection, doc, field, err := split(path)
	if err != nil {
		return remote.Snapshot{}, err
	}
	if doc == "" {
		docs, err := s.client.Collection(collection).Documents(ctx).GetAll()
		if err != nil {
			return remote.Snapshot{}, serr.Wrap(err, "failed to read collection")
		}
		return remote.NewSnapshot(path, collectionValue(docs))
	}

	snap, err := s.client.Collection(collection).Doc(doc).Get(ctx)
	if isNotFound(err) {
		return remote.Snapshot{Path: path}, nil
	}
	if err != nil {
		return remote.Snapshot{}, serr.Wrap(err, "failed to read document")
	}
	return remote.NewSnapshot(path, valueAt(snap.Data(), field))
}

func collectionValue(docs []*firestore.DocumentSnapshot) any {
	if len(docs) == 0 {
		return nil
	}
	out := make(map[string]any, len(docs))
	for _, d := range docs {
		out[d.Ref.ID] = valueAt(d.Data(), nil)
	}
	return out
}

func (s *Store) Set(ctx context.Context, path string, value any) error {
	collection, doc, field, err := split(path)
	if err != nil {
		return err
	}
	if doc == "" {
		return serr.New("cannot write a whole collection: " + path)
	}
	g, err := remote.Generic(value)
	if err != nil {
		return err
	}
	ref := s.client.Collection(collection).Doc(doc)

	if len(field) == 0 {
		switch v := g.(type) {
		case nil:
			_, err = ref.Delete(ctx)
		case map[string]any:
			_, err = ref.Set(ctx, v)
		default:
			_, err = ref.Set(ctx, map[string]any{scalarField: v})
		}
		if err != nil {
			return serr.Wrap(err, "failed to set document")
		}
		return nil
	}

	var fieldValue any = g
	if g == nil {
		fieldValue = firestore.Delete
	}
	data := map[string]any{}
	nest(data, field, fieldValue)
	if _, err := ref.Set(ctx, data, firestore.Merge(firestore.FieldPath(field))); err != nil {
		return serr.Wrap(err, "failed to set field")
	}
	return nil
}

func (s *Store) Update(ctx context.Context, path string, partial map[string]any) error {
	collection, doc, field, err := split(path)
	if err != nil {
		return err
	}
	if doc == "" {
		return serr.New("cannot update a whole collection: " + path)
	}

	data := map[string]any{}
	var paths []firestore.FieldPath
	for key, v := range partial {
		full := append(append([]string{}, field...), remote.SplitPath(key)...)
		if len(full) == 0 {
			continue
		}
		g, err := remote.Generic(v)
		if err != nil {
			return err
		}
		if g == nil {
			g = firestore.Delete
		}
		nest(data, full, g)
		paths = append(paths, firestore.FieldPath(full))
	}
	if len(paths) == 0 {
		return nil
	}

	ref := s.client.Collection(collection).Doc(doc)
	if _, err := ref.Set(ctx, data, firestore.Merge(paths...)); err != nil {
		return serr.Wrap(err, "failed to update document")
	}
	return nil
}

func (s *Store) Subscribe(ctx context.Context, path string, onChange func(remote.Snapshot)) (func(), error) {
	collection, doc, field, err := split(path)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, remote.ErrClosed
	}
	s.nextID++
	id := s.nextID
	s.mu.Unlock()

	listenCtx, cancel := context.WithCancel(context.Background())
	l := remote.NewListener(onChange)

	if doc == "" {
		it := s.client.Collection(collection).Snapshots(listenCtx)
		go func() {
			defer it.Stop()
			for {
				qs, err := it.Next()
				if err != nil {
					if listenCtx.Err() == nil {
						logger.LogErr(err, "firestore collection listener stopped", "path", path)
					}
					return
				}
				docs, err := qs.Documents.GetAll()
				if err != nil {
					logger.LogErr(err, "failed to read collection snapshot", "path", path)
					continue
				}
				pushValue(l, path, collectionValue(docs))
			}
		}()
	} else {
		it := s.client.Collection(collection).Doc(doc).Snapshots(listenCtx)
		go func() {
			defer it.Stop()
			for {
				ds, err := it.Next()
				if err != nil {
					if listenCtx.Err() == nil {
						logger.LogErr(err, "firestore document listener stopped", "path", path)
					}
					return
				}
				var val any
				if ds.Exists() {
					val = valueAt(ds.Data(), field)
				}
				pushValue(l, path, val)
			}
		}()
	}

	stop := func() {
		cancel()
		l.Stop()
	}
	s.mu.Lock()
	s.cancels[id] = stop
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.cancels, id)
			s.mu.Unlock()
			stop()
		})
	}, nil
}

func pushValue(l *remote.Listener, path string, val any) {
	snap, err := remote.NewSnapshot(path, val)
	if err != nil {
		logger.LogErr(err, "failed to build snapshot", "path", path)
		return
	}
	l.Push(snap)
}

func (s *Store) OnDisconnectRemove(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return remote.ErrClosed
	}
	s.onDisconnect = append(s.onDisconnect, path)
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	paths := s.onDisconnect
	cancels := s.cancels
	s.onDisconnect, s.cancels = nil, map[uint64]func(){}
	s.mu.Unlock()

	for _, stop := range cancels {
		stop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, p := range paths {
		if err := s.Set(ctx, p, nil); err != nil {
			logger.LogErr(err, "onDisconnect removal failed", "path", p)
		}
	}
	return s.client.Close()
}
