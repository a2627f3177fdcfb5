// Package remotetest holds the behaviour every remote.Store implementation must share.
package remotetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"homenotes/remote"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns two clients of one backing store plus a cleanup func.
// Closing a client must trigger its onDisconnect removals.
type Factory func(t *testing.T) (a, b remote.Store, cleanup func())

const waitFor = 3 * time.Second

// Recorder collects snapshots delivered to a subscription.
type Recorder struct {
	mu    sync.Mutex
	snaps []remote.Snapshot
}

func (r *Recorder) On(s remote.Snapshot) {
	r.mu.Lock()
	r.snaps = append(r.snaps, s)
	r.mu.Unlock()
}

func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func (r *Recorder) Last() remote.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snaps) == 0 {
		return remote.Snapshot{}
	}
	return r.snaps[len(r.snaps)-1]
}

// Run exercises the full store contract.
func Run(t *testing.T, newStores Factory) {
	t.Run("ReadMissing", func(t *testing.T) {
		a, _, cleanup := newStores(t)
		defer cleanup()

		snap, err := a.Read(context.Background(), "users/nobody")
		require.NoError(t, err)
		assert.False(t, snap.Exists)
	})

	t.Run("SetReadDelete", func(t *testing.T) {
		a, b, cleanup := newStores(t)
		defer cleanup()
		ctx := context.Background()

		require.NoError(t, a.Set(ctx, "users/u1", map[string]any{"name": "Ann", "notes": []any{}}))

		var doc struct {
			Name string `json:"name"`
		}
		ok, err := remote.ReadInto(ctx, b, "users/u1", &doc)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "Ann", doc.Name)

		var name string
		ok, err = remote.ReadInto(ctx, b, "users/u1/name", &name)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "Ann", name)

		require.NoError(t, remote.Remove(ctx, a, "users/u1"))
		snap, err := b.Read(ctx, "users/u1")
		require.NoError(t, err)
		assert.False(t, snap.Exists)
	})

	t.Run("UpdateMergesNestedKeys", func(t *testing.T) {
		a, _, cleanup := newStores(t)
		defer cleanup()
		ctx := context.Background()

		require.NoError(t, a.Set(ctx, "sharedNotes/s1", map[string]any{"title": "T", "content": "C"}))
		require.NoError(t, a.Update(ctx, "sharedNotes/s1", map[string]any{
			"title":               "T2",
			"activeUsers/u1/name": "Ann",
		}))

		var doc struct {
			Title       string                    `json:"title"`
			Content     string                    `json:"content"`
			ActiveUsers map[string]map[string]any `json:"activeUsers"`
		}
		ok, err := remote.ReadInto(ctx, a, "sharedNotes/s1", &doc)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "T2", doc.Title)
		assert.Equal(t, "C", doc.Content)
		assert.Equal(t, "Ann", doc.ActiveUsers["u1"]["name"])
	})

	t.Run("SubscribeSeesInitialAndLaterWrites", func(t *testing.T) {
		a, b, cleanup := newStores(t)
		defer cleanup()
		ctx := context.Background()

		require.NoError(t, a.Set(ctx, "sharedNotes/s1", map[string]any{"title": "one"}))

		rec := &Recorder{}
		unsub, err := b.Subscribe(ctx, "sharedNotes/s1", rec.On)
		require.NoError(t, err)
		defer unsub()

		require.Eventually(t, func() bool { return rec.Len() >= 1 }, waitFor, 10*time.Millisecond)

		// A nested write is a change to the subscribed document
		require.NoError(t, a.Set(ctx, "sharedNotes/s1/title", "two"))
		require.Eventually(t, func() bool {
			var doc struct {
				Title string `json:"title"`
			}
			last := rec.Last()
			return last.Exists && last.Decode(&doc) == nil && doc.Title == "two"
		}, waitFor, 10*time.Millisecond)

		// Writes elsewhere are not delivered
		n := rec.Len()
		require.NoError(t, a.Set(ctx, "sharedNotes/other", map[string]any{"title": "x"}))
		time.Sleep(200 * time.Millisecond)
		assert.Equal(t, n, rec.Len())
	})

	t.Run("UnsubscribeStopsDelivery", func(t *testing.T) {
		a, b, cleanup := newStores(t)
		defer cleanup()
		ctx := context.Background()

		rec := &Recorder{}
		unsub, err := b.Subscribe(ctx, "sharedNotes/s2", rec.On)
		require.NoError(t, err)
		require.Eventually(t, func() bool { return rec.Len() >= 1 }, waitFor, 10*time.Millisecond)

		unsub()
		n := rec.Len()
		require.NoError(t, a.Set(ctx, "sharedNotes/s2", map[string]any{"title": "after"}))
		time.Sleep(200 * time.Millisecond)
		assert.Equal(t, n, rec.Len())
	})

	t.Run("OnDisconnectRemove", func(t *testing.T) {
		a, b, cleanup := newStores(t)
		defer cleanup()
		ctx := context.Background()

		require.NoError(t, a.Set(ctx, "sharedNotes/s3", map[string]any{"title": "T"}))
		presence := remote.PresencePath("s3", "u1")
		require.NoError(t, a.Set(ctx, presence, map[string]any{"name": "Ann", "status": "editing"}))
		require.NoError(t, a.OnDisconnectRemove(ctx, presence))

		require.NoError(t, a.Close())

		require.Eventually(t, func() bool {
			snap, err := b.Read(ctx, presence)
			return err == nil && !snap.Exists
		}, waitFor, 20*time.Millisecond)

		snap, err := b.Read(ctx, "sharedNotes/s3/title")
		require.NoError(t, err)
		assert.True(t, snap.Exists, "the rest of the document must survive")
	})
}
