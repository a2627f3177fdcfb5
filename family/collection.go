// Package family syncs the household's shared collections (photos, photo groups,
// recipes) and the weekly meal plan.
package family

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"

	"homenotes/auth"
	"homenotes/localcache"
	"homenotes/models"
	"homenotes/remote"
	"homenotes/state"

	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/serr"
)

// EventFamilyChanged is emitted with the collection name when its items change.
const EventFamilyChanged = "family-changed"

type collectionDoc[T any] struct {
	Items     []T    `json:"items"`
	UpdatedAt int64  `json:"updatedAt"`
	UpdatedBy string `json:"updatedBy,omitempty"`
}

// UnionMerge keeps every remote item in order and appends local items the remote lacks.
func UnionMerge[T models.Identifiable](remoteItems, localItems []T) []T {
	out := make([]T, 0, len(remoteItems)+len(localItems))
	seen := make(map[string]struct{}, len(remoteItems))
	for _, it := range remoteItems {
		seen[it.GetID()] = struct{}{}
		out = append(out, it)
	}
	for _, it := range localItems {
		if _, ok := seen[it.GetID()]; ok {
			continue
		}
		seen[it.GetID()] = struct{}{}
		out = append(out, it)
	}
	return out
}

// Collection is a shared list of records stored as one remote document.
type Collection[T models.Identifiable] struct {
	name     string
	path     string
	cacheKey string
	durable  localcache.Cache
	store    remote.Store
	auth     auth.Provider
	bus      *state.Bus

	mu    sync.Mutex
	items []T
	unsub func()
}

func NewCollection[T models.Identifiable](name, path, cacheKey string, caches *localcache.Caches,
	store remote.Store, p auth.Provider, bus *state.Bus) *Collection[T] {
	return &Collection[T]{
		name:     name,
		path:     path,
		cacheKey: cacheKey,
		durable:  caches.Durable,
		store:    store,
		auth:     p,
		bus:      bus,
		items:    []T{},
	}
}

// NewPhotos, NewPhotoGroups and NewRecipes bind the household collections to their paths.
func NewPhotos(caches *localcache.Caches, store remote.Store, p auth.Provider, bus *state.Bus) *Collection[models.Photo] {
	return NewCollection[models.Photo]("photos", remote.PhotosPath, localcache.KeyFamilyPhotos, caches, store, p, bus)
}

func NewPhotoGroups(caches *localcache.Caches, store remote.Store, p auth.Provider, bus *state.Bus) *Collection[models.PhotoGroup] {
	return NewCollection[models.PhotoGroup]("groups", remote.PhotoGroupsPath, localcache.KeyFamilyGroups, caches, store, p, bus)
}

func NewRecipes(caches *localcache.Caches, store remote.Store, p auth.Provider, bus *state.Bus) *Collection[models.Recipe] {
	return NewCollection[models.Recipe]("recipes", remote.RecipesPath, localcache.KeyRecipes, caches, store, p, bus)
}

func (c *Collection[T]) Items() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]T{}, c.items...)
}

func (c *Collection[T]) remoteEnabled() bool {
	_, ok := auth.RemoteUser(c.auth)
	return ok && c.store != nil
}

// Load shows cached items first, then merges in the remote document.
func (c *Collection[T]) Load(ctx context.Context) ([]T, error) {
	var local []T
	if _, err := localcache.GetJSON(c.durable, c.cacheKey, &local); err != nil {
		logger.LogErr(err, "failed to read cached collection", "collection", c.name)
	}
	c.set(local)
	if !c.remoteEnabled() {
		return c.Items(), nil
	}

	var doc collectionDoc[T]
	if _, err := remote.ReadInto(ctx, c.store, c.path, &doc); err != nil {
		logger.LogErr(err, "failed to read collection, using cache", "collection", c.name)
		return c.Items(), nil
	}

	if len(doc.Items) == 0 && len(local) > 0 {
		logger.Info("Seeding empty remote collection from cache", "collection", c.name, "count", len(local))
		c.pushRemote(ctx, local)
		return c.Items(), nil
	}

	merged := UnionMerge(doc.Items, local)
	c.set(merged)
	c.cache(merged)
	return merged, nil
}

// Save replaces the collection, caching first. Remote failures are logged only.
func (c *Collection[T]) Save(ctx context.Context, items []T) error {
	c.set(items)
	if err := c.cache(items); err != nil {
		return err
	}
	c.pushRemote(ctx, items)
	c.bus.Emit(EventFamilyChanged, c.name)
	return nil
}

// Add appends item, or replaces the record with the same id.
func (c *Collection[T]) Add(ctx context.Context, item T) error {
	items := c.Items()
	replaced := false
	for i := range items {
		if items[i].GetID() == item.GetID() {
			items[i] = item
			replaced = true
		}
	}
	if !replaced {
		items = append(items, item)
	}
	return c.Save(ctx, items)
}

// Remove drops the record with id.
func (c *Collection[T]) Remove(ctx context.Context, id string) error {
	items := c.Items()
	kept := items[:0]
	for _, it := range items {
		if it.GetID() != id {
			kept = append(kept, it)
		}
	}
	return c.Save(ctx, kept)
}

func (c *Collection[T]) set(items []T) {
	if items == nil {
		items = []T{}
	}
	c.mu.Lock()
	c.items = append([]T{}, items...)
	c.mu.Unlock()
}

func (c *Collection[T]) cache(items []T) error {
	if err := localcache.SetJSON(c.durable, c.cacheKey, items); err != nil {
		return serr.Wrap(err, "failed to cache "+c.name)
	}
	return nil
}

func (c *Collection[T]) pushRemote(ctx context.Context, items []T) {
	if !c.remoteEnabled() {
		return
	}
	u, _ := auth.RemoteUser(c.auth)
	doc := collectionDoc[T]{Items: items, UpdatedAt: models.NowMillis(), UpdatedBy: u.UID}
	if err := c.store.Set(ctx, c.path, doc); err != nil {
		logger.LogErr(err, "failed to save collection remotely", "collection", c.name)
	}
}

// Subscribe adopts the remote items whenever they differ from the local ones.
func (c *Collection[T]) Subscribe(ctx context.Context) error {
	if !c.remoteEnabled() {
		return nil
	}
	c.mu.Lock()
	already := c.unsub != nil
	c.mu.Unlock()
	if already {
		return nil
	}

	unsub, err := c.store.Subscribe(ctx, c.path, func(snap remote.Snapshot) {
		if !snap.Exists {
			return
		}
		var doc collectionDoc[T]
		if err := snap.Decode(&doc); err != nil {
			logger.LogErr(err, "failed to decode collection", "collection", c.name)
			return
		}
		if doc.Items == nil {
			doc.Items = []T{}
		}
		if sameJSON(doc.Items, c.Items()) {
			return
		}
		c.set(doc.Items)
		_ = c.cache(doc.Items)
		c.bus.Emit(EventFamilyChanged, c.name)
	})
	if err != nil {
		return serr.Wrap(err, "failed to subscribe to "+c.name)
	}
	c.mu.Lock()
	c.unsub = unsub
	c.mu.Unlock()
	return nil
}

func (c *Collection[T]) Close() {
	c.mu.Lock()
	unsub := c.unsub
	c.unsub = nil
	c.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

func sameJSON(a, b any) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	return errA == nil && errB == nil && bytes.Equal(ja, jb)
}
