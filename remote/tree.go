package remote

import (
	"encoding/json"

	"github.com/rohanthewiz/serr"
)

// Tree is a generic JSON document tree: maps, slices, strings, float64s, bools.
// It is not safe for concurrent use; owners guard it with their own lock.
type Tree struct {
	root map[string]any
}

func NewTree() *Tree {
	return &Tree{root: map[string]any{}}
}

// TreeFrom wraps an existing decoded document.
func TreeFrom(root map[string]any) *Tree {
	if root == nil {
		root = map[string]any{}
	}
	return &Tree{root: root}
}

// Root exposes the underlying map; callers must not keep it past their lock.
func (t *Tree) Root() map[string]any { return t.root }

// Generic converts any JSON-encodable value into the tree's generic form.
func Generic(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, serr.Wrap(err, "failed to encode value")
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, serr.Wrap(err, "failed to decode value")
	}
	return out, nil
}

// Get returns the value at path; the root path returns the whole tree.
func (t *Tree) Get(path string) (any, bool) {
	var cur any = t.root
	for _, seg := range SplitPath(path) {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	if m, ok := cur.(map[string]any); ok && len(m) == 0 {
		return nil, false
	}
	return cur, true
}

// Set stores an already generic value at path. A nil value deletes and prunes empty parents.
func (t *Tree) Set(path string, value any) {
	segs := SplitPath(path)
	if len(segs) == 0 {
		if m, ok := value.(map[string]any); ok {
			t.root = m
		} else {
			t.root = map[string]any{}
		}
		return
	}
	if value == nil {
		t.remove(t.root, segs)
		return
	}

	cur := t.root
	for _, seg := range segs[:len(segs)-1] {
		next, ok := cur[seg].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[seg] = next
		}
		cur = next
	}
	cur[segs[len(segs)-1]] = value
}

// remove deletes segs below m and reports whether m became empty.
func (t *Tree) remove(m map[string]any, segs []string) bool {
	if len(segs) == 1 {
		delete(m, segs[0])
		return len(m) == 0
	}
	child, ok := m[segs[0]].(map[string]any)
	if !ok {
		return len(m) == 0
	}
	if t.remove(child, segs[1:]) {
		delete(m, segs[0])
	}
	return len(m) == 0
}

// Update applies each entry of partial relative to path.
// Values must already be generic (see Generic).
func (t *Tree) Update(path string, partial map[string]any) {
	for key, v := range partial {
		t.Set(JoinPath(path, key), v)
	}
}

// Clone deep-copies the tree through a JSON round trip.
func (t *Tree) Clone() (*Tree, error) {
	g, err := Generic(t.root)
	if err != nil {
		return nil, err
	}
	m, _ := g.(map[string]any)
	return TreeFrom(m), nil
}
