package remotetest

import (
	"context"
	"errors"
	"sync"
	"time"

	"homenotes/remote"
)

// ErrInjected is returned by a Faulty store while it is failing.
var ErrInjected = errors.New("injected remote failure")

// Faulty wraps a Store, records writes, and can be told to fail them.
type Faulty struct {
	remote.Store

	mu        sync.Mutex
	failReads bool
	failWrite bool
	setDelay  time.Duration
	writes    []Write
}

// Write is one recorded Set or Update call.
type Write struct {
	Op    string // set | update
	Path  string
	Value any
}

func NewFaulty(s remote.Store) *Faulty {
	return &Faulty{Store: s}
}

func (f *Faulty) FailReads(on bool) {
	f.mu.Lock()
	f.failReads = on
	f.mu.Unlock()
}

func (f *Faulty) FailWrites(on bool) {
	f.mu.Lock()
	f.failWrite = on
	f.mu.Unlock()
}

// DelayNextSet holds back the next Set by d before it reaches the store.
func (f *Faulty) DelayNextSet(d time.Duration) {
	f.mu.Lock()
	f.setDelay = d
	f.mu.Unlock()
}

// Writes returns the writes attempted so far, including failed ones.
func (f *Faulty) Writes() []Write {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Write{}, f.writes...)
}

// WritesTo filters Writes by path.
func (f *Faulty) WritesTo(path string) []Write {
	var out []Write
	for _, w := range f.Writes() {
		if w.Path == path {
			out = append(out, w)
		}
	}
	return out
}

func (f *Faulty) record(op, path string, v any) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, Write{Op: op, Path: path, Value: v})
	return f.failWrite
}

func (f *Faulty) Read(ctx context.Context, path string) (remote.Snapshot, error) {
	f.mu.Lock()
	fail := f.failReads
	f.mu.Unlock()
	if fail {
		return remote.Snapshot{}, ErrInjected
	}
	return f.Store.Read(ctx, path)
}

func (f *Faulty) Set(ctx context.Context, path string, value any) error {
	if f.record("set", path, value) {
		return ErrInjected
	}
	f.mu.Lock()
	delay := f.setDelay
	f.setDelay = 0
	f.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.Store.Set(ctx, path, value)
}

func (f *Faulty) Update(ctx context.Context, path string, partial map[string]any) error {
	if f.record("update", path, partial) {
		return ErrInjected
	}
	return f.Store.Update(ctx, path, partial)
}
