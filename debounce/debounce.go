// Package debounce delays an action until calls to it stop arriving.
package debounce

import (
	"sync"
	"time"
)

// Debouncer runs fn once, delay after the last Trigger.
type Debouncer struct {
	delay time.Duration
	fn    func()

	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
}

func New(delay time.Duration, fn func()) *Debouncer {
	return &Debouncer{delay: delay, fn: fn}
}

// Trigger (re)starts the countdown.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		if gen != d.gen || d.timer == nil {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()
		d.fn()
	})
}

// Cancel drops a pending run. It reports whether one was pending.
func (d *Debouncer) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer == nil {
		return false
	}
	d.timer.Stop()
	d.timer = nil
	d.gen++
	return true
}

// Flush runs a pending action now, on the caller's goroutine.
func (d *Debouncer) Flush() bool {
	if !d.Cancel() {
		return false
	}
	d.fn()
	return true
}

func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Keyed keeps one Debouncer per key, e.g. per edited field.
type Keyed struct {
	delay time.Duration
	fn    func(key string)

	mu   sync.Mutex
	byID map[string]*Debouncer
}

func NewKeyed(delay time.Duration, fn func(key string)) *Keyed {
	return &Keyed{delay: delay, fn: fn, byID: map[string]*Debouncer{}}
}

func (k *Keyed) Trigger(key string) {
	k.mu.Lock()
	d, ok := k.byID[key]
	if !ok {
		d = New(k.delay, func() { k.fn(key) })
		k.byID[key] = d
	}
	k.mu.Unlock()
	d.Trigger()
}

func (k *Keyed) Cancel(key string) {
	k.mu.Lock()
	d := k.byID[key]
	k.mu.Unlock()
	if d != nil {
		d.Cancel()
	}
}

// CancelAll drops every pending run.
func (k *Keyed) CancelAll() {
	k.mu.Lock()
	ds := make([]*Debouncer, 0, len(k.byID))
	for _, d := range k.byID {
		ds = append(ds, d)
	}
	k.byID = map[string]*Debouncer{}
	k.mu.Unlock()
	for _, d := range ds {
		d.Cancel()
	}
}

// FlushAll runs every pending action now.
func (k *Keyed) FlushAll() {
	k.mu.Lock()
	ds := make([]*Debouncer, 0, len(k.byID))
	for _, d := range k.byID {
		ds = append(ds, d)
	}
	k.mu.Unlock()
	for _, d := range ds {
		d.Flush()
	}
}
