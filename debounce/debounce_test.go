package debounce_test

import (
	"sync/atomic"
	"testing"
	"time"

	"homenotes/debounce"
)

func TestTriggerCoalesces(t *testing.T) {
	var n atomic.Int32
	d := debounce.New(40*time.Millisecond, func() { n.Add(1) })

	for i := 0; i < 5; i++ {
		d.Trigger()
		time.Sleep(10 * time.Millisecond)
	}
	if n.Load() != 0 {
		t.Fatal("fired before the quiet period elapsed")
	}
	time.Sleep(100 * time.Millisecond)
	if got := n.Load(); got != 1 {
		t.Errorf("expected 1 run, got %d", got)
	}
}

func TestCancelAndFlush(t *testing.T) {
	var n atomic.Int32
	d := debounce.New(30*time.Millisecond, func() { n.Add(1) })

	d.Trigger()
	if !d.Cancel() {
		t.Fatal("expected a pending run to cancel")
	}
	time.Sleep(60 * time.Millisecond)
	if n.Load() != 0 {
		t.Fatal("cancelled run fired")
	}

	d.Trigger()
	if !d.Flush() {
		t.Fatal("expected flush to run the pending action")
	}
	if n.Load() != 1 {
		t.Fatalf("expected 1 run after flush, got %d", n.Load())
	}
	time.Sleep(60 * time.Millisecond)
	if n.Load() != 1 {
		t.Error("flushed action ran a second time")
	}
}

func TestKeyedIsolatesKeys(t *testing.T) {
	var a, b atomic.Int32
	k := debounce.NewKeyed(30*time.Millisecond, func(key string) {
		if key == "a" {
			a.Add(1)
		} else {
			b.Add(1)
		}
	})

	k.Trigger("a")
	k.Trigger("b")
	k.Cancel("b")
	time.Sleep(80 * time.Millisecond)

	if a.Load() != 1 || b.Load() != 0 {
		t.Errorf("unexpected runs: a=%d b=%d", a.Load(), b.Load())
	}
}
