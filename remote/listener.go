package remote

import "sync"

// Listener delivers snapshots to a callback on its own goroutine, in the order they were pushed.
// Store implementations push while holding their locks and never call user code directly,
// so a callback is free to write back to the store.
type Listener struct {
	fn    func(Snapshot)
	mu    sync.Mutex
	queue []Snapshot
	wake  chan struct{}
	done  chan struct{}
	once  sync.Once
}

// NewListener starts the delivery goroutine.
func NewListener(fn func(Snapshot)) *Listener {
	l := &Listener{
		fn:   fn,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go l.run()
	return l
}

// Push queues a snapshot for delivery. It never blocks.
func (l *Listener) Push(snap Snapshot) {
	l.mu.Lock()
	l.queue = append(l.queue, snap)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Stop ends delivery. Snapshots still queued are dropped.
func (l *Listener) Stop() {
	l.once.Do(func() { close(l.done) })
}

func (l *Listener) stopped() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

func (l *Listener) run() {
	for {
		select {
		case <-l.done:
			return
		case <-l.wake:
		}

		for {
			l.mu.Lock()
			if len(l.queue) == 0 {
				l.mu.Unlock()
				break
			}
			snap := l.queue[0]
			l.queue = l.queue[1:]
			l.mu.Unlock()

			if l.stopped() {
				return
			}
			l.fn(snap)
		}
	}
}
