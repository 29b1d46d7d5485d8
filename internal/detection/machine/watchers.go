package machine

import (
	"sync"

	"github.com/oshokin/fall-monitor/internal/domain/fall"
)

// watchers fans committed states out to readers, keeping only the latest per reader.
type watchers struct {
	mu     sync.Mutex
	subs   map[chan fall.State]struct{}
	closed bool
}

// newWatchers creates an empty set.
func newWatchers() *watchers {
	return &watchers{subs: make(map[chan fall.State]struct{})}
}

// add registers a reader primed with current(), read under the same lock that
// publish takes, so a state committed concurrently is either the primed one or
// delivered afterwards.
func (w *watchers) add(current func() fall.State) (<-chan fall.State, func()) {
	ch := make(chan fall.State, 1)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		close(ch)

		return ch, func() {}
	}

	ch <- current()
	w.subs[ch] = struct{}{}

	var once sync.Once

	stop := func() {
		once.Do(func() {
			w.mu.Lock()
			defer w.mu.Unlock()

			if _, ok := w.subs[ch]; ok {
				delete(w.subs, ch)
				close(ch)
			}
		})
	}

	return ch, stop
}

// publish replaces any unread state of every reader with s.
func (w *watchers) publish(s fall.State) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for ch := range w.subs {
		select {
		case <-ch:
		default:
		}

		ch <- s
	}
}

// closeAll closes every reader channel.
func (w *watchers) closeAll() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for ch := range w.subs {
		close(ch)
		delete(w.subs, ch)
	}

	w.closed = true
}
