package cache

import (
	"sync"
	"time"
)

// ThrottleEntry records the last send for a throttle key. Entries self-expire
// after their window of inactivity.
type ThrottleEntry struct {
	LastFiredAt time.Time
	Window      time.Duration
}

// Throttle enforces a minimum interval between repeated sends of the same
// notification type to the same recipient.
type Throttle struct {
	mu      sync.Mutex
	entries map[string]*ThrottleEntry

	stop chan struct{}
	done chan struct{}
}

// NewThrottle returns an empty throttle table.
func NewThrottle() *Throttle {
	return &Throttle{entries: make(map[string]*ThrottleEntry)}
}

// Allow reports whether a send for key may fire now. A true result refreshes
// the entry, so the next window starts at this send.
func (t *Throttle) Allow(key string, window time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	if e, ok := t.entries[key]; ok && now.Sub(e.LastFiredAt) < e.Window {
		return false
	}
	t.entries[key] = &ThrottleEntry{LastFiredAt: now, Window: window}
	return true
}

// StartSweeper periodically drops entries older than their window.
func (t *Throttle) StartSweeper(interval time.Duration) {
	if t.stop != nil {
		return
	}
	t.stop = make(chan struct{})
	t.done = make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		defer close(t.done)
		for {
			select {
			case <-ticker.C:
				t.sweep()
			case <-t.stop:
				return
			}
		}
	}()
}

// Stop halts the sweeper, if running.
func (t *Throttle) Stop() {
	if t.stop == nil {
		return
	}
	close(t.stop)
	<-t.done
	t.stop = nil
	t.done = nil
}

func (t *Throttle) sweep() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	for key, e := range t.entries {
		if now.Sub(e.LastFiredAt) >= e.Window {
			delete(t.entries, key)
		}
	}
}
