package locks

import (
	"fmt"
	"sync"
	"time"
)

// ErrContention is returned by TryAcquire when another holder owns the key.
// It carries the key so callers can decide their own retry policy.
type ErrContention struct {
	Key string
}

func (e *ErrContention) Error() string {
	return fmt.Sprintf("operation already in progress for %q", e.Key)
}

// IsContention reports whether err is a lock contention error.
func IsContention(err error) bool {
	_, ok := err.(*ErrContention)
	return ok
}

// Manager is a process-wide named try-lock table. Locks are non-blocking:
// a caller either acquires a key for up to its TTL or is told immediately
// that the key is contended. The TTL is a crash/leak safety net only;
// callers are expected to release on every exit path (use WithLock).
type Manager struct {
	mu   sync.Mutex
	held map[string]time.Time // key -> expiry

	stop chan struct{}
	done chan struct{}
}

// NewManager returns an empty lock table.
func NewManager() *Manager {
	return &Manager{held: make(map[string]time.Time)}
}

// TryAcquire attempts to take exclusive ownership of key for up to ttl.
// It never blocks: if an unexpired holder exists, it returns ErrContention.
func (m *Manager) TryAcquire(key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if exp, ok := m.held[key]; ok && now.Before(exp) {
		return &ErrContention{Key: key}
	}
	m.held[key] = now.Add(ttl)
	return nil
}

// Release frees key. Releasing an unheld or already-expired key is a no-op;
// no owner identity is tracked.
func (m *Manager) Release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.held, key)
}

// WithLock runs fn while holding key. The lock is released on every exit
// path, including a panic inside fn (the panic is re-raised after release).
// On contention fn is not run and ErrContention is returned.
func (m *Manager) WithLock(key string, ttl time.Duration, fn func() error) error {
	if err := m.TryAcquire(key, ttl); err != nil {
		return err
	}
	defer m.Release(key)
	return fn()
}

// StartSweeper launches a background goroutine that drops expired entries
// every interval, so keys abandoned by a crashed holder do not accumulate.
// Correctness does not depend on the cadence; TryAcquire already treats
// expired entries as free.
func (m *Manager) StartSweeper(interval time.Duration) {
	if m.stop != nil {
		return
	}
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		defer close(m.done)
		for {
			select {
			case <-ticker.C:
				m.sweep()
			case <-m.stop:
				return
			}
		}
	}()
}

// Stop halts the sweeper, if running.
func (m *Manager) Stop() {
	if m.stop == nil {
		return
	}
	close(m.stop)
	<-m.done
	m.stop = nil
	m.done = nil
}

func (m *Manager) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for key, exp := range m.held {
		if !now.Before(exp) {
			delete(m.held, key)
		}
	}
}

// Len reports the number of entries in the table, expired or not.
// Exposed for the sweeper's sake in tests and diagnostics.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.held)
}
