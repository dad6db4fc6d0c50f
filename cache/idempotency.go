package cache

import (
	"sync"
	"time"

	"educore-backend/locks"
)

// Response is the memoized result of a completed mutating call.
type Response struct {
	Status  int
	Body    []byte
	Headers map[string]string
}

// LookupResult tells the caller what to do with its request.
type LookupResult int

const (
	// Reserved: no prior call with this key; the caller must execute the
	// handler and then Complete (or Abandon on failure).
	Reserved LookupResult = iota
	// Replay: a completed response exists; return it verbatim.
	Replay
	// InFlight: another caller holds the reservation and has not finished.
	InFlight
	// Conflict: the key was already used with a different request body.
	Conflict
)

// IdempotencyRecord is one memoized call. Immutable once completed; a second
// Complete for the same key within the TTL is ignored.
type IdempotencyRecord struct {
	RouteKey    string
	ClientKey   string
	RequestHash string
	Response    *Response
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Idempotency memoizes responses per (routeKey, clientKey) for a fixed
// window. The reservation step is an atomic test-and-set through the lock
// manager, so two concurrent calls bearing the same key can never both
// execute the underlying handler: the loser sees InFlight.
type Idempotency struct {
	mgr *locks.Manager
	ttl time.Duration

	mu      sync.Mutex
	entries map[string]*IdempotencyRecord

	stop chan struct{}
	done chan struct{}
}

// NewIdempotency builds a cache whose completed entries live for ttl.
// Reservations are guarded by mgr and share the same TTL as a safety net.
func NewIdempotency(mgr *locks.Manager, ttl time.Duration) *Idempotency {
	return &Idempotency{
		mgr:     mgr,
		ttl:     ttl,
		entries: make(map[string]*IdempotencyRecord),
	}
}

func idemKey(routeKey, clientKey string) string {
	return routeKey + ":" + clientKey
}

// LookupOrReserve returns a cached response for replay, or reserves the key
// so the caller may execute the real operation, or reports that another
// caller is mid-execution. reqHash detects reuse of a key with a different
// request body.
func (c *Idempotency) LookupOrReserve(routeKey, clientKey, reqHash string) (LookupResult, *Response) {
	key := idemKey(routeKey, clientKey)

	c.mu.Lock()
	if rec, ok := c.entries[key]; ok && rec.Response != nil && time.Now().Before(rec.ExpiresAt) {
		defer c.mu.Unlock()
		if reqHash != "" && rec.RequestHash != "" && reqHash != rec.RequestHash {
			return Conflict, nil
		}
		return Replay, rec.Response
	}
	c.mu.Unlock()

	// Test-and-set: only one caller per key gets past this line before
	// Complete/Abandon releases it (or the TTL reclaims it after a crash).
	if err := c.mgr.TryAcquire("idem:"+key, c.ttl); err != nil {
		return InFlight, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Re-check under the reservation: the previous holder may have
	// completed between our lookup and the acquire.
	if rec, ok := c.entries[key]; ok && rec.Response != nil && time.Now().Before(rec.ExpiresAt) {
		c.mgr.Release("idem:" + key)
		if reqHash != "" && rec.RequestHash != "" && reqHash != rec.RequestHash {
			return Conflict, nil
		}
		return Replay, rec.Response
	}
	c.entries[key] = &IdempotencyRecord{
		RouteKey:    routeKey,
		ClientKey:   clientKey,
		RequestHash: reqHash,
		CreatedAt:   time.Now(),
		ExpiresAt:   time.Now().Add(c.ttl),
	}
	return Reserved, nil
}

// Complete stores the response for a reserved key and frees the reservation.
// If a completed entry already exists it is left untouched.
func (c *Idempotency) Complete(routeKey, clientKey string, resp *Response) {
	key := idemKey(routeKey, clientKey)

	c.mu.Lock()
	if rec, ok := c.entries[key]; ok && rec.Response == nil {
		rec.Response = resp
		rec.ExpiresAt = time.Now().Add(c.ttl)
	}
	c.mu.Unlock()

	c.mgr.Release("idem:" + key)
}

// Abandon drops a reservation after a failed execution so the next retry
// runs fresh instead of replaying an error.
func (c *Idempotency) Abandon(routeKey, clientKey string) {
	key := idemKey(routeKey, clientKey)

	c.mu.Lock()
	if rec, ok := c.entries[key]; ok && rec.Response == nil {
		delete(c.entries, key)
	}
	c.mu.Unlock()

	c.mgr.Release("idem:" + key)
}

// StartSweeper periodically drops expired entries.
func (c *Idempotency) StartSweeper(interval time.Duration) {
	if c.stop != nil {
		return
	}
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		defer close(c.done)
		for {
			select {
			case <-ticker.C:
				c.sweep()
			case <-c.stop:
				return
			}
		}
	}()
}

// Stop halts the sweeper, if running.
func (c *Idempotency) Stop() {
	if c.stop == nil {
		return
	}
	close(c.stop)
	<-c.done
	c.stop = nil
	c.done = nil
}

func (c *Idempotency) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for key, rec := range c.entries {
		if !now.Before(rec.ExpiresAt) {
			delete(c.entries, key)
		}
	}
}
