package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"educore-backend/locks"
)

func newIdem(ttl time.Duration) *Idempotency {
	return NewIdempotency(locks.NewManager(), ttl)
}

func TestReserveThenReplay(t *testing.T) {
	c := newIdem(time.Minute)

	res, resp := c.LookupOrReserve("POST /api/payments", "key-1", "")
	require.Equal(t, Reserved, res)
	require.Nil(t, resp)

	stored := &Response{
		Status:  201,
		Body:    []byte(`{"id":"p-1"}`),
		Headers: map[string]string{"Content-Type": "application/json"},
	}
	c.Complete("POST /api/payments", "key-1", stored)

	res, resp = c.LookupOrReserve("POST /api/payments", "key-1", "")
	require.Equal(t, Replay, res)
	assert.Equal(t, 201, resp.Status)
	assert.Equal(t, []byte(`{"id":"p-1"}`), resp.Body)
	assert.Equal(t, "application/json", resp.Headers["Content-Type"])
}

func TestInFlightWhileReserved(t *testing.T) {
	c := newIdem(time.Minute)

	res, _ := c.LookupOrReserve("POST /api/payments", "key-1", "")
	require.Equal(t, Reserved, res)

	// Same key before the first caller finishes: must not execute again.
	res, resp := c.LookupOrReserve("POST /api/payments", "key-1", "")
	assert.Equal(t, InFlight, res)
	assert.Nil(t, resp)

	// A different client key on the same route is independent.
	res, _ = c.LookupOrReserve("POST /api/payments", "key-2", "")
	assert.Equal(t, Reserved, res)
}

func TestExpiredEntryExecutesFresh(t *testing.T) {
	c := newIdem(20 * time.Millisecond)

	res, _ := c.LookupOrReserve("POST /api/grades", "k", "")
	require.Equal(t, Reserved, res)
	c.Complete("POST /api/grades", "k", &Response{Status: 200, Body: []byte("one")})

	time.Sleep(30 * time.Millisecond)

	res, resp := c.LookupOrReserve("POST /api/grades", "k", "")
	assert.Equal(t, Reserved, res)
	assert.Nil(t, resp)
}

func TestAbandonAllowsRetry(t *testing.T) {
	c := newIdem(time.Minute)

	res, _ := c.LookupOrReserve("POST /api/enroll", "k", "")
	require.Equal(t, Reserved, res)
	c.Abandon("POST /api/enroll", "k")

	res, _ = c.LookupOrReserve("POST /api/enroll", "k", "")
	assert.Equal(t, Reserved, res)
}

func TestCompletedEntryIsImmutable(t *testing.T) {
	c := newIdem(time.Minute)

	res, _ := c.LookupOrReserve("POST /api/payments", "k", "")
	require.Equal(t, Reserved, res)
	c.Complete("POST /api/payments", "k", &Response{Status: 201, Body: []byte("first")})

	// A second Complete within the TTL must not overwrite the original.
	c.Complete("POST /api/payments", "k", &Response{Status: 500, Body: []byte("second")})

	res, resp := c.LookupOrReserve("POST /api/payments", "k", "")
	require.Equal(t, Replay, res)
	assert.Equal(t, 201, resp.Status)
	assert.Equal(t, []byte("first"), resp.Body)
}

func TestKeyReuseWithDifferentBodyConflicts(t *testing.T) {
	c := newIdem(time.Minute)

	res, _ := c.LookupOrReserve("POST /api/grades", "k", "hash-a")
	require.Equal(t, Reserved, res)
	c.Complete("POST /api/grades", "k", &Response{Status: 200})

	res, resp := c.LookupOrReserve("POST /api/grades", "k", "hash-b")
	assert.Equal(t, Conflict, res)
	assert.Nil(t, resp)

	// Same hash still replays.
	res, _ = c.LookupOrReserve("POST /api/grades", "k", "hash-a")
	assert.Equal(t, Replay, res)
}

func TestConcurrentSameKeySingleExecution(t *testing.T) {
	c := newIdem(time.Minute)

	const callers = 40
	var wg sync.WaitGroup
	var mu sync.Mutex
	reserved := 0

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, _ := c.LookupOrReserve("POST /api/attendance", "same-key", "")
			if res == Reserved {
				mu.Lock()
				reserved++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, reserved, "exactly one caller may execute the handler")
}

func TestSweeperDropsExpired(t *testing.T) {
	c := newIdem(10 * time.Millisecond)
	c.StartSweeper(10 * time.Millisecond)
	defer c.Stop()

	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("k-%d", i)
		res, _ := c.LookupOrReserve("POST /x", key, "")
		require.Equal(t, Reserved, res)
		c.Complete("POST /x", key, &Response{Status: 200})
	}

	assert.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return len(c.entries) == 0
	}, 500*time.Millisecond, 10*time.Millisecond)
}
