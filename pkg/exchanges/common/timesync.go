package common

import (
	"sync"
	"time"
)

// TimeSync tracks the offset between the exchange clock and the local clock.
// The exchange stamps every response, so the offset is refreshed passively
// from normal traffic instead of a dedicated server-time endpoint.
type TimeSync struct {
	mu       sync.RWMutex
	offset   time.Duration // server - local
	lastSync time.Time
	now      func() time.Time
}

// NewTimeSync creates a time synchronization tracker using the local wall clock.
func NewTimeSync() *TimeSync {
	return &TimeSync{now: time.Now}
}

// Observe records a server timestamp seen in a response to a request sent at
// sent and received at received. Network latency is assumed symmetric.
func (ts *TimeSync) Observe(server, sent, received time.Time) {
	if server.IsZero() || received.Before(sent) {
		return
	}
	local := sent.Add(received.Sub(sent) / 2)

	ts.mu.Lock()
	ts.offset = server.Sub(local)
	ts.lastSync = received
	ts.mu.Unlock()
}

// Now returns the current time adjusted for the server offset.
func (ts *TimeSync) Now() time.Time {
	if ts == nil {
		return time.Now()
	}
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.now().Add(ts.offset)
}

// Offset returns the current offset.
func (ts *TimeSync) Offset() time.Duration {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.offset
}

// LastSync returns when the offset was last refreshed.
func (ts *TimeSync) LastSync() time.Time {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.lastSync
}
