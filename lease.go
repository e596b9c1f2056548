package ppool

import (
	"time"

	"github.com/google/uuid"
)

// leaseEntry is one row of the process-wide lease table, `proxy_id ->
// (acquired_at, ttl_seconds)`. id is a synthetic lease identifier used
// only for log correlation — proxy_id (the map key) remains the sole
// lookup key.
type leaseEntry struct {
	id         string
	acquiredAt time.Time
	ttl        time.Duration
}

func (e leaseEntry) expired(now time.Time) bool {
	return now.Sub(e.acquiredAt) >= e.ttl
}

// leaseActiveLocked reports whether key has an unexpired lease. Callers
// must hold m.mu.
func (m *Manager) leaseActiveLocked(key string, now time.Time) bool {
	e, ok := m.leases[key]
	if !ok {
		return false
	}
	return !e.expired(now)
}

// acquireLeaseLocked records a new lease for key, replacing any expired
// one. Callers must hold m.mu.
func (m *Manager) acquireLeaseLocked(key string, now time.Time) string {
	id := uuid.New().String()
	m.leases[key] = leaseEntry{id: id, acquiredAt: now, ttl: m.leaseCfg.DefaultTTL}
	if m.metrics != nil {
		m.metrics.LeaseActive.Set(float64(len(m.leases)))
	}
	return id
}

// releaseLeaseLocked removes key's lease early, on Return. Callers must
// hold m.mu.
func (m *Manager) releaseLeaseLocked(key string) {
	delete(m.leases, key)
	if m.metrics != nil {
		m.metrics.LeaseActive.Set(float64(len(m.leases)))
	}
}

// reapExpiredLeasesLocked drops every expired lease; expired leases are
// lazily reaped at the start of each Get call. Callers must hold m.mu.
func (m *Manager) reapExpiredLeasesLocked(now time.Time) {
	for key, e := range m.leases {
		if e.expired(now) {
			delete(m.leases, key)
		}
	}
	if m.metrics != nil {
		m.metrics.LeaseActive.Set(float64(len(m.leases)))
	}
}
