package ppool

import (
	"sync"
	"time"
)

// Manager is the tiered pool manager: four named pools (Hot/Warm/Cold
// /Blacklist), a process-wide lease table, and a single manager-wide
// mutex for atomic tier transitions — no record is ever in two pools at
// once.
type Manager struct {
	mu sync.Mutex

	scorer     *Scorer
	caps       PoolCapacities
	revalidate RevalidateIntervals
	blacklist  BlacklistConfig
	leaseCfg   LeaseConfig
	metrics    *Metrics

	tiers    map[Tier]*tierStore
	location map[string]Tier // identity key -> current tier, for O(1) rebalance lookups
	leases   map[string]leaseEntry
}

// NewManager constructs a Manager with one tierStore per tier, each
// sharded into shardCount shards.
func NewManager(scorer *Scorer, caps PoolCapacities, revalidate RevalidateIntervals, blacklist BlacklistConfig, leaseCfg LeaseConfig, shardCount int, metrics *Metrics) *Manager {
	m := &Manager{
		scorer:     scorer,
		caps:       caps,
		revalidate: revalidate,
		blacklist:  blacklist,
		leaseCfg:   leaseCfg,
		metrics:    metrics,
		tiers:      make(map[Tier]*tierStore, 4),
		location:   make(map[string]Tier),
		leases:     make(map[string]leaseEntry),
	}
	for _, t := range []Tier{TierHot, TierWarm, TierCold, TierBlacklist} {
		m.tiers[t] = newTierStore(shardCount)
	}
	return m
}

func (m *Manager) capacityFor(tier Tier) int {
	switch tier {
	case TierHot:
		return m.caps.HotMax
	case TierWarm:
		return m.caps.WarmMax
	case TierCold:
		return m.caps.ColdMax
	default:
		return m.caps.BlacklistMax
	}
}

// classify scores rec and places it, applying the consecutive-failures
// override: a consecutive-failure streak at or past the configured
// trigger forces Blacklist regardless of score. This is the one place that
// override is applied — Scorer.Classify itself stays pure score-and-place
// (see scorer.go).
func (m *Manager) classify(rec *Record) Tier {
	if rec.ConsecutiveFailures >= m.blacklist.ConsecutiveFailuresTrigger {
		score := Score(rec)
		rec.Score = score
		rec.pushScore(score)
		return TierBlacklist
	}
	return m.scorer.Classify(rec)
}

// insertLocked places rec into tier, evicting the oldest-inserted entry
// if tier is already at capacity. Callers must hold m.mu.
func (m *Manager) insertLocked(tier Tier, rec *Record) {
	store := m.tiers[tier]
	key := rec.Identity.String()

	if store.len() >= m.capacityFor(tier) {
		if oldestKey, ok := store.oldest(); ok && oldestKey != key {
			store.delete(oldestKey)
			delete(m.location, oldestKey)
			if m.metrics != nil {
				m.metrics.PoolEvictions.WithLabelValues(tier.String()).Inc()
			}
		}
	}
	store.put(rec)
	m.location[key] = tier
	if m.metrics != nil {
		m.metrics.PoolSize.WithLabelValues(tier.String()).Set(float64(store.len()))
	}
}

// AddMany scores and inserts each record.
func (m *Manager) AddMany(records []*Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range records {
		tier := m.classify(rec)
		m.insertLocked(tier, rec)
	}
}

// defaultPreference is the default tier scan order for Get.
var defaultPreference = []Tier{TierHot, TierWarm, TierCold}

// Get selects one Active record matching filter, scanning tiers in
// preference order, acquiring a lease for it.
func (m *Manager) Get(preference []Tier, filter Filter) (*Record, bool) {
	if len(preference) == 0 {
		preference = defaultPreference
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	m.reapExpiredLeasesLocked(now)

	for _, tier := range preference {
		store, ok := m.tiers[tier]
		if !ok {
			continue
		}
		eligible := make([]*Record, 0)
		for _, r := range store.all() {
			if filter.matches(r) {
				eligible = append(eligible, r)
			}
		}
		if len(eligible) == 0 {
			continue
		}

		excluded := make(map[string]bool)
		misses := 0
		for misses <= m.leaseCfg.SelectionRetries {
			candidate := selectOne(tier, eligible, excluded)
			if candidate == nil {
				break
			}
			key := candidate.Identity.String()
			if m.leaseActiveLocked(key, now) {
				excluded[key] = true
				misses++
				continue
			}
			leaseID := m.acquireLeaseLocked(key, now)
			candidate.LastLeasedAt = now
			candidate.TotalRequests++
			logger("pool", key, "lease_id", leaseID).Debug("leased")
			return candidate, true
		}
	}
	return nil, false
}

// Return releases a lease before its TTL expires.
func (m *Manager) Return(rec *Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseLeaseLocked(rec.Identity.String())
}

// RevalidateDue returns every record whose LastChecked is older than its
// tier's revalidation interval.
func (m *Manager) RevalidateDue() []*Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var due []*Record
	for tier, store := range m.tiers {
		interval := m.revalidateIntervalFor(tier)
		for _, r := range store.all() {
			if now.Sub(r.LastChecked) >= interval {
				due = append(due, r)
			}
		}
	}
	return due
}

func (m *Manager) revalidateIntervalFor(tier Tier) time.Duration {
	switch tier {
	case TierHot:
		return m.revalidate.Hot
	case TierWarm:
		return m.revalidate.Warm
	case TierCold:
		return m.revalidate.Cold
	default:
		return m.revalidate.Blacklist
	}
}

// Rebalance re-tiers each measured record after revalidation: if the
// recomputed tier differs from the record's current tier, it's
// atomically moved.
func (m *Manager) Rebalance(measurements []*Record) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rec := range measurements {
		key := rec.Identity.String()
		newTier := m.classify(rec)
		oldTier, tracked := m.location[key]

		if !tracked {
			m.insertLocked(newTier, rec)
			continue
		}
		if newTier == oldTier {
			continue
		}
		m.tiers[oldTier].delete(key)
		if m.metrics != nil {
			m.metrics.PoolSize.WithLabelValues(oldTier.String()).Set(float64(m.tiers[oldTier].len()))
		}
		m.insertLocked(newTier, rec)
	}
}

// CleanupBlacklist purges Blacklist entries that have gone without a
// successful revalidation for longer than the configured purge age. A
// blacklisted proxy that keeps failing revalidation still has
// LastChecked bumped on every attempt, so purge eligibility is judged
// against LastSuccessful, not LastChecked.
func (m *Manager) CleanupBlacklist() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	store := m.tiers[TierBlacklist]
	now := time.Now()
	purged := 0
	for _, r := range store.all() {
		if now.Sub(r.LastSuccessful) >= m.blacklist.PurgeAfter {
			key := r.Identity.String()
			store.delete(key)
			delete(m.location, key)
			purged++
		}
	}
	if m.metrics != nil {
		m.metrics.PoolSize.WithLabelValues(TierBlacklist.String()).Set(float64(store.len()))
	}
	return purged
}

// SetScorer swaps the scorer used for future classify/rebalance calls,
// e.g. after a config hot-reload. Records already placed keep their
// tier until next scored.
func (m *Manager) SetScorer(scorer *Scorer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scorer = scorer
}

// Size returns the current record count for tier.
func (m *Manager) Size(tier Tier) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tiers[tier].len()
}
