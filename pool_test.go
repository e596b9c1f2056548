package ppool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testManager(t *testing.T, caps PoolCapacities) *Manager {
	t.Helper()
	scorer := NewScorer(DefaultThresholds())
	revalidate := RevalidateIntervals{Hot: time.Hour, Warm: 6 * time.Hour, Cold: 24 * time.Hour, Blacklist: 7 * 24 * time.Hour}
	blacklist := BlacklistConfig{ConsecutiveFailuresTrigger: 3, PurgeAfter: 24 * time.Hour}
	lease := LeaseConfig{DefaultTTL: 30 * time.Second, SelectionRetries: 5}
	return NewManager(scorer, caps, revalidate, blacklist, lease, 4, nil)
}

func activeRecord(host string, port int, rtMs int) *Record {
	r := NewRecord(Identity{Host: host, Port: port, Protocol: ProtocolHTTP}, "test")
	r.Status = StatusActive
	r.SuccessRate = 1.0
	r.HasResponseTime = true
	r.ResponseTimeMs = rtMs
	r.Anonymity = AnonymityElite
	return r
}

func defaultCaps() PoolCapacities {
	return PoolCapacities{HotMax: 2, WarmMax: 2, ColdMax: 2, BlacklistMax: 2}
}

func TestManagerAddManyClassifiesByScore(t *testing.T) {
	m := testManager(t, defaultCaps())
	hot := activeRecord("1.1.1.1", 80, 100)
	m.AddMany([]*Record{hot})
	require.Equal(t, 1, m.Size(TierHot))
	require.Equal(t, TierHot, m.location[hot.Identity.String()])
}

func TestManagerGetReturnsLeasedRecordAndExcludesItUntilReturned(t *testing.T) {
	m := testManager(t, defaultCaps())
	r := activeRecord("2.2.2.2", 80, 100)
	m.AddMany([]*Record{r})

	got, ok := m.Get(nil, Filter{})
	require.True(t, ok)
	require.Equal(t, r.Identity, got.Identity)

	// Leased: a second Get with only this one record available should
	// fail to find an unleased candidate within SelectionRetries misses,
	// since it's the only eligible entry and it's always excluded first.
	_, ok = m.Get(nil, Filter{})
	require.False(t, ok)

	m.Return(r)
	got2, ok := m.Get(nil, Filter{})
	require.True(t, ok)
	require.Equal(t, r.Identity, got2.Identity)
}

func TestManagerLeaseExpiresAndIsReapedOnGet(t *testing.T) {
	m := testManager(t, defaultCaps())
	m.leaseCfg.DefaultTTL = time.Millisecond
	r := activeRecord("3.3.3.3", 80, 100)
	m.AddMany([]*Record{r})

	_, ok := m.Get(nil, Filter{})
	require.True(t, ok)

	time.Sleep(5 * time.Millisecond)
	got, ok := m.Get(nil, Filter{})
	require.True(t, ok, "expired lease should be reaped and record re-leasable")
	require.Equal(t, r.Identity, got.Identity)
}

func TestManagerFilterExcludesNonMatching(t *testing.T) {
	m := testManager(t, defaultCaps())
	r := activeRecord("4.4.4.4", 80, 100)
	r.Country = "US"
	m.AddMany([]*Record{r})

	_, ok := m.Get(nil, Filter{Countries: []string{"DE"}})
	require.False(t, ok)

	got, ok := m.Get(nil, Filter{Countries: []string{"US"}})
	require.True(t, ok)
	require.Equal(t, r.Identity, got.Identity)
}

func TestManagerOverflowEvictsOldestInserted(t *testing.T) {
	caps := PoolCapacities{HotMax: 1, WarmMax: 2, ColdMax: 2, BlacklistMax: 2}
	m := testManager(t, caps)

	first := activeRecord("5.5.5.1", 80, 100)
	second := activeRecord("5.5.5.2", 80, 100)
	m.AddMany([]*Record{first})
	m.AddMany([]*Record{second})

	require.Equal(t, 1, m.Size(TierHot))
	_, firstStillPresent := m.tiers[TierHot].get(first.Identity.String())
	_, secondPresent := m.tiers[TierHot].get(second.Identity.String())
	require.False(t, firstStillPresent)
	require.True(t, secondPresent)
}

func TestManagerRebalanceMovesBetweenTiers(t *testing.T) {
	m := testManager(t, defaultCaps())
	r := activeRecord("6.6.6.6", 80, 100)
	m.AddMany([]*Record{r})
	require.Equal(t, TierHot, m.location[r.Identity.String()])

	// Degrade it so it now scores 0 and its failure streak forces Blacklist.
	r.SuccessRate = 0
	r.Anonymity = AnonymityUnknown
	r.ConsecutiveFailures = 10
	r.HasResponseTime = false

	m.Rebalance([]*Record{r})
	require.Equal(t, TierBlacklist, m.location[r.Identity.String()])
	require.Equal(t, 0, m.Size(TierHot))
}

func TestManagerConsecutiveFailuresForcesBlacklist(t *testing.T) {
	m := testManager(t, defaultCaps())
	r := activeRecord("7.7.7.7", 80, 100)
	r.ConsecutiveFailures = 3 // == ConsecutiveFailuresTrigger
	m.AddMany([]*Record{r})
	require.Equal(t, TierBlacklist, m.location[r.Identity.String()])
}

func TestManagerCleanupBlacklistPurgesStaleEntries(t *testing.T) {
	m := testManager(t, defaultCaps())
	m.blacklist.PurgeAfter = time.Millisecond

	r := activeRecord("8.8.8.8", 80, 100)
	r.ConsecutiveFailures = 10
	m.AddMany([]*Record{r})
	require.Equal(t, TierBlacklist, m.location[r.Identity.String()])

	r.LastSuccessful = time.Now().Add(-time.Hour)
	purged := m.CleanupBlacklist()
	require.Equal(t, 1, purged)
	require.Equal(t, 0, m.Size(TierBlacklist))
}

func TestManagerSnapshotRestoreRoundTrip(t *testing.T) {
	m := testManager(t, PoolCapacities{HotMax: 10, WarmMax: 10, ColdMax: 10, BlacklistMax: 10})
	r1 := activeRecord("9.9.9.1", 80, 100)
	r2 := activeRecord("9.9.9.2", 80, 5000) // scores into a lower tier
	r2.HasResponseTime = true
	m.AddMany([]*Record{r1, r2})

	data, err := m.Snapshot()
	require.NoError(t, err)

	m2 := testManager(t, PoolCapacities{HotMax: 10, WarmMax: 10, ColdMax: 10, BlacklistMax: 10})
	require.NoError(t, m2.Restore(data))

	require.Equal(t, m.Size(TierHot)+m.Size(TierWarm)+m.Size(TierCold)+m.Size(TierBlacklist),
		m2.Size(TierHot)+m2.Size(TierWarm)+m2.Size(TierCold)+m2.Size(TierBlacklist))

	data2, err := m2.Snapshot()
	require.NoError(t, err)
	require.NotEmpty(t, data2)
}

func TestManagerSetScorerAffectsFutureClassification(t *testing.T) {
	m := testManager(t, defaultCaps())
	strict := NewScorer(ScorerThresholds{ThetaCold: 50, ThetaWarm: 99.5, ThetaHot: 101, TauHotMs: 3000, TauWarmMs: 8000})
	m.SetScorer(strict)

	r := activeRecord("10.10.10.10", 80, 100) // scores 100, below the new theta_hot of 101
	m.AddMany([]*Record{r})
	require.Equal(t, TierWarm, m.location[r.Identity.String()])
}
