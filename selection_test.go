package ppool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFilterMatches(t *testing.T) {
	r := activeRecord("1.1.1.1", 80, 500)
	r.Country = "US"
	r.Score = 60

	require.True(t, Filter{}.matches(r))
	require.True(t, Filter{Protocols: []Protocol{ProtocolHTTP}}.matches(r))
	require.False(t, Filter{Protocols: []Protocol{ProtocolSOCKS5}}.matches(r))
	require.True(t, Filter{Countries: []string{"US", "DE"}}.matches(r))
	require.False(t, Filter{Countries: []string{"DE"}}.matches(r))
	require.True(t, Filter{MinScore: 50}.matches(r))
	require.False(t, Filter{MinScore: 70}.matches(r))
	require.True(t, Filter{MaxResponseTimeMs: 1000}.matches(r))
	require.False(t, Filter{MaxResponseTimeMs: 100}.matches(r))

	r.Status = StatusInactive
	require.False(t, Filter{}.matches(r))
}

func TestSelectOneHotPicksMinLatency(t *testing.T) {
	fast := activeRecord("a", 1, 50)
	slow := activeRecord("b", 1, 500)
	noRT := activeRecord("c", 1, 0)
	noRT.HasResponseTime = false

	got := selectOne(TierHot, []*Record{slow, noRT, fast}, nil)
	require.Equal(t, fast.Identity, got.Identity)
}

func TestSelectOneWarmPicksOldestLastLeased(t *testing.T) {
	now := time.Now()
	recent := activeRecord("a", 1, 100)
	recent.LastLeasedAt = now
	never := activeRecord("b", 1, 100) // zero-value LastLeasedAt sorts oldest
	old := activeRecord("c", 1, 100)
	old.LastLeasedAt = now.Add(-time.Hour)

	got := selectOne(TierWarm, []*Record{recent, old, never}, nil)
	require.Equal(t, never.Identity, got.Identity)
}

func TestSelectOneExcludesGivenKeys(t *testing.T) {
	a := activeRecord("a", 1, 100)
	b := activeRecord("b", 1, 50)
	excluded := map[string]bool{b.Identity.String(): true}

	got := selectOne(TierHot, []*Record{a, b}, excluded)
	require.Equal(t, a.Identity, got.Identity)
}

func TestSelectOneReturnsNilWhenAllExcluded(t *testing.T) {
	a := activeRecord("a", 1, 100)
	excluded := map[string]bool{a.Identity.String(): true}
	require.Nil(t, selectOne(TierCold, []*Record{a}, excluded))
}
