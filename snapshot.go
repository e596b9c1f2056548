package ppool

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
)

// snapshotTierPools is one tier's entry in the snapshot document's
// "pools" object.
type snapshotTierPools struct {
	Proxies []*Record `json:"proxies"`
}

// snapshotDoc is the full snapshot document shape, plus a generation_id
// so two snapshots taken in the same process tick stay distinguishable
// in logs and in the local JSON backup file history.
type snapshotDoc struct {
	GenerationID string                       `json:"generation_id"`
	Timestamp    time.Time                    `json:"timestamp"`
	Pools        map[string]snapshotTierPools `json:"pools"`
}

var snapshotTierNames = []Tier{TierHot, TierWarm, TierCold, TierBlacklist}

// Snapshot serializes the full pool state to JSON, each tier's records
// sorted by identity. scoreHistory is excluded automatically since it's
// an unexported field on Record, so restore -> snapshot stays byte-equal
// apart from generation_id and timestamp without needing a custom
// exclusion list.
func (m *Manager) Snapshot() ([]byte, error) {
	m.mu.Lock()
	doc := snapshotDoc{
		GenerationID: uuid.New().String(),
		Timestamp:    time.Now().UTC(),
		Pools:        make(map[string]snapshotTierPools, len(snapshotTierNames)),
	}
	for _, tier := range snapshotTierNames {
		proxies := m.tiers[tier].all()
		sort.Slice(proxies, func(i, j int) bool {
			return proxies[i].Identity.String() < proxies[j].Identity.String()
		})
		doc.Pools[tier.String()] = snapshotTierPools{Proxies: proxies}
	}
	m.mu.Unlock()
	return json.MarshalIndent(doc, "", "  ")
}

// Restore loads a snapshot produced by Snapshot. Records whose identity
// triple conflicts with an already-loaded record are rejected,
// first-wins. Restore does not clear any existing state; call it only
// against a freshly constructed, empty Manager.
func (m *Manager) Restore(data []byte) error {
	var doc snapshotDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for tierName, bucket := range doc.Pools {
		tier := parseTierName(tierName)
		store := m.tiers[tier]
		for _, rec := range bucket.Proxies {
			key := rec.Identity.String()
			if _, exists := m.location[key]; exists {
				continue // first-wins
			}
			store.put(rec)
			m.location[key] = tier
		}
	}
	return nil
}

func parseTierName(s string) Tier {
	switch s {
	case "hot":
		return TierHot
	case "warm":
		return TierWarm
	case "cold":
		return TierCold
	default:
		return TierBlacklist
	}
}
