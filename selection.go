package ppool

import "math/rand"

// Filter narrows a Get call to matching records. Every set field is
// optional; all configured fields are conjunctive (AND).
type Filter struct {
	Protocols        []Protocol
	Anonymities      []Anonymity
	Countries        []string
	MinScore         float64
	MaxResponseTimeMs int // 0 means unconstrained
}

func (f Filter) matches(r *Record) bool {
	if r.Status != StatusActive {
		return false
	}
	if len(f.Protocols) > 0 && !containsProtocol(f.Protocols, r.Protocol) {
		return false
	}
	if len(f.Anonymities) > 0 && !containsAnonymity(f.Anonymities, r.Anonymity) {
		return false
	}
	if len(f.Countries) > 0 && !containsString(f.Countries, r.Country) {
		return false
	}
	if f.MinScore > 0 && r.Score < f.MinScore {
		return false
	}
	if f.MaxResponseTimeMs > 0 && (!r.HasResponseTime || r.ResponseTimeMs > f.MaxResponseTimeMs) {
		return false
	}
	return true
}

func containsProtocol(set []Protocol, p Protocol) bool {
	for _, v := range set {
		if v == p {
			return true
		}
	}
	return false
}

func containsAnonymity(set []Anonymity, a Anonymity) bool {
	for _, v := range set {
		if v == a {
			return true
		}
	}
	return false
}

func containsString(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

// selectOne applies the tier's selection strategy among eligible
// records not present in excluded (already tried and found leased this
// call).
func selectOne(tier Tier, eligible []*Record, excluded map[string]bool) *Record {
	var pool []*Record
	for _, r := range eligible {
		if !excluded[r.Identity.String()] {
			pool = append(pool, r)
		}
	}
	if len(pool) == 0 {
		return nil
	}

	switch tier {
	case TierHot:
		best := pool[0]
		for _, r := range pool[1:] {
			if !r.HasResponseTime {
				continue
			}
			if !best.HasResponseTime || r.ResponseTimeMs < best.ResponseTimeMs {
				best = r
			}
		}
		return best
	case TierWarm:
		best := pool[0]
		for _, r := range pool[1:] {
			if r.LastLeasedAt.Before(best.LastLeasedAt) {
				best = r
			}
		}
		return best
	default: // TierCold and anything else: uniform random
		return pool[rand.Intn(len(pool))]
	}
}
