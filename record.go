package ppool

import (
	"encoding/json"
	"time"
)

// Anonymity classifies how much a proxy hides the caller's origin. The
// four levels are always compared by named-constant equality in this
// package, never by ordinal.
type Anonymity int

const (
	AnonymityUnknown Anonymity = iota
	AnonymityTransparent
	AnonymityAnonymous
	AnonymityElite
)

func (a Anonymity) String() string {
	switch a {
	case AnonymityTransparent:
		return "transparent"
	case AnonymityAnonymous:
		return "anonymous"
	case AnonymityElite:
		return "elite"
	default:
		return "unknown"
	}
}

func (a Anonymity) MarshalJSON() ([]byte, error) { return json.Marshal(a.String()) }

func (a *Anonymity) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "transparent":
		*a = AnonymityTransparent
	case "anonymous":
		*a = AnonymityAnonymous
	case "elite":
		*a = AnonymityElite
	default:
		*a = AnonymityUnknown
	}
	return nil
}

// Status is the lifecycle status of a proxy record.
type Status int

const (
	StatusInactive Status = iota
	StatusActive
	StatusTesting
	StatusBlacklisted
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusTesting:
		return "testing"
	case StatusBlacklisted:
		return "blacklisted"
	default:
		return "inactive"
	}
}

func (s Status) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

func (s *Status) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch v {
	case "active":
		*s = StatusActive
	case "testing":
		*s = StatusTesting
	case "blacklisted":
		*s = StatusBlacklisted
	default:
		*s = StatusInactive
	}
	return nil
}

// Tier is one of the four named pools.
type Tier int

const (
	TierBlacklist Tier = iota
	TierCold
	TierWarm
	TierHot
)

func (t Tier) String() string {
	switch t {
	case TierHot:
		return "hot"
	case TierWarm:
		return "warm"
	case TierCold:
		return "cold"
	default:
		return "blacklist"
	}
}

// SpeedClass buckets a proxy's response time for display and filtering.
// Recomputed on every measurement and stored on the record so it
// round-trips through the snapshot format unchanged.
type SpeedClass int

const (
	SpeedUnknown SpeedClass = iota
	SpeedFast               // < 1000ms
	SpeedMedium             // < 3000ms
	SpeedSlow               // >= 3000ms
)

func (s SpeedClass) String() string {
	switch s {
	case SpeedFast:
		return "fast"
	case SpeedMedium:
		return "medium"
	case SpeedSlow:
		return "slow"
	default:
		return "unknown"
	}
}

func (s SpeedClass) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

func (s *SpeedClass) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch v {
	case "fast":
		*s = SpeedFast
	case "medium":
		*s = SpeedMedium
	case "slow":
		*s = SpeedSlow
	default:
		*s = SpeedUnknown
	}
	return nil
}

func classifySpeed(hasRT bool, rtMs int) SpeedClass {
	if !hasRT {
		return SpeedUnknown
	}
	switch {
	case rtMs < 1000:
		return SpeedFast
	case rtMs < 3000:
		return SpeedMedium
	default:
		return SpeedSlow
	}
}

// scoreHistoryLen bounds the in-memory score-history ring. It's a
// display/trend cache, not identity or metrics state, and is
// deliberately excluded from the snapshot format so
// snapshot -> restore -> snapshot stays byte-equal.
const scoreHistoryLen = 5

// Record is a proxy record: immutable identity plus mutable,
// single-writer metrics. It carries no mutex of its own — exactly one
// of the Validator (during its probe) or the Pool Manager (on
// add/rebalance) owns a given record at a time; the owner enforces
// exclusivity, not the record.
type Record struct {
	Identity

	// Observed attributes.
	Anonymity Anonymity
	Country   string
	Region    string
	City      string
	ISP       string
	ASN       string
	Status    Status

	// Rolling metrics.
	ResponseTimeMs      int
	HasResponseTime     bool
	TotalRequests       int64
	SuccessfulRequests  int64
	FailedRequests      int64
	ConsecutiveFailures int
	LastChecked         time.Time
	LastSuccessful      time.Time
	FirstSeen           time.Time
	UpdatedAt           time.Time
	LastLeasedAt        time.Time

	// Derived, recomputed by recomputeDerived() after every mutation.
	SuccessRate float64
	Score       float64
	SpeedClass  SpeedClass

	// Provenance.
	Source    string
	SourceURL string
	Tags      []string
	Metadata  map[string]string

	// scoreHistory is a bounded ring of the last few scores, newest
	// last. Not part of the snapshot format; see scoreHistoryLen.
	scoreHistory []float64
}

// NewRecord creates a freshly-fetched candidate: Inactive status, zeroed
// counters, FirstSeen/UpdatedAt set to now.
func NewRecord(id Identity, source string) *Record {
	now := time.Now()
	return &Record{
		Identity:  id,
		Status:    StatusInactive,
		Source:    source,
		FirstSeen: now,
		UpdatedAt: now,
		Metadata:  make(map[string]string),
	}
}

// RecordSuccess records a successful probe. Single-writer; the caller
// (Validator or Pool Manager, never both concurrently) is responsible
// for the handoff discipline.
func (r *Record) RecordSuccess(latencyMs int) {
	now := time.Now()
	r.TotalRequests++
	r.SuccessfulRequests++
	r.ResponseTimeMs = latencyMs
	r.HasResponseTime = true
	r.LastSuccessful = now
	r.LastChecked = now
	r.ConsecutiveFailures = 0
	r.recomputeDerived()
}

// RecordFailure records a failed probe.
func (r *Record) RecordFailure() {
	now := time.Now()
	r.TotalRequests++
	r.FailedRequests++
	r.ConsecutiveFailures++
	r.LastChecked = now
	r.recomputeDerived()
}

// recomputeDerived refreshes SuccessRate, SpeedClass and UpdatedAt. Score
// and Tier placement are the Scorer's job, not computed here — Record
// stays a value object with no knowledge of scoring weights.
func (r *Record) recomputeDerived() {
	if r.TotalRequests > 0 {
		r.SuccessRate = float64(r.SuccessfulRequests) / float64(r.TotalRequests)
	} else {
		r.SuccessRate = 0
	}
	r.SpeedClass = classifySpeed(r.HasResponseTime, r.ResponseTimeMs)
	r.UpdatedAt = time.Now()
}

// pushScore appends to the bounded score-history ring.
func (r *Record) pushScore(score float64) {
	r.scoreHistory = append(r.scoreHistory, score)
	if len(r.scoreHistory) > scoreHistoryLen {
		r.scoreHistory = r.scoreHistory[len(r.scoreHistory)-scoreHistoryLen:]
	}
}

// ScoreHistory returns a copy of the bounded recent-score ring, oldest
// first. Read-only trend data; not part of the persisted snapshot.
func (r *Record) ScoreHistory() []float64 {
	out := make([]float64, len(r.scoreHistory))
	copy(out, r.scoreHistory)
	return out
}

// UptimeSeconds is derived on read from FirstSeen, never stored.
func (r *Record) UptimeSeconds() float64 {
	if r.FirstSeen.IsZero() {
		return 0
	}
	return time.Since(r.FirstSeen).Seconds()
}

// Clone returns a deep-enough copy for handoff between owners: Tags,
// Metadata and the score-history ring are copied, not shared. The
// Validator and the Pool Manager do not call it: Validate mutates the
// candidates it is given, and Get returns the pooled record itself.
func (r *Record) Clone() *Record {
	c := *r
	c.Tags = append([]string(nil), r.Tags...)
	c.Metadata = make(map[string]string, len(r.Metadata))
	for k, v := range r.Metadata {
		c.Metadata[k] = v
	}
	c.scoreHistory = append([]float64(nil), r.scoreHistory...)
	return &c
}
