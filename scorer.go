package ppool

// ScorerThresholds configures the tier-placement boundaries. Zero-value
// Thresholds is invalid; use DefaultThresholds().
type ScorerThresholds struct {
	ThetaCold float64 // minimum score to avoid Blacklist, default 20
	ThetaWarm float64 // minimum score for Warm, default 50
	ThetaHot  float64 // minimum score for Hot, default 80

	TauHotMs  int // maximum response time for Hot, default 3000
	TauWarmMs int // maximum response time for Warm, default 8000
}

// DefaultThresholds returns the stock tier-placement thresholds.
func DefaultThresholds() ScorerThresholds {
	return ScorerThresholds{
		ThetaCold: 20,
		ThetaWarm: 50,
		ThetaHot:  80,
		TauHotMs:  3000,
		TauWarmMs: 8000,
	}
}

// Validate enforces the total order theta_cold < theta_warm < theta_hot.
func (t ScorerThresholds) Validate() error {
	if !(t.ThetaCold < t.ThetaWarm && t.ThetaWarm < t.ThetaHot) {
		return &ConfigError{Field: "scorer.thresholds", Reason: "must satisfy theta_cold < theta_warm < theta_hot"}
	}
	return nil
}

// Scorer turns a Record's current metrics into a bounded score and a
// proposed tier. It holds only configuration (thresholds), no mutable
// state: a pure function with no side effects beyond what Classify
// writes onto the record it's given.
type Scorer struct {
	thresholds ScorerThresholds
}

// NewScorer constructs a Scorer with the given thresholds. Panics if the
// thresholds don't form the required total order — a misconfiguration
// caught at startup, not something to degrade around at scoring time.
func NewScorer(t ScorerThresholds) *Scorer {
	if err := t.Validate(); err != nil {
		panic(err)
	}
	return &Scorer{thresholds: t}
}

// Score computes a weighted score from success rate, latency,
// anonymity, and recent-failure streak, clamped to [0, 100]. If the
// record isn't Active, score is 0 regardless of its metrics.
func Score(r *Record) float64 {
	if r.Status != StatusActive {
		return 0
	}
	score := r.SuccessRate * 40

	switch {
	case r.HasResponseTime && r.ResponseTimeMs < 1000:
		score += 30
	case r.HasResponseTime && r.ResponseTimeMs < 3000:
		score += 20
	case r.HasResponseTime && r.ResponseTimeMs < 5000:
		score += 10
	}

	switch r.Anonymity {
	case AnonymityElite:
		score += 20
	case AnonymityAnonymous:
		score += 15
	case AnonymityTransparent:
		score += 5
	}

	switch {
	case r.ConsecutiveFailures == 0:
		score += 10
	case r.ConsecutiveFailures < 3:
		score += 5
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// PlaceTier applies the configured thresholds, inclusive at both
// boundaries: score == theta_hot and rt == tau_hot_ms still qualifies
// for Hot.
func (s *Scorer) PlaceTier(r *Record, score float64) Tier {
	if r.Status != StatusActive || score < s.thresholds.ThetaCold {
		return TierBlacklist
	}
	if score >= s.thresholds.ThetaHot && r.HasResponseTime && r.ResponseTimeMs <= s.thresholds.TauHotMs {
		return TierHot
	}
	if score >= s.thresholds.ThetaWarm && r.HasResponseTime && r.ResponseTimeMs <= s.thresholds.TauWarmMs {
		return TierWarm
	}
	return TierCold
}

// Classify scores r, records the score on r (including pushing the
// bounded score-history ring), and returns the proposed tier. This is
// the one entry point orchestrator code should call; Score/PlaceTier
// stay exported separately because they're individually useful to test
// and because Score is also called directly by the Pool Manager's
// classify for records its consecutive-failure override blacklists.
func (s *Scorer) Classify(r *Record) Tier {
	score := Score(r)
	r.Score = score
	r.pushScore(score)
	tier := s.PlaceTier(r, score)

	// A consecutive-failure streak at or past the pool's own trigger forces
	// Blacklist regardless of score; that trigger is the Pool Manager's
	// config, applied by the caller (pool.go), since the Scorer itself
	// only owns the four weights and the score/latency thresholds.
	return tier
}
