package ppool

import "time"

// Config is the single value constructed once at startup and passed by
// reference into every component constructor: no process-wide singleton
// mutated at import time.
type Config struct {
	Validator     ValidatorConfig
	Scorer        ScorerThresholds
	Pools         PoolCapacities
	Revalidate    RevalidateIntervals
	Blacklist     BlacklistConfig
	Lease         LeaseConfig
	Orchestrator  OrchestratorConfig
	EchoEndpoints EchoEndpoints
	Fetchers      []FetcherConfig
	ShardCount    int // pool shard count for the rendezvous-hashed store, default 8
}

// ValidatorConfig controls the validator's concurrency and timeouts.
type ValidatorConfig struct {
	MaxConcurrent int           // default 50
	Timeout       time.Duration // default 10s
	RetryCount    int           // default 2
	RetryDelay    time.Duration // default 1s
	BatchSize     int           // default 100
	ChunkPause    time.Duration // default 1s, pause between chunks
}

// PoolCapacities bounds each tier's size.
type PoolCapacities struct {
	HotMax       int // default 100
	WarmMax      int // default 500
	ColdMax      int // default 1000
	BlacklistMax int // default 2000
}

// RevalidateIntervals sets how long a tier's entries may go unchecked
// before they're due for revalidation.
type RevalidateIntervals struct {
	Hot       time.Duration // default 1h
	Warm      time.Duration // default 6h
	Cold      time.Duration // default 24h
	Blacklist time.Duration // default 7 * 24h
}

// BlacklistConfig controls demotion-to-Blacklist and eventual purge.
type BlacklistConfig struct {
	ConsecutiveFailuresTrigger int           // K_bl, default 5
	PurgeAfter                 time.Duration // T_purge, default 7 * 24h
}

// LeaseConfig controls lease duration and selection retry behavior.
type LeaseConfig struct {
	DefaultTTL        time.Duration // default 30s
	SelectionRetries  int           // L_retry, default 5
}

// OrchestratorConfig controls cycle scheduling and shutdown behavior.
type OrchestratorConfig struct {
	FetchInterval      time.Duration // default 6h
	CleanupInterval    time.Duration // default 12h
	SaveInterval       time.Duration // default 5m
	ShutdownDeadline   time.Duration // default 30s
	ErrorRetryMin      time.Duration // default 60s
	ErrorRetryMax      time.Duration // default 300s
}

// EchoEndpoints is a configurable allow-list of echo-ip and
// headers-echo URLs. The core hard-codes no vendor.
type EchoEndpoints struct {
	EchoIPHTTP    []string // at least one http:// echo-ip URL
	EchoIPHTTPS   []string // at least one https:// echo-ip URL
	HeadersEcho   []string // headers-echo URL(s)
}

// FetcherConfig describes one configured Fetcher instance; Kind selects
// which fetcher_*.go constructor builds it. The dispatch on Kind is done
// by cmd/proxypoold's instantiateFetcher, not by Registry. Not every
// field applies to every Kind.
type FetcherConfig struct {
	Name    string
	Kind    string // "file", "upstream-api", "scm-mirror", "search-index"
	Enabled bool

	// file
	Path string

	// upstream-api / scm-mirror
	URLs      []string
	Protocols []Protocol
	BearerToken string

	// search-index
	APIKey    string
	APISecret string
	Query     string

	// jitter range applied between this fetcher's own outgoing requests
	JitterMin time.Duration
	JitterMax time.Duration
}

// DefaultConfig returns the package's documented defaults.
func DefaultConfig() Config {
	return Config{
		Validator: ValidatorConfig{
			MaxConcurrent: 50,
			Timeout:       10 * time.Second,
			RetryCount:    2,
			RetryDelay:    time.Second,
			BatchSize:     100,
			ChunkPause:    time.Second,
		},
		Scorer: DefaultThresholds(),
		Pools: PoolCapacities{
			HotMax:       100,
			WarmMax:      500,
			ColdMax:      1000,
			BlacklistMax: 2000,
		},
		Revalidate: RevalidateIntervals{
			Hot:       time.Hour,
			Warm:      6 * time.Hour,
			Cold:      24 * time.Hour,
			Blacklist: 7 * 24 * time.Hour,
		},
		Blacklist: BlacklistConfig{
			ConsecutiveFailuresTrigger: 5,
			PurgeAfter:                 7 * 24 * time.Hour,
		},
		Lease: LeaseConfig{
			DefaultTTL:       30 * time.Second,
			SelectionRetries: 5,
		},
		Orchestrator: OrchestratorConfig{
			FetchInterval:    6 * time.Hour,
			CleanupInterval:  12 * time.Hour,
			SaveInterval:     5 * time.Minute,
			ShutdownDeadline: 30 * time.Second,
			ErrorRetryMin:    60 * time.Second,
			ErrorRetryMax:    300 * time.Second,
		},
		ShardCount: 8,
	}
}

// Validate checks invariants that must hold before any component is
// constructed. A failure here is the one case in this package meant to
// abort the process.
func (c Config) Validate() error {
	if err := c.Scorer.Validate(); err != nil {
		return err
	}
	if c.Validator.MaxConcurrent <= 0 {
		return &ConfigError{Field: "validator.max_concurrent", Reason: "must be positive"}
	}
	if c.Validator.BatchSize <= 0 {
		return &ConfigError{Field: "validator.batch_size", Reason: "must be positive"}
	}
	if c.Pools.HotMax <= 0 || c.Pools.WarmMax <= 0 || c.Pools.ColdMax <= 0 || c.Pools.BlacklistMax <= 0 {
		return &ConfigError{Field: "pools", Reason: "all capacities must be positive"}
	}
	if c.Blacklist.ConsecutiveFailuresTrigger <= 0 {
		return &ConfigError{Field: "blacklist.consecutive_failures_trigger", Reason: "must be positive"}
	}
	if c.Lease.DefaultTTL <= 0 {
		return &ConfigError{Field: "lease.default_ttl", Reason: "must be positive"}
	}
	if c.ShardCount <= 0 {
		return &ConfigError{Field: "shard_count", Reason: "must be positive"}
	}
	if len(c.EchoEndpoints.EchoIPHTTP) == 0 && len(c.EchoEndpoints.EchoIPHTTPS) == 0 {
		return &ConfigError{Field: "echo_endpoints", Reason: "at least one echo-ip URL is required"}
	}
	return nil
}
