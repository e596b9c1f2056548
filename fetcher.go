package ppool

import "context"

// Fetcher is the small capability set every source adapter implements:
// name, enabled, fetch(limit) -> (records, error). Implementations must
// be safe to call concurrently with the rest of the system but don't
// need to be reentrant themselves — the Registry serializes calls to
// any one Fetcher.
type Fetcher interface {
	// Name is the stable identifier used for metrics and provenance.
	Name() string
	// Enabled reports whether this fetcher should be called by fetch-all.
	Enabled() bool
	// Fetch produces up to limit candidate records (limit <= 0 means no
	// upper bound). It must never panic on expected failure — network
	// errors, bad responses, and parse errors are returned as err, not
	// raised.
	Fetch(ctx context.Context, limit int) ([]*Record, error)
}

// sourceStats are the per-source counters the Registry keeps.
type sourceStats struct {
	Attempts  int64
	Successes int64
	Empty     int64
	Errors    int64
}
