package ppool

import (
	"context"
	"expvar"
	"fmt"
	"sync"
)

// Registry is a set of named source adapters, each serialized against
// itself but run concurrently against its siblings, fanned into a
// deduplicated union. At most one fetch-all is in flight at a time.
type Registry struct {
	fetchMu sync.Mutex // guards an entire fetch-all invocation

	mu       sync.Mutex // guards fetchers/stats/backoff maps
	fetchers map[string]Fetcher
	order    []string // insertion order, for deterministic iteration
	stats    map[string]*sourceStats

	// backoff tracks consecutive empty/error results per source. A
	// source is skipped for skipRemaining additional fetch-all calls
	// once it crosses the threshold, then retried at full frequency
	// again.
	backoff map[string]*backoffState
	vars    map[string]sourceVars

	metrics *Metrics
}

type backoffState struct {
	consecutiveMisses int
	skipRemaining     int
}

// sourceVars is a cheap, dependency-free view of per-source health via
// /debug/vars, independent of whatever Prometheus registry an embedding
// app wires up.
type sourceVars struct {
	attempts *expvar.Int
	success  *expvar.Int
	errors   *expvar.Int
}

func newSourceVars(name string) sourceVars {
	return sourceVars{
		attempts: getVarInt("registry", name, "attempts"),
		success:  getVarInt("registry", name, "success"),
		errors:   getVarInt("registry", name, "errors"),
	}
}

const backoffMissThreshold = 3 // misses in a row before pausing
const backoffSkipCycles = 2    // fetch-all calls to skip once paused

// NewRegistry constructs an empty Registry. Fetchers are added with
// Register before the first FetchAll call.
func NewRegistry(metrics *Metrics) *Registry {
	return &Registry{
		fetchers: make(map[string]Fetcher),
		stats:    make(map[string]*sourceStats),
		backoff:  make(map[string]*backoffState),
		vars:     make(map[string]sourceVars),
		metrics:  metrics,
	}
}

// Register adds a fetcher to the registry, keyed by its Name(). Calling
// Register twice with the same name replaces the prior fetcher.
func (reg *Registry) Register(f Fetcher) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, exists := reg.fetchers[f.Name()]; !exists {
		reg.order = append(reg.order, f.Name())
	}
	reg.fetchers[f.Name()] = f
	if _, ok := reg.stats[f.Name()]; !ok {
		reg.stats[f.Name()] = &sourceStats{}
	}
	if _, ok := reg.backoff[f.Name()]; !ok {
		reg.backoff[f.Name()] = &backoffState{}
	}
	if _, ok := reg.vars[f.Name()]; !ok {
		reg.vars[f.Name()] = newSourceVars(f.Name())
	}
}

// Stats returns a snapshot of the per-source counters.
func (reg *Registry) Stats() map[string]sourceStats {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	out := make(map[string]sourceStats, len(reg.stats))
	for name, s := range reg.stats {
		out[name] = *s
	}
	return out
}

// FetchAll runs every enabled, non-backed-off fetcher concurrently and
// returns the deduplicated union of their candidates, keyed by (host,
// port) with protocol collisions resolved by keeping the first
// observation. Failure of any one fetcher — including a panic — never
// fails the batch; errors are logged and counted, and the batch
// proceeds with partial results.
func (reg *Registry) FetchAll(ctx context.Context, limit int) []*Record {
	reg.fetchMu.Lock()
	defer reg.fetchMu.Unlock()

	reg.mu.Lock()
	type job struct {
		name string
		f    Fetcher
	}
	var jobs []job
	for _, name := range reg.order {
		f := reg.fetchers[name]
		if !f.Enabled() {
			continue
		}
		bo := reg.backoff[name]
		if bo.skipRemaining > 0 {
			bo.skipRemaining--
			logger("registry", name).Debug("skipping fetch, still backed off")
			continue
		}
		jobs = append(jobs, job{name, f})
	}
	reg.mu.Unlock()

	type result struct {
		name    string
		records []*Record
		err     error
	}
	resultsCh := make(chan result, len(jobs))

	var wg sync.WaitGroup
	for _, j := range jobs {
		j := j
		wg.Add(1)
		go func() {
			defer wg.Done()
			records, err := reg.runFetcherSafely(ctx, j.f, limit)
			resultsCh <- result{j.name, records, err}
		}()
	}
	wg.Wait()
	close(resultsCh)

	dedup := make(map[[2]any]*Record)
	var order [][2]any
	for res := range resultsCh {
		reg.recordOutcome(res.name, res.records, res.err)
		for _, r := range res.records {
			key := [2]any{r.Host, r.Port}
			if _, exists := dedup[key]; exists {
				continue // first observation wins on (host, port) collision
			}
			dedup[key] = r
			order = append(order, key)
		}
	}

	out := make([]*Record, 0, len(order))
	for _, key := range order {
		out = append(out, dedup[key])
	}
	return out
}

// runFetcherSafely isolates one fetcher's panics from the rest of the
// batch: isolated, counted, batch proceeds.
func (reg *Registry) runFetcherSafely(ctx context.Context, f Fetcher, limit int) (records []*Record, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("fetcher %q panicked: %v", f.Name(), p)
		}
	}()
	return f.Fetch(ctx, limit)
}

func (reg *Registry) recordOutcome(name string, records []*Record, err error) {
	reg.mu.Lock()
	stats := reg.stats[name]
	bo := reg.backoff[name]
	vars := reg.vars[name]
	stats.Attempts++
	vars.attempts.Add(1)
	if reg.metrics != nil {
		reg.metrics.FetchAttempts.WithLabelValues(name).Inc()
		reg.metrics.FetchCandidates.WithLabelValues(name).Add(float64(len(records)))
	}
	switch {
	case err != nil:
		stats.Errors++
		bo.consecutiveMisses++
		vars.errors.Add(1)
		if reg.metrics != nil {
			reg.metrics.FetchErrors.WithLabelValues(name).Inc()
		}
		logger("registry", name).Warn("fetch failed", "error", err)
	case len(records) == 0:
		stats.Empty++
		bo.consecutiveMisses++
		if reg.metrics != nil {
			reg.metrics.FetchEmpty.WithLabelValues(name).Inc()
		}
	default:
		stats.Successes++
		bo.consecutiveMisses = 0
		bo.skipRemaining = 0
		vars.success.Add(1)
		if reg.metrics != nil {
			reg.metrics.FetchSuccesses.WithLabelValues(name).Inc()
		}
	}
	if bo.consecutiveMisses >= backoffMissThreshold && bo.skipRemaining == 0 {
		bo.skipRemaining = backoffSkipCycles
		logger("registry", name).Info("pausing source after repeated empty/error results",
			"consecutive_misses", bo.consecutiveMisses, "skip_cycles", backoffSkipCycles)
	}
	reg.mu.Unlock()
}
