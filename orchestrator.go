package ppool

import (
	"context"
	"encoding/json"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Orchestrator owns the Fetcher Registry, Validator, Pool Manager and
// Durable Store, and schedules three cooperative loops: fetch, cleanup
// +validate, and persist, each on its own cron.Schedule entry.
type Orchestrator struct {
	cfg OrchestratorConfig

	registry  *Registry
	validator *Validator
	pool      *Manager
	store     Store
	metrics   *Metrics

	backupPath string

	cron      *cron.Cron
	fetchMu   sync.Mutex // single-flight guard for FetchCycle
	stopOnce  sync.Once
	stopped   chan struct{}
	runningWG sync.WaitGroup
}

// NewOrchestrator wires the four components into a scheduled lifecycle.
// store may be nil (durable persistence disabled; snapshots still write
// the local JSON backup).
func NewOrchestrator(cfg OrchestratorConfig, registry *Registry, validator *Validator, pool *Manager, store Store, metrics *Metrics, backupPath string) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		registry:   registry,
		validator:  validator,
		pool:       pool,
		store:      store,
		metrics:    metrics,
		backupPath: backupPath,
		cron:       cron.New(),
		stopped:    make(chan struct{}),
	}
}

// Start schedules the fetch/cleanup+validate/persist loops and begins
// running them.
func (o *Orchestrator) Start() error {
	log := logger("orchestrator", "lifecycle")

	if _, err := o.cron.AddFunc(intervalSpec(o.cfg.FetchInterval), func() {
		o.runCycle("fetch", o.FetchCycle)
	}); err != nil {
		return err
	}
	if _, err := o.cron.AddFunc(intervalSpec(o.cfg.CleanupInterval), func() {
		o.runCycle("cleanup+validate", func(ctx context.Context) error {
			if err := o.ValidateCycle(ctx); err != nil {
				return err
			}
			return o.CleanupCycle(ctx)
		})
	}); err != nil {
		return err
	}
	if _, err := o.cron.AddFunc(intervalSpec(o.cfg.SaveInterval), func() {
		o.runCycle("persist", o.PersistCycle)
	}); err != nil {
		return err
	}

	o.cron.Start()
	log.Info("orchestrator started")
	return nil
}

// Stop cancels the scheduler and awaits any in-flight cycle up to the
// configured shutdown deadline. Stop is idempotent.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() {
		close(o.stopped)
		ctx := o.cron.Stop() // cron's own context, done when running jobs finish
		deadline := o.cfg.ShutdownDeadline
		if deadline <= 0 {
			deadline = 30 * time.Second
		}
		select {
		case <-ctx.Done():
		case <-time.After(deadline):
		}
		o.runningWG.Wait()
	})
}

// runCycle wraps a cycle function with error isolation — one failing
// cycle is logged and retried once after a backoff, but never
// terminates the scheduler loop — plus duration/error metrics.
func (o *Orchestrator) runCycle(name string, fn func(ctx context.Context) error) {
	select {
	case <-o.stopped:
		return
	default:
	}

	o.runningWG.Add(1)
	defer o.runningWG.Done()

	log := logger("orchestrator", name)
	start := time.Now()
	ctx := context.Background()

	err := fn(ctx)
	if err != nil {
		log.Error("cycle failed, will retry once after backoff", "error", err)
		if o.metrics != nil {
			o.metrics.CycleErrors.WithLabelValues(name).Inc()
		}
		select {
		case <-o.stopped:
			return
		case <-time.After(o.errorRetryDelay()):
		}
		if retryErr := fn(ctx); retryErr != nil {
			log.Error("retry failed", "error", retryErr)
			if o.metrics != nil {
				o.metrics.CycleErrors.WithLabelValues(name).Inc()
			}
		}
	}

	if o.metrics != nil {
		o.metrics.CycleDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}
}

// errorRetryDelay picks a value in [ErrorRetryMin, ErrorRetryMax].
func (o *Orchestrator) errorRetryDelay() time.Duration {
	min, max := o.cfg.ErrorRetryMin, o.cfg.ErrorRetryMax
	if min <= 0 {
		min = 60 * time.Second
	}
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}

// FetchCycle runs registry.FetchAll -> validator.Validate -> pool.AddMany.
// Protected by fetchMu so a manual invocation can never interleave with
// a scheduled one.
func (o *Orchestrator) FetchCycle(ctx context.Context) error {
	if !o.fetchMu.TryLock() {
		logger("orchestrator", "fetch").Debug("fetch cycle already running, skipping")
		return nil
	}
	defer o.fetchMu.Unlock()

	candidates := o.registry.FetchAll(ctx, 0)
	if len(candidates) == 0 {
		return nil
	}
	results := o.validator.Validate(ctx, candidates)

	fresh := make([]*Record, 0, len(results))
	for _, res := range results {
		rec := res.Record
		if res.Err == nil {
			rec.Status = StatusActive
		} else {
			rec.Status = StatusInactive
		}
		fresh = append(fresh, rec)
	}
	o.pool.AddMany(fresh)

	if o.store != nil {
		if err := o.store.UpsertMany(ctx, fresh); err != nil {
			logger("orchestrator", "fetch").Warn("durable store upsert failed", "error", err)
		}
	}
	return nil
}

// ValidateCycle runs pool.RevalidateDue -> validator.Validate ->
// pool.Rebalance.
func (o *Orchestrator) ValidateCycle(ctx context.Context) error {
	due := o.pool.RevalidateDue()
	if len(due) == 0 {
		return nil
	}
	results := o.validator.Validate(ctx, due)

	measured := make([]*Record, 0, len(results))
	for _, res := range results {
		if res.Err == nil {
			res.Record.Status = StatusActive
		} else if res.Record.ConsecutiveFailures < 1 {
			res.Record.Status = StatusInactive
		}
		measured = append(measured, res.Record)
	}
	o.pool.Rebalance(measured)
	return nil
}

// CleanupCycle runs pool.CleanupBlacklist.
func (o *Orchestrator) CleanupCycle(ctx context.Context) error {
	purged := o.pool.CleanupBlacklist()
	if purged > 0 {
		logger("orchestrator", "cleanup").Info("purged blacklist entries", "count", purged)
	}
	return nil
}

// PersistCycle snapshots the pool to the durable store and a local JSON
// backup file. A durable-store failure is logged and does not prevent
// the local backup from being written.
func (o *Orchestrator) PersistCycle(ctx context.Context) error {
	data, err := o.pool.Snapshot()
	if err != nil {
		return err
	}

	if o.backupPath != "" {
		if err := os.WriteFile(o.backupPath, data, 0o644); err != nil {
			logger("orchestrator", "persist").Warn("local JSON backup write failed", "error", err)
		}
	}

	if o.store != nil {
		var doc snapshotDoc
		if err := json.Unmarshal(data, &doc); err == nil {
			var all []*Record
			for _, bucket := range doc.Pools {
				all = append(all, bucket.Proxies...)
			}
			if err := o.store.UpsertMany(ctx, all); err != nil {
				logger("orchestrator", "persist").Warn("durable store persist failed", "error", err)
			}
		}
	}
	return nil
}

// intervalSpec renders d as a robfig/cron "@every" schedule spec.
func intervalSpec(d time.Duration) string {
	if d <= 0 {
		d = time.Hour
	}
	return "@every " + d.String()
}
