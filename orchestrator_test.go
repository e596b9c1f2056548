package ppool

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	upserted [][]*Record
	failPing bool
}

func (s *fakeStore) UpsertMany(ctx context.Context, records []*Record) error {
	s.upserted = append(s.upserted, records)
	return nil
}
func (s *fakeStore) Query(ctx context.Context, filter Filter, p Pagination, o Order) (Page, error) {
	return Page{}, nil
}
func (s *fakeStore) Ping(ctx context.Context) error {
	if s.failPing {
		return context.DeadlineExceeded
	}
	return nil
}

func testOrchestrator(t *testing.T, store Store, backupPath string) *Orchestrator {
	t.Helper()
	pool := testManager(t, PoolCapacities{HotMax: 10, WarmMax: 10, ColdMax: 10, BlacklistMax: 10})
	cfg := OrchestratorConfig{
		FetchInterval: time.Hour, CleanupInterval: time.Hour, SaveInterval: time.Hour,
		ShutdownDeadline: time.Second, ErrorRetryMin: time.Millisecond, ErrorRetryMax: 2 * time.Millisecond,
	}
	return NewOrchestrator(cfg, NewRegistry(nil), nil, pool, store, nil, backupPath)
}

func TestOrchestratorCleanupCyclePurgesBlacklist(t *testing.T) {
	orch := testOrchestrator(t, nil, "")
	orch.pool.blacklist.PurgeAfter = time.Millisecond

	r := activeRecord("13.13.13.13", 80, 100)
	r.ConsecutiveFailures = 10
	orch.pool.AddMany([]*Record{r})
	r.LastSuccessful = time.Now().Add(-time.Hour)

	require.NoError(t, orch.CleanupCycle(context.Background()))
	require.Equal(t, 0, orch.pool.Size(TierBlacklist))
}

// TestOrchestratorCleanupCyclePurgesDespiteFailedRevalidation reproduces the
// coupled-cron-tick scenario: ValidateCycle resurrects a due Blacklist
// entry, fails, and calls RecordFailure, which bumps LastChecked to "now"
// without touching LastSuccessful. The very next CleanupCycle in the same
// tick must still see it as purge-eligible once LastSuccessful is stale,
// regardless of how recently LastChecked was touched.
func TestOrchestratorCleanupCyclePurgesDespiteFailedRevalidation(t *testing.T) {
	orch := testOrchestrator(t, nil, "")
	orch.pool.blacklist.PurgeAfter = time.Millisecond

	r := activeRecord("14.14.14.14", 80, 100)
	r.ConsecutiveFailures = 10
	orch.pool.AddMany([]*Record{r})
	r.LastSuccessful = time.Now().Add(-time.Hour)

	// Simulate a failed revalidation attempt on the same cron tick,
	// immediately before cleanup runs: LastChecked is reset to now, but
	// LastSuccessful stays stale.
	r.RecordFailure()

	require.NoError(t, orch.CleanupCycle(context.Background()))
	require.Equal(t, 0, orch.pool.Size(TierBlacklist))
}

func TestOrchestratorPersistCycleWritesBackupAndStore(t *testing.T) {
	store := &fakeStore{}
	dir := t.TempDir()
	backupPath := filepath.Join(dir, "snapshot.json")
	orch := testOrchestrator(t, store, backupPath)

	r := activeRecord("14.14.14.14", 80, 100)
	orch.pool.AddMany([]*Record{r})

	require.NoError(t, orch.PersistCycle(context.Background()))

	data, err := os.ReadFile(backupPath)
	require.NoError(t, err)
	var doc snapshotDoc
	require.NoError(t, json.Unmarshal(data, &doc))
	require.NotEmpty(t, doc.GenerationID)

	require.Len(t, store.upserted, 1)
}

func TestOrchestratorPersistCycleSkipsStoreWhenNil(t *testing.T) {
	dir := t.TempDir()
	backupPath := filepath.Join(dir, "snapshot.json")
	orch := testOrchestrator(t, nil, backupPath)

	require.NoError(t, orch.PersistCycle(context.Background()))
	_, err := os.Stat(backupPath)
	require.NoError(t, err)
}

func TestOrchestratorErrorRetryDelayWithinBounds(t *testing.T) {
	orch := testOrchestrator(t, nil, "")
	orch.cfg.ErrorRetryMin = 10 * time.Millisecond
	orch.cfg.ErrorRetryMax = 20 * time.Millisecond
	for i := 0; i < 20; i++ {
		d := orch.errorRetryDelay()
		require.GreaterOrEqual(t, d, orch.cfg.ErrorRetryMin)
		require.LessOrEqual(t, d, orch.cfg.ErrorRetryMax)
	}
}

func TestOrchestratorRunCycleRetriesOnceOnError(t *testing.T) {
	orch := testOrchestrator(t, nil, "")
	orch.cfg.ErrorRetryMin = time.Millisecond
	orch.cfg.ErrorRetryMax = 2 * time.Millisecond

	calls := 0
	orch.runCycle("test", func(ctx context.Context) error {
		calls++
		return context.DeadlineExceeded
	})
	require.Equal(t, 2, calls, "one initial attempt plus one retry")
}

func TestOrchestratorRunCycleNoRetryOnSuccess(t *testing.T) {
	orch := testOrchestrator(t, nil, "")
	calls := 0
	orch.runCycle("test", func(ctx context.Context) error {
		calls++
		return nil
	})
	require.Equal(t, 1, calls)
}

func TestOrchestratorStopIsIdempotent(t *testing.T) {
	orch := testOrchestrator(t, nil, "")
	require.NoError(t, orch.Start())
	orch.Stop()
	require.NotPanics(t, func() { orch.Stop() })
}

func TestIntervalSpecDefaultsOnNonPositive(t *testing.T) {
	require.Equal(t, "@every 1h0m0s", intervalSpec(0))
	require.Equal(t, "@every 30s", intervalSpec(30*time.Second))
}
