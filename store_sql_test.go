package ppool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	store, err := NewSQLStore(SQLStoreOptions{DSN: "file::memory:?cache=shared"})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLStorePing(t *testing.T) {
	store := newTestSQLStore(t)
	require.NoError(t, store.Ping(context.Background()))
}

func TestSQLStoreUpsertInsertsThenUpdatesPreservingFirstSeen(t *testing.T) {
	store := newTestSQLStore(t)
	ctx := context.Background()

	r := activeRecord("11.11.11.11", 3128, 200)
	r.Country = "US"
	firstSeen := r.FirstSeen
	require.NoError(t, store.UpsertMany(ctx, []*Record{r}))

	page, err := store.Query(ctx, Filter{}, Pagination{Limit: 10}, Order{})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	require.Equal(t, firstSeen.Unix(), page.Records[0].FirstSeen.Unix())

	r.ResponseTimeMs = 999
	r.Score = 77
	require.NoError(t, store.UpsertMany(ctx, []*Record{r}))

	page, err = store.Query(ctx, Filter{}, Pagination{Limit: 10}, Order{})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total, "update must not create a second row")
	require.Equal(t, 999, page.Records[0].ResponseTimeMs)
	require.Equal(t, firstSeen.Unix(), page.Records[0].FirstSeen.Unix(), "first_seen preserved across update")
}

func TestSQLStoreQueryFilterAndPagination(t *testing.T) {
	store := newTestSQLStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		r := activeRecord("12.12.12."+string(rune('1'+i)), 8080, 100*(i+1))
		r.Score = float64(10 * (i + 1))
		r.Country = "US"
		require.NoError(t, store.UpsertMany(ctx, []*Record{r}))
	}

	page, err := store.Query(ctx, Filter{MinScore: 30}, Pagination{Limit: 10}, Order{Field: "score", Desc: true})
	require.NoError(t, err)
	require.Equal(t, 3, page.Total)
	require.True(t, page.Records[0].Score >= page.Records[len(page.Records)-1].Score)

	page, err = store.Query(ctx, Filter{}, Pagination{Limit: 2, Offset: 0}, Order{})
	require.NoError(t, err)
	require.Len(t, page.Records, 2)
	require.Equal(t, 5, page.Total)
}
