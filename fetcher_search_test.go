package ppool

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSearchIndexFetcherParsesResultsAndSendsBasicAuth(t *testing.T) {
	var gotUser, gotPass string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotPass, _ = r.BasicAuth()
		json.NewEncoder(w).Encode(searchIndexResponse{Results: []searchIndexHit{
			{IP: "7.7.7.7", Port: 8080, Protocol: "http", Country: "US"},
			{IP: "", Port: 0, Protocol: "http"}, // invalid, must be skipped
		}})
	}))
	t.Cleanup(srv.Close)

	f := NewSearchIndexFetcher("search", srv.URL, "proxy:open", "key", "secret", true)
	records, err := f.Fetch(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "US", records[0].Country)
	require.Equal(t, "key", gotUser)
	require.Equal(t, "secret", gotPass)
}

func TestSearchIndexFetcherQuotaExceeded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	f := NewSearchIndexFetcher("search", srv.URL, "q", "", "", true)
	_, err := f.Fetch(context.Background(), 0)
	require.Error(t, err)
	_, ok := err.(*QuotaExceededError)
	require.True(t, ok)
}

func TestSearchIndexFetcherUnknownProtocolDefaultsHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(searchIndexResponse{Results: []searchIndexHit{
			{IP: "8.8.8.8", Port: 80, Protocol: "carrier-pigeon"},
		}})
	}))
	t.Cleanup(srv.Close)

	f := NewSearchIndexFetcher("search", srv.URL, "q", "", "", true)
	records, err := f.Fetch(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, ProtocolHTTP, records[0].Protocol)
}
