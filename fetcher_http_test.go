package ppool

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHTTPAPIFetcherParsesPlainText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("1.1.1.1:80\n2.2.2.2:8080\n\nbad-line\n"))
	}))
	t.Cleanup(srv.Close)

	f := NewHTTPAPIFetcher("upstream", []string{srv.URL}, []Protocol{ProtocolHTTP}, true, time.Millisecond, 2*time.Millisecond)
	records, err := f.Fetch(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
}

func TestHTTPAPIFetcherParsesJSONArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`["3.3.3.3:80", "4.4.4.4:8080"]`))
	}))
	t.Cleanup(srv.Close)

	f := NewHTTPAPIFetcher("upstream", []string{srv.URL}, []Protocol{ProtocolHTTPS}, true, time.Millisecond, 2*time.Millisecond)
	records, err := f.Fetch(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, ProtocolHTTPS, records[0].Protocol)
}

func TestHTTPAPIFetcherNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	f := NewHTTPAPIFetcher("upstream", []string{srv.URL}, nil, true, time.Millisecond, 2*time.Millisecond)
	_, err := f.Fetch(context.Background(), 0)
	require.Error(t, err)
}

func TestHTTPAPIFetcherPartialFailureStillReturnsResults(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("5.5.5.5:80\n"))
	}))
	t.Cleanup(ok.Close)
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(bad.Close)

	f := NewHTTPAPIFetcher("upstream", []string{bad.URL, ok.URL}, nil, true, time.Millisecond, 2*time.Millisecond)
	records, err := f.Fetch(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
}
