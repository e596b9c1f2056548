package ppool

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestProtocolFromFilename(t *testing.T) {
	require.Equal(t, ProtocolSOCKS5, protocolFromFilename("https://example.com/lists/socks5.txt"))
	require.Equal(t, ProtocolSOCKS4, protocolFromFilename("https://example.com/lists/SOCKS4.txt"))
	require.Equal(t, ProtocolHTTP, protocolFromFilename("https://example.com/lists/misc.txt"))
}

func TestSCMMirrorFetcherSendsBearerTokenAndParses(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte("# comment\n6.6.6.6:1080\n"))
	}))
	t.Cleanup(srv.Close)

	f := NewSCMMirrorFetcher("scm", []string{srv.URL + "/lists/socks5.txt"}, "tok123", true, time.Millisecond, 2*time.Millisecond)
	records, err := f.Fetch(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, ProtocolSOCKS5, records[0].Protocol)
	require.Equal(t, "Bearer tok123", gotAuth)
}
