package ppool

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func echoIPServer(t *testing.T, origin string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(echoIPResponse{Origin: origin})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestReachabilityProbeSuccess(t *testing.T) {
	srv := echoIPServer(t, "203.0.113.5")
	ms, origin, err := reachabilityProbe(context.Background(), srv.Client(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "203.0.113.5", origin)
	require.GreaterOrEqual(t, ms, 0)
}

func TestReachabilityProbeNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	_, _, err := reachabilityProbe(context.Background(), srv.Client(), srv.URL)
	require.Error(t, err)
	pe, ok := err.(*ProbeError)
	require.True(t, ok)
	require.Equal(t, ErrHTTPStatus, pe.Kind)
	require.Equal(t, http.StatusBadGateway, pe.StatusCode)
}

func TestReachabilityProbeEmptyOrigin(t *testing.T) {
	srv := echoIPServer(t, "")
	_, _, err := reachabilityProbe(context.Background(), srv.Client(), srv.URL)
	require.Error(t, err)
	pe, ok := err.(*ProbeError)
	require.True(t, ok)
	require.Equal(t, ErrParseError, pe.Kind)
}

func headersEchoServer(t *testing.T, origin string, headers map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(headersEchoResponse{Origin: origin, Headers: headers})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAnonymityProbeTransparentWhenOriginMatchesOwnIP(t *testing.T) {
	srv := headersEchoServer(t, "198.51.100.1", nil)
	a, _, err := anonymityProbe(context.Background(), srv.Client(), srv.URL, "198.51.100.1")
	require.NoError(t, err)
	require.Equal(t, AnonymityTransparent, a)
}

func TestAnonymityProbeAnonymousWhenProxyHeaderLeaked(t *testing.T) {
	srv := headersEchoServer(t, "203.0.113.9", map[string]string{"Via": "1.1 proxy"})
	a, _, err := anonymityProbe(context.Background(), srv.Client(), srv.URL, "198.51.100.1")
	require.NoError(t, err)
	require.Equal(t, AnonymityAnonymous, a)
}

func TestAnonymityProbeEliteWhenCleanAndOwnIPKnown(t *testing.T) {
	srv := headersEchoServer(t, "203.0.113.9", map[string]string{"Accept-Encoding": "gzip"})
	a, _, err := anonymityProbe(context.Background(), srv.Client(), srv.URL, "198.51.100.1")
	require.NoError(t, err)
	require.Equal(t, AnonymityElite, a)
}

func TestAnonymityProbeDegradesToAnonymousWhenOwnIPUnknown(t *testing.T) {
	srv := headersEchoServer(t, "203.0.113.9", map[string]string{"Accept-Encoding": "gzip"})
	a, _, err := anonymityProbe(context.Background(), srv.Client(), srv.URL, "")
	require.NoError(t, err)
	require.Equal(t, AnonymityAnonymous, a)
}

func TestHasProxyIdentifyingHeaderCaseInsensitive(t *testing.T) {
	require.True(t, hasProxyIdentifyingHeader(map[string]string{"x-forwarded-for": "1.2.3.4"}))
	require.False(t, hasProxyIdentifyingHeader(map[string]string{"User-Agent": "curl"}))
}

func TestNewProxyClientRejectsSOCKS4(t *testing.T) {
	candidate := &Record{Identity: Identity{Host: "127.0.0.1", Port: 1080, Protocol: ProtocolSOCKS4}}
	_, err := newProxyClient(candidate, 0)
	require.Error(t, err)
	pe, ok := err.(*ProbeError)
	require.True(t, ok)
	require.Equal(t, ErrOther, pe.Kind)
}

func TestNewProxyClientBuildsHTTPTransport(t *testing.T) {
	candidate := &Record{Identity: Identity{Host: "127.0.0.1", Port: 8080, Protocol: ProtocolHTTP}}
	client, err := newProxyClient(candidate, 0)
	require.NoError(t, err)
	require.NotNil(t, client.Transport)
}
