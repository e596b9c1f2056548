package ppool

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

// proxyIdentifyingHeaders is the allow-list of request headers that, if
// echoed back by the headers-echo endpoint, indicate the candidate
// proxy identified itself to the upstream.
var proxyIdentifyingHeaders = []string{
	"Via", "X-Forwarded-For", "X-Real-Ip", "Forwarded", "Proxy-Connection",
}

// headersEchoResponse is the shape of a headers-echo endpoint's JSON
// body: the full set of request headers the endpoint received, plus
// the same origin field an echo-ip endpoint returns.
type headersEchoResponse struct {
	Origin  string            `json:"origin"`
	Headers map[string]string `json:"headers"`
}

// newProxyClient builds an *http.Client that dials through candidate for
// every request. HTTP/HTTPS candidates use a standard forward-proxy
// Transport; SOCKS5 candidates dial via golang.org/x/net/proxy.
//
// SOCKS4 is accepted at the identity/config level, and fetchers can
// produce SOCKS4 candidates, but golang.org/x/net/proxy only implements
// the SOCKS5 handshake and there is no SOCKS4 CONNECT path here: a
// SOCKS4 candidate gets an ErrOther error and always fails validation.
func newProxyClient(candidate *Record, timeout time.Duration) (*http.Client, error) {
	addr := fmt.Sprintf("%s:%d", candidate.Host, candidate.Port)

	switch candidate.Protocol {
	case ProtocolHTTP, ProtocolHTTPS:
		proxyURL := &url.URL{Scheme: candidate.Protocol.String(), Host: addr}
		return &http.Client{
			Timeout:   timeout,
			Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		}, nil
	case ProtocolSOCKS5:
		dialer, err := proxy.SOCKS5("tcp", addr, nil, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("building socks5 dialer: %w", err)
		}
		return &http.Client{
			Timeout:   timeout,
			Transport: &http.Transport{Dial: dialer.Dial},
		}, nil
	default:
		return nil, &ProbeError{Kind: ErrOther, Detail: fmt.Sprintf("unsupported protocol %s", candidate.Protocol)}
	}
}

// reachabilityProbe opens a connection through client to echoURL and, on
// success, returns the elapsed time to first byte and the echoed origin
// IP, combined since both read the same body.
func reachabilityProbe(ctx context.Context, client *http.Client, echoURL string) (elapsedMs int, originIP string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, echoURL, nil)
	if err != nil {
		return 0, "", &ProbeError{Kind: ErrOther, Detail: err.Error()}
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, "", &ProbeError{Kind: ErrTimeout}
		}
		return 0, "", &ProbeError{Kind: ErrConnectionRefused, Detail: err.Error()}
	}
	defer resp.Body.Close()
	elapsed := time.Since(start)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, "", &ProbeError{Kind: ErrHTTPStatus, StatusCode: resp.StatusCode}
	}

	var body echoIPResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, "", &ProbeError{Kind: ErrParseError, Detail: err.Error()}
	}
	if body.Origin == "" {
		return 0, "", &ProbeError{Kind: ErrParseError, Detail: "empty origin field"}
	}
	return int(elapsed.Milliseconds()), body.Origin, nil
}

// anonymityProbe issues a second request through client to a
// headers-echo endpoint and classifies anonymity by an ordered rule:
// own-IP match is Transparent, a leaked proxy header is Anonymous,
// otherwise Elite. ownIP may be empty if it couldn't be learned, in
// which case Elite can't be positively proven (degrades to Anonymous).
func anonymityProbe(ctx context.Context, client *http.Client, headersURL, ownIP string) (Anonymity, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, headersURL, nil)
	if err != nil {
		return AnonymityUnknown, "", &ProbeError{Kind: ErrOther, Detail: err.Error()}
	}
	resp, err := client.Do(req)
	if err != nil {
		return AnonymityUnknown, "", &ProbeError{Kind: ErrConnectionRefused, Detail: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return AnonymityUnknown, "", &ProbeError{Kind: ErrHTTPStatus, StatusCode: resp.StatusCode}
	}

	var body headersEchoResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return AnonymityUnknown, "", &ProbeError{Kind: ErrParseError, Detail: err.Error()}
	}

	if ownIP != "" && body.Origin == ownIP {
		return AnonymityTransparent, body.Origin, nil
	}
	if hasProxyIdentifyingHeader(body.Headers) {
		return AnonymityAnonymous, body.Origin, nil
	}
	if ownIP == "" {
		// Own IP couldn't be learned: Elite can't be positively proven.
		return AnonymityAnonymous, body.Origin, nil
	}
	return AnonymityElite, body.Origin, nil
}

func hasProxyIdentifyingHeader(headers map[string]string) bool {
	for _, want := range proxyIdentifyingHeaders {
		for got := range headers {
			if strings.EqualFold(got, want) {
				return true
			}
		}
	}
	return false
}
