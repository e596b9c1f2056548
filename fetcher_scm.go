package ppool

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"
)

// SCMMirrorFetcher issues outgoing HTTP GETs to raw-file URLs hosted by
// a versioned repository service (e.g. a "raw.githubusercontent.com"
// style mirror), parsing plain-text `host:port` lines. An optional
// bearer token is sent when configured, and the protocol is inferred
// from the filename stem. Uses the same request shape as
// HTTPAPIFetcher, with the filename-stem protocol inference and bearer
// auth header as the only real differences.
type SCMMirrorFetcher struct {
	name        string
	urls        []string
	bearerToken string
	enabled     bool
	jitterMin   time.Duration
	jitterMax   time.Duration
	client      *http.Client
}

var _ Fetcher = (*SCMMirrorFetcher)(nil)

func NewSCMMirrorFetcher(name string, urls []string, bearerToken string, enabled bool, jitterMin, jitterMax time.Duration) *SCMMirrorFetcher {
	if jitterMin <= 0 {
		jitterMin = 500 * time.Millisecond
	}
	if jitterMax <= jitterMin {
		jitterMax = 2 * time.Second
	}
	return &SCMMirrorFetcher{
		name: name, urls: urls, bearerToken: bearerToken, enabled: enabled,
		jitterMin: jitterMin, jitterMax: jitterMax,
		client: &http.Client{Timeout: httpFetchTimeout},
	}
}

func (f *SCMMirrorFetcher) Name() string  { return f.name }
func (f *SCMMirrorFetcher) Enabled() bool { return f.enabled }

func (f *SCMMirrorFetcher) Fetch(ctx context.Context, limit int) ([]*Record, error) {
	log := logger("fetcher", f.name)
	var out []*Record
	var firstErr error

	for i, url := range f.urls {
		if limit > 0 && len(out) >= limit {
			break
		}
		if i > 0 {
			jitterSleep(f.jitterMin, f.jitterMax)
		}
		proto := protocolFromFilename(url)
		records, err := f.fetchOne(ctx, url, proto)
		if err != nil {
			log.Warn("request failed", "url", url, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		out = append(out, records...)
	}

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	if len(out) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func (f *SCMMirrorFetcher) fetchOne(ctx context.Context, url string, proto Protocol) ([]*Record, error) {
	reqCtx, cancel := context.WithTimeout(ctx, httpFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if f.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+f.bearerToken)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ProbeError{Kind: ErrHTTPStatus, StatusCode: resp.StatusCode}
	}

	var out []*Record
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		id, err := parseSCMLine(line, proto)
		if err != nil {
			continue // skip the line, continue
		}
		out = append(out, NewRecord(id, f.name))
	}
	return out, scanner.Err()
}

// protocolFromFilename infers the protocol variant from a raw-file URL's
// filename stem, e.g. ".../lists/socks5.txt" -> ProtocolSOCKS5. Falls
// back to ProtocolHTTP when the stem isn't recognized.
func protocolFromFilename(url string) Protocol {
	stem := strings.TrimSuffix(path.Base(url), path.Ext(url))
	stem = strings.ToLower(stem)
	for _, candidate := range []Protocol{ProtocolHTTPS, ProtocolHTTP, ProtocolSOCKS5, ProtocolSOCKS4} {
		if strings.Contains(stem, candidate.String()) {
			return candidate
		}
	}
	return ProtocolHTTP
}

func parseSCMLine(line string, proto Protocol) (Identity, error) {
	idx := strings.LastIndexByte(line, ':')
	if idx < 0 {
		return Identity{}, fmt.Errorf("expected host:port, got %q", line)
	}
	port, err := strconv.Atoi(line[idx+1:])
	if err != nil {
		return Identity{}, fmt.Errorf("invalid port in %q: %w", line, err)
	}
	id := Identity{Host: line[:idx], Port: port, Protocol: proto}
	if !id.Valid() {
		return Identity{}, fmt.Errorf("invalid identity from %q", line)
	}
	return id, nil
}
