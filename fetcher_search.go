package ppool

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// searchIndexHit is the shape of one result from a network-discovery
// search API. The core hard-codes no specific vendor's schema beyond
// this generic, field-named shape — operators adapt a thin translation
// layer in front of this fetcher for a specific provider's response
// format if it differs.
type searchIndexHit struct {
	IP       string `json:"ip"`
	Port     int    `json:"port"`
	Protocol string `json:"protocol"`
	Country  string `json:"country"`
	ASN      string `json:"asn"`
}

type searchIndexResponse struct {
	Results []searchIndexHit `json:"results"`
}

// SearchIndexFetcher issues an authenticated query to a network-
// discovery search API and parses the structured response into
// candidate records. Grounded on HTTPAPIFetcher's request/timeout shape,
// with JSON-object (not line-oriented) parsing and a separate
// credential pair in place of a bearer token.
type SearchIndexFetcher struct {
	name      string
	endpoint  string
	query     string
	apiKey    string
	apiSecret string
	enabled   bool
	client    *http.Client
}

var _ Fetcher = (*SearchIndexFetcher)(nil)

func NewSearchIndexFetcher(name, endpoint, query, apiKey, apiSecret string, enabled bool) *SearchIndexFetcher {
	return &SearchIndexFetcher{
		name: name, endpoint: endpoint, query: query,
		apiKey: apiKey, apiSecret: apiSecret, enabled: enabled,
		client: &http.Client{Timeout: httpFetchTimeout},
	}
}

func (f *SearchIndexFetcher) Name() string  { return f.name }
func (f *SearchIndexFetcher) Enabled() bool { return f.enabled }

func (f *SearchIndexFetcher) Fetch(ctx context.Context, limit int) ([]*Record, error) {
	reqCtx, cancel := context.WithTimeout(ctx, httpFetchTimeout)
	defer cancel()

	q := url.Values{}
	q.Set("q", f.query)
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, f.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if f.apiKey != "" {
		req.SetBasicAuth(f.apiKey, f.apiSecret)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &QuotaExceededError{Source: f.name}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ProbeError{Kind: ErrHTTPStatus, StatusCode: resp.StatusCode}
	}

	var parsed searchIndexResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &ProbeError{Kind: ErrParseError, Detail: err.Error()}
	}

	log := logger("fetcher", f.name)
	var out []*Record
	for _, hit := range parsed.Results {
		if limit > 0 && len(out) >= limit {
			break
		}
		proto, ok := ParseProtocol(hit.Protocol)
		if !ok {
			proto = ProtocolHTTP
		}
		id := Identity{Host: hit.IP, Port: hit.Port, Protocol: proto}
		if !id.Valid() {
			log.Debug("skipping invalid hit", "hit", hit)
			continue
		}
		rec := NewRecord(id, f.name)
		rec.Country = hit.Country
		rec.ASN = hit.ASN
		out = append(out, rec)
	}
	return out, nil
}
