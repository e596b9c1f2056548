package ppool

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

// echoIPResponse is the shape of a bare echo-ip endpoint's JSON body:
// {"origin": "<client-ip>"} or equivalent.
type echoIPResponse struct {
	Origin string `json:"origin"`
}

// ownIPCache learns and caches the caller's own egress IP for the
// process lifetime. Write-once under a sync.Once guard, read-mostly
// afterwards.
type ownIPCache struct {
	once sync.Once
	ip   string
	err  error
}

// get returns the cached own-IP, performing the bare (no-proxy) lookup
// on first call. If the lookup fails, err is non-nil on every call and
// callers must degrade gracefully: if it can't be learned, Elite
// anonymity can't be positively proven and is reported as Anonymous
// conservatively.
func (c *ownIPCache) get(ctx context.Context, client *http.Client, echoURL string) (string, error) {
	c.once.Do(func() {
		c.ip, c.err = fetchEchoOrigin(ctx, client, echoURL)
	})
	return c.ip, c.err
}

func fetchEchoOrigin(ctx context.Context, client *http.Client, echoURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, echoURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("echo-ip endpoint %s returned status %d", echoURL, resp.StatusCode)
	}
	var body echoIPResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("echo-ip endpoint %s: %w", echoURL, err)
	}
	if body.Origin == "" {
		return "", fmt.Errorf("echo-ip endpoint %s returned empty origin", echoURL)
	}
	return body.Origin, nil
}
