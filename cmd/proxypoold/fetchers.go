package main

import (
	"fmt"

	ppool "proxypool"
)

// instantiateFetcher dispatches on FetcherConfig.Kind to pick a
// constructor.
func instantiateFetcher(fc ppool.FetcherConfig) (ppool.Fetcher, error) {
	switch fc.Kind {
	case "file":
		return ppool.NewFileFetcher(fc.Name, fc.Path, fc.Enabled), nil
	case "upstream-api":
		return ppool.NewHTTPAPIFetcher(fc.Name, fc.URLs, fc.Protocols, fc.Enabled, fc.JitterMin, fc.JitterMax), nil
	case "scm-mirror":
		return ppool.NewSCMMirrorFetcher(fc.Name, fc.URLs, fc.BearerToken, fc.Enabled, fc.JitterMin, fc.JitterMax), nil
	case "search-index":
		endpoint := ""
		if len(fc.URLs) > 0 {
			endpoint = fc.URLs[0]
		}
		return ppool.NewSearchIndexFetcher(fc.Name, endpoint, fc.Query, fc.APIKey, fc.APISecret, fc.Enabled), nil
	default:
		return nil, fmt.Errorf("unknown fetcher kind %q", fc.Kind)
	}
}
