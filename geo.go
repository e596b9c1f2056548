package ppool

import (
	"net"
	"sync"

	"github.com/oschwald/maxminddb-golang"
)

// geoRecord is the subset of a MaxMind GeoLite2-City database's fields
// this package reads.
type geoRecord struct {
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
	Subdivisions []struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"subdivisions"`
	City struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"city"`
}

// GeoLookup wraps an optional MaxMind database. A nil/unopened db makes
// lookup a no-op: geolocation is optional and best-effort, so its
// absence never fails a probe.
type GeoLookup struct {
	mu sync.RWMutex
	db *maxminddb.Reader
}

// OpenGeoLookup opens path if non-empty. A failure to open is returned
// to the caller, typically logged and ignored at startup: geolocation
// degrades gracefully, it doesn't abort validation.
func OpenGeoLookup(path string) (*GeoLookup, error) {
	if path == "" {
		return &GeoLookup{}, nil
	}
	db, err := maxminddb.Open(path)
	if err != nil {
		return nil, err
	}
	return &GeoLookup{db: db}, nil
}

func (g *GeoLookup) Close() error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.db == nil {
		return nil
	}
	return g.db.Close()
}

// annotate fills r's Country/Region/City from host's IP address. host
// must already be a literal IP (the reachability probe resolves it);
// a lookup miss or parse failure leaves the fields untouched.
func (g *GeoLookup) annotate(r *Record, host string) {
	g.mu.RLock()
	db := g.db
	g.mu.RUnlock()
	if db == nil {
		return
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return
	}
	var rec geoRecord
	if err := db.Lookup(ip, &rec); err != nil {
		return
	}
	r.Country = rec.Country.ISOCode
	if len(rec.Subdivisions) > 0 {
		r.Region = rec.Subdivisions[0].ISOCode
	}
	if name, ok := rec.City.Names["en"]; ok {
		r.City = name
	}
}
