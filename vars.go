package ppool

import (
	"expvar"
	"fmt"
)

// getVarInt returns an *expvar.Int with the given path, creating it if
// this is the first call for that path. Every component's counters are
// inspectable the same way, e.g. via /debug/vars if the embedding
// application exposes it, independent of the Prometheus registry in
// metrics.go.
func getVarInt(base, id, name string) *expvar.Int {
	fullname := fmt.Sprintf("proxypool.%s.%s.%s", base, id, name)
	if v := expvar.Get(fullname); v != nil {
		return v.(*expvar.Int)
	}
	return expvar.NewInt(fullname)
}

// getVarMap returns an *expvar.Map with the given path, creating it if
// this is the first call for that path.
func getVarMap(base, id, name string) *expvar.Map {
	fullname := fmt.Sprintf("proxypool.%s.%s.%s", base, id, name)
	if v := expvar.Get(fullname); v != nil {
		return v.(*expvar.Map)
	}
	return expvar.NewMap(fullname)
}
