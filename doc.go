// Package ppool implements the core of a proxy-harvesting and
// proxy-serving pipeline: it discovers candidate proxy endpoints from
// pluggable sources, validates them through themselves, scores and
// classifies them into tiered pools, and serves callers a fit-for-purpose
// proxy on demand with at-most-one concurrent lease per proxy.
//
// The HTTP API, web UI, CLI wizard, SQL schema ownership beyond the three
// durable-store operations, ETL pipeline, monitoring dashboard, ML quality
// prediction, and arbitrary port scanning are not part of this package;
// see cmd/proxypoold for a minimal entrypoint that wires the pieces below
// into a running process.
package ppool
