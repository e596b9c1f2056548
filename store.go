package ppool

import "context"

// Pagination bounds a Query result page.
type Pagination struct {
	Offset int
	Limit  int
}

// Order is a single sort key for Query.
type Order struct {
	Field string // "score", "last_checked", "response_time_ms", ...
	Desc  bool
}

// Page is one page of a Query result.
type Page struct {
	Records []*Record
	Total   int
}

// Store is the durable storage contract: three operations, wrapping an
// opaque relational store. The core depends only on this interface,
// never on a concrete driver.
type Store interface {
	UpsertMany(ctx context.Context, records []*Record) error
	Query(ctx context.Context, filter Filter, pagination Pagination, order Order) (Page, error)
	Ping(ctx context.Context) error
}
