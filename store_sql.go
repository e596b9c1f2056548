package ppool

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLStoreOptions configures the durable store's SQL backend.
type SQLStoreOptions struct {
	DSN         string // e.g. "file:proxypool.db?cache=shared"
	MaxOpenConn int    // default 10
	MaxIdleConn int    // default 2
	OpTimeout   time.Duration
}

// SQLStore is the reference Store implementation: a cgo-free SQLite
// driver behind database/sql, owning the proxy_nodes schema.
type SQLStore struct {
	db  *sql.DB
	opt SQLStoreOptions
}

var _ Store = (*SQLStore)(nil)

const createProxyNodesTable = `
CREATE TABLE IF NOT EXISTS proxy_nodes (
	host TEXT NOT NULL,
	port INTEGER NOT NULL,
	protocol TEXT NOT NULL,
	status TEXT NOT NULL,
	anonymity TEXT NOT NULL,
	country TEXT,
	region TEXT,
	city TEXT,
	isp TEXT,
	asn TEXT,
	response_time_ms INTEGER,
	has_response_time INTEGER NOT NULL DEFAULT 0,
	total_requests INTEGER NOT NULL DEFAULT 0,
	successful_requests INTEGER NOT NULL DEFAULT 0,
	failed_requests INTEGER NOT NULL DEFAULT 0,
	consecutive_failures INTEGER NOT NULL DEFAULT 0,
	success_rate REAL NOT NULL DEFAULT 0,
	score REAL NOT NULL DEFAULT 0,
	speed_class TEXT,
	source TEXT,
	source_url TEXT,
	tags TEXT,
	metadata TEXT,
	last_checked DATETIME,
	last_successful DATETIME,
	last_leased_at DATETIME,
	first_seen DATETIME NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (host, port, protocol)
);
CREATE INDEX IF NOT EXISTS idx_proxy_nodes_status ON proxy_nodes(status);
CREATE INDEX IF NOT EXISTS idx_proxy_nodes_last_checked ON proxy_nodes(last_checked);
CREATE INDEX IF NOT EXISTS idx_proxy_nodes_score ON proxy_nodes(score);
CREATE INDEX IF NOT EXISTS idx_proxy_nodes_country ON proxy_nodes(country);
`

// NewSQLStore opens (creating if absent) the SQLite database at
// opt.DSN and ensures the proxy_nodes schema exists.
func NewSQLStore(opt SQLStoreOptions) (*SQLStore, error) {
	if opt.MaxOpenConn <= 0 {
		opt.MaxOpenConn = 10
	}
	if opt.MaxIdleConn <= 0 {
		opt.MaxIdleConn = 2
	}
	if opt.OpTimeout <= 0 {
		opt.OpTimeout = 60 * time.Second
	}

	db, err := sql.Open("sqlite", opt.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite store: %w", err)
	}
	db.SetMaxOpenConns(opt.MaxOpenConn)
	db.SetMaxIdleConns(opt.MaxIdleConn)

	if _, err := db.Exec(createProxyNodesTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating proxy_nodes schema: %w", err)
	}
	return &SQLStore{db: db, opt: opt}, nil
}

func (s *SQLStore) Close() error { return s.db.Close() }

// UpsertMany writes every record in a single transaction per batch:
// look up by (host, port, protocol); update if present (preserving
// first_seen), insert otherwise.
func (s *SQLStore) UpsertMany(ctx context.Context, records []*Record) error {
	if len(records) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.opt.OpTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	lookup, err := tx.PrepareContext(ctx, `SELECT first_seen FROM proxy_nodes WHERE host = ? AND port = ? AND protocol = ?`)
	if err != nil {
		return err
	}
	defer lookup.Close()

	update, err := tx.PrepareContext(ctx, updateProxyNodeSQL)
	if err != nil {
		return err
	}
	defer update.Close()

	insert, err := tx.PrepareContext(ctx, insertProxyNodeSQL)
	if err != nil {
		return err
	}
	defer insert.Close()

	now := time.Now().UTC()
	for _, rec := range records {
		var firstSeen time.Time
		err := lookup.QueryRowContext(ctx, rec.Host, rec.Port, rec.Protocol.String()).Scan(&firstSeen)
		switch {
		case err == sql.ErrNoRows:
			if err := execInsert(ctx, insert, rec, now); err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			if err := execUpdate(ctx, update, rec, now); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

const insertProxyNodeSQL = `
INSERT INTO proxy_nodes (
	host, port, protocol, status, anonymity, country, region, city, isp, asn,
	response_time_ms, has_response_time, total_requests, successful_requests,
	failed_requests, consecutive_failures, success_rate, score, speed_class,
	source, source_url, tags, metadata,
	last_checked, last_successful, last_leased_at, first_seen, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const updateProxyNodeSQL = `
UPDATE proxy_nodes SET
	status = ?, anonymity = ?, country = ?, region = ?, city = ?, isp = ?, asn = ?,
	response_time_ms = ?, has_response_time = ?, total_requests = ?, successful_requests = ?,
	failed_requests = ?, consecutive_failures = ?, success_rate = ?, score = ?, speed_class = ?,
	source = ?, source_url = ?, tags = ?, metadata = ?,
	last_checked = ?, last_successful = ?, last_leased_at = ?, updated_at = ?
WHERE host = ? AND port = ? AND protocol = ?`

func execInsert(ctx context.Context, stmt *sql.Stmt, rec *Record, now time.Time) error {
	tags, metadata, err := marshalRecordExtras(rec)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx,
		rec.Host, rec.Port, rec.Protocol.String(), rec.Status.String(), rec.Anonymity.String(),
		rec.Country, rec.Region, rec.City, rec.ISP, rec.ASN,
		rec.ResponseTimeMs, rec.HasResponseTime, rec.TotalRequests, rec.SuccessfulRequests,
		rec.FailedRequests, rec.ConsecutiveFailures, rec.SuccessRate, rec.Score, rec.SpeedClass.String(),
		rec.Source, rec.SourceURL, tags, metadata,
		timeOrNil(rec.LastChecked), timeOrNil(rec.LastSuccessful), timeOrNil(rec.LastLeasedAt),
		rec.FirstSeen, now, now,
	)
	return err
}

func execUpdate(ctx context.Context, stmt *sql.Stmt, rec *Record, now time.Time) error {
	tags, metadata, err := marshalRecordExtras(rec)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx,
		rec.Status.String(), rec.Anonymity.String(), rec.Country, rec.Region, rec.City, rec.ISP, rec.ASN,
		rec.ResponseTimeMs, rec.HasResponseTime, rec.TotalRequests, rec.SuccessfulRequests,
		rec.FailedRequests, rec.ConsecutiveFailures, rec.SuccessRate, rec.Score, rec.SpeedClass.String(),
		rec.Source, rec.SourceURL, tags, metadata,
		timeOrNil(rec.LastChecked), timeOrNil(rec.LastSuccessful), timeOrNil(rec.LastLeasedAt), now,
		rec.Host, rec.Port, rec.Protocol.String(),
	)
	return err
}

func marshalRecordExtras(rec *Record) (tagsJSON, metadataJSON string, err error) {
	tagsBytes, err := json.Marshal(rec.Tags)
	if err != nil {
		return "", "", err
	}
	metaBytes, err := json.Marshal(rec.Metadata)
	if err != nil {
		return "", "", err
	}
	return string(tagsBytes), string(metaBytes), nil
}

func timeOrNil(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

// Query runs the read path with the given filter, pagination, and
// order parameters.
func (s *SQLStore) Query(ctx context.Context, filter Filter, pagination Pagination, order Order) (Page, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opt.OpTimeout)
	defer cancel()

	where, args := buildWhere(filter)
	orderClause := buildOrder(order)

	var total int
	countSQL := "SELECT COUNT(*) FROM proxy_nodes" + where
	if err := s.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return Page{}, err
	}

	limit := pagination.Limit
	if limit <= 0 {
		limit = 100
	}
	querySQL := "SELECT host, port, protocol, status, anonymity, country, region, city, isp, asn, " +
		"response_time_ms, has_response_time, total_requests, successful_requests, failed_requests, " +
		"consecutive_failures, success_rate, score, speed_class, source, source_url, tags, metadata, " +
		"last_checked, last_successful, last_leased_at, first_seen, updated_at FROM proxy_nodes" +
		where + orderClause + " LIMIT ? OFFSET ?"
	args = append(args, limit, pagination.Offset)

	rows, err := s.db.QueryContext(ctx, querySQL, args...)
	if err != nil {
		return Page{}, err
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanProxyNode(rows)
		if err != nil {
			return Page{}, err
		}
		out = append(out, rec)
	}
	return Page{Records: out, Total: total}, rows.Err()
}

func buildWhere(f Filter) (string, []any) {
	var clauses []string
	var args []any

	if len(f.Protocols) > 0 {
		placeholders := make([]string, len(f.Protocols))
		for i, p := range f.Protocols {
			placeholders[i] = "?"
			args = append(args, p.String())
		}
		clauses = append(clauses, "protocol IN ("+strings.Join(placeholders, ",")+")")
	}
	if len(f.Anonymities) > 0 {
		placeholders := make([]string, len(f.Anonymities))
		for i, a := range f.Anonymities {
			placeholders[i] = "?"
			args = append(args, a.String())
		}
		clauses = append(clauses, "anonymity IN ("+strings.Join(placeholders, ",")+")")
	}
	if len(f.Countries) > 0 {
		placeholders := make([]string, len(f.Countries))
		for i, c := range f.Countries {
			placeholders[i] = "?"
			args = append(args, c)
		}
		clauses = append(clauses, "country IN ("+strings.Join(placeholders, ",")+")")
	}
	if f.MinScore > 0 {
		clauses = append(clauses, "score >= ?")
		args = append(args, f.MinScore)
	}
	if f.MaxResponseTimeMs > 0 {
		clauses = append(clauses, "has_response_time = 1 AND response_time_ms <= ?")
		args = append(args, f.MaxResponseTimeMs)
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func buildOrder(o Order) string {
	field := o.Field
	switch field {
	case "score", "last_checked", "response_time_ms", "success_rate", "total_requests":
	default:
		field = "score"
	}
	if o.Desc {
		return " ORDER BY " + field + " DESC"
	}
	return " ORDER BY " + field + " ASC"
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProxyNode(row rowScanner) (*Record, error) {
	var (
		rec                                              Record
		protocol, status, anonymity, speedClass          string
		tags, metadata                                   string
		lastChecked, lastSuccessful, lastLeasedAt         sql.NullTime
	)
	err := row.Scan(
		&rec.Host, &rec.Port, &protocol, &status, &anonymity, &rec.Country, &rec.Region, &rec.City, &rec.ISP, &rec.ASN,
		&rec.ResponseTimeMs, &rec.HasResponseTime, &rec.TotalRequests, &rec.SuccessfulRequests, &rec.FailedRequests,
		&rec.ConsecutiveFailures, &rec.SuccessRate, &rec.Score, &speedClass, &rec.Source, &rec.SourceURL, &tags, &metadata,
		&lastChecked, &lastSuccessful, &lastLeasedAt, &rec.FirstSeen, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Protocol, _ = ParseProtocol(protocol)
	switch status {
	case "active":
		rec.Status = StatusActive
	case "testing":
		rec.Status = StatusTesting
	case "blacklisted":
		rec.Status = StatusBlacklisted
	default:
		rec.Status = StatusInactive
	}
	switch anonymity {
	case "transparent":
		rec.Anonymity = AnonymityTransparent
	case "anonymous":
		rec.Anonymity = AnonymityAnonymous
	case "elite":
		rec.Anonymity = AnonymityElite
	default:
		rec.Anonymity = AnonymityUnknown
	}
	switch speedClass {
	case "fast":
		rec.SpeedClass = SpeedFast
	case "medium":
		rec.SpeedClass = SpeedMedium
	case "slow":
		rec.SpeedClass = SpeedSlow
	default:
		rec.SpeedClass = SpeedUnknown
	}
	if lastChecked.Valid {
		rec.LastChecked = lastChecked.Time
	}
	if lastSuccessful.Valid {
		rec.LastSuccessful = lastSuccessful.Time
	}
	if lastLeasedAt.Valid {
		rec.LastLeasedAt = lastLeasedAt.Time
	}
	rec.Metadata = make(map[string]string)
	_ = json.Unmarshal([]byte(metadata), &rec.Metadata)
	_ = json.Unmarshal([]byte(tags), &rec.Tags)

	return &rec, nil
}

// Ping checks the durable store connection is reachable.
func (s *SQLStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.opt.OpTimeout)
	defer cancel()
	return s.db.PingContext(ctx)
}
