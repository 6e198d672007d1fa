package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var (
	ErrSourceExists = errors.New("source already exists")
)

type Metrics interface {
	ObserveDB(method string, err error, duration time.Duration)
}

type Store struct {
	db      *sql.DB
	metrics Metrics
}

func New(db *sql.DB, metrics Metrics) *Store {
	return &Store{db: db, metrics: metrics}
}

func (s *Store) observe(method string, err error, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveDB(method, err, time.Since(start))
	}
}

// Source is a place raw URLs are pulled from: an RSS/Atom feed or an
// HTML page whose links get cleansed.
type Source struct {
	ID           string         `json:"id"`
	URL          string         `json:"url"`
	Kind         string         `json:"kind"`
	ETag         sql.NullString `json:"etag"`
	LastModified sql.NullString `json:"last_modified"`
	LastCrawled  sql.NullTime   `json:"last_crawled"`
	Active       bool           `json:"active"`
}

func (s *Store) InsertSource(ctx context.Context, url, kind string) (src Source, err error) {
	defer func(start time.Time) { s.observe("InsertSource", err, start) }(time.Now())

	const q = `INSERT INTO sources (url, kind) VALUES ($1, $2)
ON CONFLICT (url) DO NOTHING
RETURNING id, url, kind, etag, last_modified, last_crawled, active`
	err = s.db.QueryRowContext(ctx, q, url, kind).Scan(
		&src.ID, &src.URL, &src.Kind, &src.ETag, &src.LastModified, &src.LastCrawled, &src.Active,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrSourceExists
		}
		return Source{}, err
	}
	return src, nil
}

func (s *Store) ListSources(ctx context.Context, active bool) (sources []Source, err error) {
	defer func(start time.Time) { s.observe("ListSources", err, start) }(time.Now())

	const q = `SELECT id, url, kind, etag, last_modified, last_crawled, active
FROM sources
WHERE active = $1
ORDER BY url ASC`
	rows, err := s.db.QueryContext(ctx, q, active)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var src Source
		if err = rows.Scan(&src.ID, &src.URL, &src.Kind, &src.ETag, &src.LastModified, &src.LastCrawled, &src.Active); err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	err = rows.Err()
	return sources, err
}

type UpdateSourceCrawlStateParams struct {
	ID           string
	ETag         sql.NullString
	LastModified sql.NullString
	LastCrawled  sql.NullTime
}

func (s *Store) UpdateSourceCrawlState(ctx context.Context, arg UpdateSourceCrawlStateParams) (src Source, err error) {
	defer func(start time.Time) { s.observe("UpdateSourceCrawlState", err, start) }(time.Now())

	const q = `UPDATE sources
SET etag = $2,
    last_modified = $3,
    last_crawled = $4
WHERE id = $1
RETURNING id, url, kind, etag, last_modified, last_crawled, active`
	err = s.db.QueryRowContext(ctx, q, arg.ID, arg.ETag, arg.LastModified, arg.LastCrawled).Scan(
		&src.ID, &src.URL, &src.Kind, &src.ETag, &src.LastModified, &src.LastCrawled, &src.Active,
	)
	if err != nil {
		return Source{}, err
	}
	return src, nil
}

// URLRecord is one deduplicated canonical URL. RawCount tracks how many
// raw textual forms have collapsed into it so far.
type URLRecord struct {
	ID        string         `json:"id"`
	Canonical string         `json:"canonical"`
	Host      string         `json:"host"`
	SourceID  sql.NullString `json:"source_id"`
	BatchID   sql.NullString `json:"batch_id"`
	RawCount  int64          `json:"raw_count"`
	FirstSeen time.Time      `json:"first_seen"`
	LastSeen  time.Time      `json:"last_seen"`
}

type UpsertURLParams struct {
	Canonical string
	Host      string
	SourceID  sql.NullString
	BatchID   sql.NullString
}

type UpsertURLResult struct {
	Record URLRecord
	Fresh  bool
}

// UpsertURL records one sighting of a canonical URL. A repeated
// canonical form bumps raw_count and last_seen instead of inserting.
func (s *Store) UpsertURL(ctx context.Context, arg UpsertURLParams) (res UpsertURLResult, err error) {
	defer func(start time.Time) { s.observe("UpsertURL", err, start) }(time.Now())

	const q = `INSERT INTO urls (canonical_url, host, source_id, batch_id)
VALUES ($1, $2, $3, $4)
ON CONFLICT (canonical_url) DO UPDATE SET
    raw_count = urls.raw_count + 1,
    last_seen = now(),
    batch_id = EXCLUDED.batch_id
RETURNING id, canonical_url, host, source_id, batch_id, raw_count, first_seen, last_seen, xmax = 0 AS inserted`

	var inserted bool
	err = s.db.QueryRowContext(ctx, q, arg.Canonical, arg.Host, arg.SourceID, arg.BatchID).Scan(
		&res.Record.ID,
		&res.Record.Canonical,
		&res.Record.Host,
		&res.Record.SourceID,
		&res.Record.BatchID,
		&res.Record.RawCount,
		&res.Record.FirstSeen,
		&res.Record.LastSeen,
		&inserted,
	)
	if err != nil {
		return UpsertURLResult{}, err
	}
	res.Fresh = inserted
	return res, nil
}

type FilterURLsParams struct {
	Host   string
	Limit  int32
	Offset int32
}

func (s *Store) FilterURLs(ctx context.Context, arg FilterURLsParams) (records []URLRecord, err error) {
	defer func(start time.Time) { s.observe("FilterURLs", err, start) }(time.Now())

	const q = `SELECT id, canonical_url, host, source_id, batch_id, raw_count, first_seen, last_seen
FROM urls
WHERE ($1 = '' OR host = $1)
ORDER BY last_seen DESC
LIMIT $2 OFFSET $3`
	rows, err := s.db.QueryContext(ctx, q, arg.Host, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var r URLRecord
		if err = rows.Scan(&r.ID, &r.Canonical, &r.Host, &r.SourceID, &r.BatchID, &r.RawCount, &r.FirstSeen, &r.LastSeen); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	err = rows.Err()
	return records, err
}

type HostCount struct {
	Host string `json:"host"`
	URLs int64  `json:"urls"`
	Raw  int64  `json:"raw"`
}

// CountByHost reports, per host, how many canonical URLs are stored and
// how many raw sightings they absorbed.
func (s *Store) CountByHost(ctx context.Context, limit int32) (counts []HostCount, err error) {
	defer func(start time.Time) { s.observe("CountByHost", err, start) }(time.Now())

	const q = `SELECT host, COUNT(*) AS urls, COALESCE(SUM(raw_count), 0) AS raw
FROM urls
GROUP BY host
ORDER BY urls DESC, host ASC
LIMIT $1`
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var c HostCount
		if err = rows.Scan(&c.Host, &c.URLs, &c.Raw); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	err = rows.Err()
	return counts, err
}
