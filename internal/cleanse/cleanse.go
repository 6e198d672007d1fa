package cleanse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"scrub/internal/search"
	"scrub/internal/source"
	"scrub/internal/store"
	"scrub/urlnorm"
)

// trackingParams are stripped from every cleansed URL, on top of any
// utm_-prefixed name.
var trackingParams = map[string]struct{}{
	"fbclid": {},
	"gclid":  {},
	"gclsrc": {},
	"mc_cid": {},
	"mc_eid": {},
}

// Canonicalize runs one raw URL through the full cleansing sequence:
// tracking parameters stripped, params and query sorted, fragment and
// userinfo dropped, path collapsed, escaping normalized, default port
// removed, host punycoded. Only absolute URLs survive.
func Canonicalize(raw string, strip []string) (urlnorm.URL, error) {
	u, err := urlnorm.Parse(strings.TrimSpace(raw))
	if err != nil {
		return urlnorm.URL{}, err
	}
	u = u.FilterParams(func(name, _ string) bool {
		lower := strings.ToLower(name)
		if strings.HasPrefix(lower, "utm_") {
			return true
		}
		_, ok := trackingParams[lower]
		return ok
	})
	if len(strip) > 0 {
		u = u.Deparam(strip...)
	}
	u = u.Canonical().
		Defrag().
		Deuserinfo().
		Abspath().
		Escape().
		RemoveDefaultPort().
		Punycode()
	return u, nil
}

type Repo interface {
	UpdateSourceCrawlState(context.Context, store.UpdateSourceCrawlStateParams) (store.Source, error)
	UpsertURL(context.Context, store.UpsertURLParams) (store.UpsertURLResult, error)
}

type Indexer interface {
	UpsertDocuments(ctx context.Context, docs []search.Document) error
}

type Fetcher interface {
	Fetch(ctx context.Context, url, kind, etag, lastModified string) (source.Result, error)
}

// Pipeline cleanses the links of one source at a time: fetch, run every
// raw link through Canonicalize, dedup through the store, index fresh
// canonical URLs.
type Pipeline struct {
	repo     Repo
	index    Indexer
	fetcher  Fetcher
	backoffs *backoffTracker
	strip    []string
}

type Config struct {
	Repo    Repo
	Index   Indexer
	Fetcher Fetcher
	// Strip lists extra parameter names removed from every URL, on top
	// of the built-in tracking set.
	Strip   []string
	Backoff BackoffConfig
}

func New(cfg Config) *Pipeline {
	return &Pipeline{
		repo:     cfg.Repo,
		index:    cfg.Index,
		fetcher:  cfg.Fetcher,
		backoffs: newBackoffTracker(cfg.Backoff),
		strip:    cfg.Strip,
	}
}

type Result struct {
	SourceID  string
	SourceURL string
	BatchID   string
	Status    int
	Raw       int
	Fresh     int
	Dupes     int
	Rejected  int
	Err       error
	RetryIn   time.Duration
	Skipped   bool
	Reason    string
}

var ErrBackoffActive = errors.New("backoff active")

// CleanseSource processes one source end to end. Each run gets its own
// batch ID so the records it touched can be traced.
func (p *Pipeline) CleanseSource(ctx context.Context, src store.Source) Result {
	result := Result{SourceID: src.ID, SourceURL: src.URL}

	now := time.Now().UTC()
	if wait := p.backoffs.Remaining(src.ID, now); wait > 0 {
		result.Err = ErrBackoffActive
		result.RetryIn = wait
		result.Skipped = true
		result.Reason = "backoff active"
		return result
	}

	etag := ""
	if src.ETag.Valid {
		etag = src.ETag.String
	}
	lastModified := ""
	if src.LastModified.Valid {
		lastModified = src.LastModified.String
	}

	res, err := p.fetcher.Fetch(ctx, src.URL, src.Kind, etag, lastModified)
	result.Status = res.Status
	if err != nil {
		result.Err = err
		if errors.Is(err, source.ErrRetryLater) || errors.Is(err, source.ErrTransientFetch) {
			result.RetryIn = p.backoffs.Schedule(src.ID, now, res.RetryAfter)
			result.Reason = "retry scheduled"
		} else {
			result.Reason = "fetch failed"
		}
		return result
	}

	p.backoffs.Reset(src.ID)

	if res.Status == http.StatusNotModified {
		result.Skipped = true
		result.Reason = "not modified"
		return result
	}

	if _, err := p.repo.UpdateSourceCrawlState(ctx, store.UpdateSourceCrawlStateParams{
		ID:           src.ID,
		ETag:         sqlNullString(res.ETag),
		LastModified: sqlNullString(res.LastModified),
		LastCrawled:  sql.NullTime{Valid: true, Time: time.Now().UTC()},
	}); err != nil {
		result.Err = err
		result.Reason = "update source"
		return result
	}

	batchID := uuid.NewString()
	result.BatchID = batchID
	result.Raw = len(res.Links)

	var docs []search.Document
	for _, raw := range res.Links {
		canonical, err := Canonicalize(raw, p.strip)
		if err != nil || !canonical.IsAbsolute() {
			result.Rejected++
			continue
		}
		output, err := p.repo.UpsertURL(ctx, store.UpsertURLParams{
			Canonical: canonical.String(),
			Host:      canonical.Host,
			SourceID:  sqlNullString(src.ID),
			BatchID:   sqlNullString(batchID),
		})
		if err != nil {
			wrapped := fmt.Errorf("upsert url: %w", err)
			if result.Err != nil {
				result.Err = errors.Join(result.Err, wrapped)
			} else {
				result.Err = wrapped
			}
			if result.Reason == "" {
				result.Reason = "url upsert"
			}
			continue
		}
		if !output.Fresh {
			result.Dupes++
			continue
		}
		result.Fresh++
		doc := search.Document{
			ID:        output.Record.ID,
			Canonical: output.Record.Canonical,
			Host:      output.Record.Host,
			BatchID:   batchID,
		}
		if output.Record.SourceID.Valid {
			doc.SourceID = output.Record.SourceID.String
		}
		firstSeen := output.Record.FirstSeen.UTC()
		doc.FirstSeen = &firstSeen
		docs = append(docs, doc)
	}

	if err := p.index.UpsertDocuments(ctx, docs); err != nil {
		result.Err = err
		result.Reason = "search upsert"
		return result
	}

	return result
}

func sqlNullString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{Valid: true, String: v}
}
