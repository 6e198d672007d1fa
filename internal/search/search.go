package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	meilisearch "github.com/meilisearch/meilisearch-go"
)

// Document is one canonical URL in the search index.
type Document struct {
	ID        string     `json:"id"`
	Canonical string     `json:"canonical"`
	Host      string     `json:"host"`
	SourceID  string     `json:"source_id,omitempty"`
	BatchID   string     `json:"batch_id,omitempty"`
	FirstSeen *time.Time `json:"first_seen,omitempty"`
}

type Metrics interface {
	ObserveSearch(method string, err error, duration time.Duration)
}

type Client struct {
	client  meilisearch.ServiceManager
	index   string
	metrics Metrics
}

func New(url string, metrics Metrics) *Client {
	return &Client{
		client:  meilisearch.New(url),
		index:   "urls",
		metrics: metrics,
	}
}

func (c *Client) observe(method string, err error, start time.Time) {
	if c.metrics != nil {
		c.metrics.ObserveSearch(method, err, time.Since(start))
	}
}

func (c *Client) EnsureIndex(ctx context.Context) (err error) {
	defer func(start time.Time) { c.observe("EnsureIndex", err, start) }(time.Now())

	if _, err = c.client.GetIndexWithContext(ctx, c.index); err != nil {
		var apiErr *meilisearch.Error
		if errors.As(err, &apiErr) && apiErr.MeilisearchApiError.Code == "index_not_found" {
			if _, err = c.client.CreateIndexWithContext(ctx, &meilisearch.IndexConfig{Uid: c.index, PrimaryKey: "id"}); err != nil {
				return err
			}
		} else {
			return err
		}
	}

	settings := &meilisearch.Settings{
		SearchableAttributes: []string{"canonical", "host"},
		FilterableAttributes: []string{"host", "batch_id"},
	}
	if _, err = c.client.Index(c.index).UpdateSettingsWithContext(ctx, settings); err != nil {
		return err
	}
	return nil
}

func (c *Client) Health(ctx context.Context) (err error) {
	defer func(start time.Time) { c.observe("Health", err, start) }(time.Now())

	if !c.client.IsHealthy() {
		err = fmt.Errorf("meili unhealthy")
		return err
	}
	return nil
}

type SearchResponse struct {
	Query          string     `json:"query"`
	Limit          int        `json:"limit"`
	Offset         int        `json:"offset"`
	EstimatedTotal int64      `json:"estimated_total"`
	Hits           []Document `json:"hits"`
}

type SearchFilters struct {
	Host string
}

func (c *Client) Search(ctx context.Context, query string, limit, offset int, filters SearchFilters) (resp SearchResponse, err error) {
	defer func(start time.Time) { c.observe("Search", err, start) }(time.Now())

	req := &meilisearch.SearchRequest{
		Offset: int64(offset),
		Limit:  int64(limit),
	}
	if filters.Host != "" {
		req.Filter = fmt.Sprintf("host = %q", filters.Host)
	}

	var searchRes *meilisearch.SearchResponse
	searchRes, err = c.client.Index(c.index).SearchWithContext(ctx, query, req)
	if err != nil {
		return SearchResponse{}, err
	}
	hits := make([]Document, 0, len(searchRes.Hits))
	for _, hit := range searchRes.Hits {
		m, ok := hit.(map[string]interface{})
		if !ok {
			continue
		}
		doc := Document{}
		if v, ok := m["id"].(string); ok {
			doc.ID = v
		}
		if v, ok := m["canonical"].(string); ok {
			doc.Canonical = v
		}
		if v, ok := m["host"].(string); ok {
			doc.Host = v
		}
		if v, ok := m["source_id"].(string); ok {
			doc.SourceID = v
		}
		if v, ok := m["batch_id"].(string); ok {
			doc.BatchID = v
		}
		if v, ok := m["first_seen"].(string); ok && v != "" {
			if parsed, parseErr := time.Parse(time.RFC3339, v); parseErr == nil {
				doc.FirstSeen = &parsed
			}
		}
		hits = append(hits, doc)
	}
	resp = SearchResponse{Query: query, Limit: limit, Offset: offset, EstimatedTotal: searchRes.EstimatedTotalHits, Hits: hits}
	return resp, nil
}

func (c *Client) UpsertDocuments(ctx context.Context, docs []Document) (err error) {
	defer func(start time.Time) { c.observe("UpsertDocuments", err, start) }(time.Now())

	if len(docs) == 0 {
		return nil
	}
	_, err = c.client.Index(c.index).UpdateDocumentsWithContext(ctx, docs)
	return err
}

func (c *Client) IndexName() string {
	return c.index
}
