package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"scrub/internal/search"
	"scrub/internal/store"
)

type stubStore struct {
	insertSourceFunc func(context.Context, string, string) (store.Source, error)
	filterURLsFunc   func(context.Context, store.FilterURLsParams) ([]store.URLRecord, error)
}

func (s *stubStore) InsertSource(ctx context.Context, url, kind string) (store.Source, error) {
	if s.insertSourceFunc != nil {
		return s.insertSourceFunc(ctx, url, kind)
	}
	return store.Source{ID: "src-1", URL: url, Kind: kind, Active: true}, nil
}

func (s *stubStore) ListSources(context.Context, bool) ([]store.Source, error) {
	return nil, nil
}

func (s *stubStore) FilterURLs(ctx context.Context, arg store.FilterURLsParams) ([]store.URLRecord, error) {
	if s.filterURLsFunc != nil {
		return s.filterURLsFunc(ctx, arg)
	}
	return nil, nil
}

func (s *stubStore) CountByHost(context.Context, int32) ([]store.HostCount, error) {
	return nil, nil
}

type stubSearcher struct {
	searchFunc func(context.Context, string, int, int, search.SearchFilters) (search.SearchResponse, error)
}

func (s *stubSearcher) Health(context.Context) error {
	return nil
}

func (s *stubSearcher) Search(ctx context.Context, query string, limit, offset int, filters search.SearchFilters) (search.SearchResponse, error) {
	if s.searchFunc != nil {
		return s.searchFunc(ctx, query, limit, offset, filters)
	}
	return search.SearchResponse{}, nil
}

var (
	_ Repo     = (*stubStore)(nil)
	_ Searcher = (*stubSearcher)(nil)
)

func TestURLsHandlerValidPagination(t *testing.T) {
	t.Parallel()

	called := false
	stub := &stubStore{
		filterURLsFunc: func(ctx context.Context, arg store.FilterURLsParams) ([]store.URLRecord, error) {
			called = true
			if arg.Limit != maxURLsLimit {
				t.Fatalf("expected limit %d, got %d", maxURLsLimit, arg.Limit)
			}
			if arg.Offset != 5 {
				t.Fatalf("expected offset 5, got %d", arg.Offset)
			}
			if arg.Host != "example.com" {
				t.Fatalf("expected host filter, got %q", arg.Host)
			}
			return []store.URLRecord{}, nil
		},
	}

	srv := NewServer(Config{Store: stub, Service: "test"})

	req := httptest.NewRequest(http.MethodGet, "/urls?limit=1000&offset=5&host=example.com", nil)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if !called {
		t.Fatalf("expected FilterURLs to be called")
	}
}

func TestURLsHandlerNegativeLimit(t *testing.T) {
	t.Parallel()

	stub := &stubStore{
		filterURLsFunc: func(ctx context.Context, arg store.FilterURLsParams) ([]store.URLRecord, error) {
			t.Fatalf("FilterURLs should not be called for invalid limit")
			return nil, nil
		},
	}

	srv := NewServer(Config{Store: stub, Service: "test"})

	req := httptest.NewRequest(http.MethodGet, "/urls?limit=-1", nil)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestURLsHandlerNegativeOffset(t *testing.T) {
	t.Parallel()

	stub := &stubStore{
		filterURLsFunc: func(ctx context.Context, arg store.FilterURLsParams) ([]store.URLRecord, error) {
			t.Fatalf("FilterURLs should not be called for invalid offset")
			return nil, nil
		},
	}

	srv := NewServer(Config{Store: stub, Service: "test"})

	req := httptest.NewRequest(http.MethodGet, "/urls?offset=-10", nil)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestCreateSourceCanonicalizesURL(t *testing.T) {
	t.Parallel()

	var gotURL, gotKind string
	stub := &stubStore{
		insertSourceFunc: func(ctx context.Context, url, kind string) (store.Source, error) {
			gotURL, gotKind = url, kind
			return store.Source{ID: "src-1", URL: url, Kind: kind, Active: true}, nil
		},
	}

	srv := NewServer(Config{Store: stub, Service: "test"})

	body := `{"url": "HTTP://Example.COM:80/feed/../rss?utm_source=x", "kind": "feed"}`
	req := httptest.NewRequest(http.MethodPost, "/sources", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}
	if gotURL != "http://example.com/rss" {
		t.Fatalf("expected canonicalized source url, got %q", gotURL)
	}
	if gotKind != "feed" {
		t.Fatalf("expected kind feed, got %q", gotKind)
	}
}

func TestCreateSourceRejectsBadKind(t *testing.T) {
	t.Parallel()

	srv := NewServer(Config{Store: &stubStore{}, Service: "test"})

	body := `{"url": "http://example.com/feed", "kind": "ftp"}`
	req := httptest.NewRequest(http.MethodPost, "/sources", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestCreateSourceConflict(t *testing.T) {
	t.Parallel()

	stub := &stubStore{
		insertSourceFunc: func(ctx context.Context, url, kind string) (store.Source, error) {
			return store.Source{}, store.ErrSourceExists
		},
	}

	srv := NewServer(Config{Store: stub, Service: "test"})

	body := `{"url": "http://example.com/feed"}`
	req := httptest.NewRequest(http.MethodPost, "/sources", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status %d, got %d", http.StatusConflict, rec.Code)
	}
}

func TestNormalizeHandler(t *testing.T) {
	t.Parallel()

	srv := NewServer(Config{Store: &stubStore{}, Service: "test", Strip: []string{"ref"}})

	body := `{"url": "http://User@Example.com:80/a/../b?z=1&ref=x&a=2#frag", "strip": ["session"]}`
	req := httptest.NewRequest(http.MethodPost, "/normalize", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}

	var view struct {
		Canonical string `json:"canonical"`
		Host      string `json:"host"`
		Absolute  bool   `json:"absolute"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if view.Canonical != "http://example.com/b?a=2&z=1" {
		t.Fatalf("unexpected canonical %q", view.Canonical)
	}
	if view.Host != "example.com" || !view.Absolute {
		t.Fatalf("unexpected view %+v", view)
	}
}

func TestNormalizeHandlerUnparsableURL(t *testing.T) {
	t.Parallel()

	srv := NewServer(Config{Store: &stubStore{}, Service: "test"})
	srv.HTTPErrorHandler = HTTPErrorHandler("test")

	body := "{\"url\": \"http://example.com/\\nbroken\"}"
	req := httptest.NewRequest(http.MethodPost, "/normalize", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d: %s", http.StatusBadRequest, rec.Code, rec.Body.String())
	}
}

func TestEquivHandler(t *testing.T) {
	t.Parallel()

	srv := NewServer(Config{Store: &stubStore{}, Service: "test"})

	tests := []struct {
		name string
		body string
		want bool
	}{
		{
			name: "default port vs none",
			body: `{"a": "http://example.com:80/a/../b", "b": "http://EXAMPLE.com/b#frag"}`,
			want: true,
		},
		{
			name: "different paths",
			body: `{"a": "http://example.com/a", "b": "http://example.com/b"}`,
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/equiv", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()

			srv.ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
			}
			var view struct {
				Equivalent bool `json:"equivalent"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if view.Equivalent != tt.want {
				t.Fatalf("equivalent = %v, want %v", view.Equivalent, tt.want)
			}
		})
	}
}

func TestSearchHandlerPassesFilters(t *testing.T) {
	t.Parallel()

	called := false
	searcher := &stubSearcher{
		searchFunc: func(ctx context.Context, query string, limit, offset int, filters search.SearchFilters) (search.SearchResponse, error) {
			called = true
			if query != "golang" {
				t.Fatalf("expected query golang, got %q", query)
			}
			if filters.Host != "example.com" {
				t.Fatalf("expected host filter, got %q", filters.Host)
			}
			return search.SearchResponse{Query: query}, nil
		},
	}

	srv := NewServer(Config{Store: &stubStore{}, Search: searcher, Service: "test"})

	req := httptest.NewRequest(http.MethodGet, "/urls/search?q=golang&host=example.com", nil)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if !called {
		t.Fatalf("expected Search to be called")
	}
}
