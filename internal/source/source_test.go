package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"scrub/urlnorm"
)

const rssBody = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Test</title>
<item><title>One</title><link>https://example.com/one</link></item>
<item><title>Two</title><link>/two</link></item>
</channel></rss>`

func TestFetchFeedPreservesValidatorsOnNotModified(t *testing.T) {
	var count int
	const (
		etag         = "W/\"123\""
		lastModified = "Mon, 02 Jan 2006 15:04:05 GMT"
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count++
		w.Header().Set("ETag", etag)
		w.Header().Set("Last-Modified", lastModified)
		if count == 1 {
			_, _ = w.Write([]byte(rssBody))
			return
		}
		w.WriteHeader(http.StatusNotModified)
	}))
	t.Cleanup(srv.Close)

	fetcher := NewFetcher()
	ctx := context.Background()

	res, err := fetcher.Fetch(ctx, srv.URL, KindFeed, "", "")
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if res.Status != http.StatusOK {
		t.Fatalf("expected status 200, got %d", res.Status)
	}
	if len(res.Links) != 2 {
		t.Fatalf("expected 2 links, got %v", res.Links)
	}
	if res.Links[0] != "https://example.com/one" {
		t.Fatalf("unexpected first link %q", res.Links[0])
	}
	if !strings.HasSuffix(res.Links[1], "/two") || !strings.HasPrefix(res.Links[1], "http://") {
		t.Fatalf("relative link not resolved against source: %q", res.Links[1])
	}
	if res.ETag != etag || res.LastModified != lastModified {
		t.Fatalf("validators not captured: %q / %q", res.ETag, res.LastModified)
	}

	res, err = fetcher.Fetch(ctx, srv.URL, KindFeed, res.ETag, res.LastModified)
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if res.Status != http.StatusNotModified {
		t.Fatalf("expected status 304, got %d", res.Status)
	}
	if res.ETag != etag || res.LastModified != lastModified {
		t.Fatalf("validators not preserved on 304: %q / %q", res.ETag, res.LastModified)
	}
	if len(res.Links) != 0 {
		t.Fatalf("expected no links on 304, got %v", res.Links)
	}
}

func TestFetchRetryLater(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	fetcher := NewFetcher()
	res, err := fetcher.Fetch(context.Background(), srv.URL, KindFeed, "", "")
	if !errors.Is(err, ErrRetryLater) {
		t.Fatalf("expected ErrRetryLater, got %v", err)
	}
	if res.RetryAfter.Seconds() != 120 {
		t.Fatalf("expected 120s retry-after, got %s", res.RetryAfter)
	}
}

func TestFetchTransientStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	fetcher := NewFetcher()
	_, err := fetcher.Fetch(context.Background(), srv.URL, KindPage, "", "")
	if !errors.Is(err, ErrTransientFetch) {
		t.Fatalf("expected ErrTransientFetch, got %v", err)
	}
}

func TestFetchUnknownKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)

	fetcher := NewFetcher()
	_, err := fetcher.Fetch(context.Background(), srv.URL, "ftp", "", "")
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestPageLinks(t *testing.T) {
	const page = `<html><body>
<a href="/a">one</a>
<a href="b/c">two</a>
<A HREF="https://other.example/x">three</A>
<a href="#section">skip</a>
<a href="javascript:void(0)">skip</a>
<a href="mailto:a@example.com">skip</a>
<a>skip</a>
</body></html>`

	base, err := urlnorm.Parse("https://example.com/dir/page.html")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	links, err := PageLinks(strings.NewReader(page), base)
	if err != nil {
		t.Fatalf("PageLinks: %v", err)
	}
	want := []string{
		"https://example.com/a",
		"https://example.com/dir/b/c",
		"https://other.example/x",
	}
	if len(links) != len(want) {
		t.Fatalf("expected %d links, got %v", len(want), links)
	}
	for i := range want {
		if links[i] != want[i] {
			t.Fatalf("link %d = %q, want %q", i, links[i], want[i])
		}
	}
}
