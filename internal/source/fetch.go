package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"syscall"
	"time"

	"github.com/mmcdole/gofeed"

	"scrub/urlnorm"
)

// Source kinds: an RSS/Atom feed whose item links are collected, or an
// HTML page whose anchor links are collected.
const (
	KindFeed = "feed"
	KindPage = "page"
)

var (
	ErrRetryLater     = errors.New("retry later")
	ErrTransientFetch = errors.New("transient fetch")
	ErrUnknownKind    = errors.New("unknown source kind")
)

// Result carries the outcome of one conditional fetch: the raw link
// set extracted from the body plus the validators for the next crawl.
type Result struct {
	Status       int
	Links        []string
	ETag         string
	LastModified string
	RetryAfter   time.Duration
}

type Fetcher struct {
	client *http.Client
	parser *gofeed.Parser
}

func NewFetcher() *Fetcher {
	return &Fetcher{
		client: &http.Client{Timeout: 20 * time.Second},
		parser: gofeed.NewParser(),
	}
}

// Fetch performs a conditional GET of the source and extracts its raw
// links. A 304 returns early with the validators preserved; transient
// failures and 429s come back as ErrTransientFetch / ErrRetryLater so
// the caller can back off.
func (f *Fetcher) Fetch(ctx context.Context, url, kind, etag, lastModified string) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{}, err
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	if lastModified != "" {
		req.Header.Set("If-Modified-Since", lastModified)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if isTransientFetchError(err) {
			return Result{}, fmt.Errorf("%w: %w", ErrTransientFetch, err)
		}
		return Result{}, err
	}
	defer resp.Body.Close()

	res := Result{Status: resp.StatusCode}
	currentETag := resp.Header.Get("ETag")
	currentLastModified := resp.Header.Get("Last-Modified")

	if resp.StatusCode == http.StatusNotModified {
		res.ETag = firstNonEmpty(currentETag, etag)
		res.LastModified = firstNonEmpty(currentLastModified, lastModified)
		return res, nil
	}

	if resp.StatusCode != http.StatusOK {
		if isTransientStatus(resp.StatusCode) {
			res.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
			return res, fmt.Errorf("%w: http status %d", ErrTransientFetch, resp.StatusCode)
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			res.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
			return res, ErrRetryLater
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return res, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	base, err := urlnorm.Parse(url)
	if err != nil {
		return res, err
	}

	switch kind {
	case KindFeed:
		feed, err := f.parser.Parse(resp.Body)
		if err != nil {
			return res, err
		}
		res.Links = FeedLinks(feed, base)
	case KindPage:
		links, err := PageLinks(resp.Body, base)
		if err != nil {
			return res, err
		}
		res.Links = links
	default:
		return res, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	res.ETag = firstNonEmpty(currentETag, etag)
	res.LastModified = firstNonEmpty(currentLastModified, lastModified)
	return res, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

var transientSyscallErrors = []error{
	syscall.ECONNRESET,
	syscall.ECONNREFUSED,
	syscall.ECONNABORTED,
	syscall.EPIPE,
	syscall.EHOSTUNREACH,
	syscall.ENETUNREACH,
	syscall.ENETDOWN,
	syscall.ENETRESET,
	syscall.ETIMEDOUT,
}

func isTransientStatus(status int) bool {
	switch status {
	case http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		if diff := time.Until(t); diff > 0 {
			return diff
		}
	}
	return 0
}

func isTransientFetchError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	for _, target := range transientSyscallErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, net.ErrClosed)
}
