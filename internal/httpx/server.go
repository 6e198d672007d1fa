package httpx

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"scrub/internal/cleanse"
	"scrub/internal/logx"
	"scrub/internal/search"
	"scrub/internal/store"
	"scrub/urlnorm"
)

const (
	defaultURLsLimit  = 50
	maxURLsLimit      = 100
	defaultSearchHits = 20
	defaultHostsLimit = 25
	maxHostsLimit     = 200
)

type Repo interface {
	InsertSource(ctx context.Context, url, kind string) (store.Source, error)
	ListSources(ctx context.Context, active bool) ([]store.Source, error)
	FilterURLs(ctx context.Context, arg store.FilterURLsParams) ([]store.URLRecord, error)
	CountByHost(ctx context.Context, limit int32) ([]store.HostCount, error)
}

type Searcher interface {
	Health(ctx context.Context) error
	Search(ctx context.Context, query string, limit, offset int, filters search.SearchFilters) (search.SearchResponse, error)
}

type Config struct {
	Store   Repo
	Search  Searcher
	DB      *sql.DB
	Service string
	Metrics *Metrics
	// Strip lists extra parameter names removed by /normalize, on top of
	// the built-in tracking set and any names the request supplies.
	Strip []string
}

func NewServer(cfg Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(requestLogger(cfg.Service))
	e.Use(cfg.Metrics.Middleware())

	if cfg.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(cfg.Metrics.Gatherer(), promhttp.HandlerOpts{})))
	}

	e.GET("/healthz", func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()

		if cfg.DB != nil {
			if err := cfg.DB.PingContext(ctx); err != nil {
				return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "db down"})
			}
		}

		if cfg.Search != nil {
			if err := cfg.Search.Health(ctx); err != nil {
				return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "search down"})
			}
		}

		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	e.GET("/sources", func(c echo.Context) error {
		ctx := c.Request().Context()
		sources, err := cfg.Store.ListSources(ctx, true)
		if err != nil {
			return err
		}
		views := make([]sourceView, 0, len(sources))
		for _, src := range sources {
			views = append(views, mapSource(src))
		}
		return c.JSON(http.StatusOK, views)
	})

	type createSourceReq struct {
		URL  string `json:"url"`
		Kind string `json:"kind"`
	}

	e.POST("/sources", func(c echo.Context) error {
		var req createSourceReq
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
		}
		if req.URL == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "url required")
		}
		kind := req.Kind
		if kind == "" {
			kind = "feed"
		}
		if kind != "feed" && kind != "page" {
			return echo.NewHTTPError(http.StatusBadRequest, "kind must be feed or page")
		}
		canonical, err := cleanse.Canonicalize(req.URL, nil)
		if err != nil {
			return err
		}
		if !canonical.IsAbsolute() {
			return echo.NewHTTPError(http.StatusBadRequest, "url must be absolute")
		}
		ctx := c.Request().Context()
		src, err := cfg.Store.InsertSource(ctx, canonical.String(), kind)
		if err != nil {
			if errors.Is(err, store.ErrSourceExists) {
				return echo.NewHTTPError(http.StatusConflict, "source exists")
			}
			return err
		}
		return c.JSON(http.StatusCreated, mapSource(src))
	})

	e.GET("/urls", func(c echo.Context) error {
		limit, err := parsePositiveInt(c.QueryParam("limit"), defaultURLsLimit)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		if limit > maxURLsLimit {
			limit = maxURLsLimit
		}
		offset, err := parsePositiveInt(c.QueryParam("offset"), 0)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid offset")
		}
		ctx := c.Request().Context()
		records, err := cfg.Store.FilterURLs(ctx, store.FilterURLsParams{
			Host:   c.QueryParam("host"),
			Limit:  int32(limit),
			Offset: int32(offset),
		})
		if err != nil {
			return err
		}
		views := make([]urlView, 0, len(records))
		for _, r := range records {
			views = append(views, mapURL(r))
		}
		return c.JSON(http.StatusOK, views)
	})

	e.GET("/urls/search", func(c echo.Context) error {
		limit, err := parsePositiveInt(c.QueryParam("limit"), defaultSearchHits)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		if limit > maxURLsLimit {
			limit = maxURLsLimit
		}
		offset, err := parsePositiveInt(c.QueryParam("offset"), 0)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid offset")
		}
		ctx := c.Request().Context()
		res, err := cfg.Search.Search(ctx, c.QueryParam("q"), limit, offset, search.SearchFilters{
			Host: c.QueryParam("host"),
		})
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, res)
	})

	e.GET("/hosts", func(c echo.Context) error {
		limit, err := parsePositiveInt(c.QueryParam("limit"), defaultHostsLimit)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		if limit > maxHostsLimit {
			limit = maxHostsLimit
		}
		ctx := c.Request().Context()
		counts, err := cfg.Store.CountByHost(ctx, int32(limit))
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, counts)
	})

	type normalizeReq struct {
		URL   string   `json:"url"`
		Strip []string `json:"strip"`
	}

	e.POST("/normalize", func(c echo.Context) error {
		var req normalizeReq
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
		}
		if req.URL == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "url required")
		}
		strip := append(append([]string{}, cfg.Strip...), req.Strip...)
		canonical, err := cleanse.Canonicalize(req.URL, strip)
		if err != nil {
			cfg.Metrics.CountCleanse("normalize", "rejected")
			return err
		}
		cfg.Metrics.CountCleanse("normalize", "ok")
		return c.JSON(http.StatusOK, mapNormalized(canonical))
	})

	type equivReq struct {
		A string `json:"a"`
		B string `json:"b"`
	}

	type equivView struct {
		Equivalent bool   `json:"equivalent"`
		A          string `json:"a"`
		B          string `json:"b"`
	}

	e.POST("/equiv", func(c echo.Context) error {
		var req equivReq
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
		}
		if req.A == "" || req.B == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "a and b required")
		}
		a, err := urlnorm.Parse(req.A)
		if err != nil {
			cfg.Metrics.CountCleanse("equiv", "rejected")
			return err
		}
		b, err := urlnorm.Parse(req.B)
		if err != nil {
			cfg.Metrics.CountCleanse("equiv", "rejected")
			return err
		}
		cfg.Metrics.CountCleanse("equiv", "ok")
		return c.JSON(http.StatusOK, equivView{
			Equivalent: a.Equiv(b),
			A:          a.String(),
			B:          b.String(),
		})
	})

	return e
}

func parsePositiveInt(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errors.New("negative value")
	}
	if n == 0 {
		return def, nil
	}
	return n, nil
}

func requestLogger(service string) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogLatency:      true,
		LogMethod:       true,
		LogURI:          true,
		LogStatus:       true,
		LogError:        true,
		LogResponseSize: true,
		Skipper:         func(c echo.Context) bool { return false },
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			extra := map[string]any{
				"method":  v.Method,
				"uri":     v.URI,
				"status":  v.Status,
				"latency": v.Latency.String(),
				"size":    v.ResponseSize,
			}
			if v.Error != nil {
				logx.Error(service, "request", v.Error, extra)
			} else {
				logx.Info(service, "request", extra)
			}
			return nil
		},
	})
}

type sourceView struct {
	ID           string     `json:"id"`
	URL          string     `json:"url"`
	Kind         string     `json:"kind"`
	ETag         *string    `json:"etag,omitempty"`
	LastModified *string    `json:"last_modified,omitempty"`
	LastCrawled  *time.Time `json:"last_crawled,omitempty"`
	Active       bool       `json:"active"`
}

func mapSource(src store.Source) sourceView {
	view := sourceView{
		ID:     src.ID,
		URL:    src.URL,
		Kind:   src.Kind,
		Active: src.Active,
	}
	if src.ETag.Valid {
		view.ETag = &src.ETag.String
	}
	if src.LastModified.Valid {
		view.LastModified = &src.LastModified.String
	}
	if src.LastCrawled.Valid {
		t := src.LastCrawled.Time.UTC()
		view.LastCrawled = &t
	}
	return view
}

type urlView struct {
	ID        string    `json:"id"`
	Canonical string    `json:"canonical"`
	Host      string    `json:"host"`
	SourceID  *string   `json:"source_id,omitempty"`
	BatchID   *string   `json:"batch_id,omitempty"`
	RawCount  int64     `json:"raw_count"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

func mapURL(r store.URLRecord) urlView {
	view := urlView{
		ID:        r.ID,
		Canonical: r.Canonical,
		Host:      r.Host,
		RawCount:  r.RawCount,
		FirstSeen: r.FirstSeen.UTC(),
		LastSeen:  r.LastSeen.UTC(),
	}
	if r.SourceID.Valid {
		view.SourceID = &r.SourceID.String
	}
	if r.BatchID.Valid {
		view.BatchID = &r.BatchID.String
	}
	return view
}

type normalizedView struct {
	Canonical string `json:"canonical"`
	Scheme    string `json:"scheme"`
	Host      string `json:"host"`
	Port      int    `json:"port,omitempty"`
	Path      string `json:"path"`
	Params    string `json:"params,omitempty"`
	Query     string `json:"query,omitempty"`
	Absolute  bool   `json:"absolute"`
}

func mapNormalized(u urlnorm.URL) normalizedView {
	return normalizedView{
		Canonical: u.String(),
		Scheme:    u.Scheme,
		Host:      u.Host,
		Port:      u.Port,
		Path:      u.Path,
		Params:    u.Params,
		Query:     u.Query,
		Absolute:  u.IsAbsolute(),
	}
}
