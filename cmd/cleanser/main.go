package main

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"

	"scrub/internal/cleanse"
	"scrub/internal/httpx"
	"scrub/internal/logx"
	"scrub/internal/search"
	"scrub/internal/source"
	"scrub/internal/store"
)

func main() {
	svc := "cleanser"

	runtimeCfg, err := httpx.LoadRuntimeConfig(svc)
	if err != nil {
		fatal(svc, "load config", err, nil)
	}
	svc = runtimeCfg.Service

	metrics := httpx.NewMetrics(svc)
	prometheus.MustRegister(metrics.Collectors()...)

	db, err := sql.Open(runtimeCfg.Database.Driver, runtimeCfg.Database.DSN)
	if err != nil {
		fatal(svc, "open db", err, nil)
	}
	defer db.Close()
	db.SetMaxOpenConns(runtimeCfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(runtimeCfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(runtimeCfg.Database.ConnMaxLifetime)

	repo := store.New(db, metrics)
	searchClient := search.New(runtimeCfg.Search.URL, metrics)

	ctx, cancel := context.WithTimeout(context.Background(), runtimeCfg.Database.PingTimeout)
	if err := db.PingContext(ctx); err != nil {
		fatal(svc, "ping db", err, nil)
	}
	if err := searchClient.EnsureIndex(ctx); err != nil {
		fatal(svc, "ensure index", err, nil)
	}
	cancel()

	pipeline := cleanse.New(cleanse.Config{
		Repo:    repo,
		Index:   searchClient,
		Fetcher: source.NewFetcher(),
		Strip:   runtimeCfg.Cleanser.StripParams,
		Backoff: cleanse.BackoffConfig{
			Min:    runtimeCfg.Cleanser.Backoff.Min,
			Max:    runtimeCfg.Cleanser.Backoff.Max,
			Factor: runtimeCfg.Cleanser.Backoff.Factor,
		},
	})

	every := runtimeCfg.Cleanser.Interval
	logx.Info(svc, "ready", map[string]any{"every": every.String()})

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		ctx, cancel := context.WithTimeout(context.Background(), every)
		run(ctx, svc, repo, pipeline, metrics)
		cancel()
		<-ticker.C
	}
}

func fatal(service, msg string, err error, extra map[string]any) {
	logx.Error(service, msg, err, extra)
	os.Exit(1)
}

func run(ctx context.Context, svc string, repo *store.Store, pipeline *cleanse.Pipeline, metrics *httpx.Metrics) {
	logx.Info(svc, "cleanse tick", nil)

	sources, err := repo.ListSources(ctx, true)
	if err != nil {
		logx.Error(svc, "list sources", err, nil)
		return
	}

	for _, src := range sources {
		result := pipeline.CleanseSource(ctx, src)

		extra := map[string]any{
			"source":    src.URL,
			"source_id": src.ID,
		}
		if result.Status != 0 {
			extra["status"] = result.Status
		}
		if result.BatchID != "" {
			extra["batch_id"] = result.BatchID
		}
		if result.Raw > 0 {
			extra["raw"] = result.Raw
		}
		if result.Fresh > 0 {
			extra["fresh"] = result.Fresh
		}
		if result.Dupes > 0 {
			extra["dupes"] = result.Dupes
		}
		if result.Rejected > 0 {
			extra["rejected"] = result.Rejected
		}
		if result.Reason != "" {
			extra["reason"] = result.Reason
		}
		if result.RetryIn > 0 {
			extra["retry_in"] = result.RetryIn.String()
		}

		switch {
		case result.Err != nil && errors.Is(result.Err, cleanse.ErrBackoffActive):
			metrics.CountCleanse("source", "backoff")
			logx.Info(svc, "source skipped", extra)
		case result.Err != nil:
			metrics.CountCleanse("source", "error")
			logx.Error(svc, "source error", result.Err, extra)
		case result.Skipped:
			metrics.CountCleanse("source", "skipped")
			logx.Info(svc, "source skipped", extra)
		default:
			metrics.CountCleanse("source", "ok")
			logx.Info(svc, "source cleansed", extra)
		}
	}
}
