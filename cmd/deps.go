package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/agroamigo/sipsa-cli/internal/fetcher"
	"github.com/agroamigo/sipsa-cli/internal/geo"
	"github.com/agroamigo/sipsa-cli/internal/pipeline"
	"github.com/agroamigo/sipsa-cli/internal/scrape"
	"github.com/agroamigo/sipsa-cli/internal/storage"
	"github.com/agroamigo/sipsa-cli/internal/store"
)

// signalContext derives a command context that cancels on SIGINT or
// SIGTERM so a long scrape or processing run shuts down cleanly.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
}

// openStore connects the configured database backend.
func openStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q (postgres or sqlite)", cfg.Store.Driver)
	}
}

// openObjects builds the configured object storage backend.
func openObjects(ctx context.Context) (storage.ObjectStore, error) {
	switch cfg.Storage.Backend {
	case "s3":
		return storage.NewS3(ctx, cfg.Storage.Bucket, cfg.Storage.Region, cfg.Storage.Prefix)
	case "local":
		return storage.NewLocal(cfg.Storage.LocalRoot)
	default:
		return nil, eris.Errorf("unknown storage backend %q (s3 or local)", cfg.Storage.Backend)
	}
}

func newFetcher() *fetcher.HTTPFetcher {
	limiters := fetcher.DefaultRateLimiters()
	if cfg.Scrape.RequestsPerSecond > 0 {
		for host := range limiters {
			limiters[host] = rate.NewLimiter(rate.Limit(cfg.Scrape.RequestsPerSecond), 4)
		}
	}
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:    cfg.Scrape.UserAgent,
		Timeout:      time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		MaxRetries:   cfg.Fetch.MaxRetries,
		RateLimiters: limiters,
	})
}

func newRegistrar(st store.Store, objects storage.ObjectStore, f *fetcher.HTTPFetcher) *scrape.Registrar {
	return &scrape.Registrar{
		Fetcher: f,
		Store:   st,
		Objects: objects,
		DryRun:  cfg.Pipeline.DryRun,
	}
}

// newPipeline wires the processor. The municipality matcher loads from
// the reference tables; an unloaded reference yields an empty matcher
// and city names pass through unnormalized.
func newPipeline(ctx context.Context, st store.Store, objects storage.ObjectStore) (*pipeline.Pipeline, error) {
	matcher, err := geo.LoadMatcher(ctx, st)
	if err != nil {
		return nil, eris.Wrap(err, "load municipality reference")
	}
	return &pipeline.Pipeline{
		Store:      st,
		Objects:    objects,
		Geo:        matcher,
		Threads:    cfg.Pipeline.Threads,
		Sequential: cfg.Pipeline.Sequential,
		DryRun:     cfg.Pipeline.DryRun,
	}, nil
}
