package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/agroamigo/sipsa-cli/internal/model"
	"github.com/agroamigo/sipsa-cli/internal/scrape"
	"github.com/agroamigo/sipsa-cli/internal/store"
)

// RetrySummary reports one retry sweep.
type RetrySummary struct {
	Total    int `json:"total"`
	Resolved int `json:"resolved"`
}

// RetryCoordinator re-drives unresolved ledger entries: processing
// errors by re-running extraction for their entry or document,
// download errors by re-registering the failed URL.
type RetryCoordinator struct {
	Pipeline  *Pipeline
	Registrar *scrape.Registrar
}

// RetryProcessing sweeps unresolved processing errors, optionally
// filtered by kind. The retry count is bumped before the attempt, so a
// crash mid-retry still shows the attempt happened; the error resolves
// only when the re-run yields observations.
func (r *RetryCoordinator) RetryProcessing(ctx context.Context, kind model.ProcessingErrorKind) (*RetrySummary, error) {
	unresolved := false
	errs, err := r.Pipeline.Store.ListProcessingErrors(ctx, store.ProcessingErrorFilter{
		Kind:     kind,
		Resolved: &unresolved,
	})
	if err != nil {
		return nil, err
	}

	summary := &RetrySummary{Total: len(errs)}
	zap.L().Info("retrying processing errors",
		zap.Int("unresolved", len(errs)),
		zap.String("kind", string(kind)),
	)

	for _, perr := range errs {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		if perr.DownloadEntryID == "" {
			continue
		}
		if err := r.Pipeline.Store.IncrementProcessingRetry(ctx, perr.ID); err != nil {
			return summary, err
		}

		res, err := r.Pipeline.processEntryByID(ctx, perr.DownloadEntryID)
		if err != nil {
			zap.L().Warn("retry failed",
				zap.String("error_id", perr.ID),
				zap.Error(err),
			)
			continue
		}
		if res.observations > 0 {
			if err := r.Pipeline.Store.ResolveProcessingError(ctx, perr.ID); err != nil {
				return summary, err
			}
			summary.Resolved++
		}
	}

	zap.L().Info("processing retry sweep done",
		zap.Int("total", summary.Total),
		zap.Int("resolved", summary.Resolved),
	)
	return summary, nil
}

// RetryDownloads sweeps unresolved download errors by re-fetching each
// URL. Unlike processing retries the count only grows on another
// failure: a successful fetch closes the error without inflating it.
func (r *RetryCoordinator) RetryDownloads(ctx context.Context, kind model.DownloadErrorKind) (*RetrySummary, error) {
	unresolved := false
	errs, err := r.Pipeline.Store.ListDownloadErrors(ctx, store.DownloadErrorFilter{
		Kind:     kind,
		Resolved: &unresolved,
	})
	if err != nil {
		return nil, err
	}

	summary := &RetrySummary{Total: len(errs)}
	zap.L().Info("retrying download errors",
		zap.Int("unresolved", len(errs)),
		zap.String("kind", string(kind)),
	)

	for _, derr := range errs {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		link := scrape.FileLink{
			URL:        derr.DownloadURL,
			FileKind:   derr.FileKind,
			FileDate:   scrape.DateFromURL(derr.DownloadURL),
			Filename:   filenameFromURL(derr.DownloadURL),
			SourcePage: derr.SourcePage,
		}
		status, _, err := r.Registrar.Register(ctx, link)
		if err != nil {
			return summary, err
		}
		switch status {
		case scrape.StatusDownloaded, scrape.StatusSkipped:
			if err := r.Pipeline.Store.ResolveDownloadError(ctx, derr.ID); err != nil {
				return summary, err
			}
			summary.Resolved++
		case scrape.StatusFailed:
			if err := r.Pipeline.Store.IncrementDownloadRetry(ctx, derr.ID); err != nil {
				return summary, err
			}
		}
	}

	zap.L().Info("download retry sweep done",
		zap.Int("total", summary.Total),
		zap.Int("resolved", summary.Resolved),
	)
	return summary, nil
}

func filenameFromURL(rawURL string) string {
	for i := len(rawURL) - 1; i >= 0; i-- {
		if rawURL[i] == '/' {
			return rawURL[i+1:]
		}
	}
	return rawURL
}
