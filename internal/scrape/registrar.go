package scrape

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/agroamigo/sipsa-cli/internal/fetcher"
	"github.com/agroamigo/sipsa-cli/internal/model"
	"github.com/agroamigo/sipsa-cli/internal/storage"
	"github.com/agroamigo/sipsa-cli/internal/store"
)

// RegisterStatus is the outcome of registering one discovered link.
type RegisterStatus string

const (
	StatusDownloaded RegisterStatus = "downloaded"
	StatusSkipped    RegisterStatus = "skipped"
	StatusFailed     RegisterStatus = "failed"
	StatusDryRun     RegisterStatus = "dry-run"
)

// Fetcher is the subset of the HTTP client the registrar needs.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// Registrar downloads a discovered file, files it in object storage,
// and records the download entry. The object is written before the
// entry so a registered row always points at a complete object; the
// URL-unique insert makes re-registration a no-op.
type Registrar struct {
	Fetcher Fetcher
	Store   store.Store
	Objects storage.ObjectStore
	DryRun  bool
}

// Register processes one link end to end. Failures are recorded in
// the download error ledger and reported as StatusFailed; the caller
// keeps going.
func (r *Registrar) Register(ctx context.Context, link FileLink) (RegisterStatus, string, error) {
	log := zap.L().With(
		zap.String("url", link.URL),
		zap.String("file_kind", string(link.FileKind)),
	)

	if r.DryRun {
		log.Info("dry-run: would download", zap.String("filename", link.Filename))
		return StatusDryRun, "", nil
	}

	if link.FileDate == nil {
		// A row without a date cannot be scheduled for processing,
		// so no entry is created for it.
		r.recordDateFailure(ctx, link)
		log.Warn("no date on link", zap.String("filename", link.Filename))
		return StatusFailed, "", nil
	}

	existing, err := r.Store.GetDownloadEntryByURL(ctx, link.URL)
	if err != nil {
		return StatusFailed, "", err
	}
	if existing != nil {
		log.Debug("already registered", zap.String("entry_id", existing.ID))
		return StatusSkipped, existing.ID, nil
	}

	data, err := r.Fetcher.Fetch(ctx, link.URL)
	if err != nil {
		r.recordFailure(ctx, link, err)
		log.Warn("download failed", zap.Error(err))
		return StatusFailed, "", nil
	}

	key := r.storageKey(link)
	if err := r.Objects.Put(ctx, key, data); err != nil {
		r.recordUploadFailure(ctx, link, err)
		log.Warn("upload failed", zap.Error(err))
		return StatusFailed, "", nil
	}

	entry := &model.DownloadEntry{
		RowName:     link.LinkText,
		RowDate:     link.FileDate,
		DownloadURL: link.URL,
		SourcePage:  link.SourcePage,
		StoragePath: key,
		FileKind:    link.FileKind,
	}
	created, err := r.Store.RegisterDownload(ctx, entry)
	if err != nil {
		return StatusFailed, "", err
	}
	if !created {
		// Lost the race to a concurrent worker; the row that won is
		// the canonical one.
		log.Debug("registered concurrently elsewhere")
		return StatusSkipped, "", nil
	}
	log.Info("registered download",
		zap.String("entry_id", entry.ID),
		zap.String("storage_path", key),
		zap.Int("bytes", len(data)),
	)
	return StatusDownloaded, entry.ID, nil
}

func (r *Registrar) storageKey(link FileLink) string {
	category := Category(link.URL, link.LinkText)
	if category == "" {
		category = string(link.FileKind)
	}
	return storage.EntryKey(*link.FileDate, category, link.Filename)
}

func (r *Registrar) recordDateFailure(ctx context.Context, link FileLink) {
	derr := &model.DownloadError{
		DownloadURL: link.URL,
		SourcePage:  link.SourcePage,
		Kind:        model.ErrDateParse,
		Message:     fmt.Sprintf("no publication date could be parsed from %q", link.Filename),
		FileKind:    link.FileKind,
	}
	if err := r.Store.RecordDownloadError(ctx, derr); err != nil {
		zap.L().Error("record download error", zap.Error(err))
	}
}

func (r *Registrar) recordFailure(ctx context.Context, link FileLink, cause error) {
	derr := &model.DownloadError{
		DownloadURL: link.URL,
		SourcePage:  link.SourcePage,
		Kind:        model.ErrConnection,
		Message:     cause.Error(),
		FileKind:    link.FileKind,
	}
	var statusErr *fetcher.StatusError
	if errors.As(cause, &statusErr) {
		derr.Kind = model.ErrHTTP
		derr.StatusCode = &statusErr.StatusCode
	}
	if err := r.Store.RecordDownloadError(ctx, derr); err != nil {
		zap.L().Error("record download error", zap.Error(err))
	}
}

func (r *Registrar) recordUploadFailure(ctx context.Context, link FileLink, cause error) {
	derr := &model.DownloadError{
		DownloadURL: link.URL,
		SourcePage:  link.SourcePage,
		Kind:        model.ErrUpload,
		Message:     cause.Error(),
		FileKind:    link.FileKind,
	}
	if err := r.Store.RecordDownloadError(ctx, derr); err != nil {
		zap.L().Error("record download error", zap.Error(err))
	}
}
