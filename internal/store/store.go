package store

import (
	"context"
	"time"

	"github.com/agroamigo/sipsa-cli/internal/model"
)

// EntryFilter specifies criteria for listing download entries.
type EntryFilter struct {
	Processed *bool          `json:"processed,omitempty"`
	FileKind  model.FileKind `json:"file_kind,omitempty"`
	Date      *time.Time     `json:"date,omitempty"`
	Limit     int            `json:"limit,omitempty"`
	Offset    int            `json:"offset,omitempty"`
}

// ProcessingErrorFilter specifies criteria for listing processing errors.
type ProcessingErrorFilter struct {
	Kind     model.ProcessingErrorKind `json:"kind,omitempty"`
	Resolved *bool                     `json:"resolved,omitempty"`
	EntryID  string                    `json:"entry_id,omitempty"`
	Limit    int                       `json:"limit,omitempty"`
}

// DownloadErrorFilter specifies criteria for listing download errors.
type DownloadErrorFilter struct {
	Kind     model.DownloadErrorKind `json:"kind,omitempty"`
	Resolved *bool                   `json:"resolved,omitempty"`
	Limit    int                     `json:"limit,omitempty"`
}

// Store defines the persistence interface for the bulletin pipeline.
type Store interface {
	// Download entries
	RegisterDownload(ctx context.Context, entry *model.DownloadEntry) (bool, error)
	GetDownloadEntry(ctx context.Context, id string) (*model.DownloadEntry, error)
	GetDownloadEntryByURL(ctx context.Context, url string) (*model.DownloadEntry, error)
	ListDownloadEntries(ctx context.Context, filter EntryFilter) ([]model.DownloadEntry, error)
	MarkEntryProcessed(ctx context.Context, id string) error

	// Extracted documents
	CreateExtractedDocument(ctx context.Context, doc *model.ExtractedDocument) error
	GetExtractedDocumentByPath(ctx context.Context, storagePath string) (*model.ExtractedDocument, error)
	ListExtractedDocuments(ctx context.Context, entryID string) ([]model.ExtractedDocument, error)
	MarkDocumentProcessed(ctx context.Context, id string) error

	// Price observations
	InsertPriceObservations(ctx context.Context, obs []model.PriceObservation) (int64, error)

	// Error ledger
	RecordProcessingError(ctx context.Context, perr *model.ProcessingError) error
	ListProcessingErrors(ctx context.Context, filter ProcessingErrorFilter) ([]model.ProcessingError, error)
	ResolveProcessingError(ctx context.Context, id string) error
	IncrementProcessingRetry(ctx context.Context, id string) error
	RecordDownloadError(ctx context.Context, derr *model.DownloadError) error
	ListDownloadErrors(ctx context.Context, filter DownloadErrorFilter) ([]model.DownloadError, error)
	ResolveDownloadError(ctx context.Context, id string) error
	IncrementDownloadRetry(ctx context.Context, id string) error

	// Geography
	UpsertDepartments(ctx context.Context, deps []model.Department) error
	UpsertMunicipalities(ctx context.Context, munis []model.Municipality) (int64, error)
	ListMunicipalities(ctx context.Context) ([]model.Municipality, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
