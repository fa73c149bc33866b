// Package model defines the pipeline's persistent entities and the
// error taxonomy shared by the registrar, parsers, and retry coordinator.
package model

import "time"

// FileKind classifies a remote bulletin file.
type FileKind string

const (
	FileKindPDF   FileKind = "pdf"
	FileKindExcel FileKind = "excel"
	FileKindZIP   FileKind = "zip"
)

// DownloadEntry is the durable record of one successfully fetched remote
// file. The canonical download URL is unique; re-discovering a URL that
// already has an entry is a no-op.
type DownloadEntry struct {
	ID          string     `json:"id"`
	RowName     string     `json:"row_name"`
	RowDate     *time.Time `json:"row_date,omitempty"`
	DownloadURL string     `json:"download_url"`
	SourcePage  string     `json:"source_page"`
	StoragePath string     `json:"storage_path"`
	FileKind    FileKind   `json:"file_kind"`
	Processed   bool       `json:"processed"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ExtractedDocument is one document recovered from inside a ZIP download.
// City, market, and date are best-effort inferences from the member
// filename and may be empty; normalization enforces required fields later.
type ExtractedDocument struct {
	ID              string     `json:"id"`
	DownloadEntryID string     `json:"download_entry_id"`
	ArchivePath     string     `json:"archive_path"`
	Filename        string     `json:"filename"`
	StoragePath     string     `json:"storage_path"`
	City            string     `json:"city,omitempty"`
	Market          string     `json:"market,omitempty"`
	DocDate         *time.Time `json:"doc_date,omitempty"`
	Processed       bool       `json:"processed"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
