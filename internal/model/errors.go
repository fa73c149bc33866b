package model

import "time"

// ProcessingErrorKind is the closed taxonomy for extraction failures.
type ProcessingErrorKind string

const (
	ErrNoPricesExtracted ProcessingErrorKind = "no_prices_extracted"
	ErrCorruptedPDF      ProcessingErrorKind = "corrupted_pdf"
	ErrExcelParse        ProcessingErrorKind = "excel_parse_error"
	ErrMissingDate       ProcessingErrorKind = "missing_date"
	ErrMissingLocation   ProcessingErrorKind = "missing_location"
	ErrMissingCategory   ProcessingErrorKind = "missing_category"
	ErrInvalidCityHeader ProcessingErrorKind = "invalid_city_headers"
	ErrDownloadFailed    ProcessingErrorKind = "download_failed"
	ErrProcessingFailed  ProcessingErrorKind = "processing_failed"
)

// DownloadErrorKind is the closed taxonomy for fetch/registration failures.
type DownloadErrorKind string

const (
	ErrHTTP       DownloadErrorKind = "http_error"
	ErrConnection DownloadErrorKind = "connection_error"
	ErrUpload     DownloadErrorKind = "upload_error"
	ErrDateParse  DownloadErrorKind = "date_parse_error"
)

// RowPayload is the tagged forensic payload attached to processing
// errors. Known fields cover both parser shapes; anything else a parser
// wants to preserve goes into Extra.
type RowPayload struct {
	SourceKind  FileKind          `json:"source_kind"`
	Category    string            `json:"category,omitempty"`
	Subcategory string            `json:"subcategory,omitempty"`
	Product     string            `json:"product,omitempty"`
	City        string            `json:"city,omitempty"`
	Market      string            `json:"market,omitempty"`
	PriceDate   string            `json:"price_date,omitempty"`
	Cells       []string          `json:"cells,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// ProcessingError records a failure to derive a PriceObservation.
// Created by the parsers/normalizer; only the retry coordinator mutates
// it afterwards (retry_count increment, resolved flip).
type ProcessingError struct {
	ID                  string              `json:"id"`
	Kind                ProcessingErrorKind `json:"error_type"`
	Message             string              `json:"error_message"`
	SourcePath          string              `json:"source_path"`
	SourceKind          FileKind            `json:"source_type"`
	DownloadEntryID     string              `json:"download_entry_id,omitempty"`
	ExtractedDocumentID string              `json:"extracted_document_id,omitempty"`
	RowData             *RowPayload         `json:"row_data,omitempty"`
	RetryCount          int                 `json:"retry_count"`
	Resolved            bool                `json:"resolved"`
	CreatedAt           time.Time           `json:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at"`
}

// DownloadError records a failure to fetch or register a remote file.
type DownloadError struct {
	ID          string            `json:"id"`
	DownloadURL string            `json:"download_url"`
	SourcePage  string            `json:"source_page"`
	Kind        DownloadErrorKind `json:"error_type"`
	StatusCode  *int              `json:"error_code,omitempty"`
	Message     string            `json:"error_message"`
	FileKind    FileKind          `json:"file_type"`
	RetryCount  int               `json:"retry_count"`
	Resolved    bool              `json:"resolved"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}
