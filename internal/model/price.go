package model

import (
	"math"
	"time"
)

// PriceObservation is one normalized, persisted price data point.
// Observations are immutable once created; corrections happen by
// reprocessing the upstream entry, never by in-place edits.
type PriceObservation struct {
	ID                  string    `json:"id"`
	Category            string    `json:"category"`
	Subcategory         string    `json:"subcategory,omitempty"`
	Product             string    `json:"product"`
	Presentation        string    `json:"presentation,omitempty"`
	Units               string    `json:"units,omitempty"`
	PriceDate           time.Time `json:"price_date"`
	Round               int       `json:"round"`
	MinPrice            *float64  `json:"min_price,omitempty"`
	MaxPrice            *float64  `json:"max_price,omitempty"`
	SourceKind          FileKind  `json:"source_kind"`
	SourcePath          string    `json:"source_path"`
	DownloadEntryID     string    `json:"download_entry_id,omitempty"`
	ExtractedDocumentID string    `json:"extracted_document_id,omitempty"`
	City                string    `json:"city"`
	Market              string    `json:"market,omitempty"`
	ProcessedAt         time.Time `json:"processed_at"`
}

// RawPriceRow is a candidate observation as the parsers produce it,
// before validation. A nil date and empty city are legal here; the
// normalizer rejects them.
type RawPriceRow struct {
	Category     string
	Subcategory  string
	Product      string
	Presentation string
	Units        string
	PriceDate    *time.Time
	Round        int
	MinPrice     *float64
	MaxPrice     *float64
	City         string
	Market       string
}

// Payload converts the row into the forensic payload attached to
// validation errors.
func (r RawPriceRow) Payload(kind FileKind) *RowPayload {
	p := &RowPayload{
		SourceKind:  kind,
		Category:    r.Category,
		Subcategory: r.Subcategory,
		Product:     r.Product,
		City:        r.City,
		Market:      r.Market,
	}
	if r.PriceDate != nil {
		p.PriceDate = r.PriceDate.Format("2006-01-02")
	}
	return p
}

// RoundPrice rounds a price to two decimal places, the precision the
// observations table stores.
func RoundPrice(v float64) float64 {
	return math.Round(v*100) / 100
}

// Price returns a pointer to v rounded to storage precision, or nil for
// non-positive values (the bulletins use zero as "no data").
func Price(v float64) *float64 {
	if v <= 0 {
		return nil
	}
	r := RoundPrice(v)
	return &r
}
