package parse

import "github.com/agroamigo/sipsa-cli/internal/model"

// Issue is a row- or document-level extraction problem that does not
// abort the parse. The pipeline persists issues to the error ledger
// with source attribution filled in.
type Issue struct {
	Kind    model.ProcessingErrorKind
	Message string
	Row     *model.RowPayload
}

// Result is the output of a single-document parse: the candidate rows
// plus any non-fatal issues found along the way. Validation of the
// rows themselves (date, location) happens downstream.
type Result struct {
	Rows   []model.RawPriceRow
	Issues []Issue
}
