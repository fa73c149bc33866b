package pipeline

import (
	"fmt"
	"time"

	"github.com/agroamigo/sipsa-cli/internal/geo"
	"github.com/agroamigo/sipsa-cli/internal/model"
	"github.com/agroamigo/sipsa-cli/internal/parse"
)

// Source attributes normalized observations and issues to the file
// they came from.
type Source struct {
	Kind       model.FileKind
	Path       string
	EntryID    string
	DocumentID string
}

// Normalize validates raw rows and shapes the survivors into
// observations. Rows without a date or location are dropped; each
// condition is reported once per document, not once per row, since the
// cause is a malformed header rather than a bad row. A non-nil matcher
// canonicalizes city names against the municipality reference;
// unmatched names pass through unchanged.
func Normalize(rows []model.RawPriceRow, src Source, geos *geo.Matcher) ([]model.PriceObservation, []parse.Issue) {
	var (
		obs             []model.PriceObservation
		issues          []parse.Issue
		noDate          int
		noLocation      int
		firstNoDate     *model.RawPriceRow
		firstNoLocation *model.RawPriceRow
	)
	now := time.Now().UTC()

	for i := range rows {
		row := rows[i]
		if row.PriceDate == nil {
			noDate++
			if firstNoDate == nil {
				firstNoDate = &rows[i]
			}
			continue
		}
		if row.City == "" {
			noLocation++
			if firstNoLocation == nil {
				firstNoLocation = &rows[i]
			}
			continue
		}
		o := model.PriceObservation{
			Category:            row.Category,
			Subcategory:         row.Subcategory,
			Product:             row.Product,
			Presentation:        row.Presentation,
			Units:               row.Units,
			PriceDate:           *row.PriceDate,
			Round:               row.Round,
			SourceKind:          src.Kind,
			SourcePath:          src.Path,
			DownloadEntryID:     src.EntryID,
			ExtractedDocumentID: src.DocumentID,
			City:                row.City,
			Market:              row.Market,
			ProcessedAt:         now,
		}
		if geos != nil {
			if mun, ok := geos.Match(row.City); ok {
				o.City = mun.Name
			}
		}
		if row.MinPrice != nil {
			o.MinPrice = model.Price(*row.MinPrice)
		}
		if row.MaxPrice != nil {
			o.MaxPrice = model.Price(*row.MaxPrice)
		}
		obs = append(obs, o)
	}

	if noDate > 0 {
		issues = append(issues, newIssue(model.ErrMissingDate,
			fmt.Sprintf("%d price rows carried no publication date", noDate), firstNoDate, src))
	}
	if noLocation > 0 {
		issues = append(issues, newIssue(model.ErrMissingLocation,
			fmt.Sprintf("%d price rows carried no city", noLocation), firstNoLocation, src))
	}
	return obs, issues
}

func newIssue(kind model.ProcessingErrorKind, msg string, row *model.RawPriceRow, src Source) parse.Issue {
	iss := parse.Issue{Kind: kind, Message: msg}
	if row != nil {
		iss.Row = row.Payload(src.Kind)
	}
	return iss
}
