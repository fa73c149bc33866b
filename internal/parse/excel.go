package parse

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/agroamigo/sipsa-cli/internal/model"
)

// ParseExcel extracts price rows from a daily anexo workbook. The
// sheet layout is loose: a date somewhere in the first rows, a header
// row naming one city per column, then product rows interleaved with
// single-cell category rows. Anexo prices are per-kilogram averages,
// so each cell becomes a round-1 row with min and max equal.
//
// rowDate, when known from the download registry, wins over whatever
// date the sheet itself carries.
func ParseExcel(data []byte, rowDate *time.Time) (*Result, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "parse: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("parse: xlsx has no sheets")
	}

	rows := sheetToStrings(f.Sheets[0])
	res := &Result{}

	date := rowDate
	dateRow := -1
	if d, at, ok := findSheetDate(rows); ok {
		dateRow = at
		if date == nil {
			date = &d
		}
	}

	cities, cityRow := findCityHeader(rows, dateRow)
	if len(cities) == 0 {
		res.Issues = append(res.Issues, Issue{
			Kind:    model.ErrInvalidCityHeader,
			Message: "no city columns found in sheet header",
		})
		return res, nil
	}

	dataStart := cityRow + 2
	if cityRow < 0 {
		dataStart = 4
	}

	category := ""
	for i := dataStart; i < len(rows); i++ {
		cells := rows[i]
		if len(cells) == 0 {
			continue
		}
		first := CleanText(cells[0])
		if first == "" {
			continue
		}
		if strings.HasPrefix(first, "*") || strings.HasPrefix(strings.ToLower(first), "n.d.") || strings.Contains(first, "Var%") {
			continue
		}
		if isCategoryRow(cells) {
			category = first
			continue
		}
		if category == "" {
			res.Issues = append(res.Issues, Issue{
				Kind:    model.ErrMissingCategory,
				Message: fmt.Sprintf("no category in effect for product %q", first),
				Row: &model.RowPayload{
					SourceKind: model.FileKindExcel,
					Product:    first,
					Cells:      append([]string(nil), cells...),
				},
			})
			continue
		}
		for _, cc := range cities {
			if cc.col >= len(cells) {
				continue
			}
			cell := strings.TrimSpace(cells[cc.col])
			if cell == "" || strings.EqualFold(cell, "n.d.") {
				continue
			}
			price := ParsePrice(cell)
			if price == nil {
				continue
			}
			max := *price
			res.Rows = append(res.Rows, model.RawPriceRow{
				Category:     category,
				Product:      first,
				Presentation: "Kilogramo",
				Units:        "1 Kilogramo",
				PriceDate:    date,
				Round:        1,
				MinPrice:     price,
				MaxPrice:     &max,
				City:         cc.name,
			})
		}
	}
	return res, nil
}

type cityColumn struct {
	name string
	col  int
}

// findSheetDate scans the leading rows for a publication date. Cells
// holding formulas are skipped so a =TODAY() placeholder never wins
// over the printed date.
func findSheetDate(rows [][]string) (time.Time, int, bool) {
	limit := len(rows)
	if limit > 10 {
		limit = 10
	}
	for i := 0; i < limit; i++ {
		for _, cell := range rows[i] {
			s := strings.TrimSpace(cell)
			if s == "" || strings.HasPrefix(s, "=") || strings.Contains(s, "TODAY()") {
				continue
			}
			if d, ok := ParseSpanishDate(s); ok {
				return d, i, true
			}
			if d, err := time.Parse("02/01/2006", s); err == nil {
				return d, i, true
			}
		}
	}
	return time.Time{}, -1, false
}

// findCityHeader locates the row naming one city per column. The
// marker row mentions "Precio" or a major city; when the markers and
// the city names sit on different rows the names are one row up.
func findCityHeader(rows [][]string, dateRow int) ([]cityColumn, int) {
	start := dateRow + 1
	limit := start + 10
	if limit > len(rows) {
		limit = len(rows)
	}
	for i := start; i < limit; i++ {
		text := strings.Join(rows[i], " ")
		if !strings.Contains(text, "Precio") && !strings.Contains(text, "Bogot") && !strings.Contains(text, "Medell") {
			continue
		}
		cities := cityColumns(rows[i])
		if len(cities) == 0 && i > 0 {
			cities = cityColumns(rows[i-1])
		}
		return cities, i
	}
	return nil, -1
}

// cityColumns picks the city names out of a header row, ignoring the
// label column and the variation columns.
func cityColumns(cells []string) []cityColumn {
	var out []cityColumn
	for col := 1; col < len(cells); col++ {
		name := CleanText(cells[col])
		if name == "" || name == "Precio" || strings.Contains(name, "%") {
			continue
		}
		out = append(out, cityColumn{name: name, col: col})
	}
	return out
}

// isCategoryRow reports whether a row is a category banner: a label in
// the first column with the price columns empty.
func isCategoryRow(cells []string) bool {
	limit := len(cells)
	if limit > 5 {
		limit = 5
	}
	for i := 1; i < limit; i++ {
		if strings.TrimSpace(cells[i]) != "" {
			return false
		}
	}
	return true
}

func sheetToStrings(sheet *xlsx.Sheet) [][]string {
	rows := make([][]string, len(sheet.Rows))
	for i, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows[i] = cells
	}
	return rows
}
