package parse

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rotisserie/eris"

	"github.com/agroamigo/sipsa-cli/internal/model"
)

const bulletinTitle = "PRECIOS DE VENTA MAYORISTA"

// ParsePDF extracts price rows from a city bulletin PDF. The first
// page carries the bulletin title, the market location on the line
// below it, and the publication date; subsequent pages continue the
// price table. A read failure means the file itself is corrupt and is
// returned as an error rather than an Issue.
func ParsePDF(data []byte) (*Result, error) {
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), pdfmodel.NewDefaultConfiguration())
	if err != nil {
		return nil, eris.Wrap(err, "parse: read pdf")
	}

	var pages [][][]string
	for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
		pages = append(pages, extractPageRows(ctx, pageNr))
	}
	if len(pages) == 0 {
		return nil, eris.New("parse: pdf has no pages")
	}

	city, market, date := pdfHeader(pages[0])
	rounds := detectRounds(pages[0])

	res := &Result{}
	tb := tableBuilder{
		city:   city,
		market: market,
		date:   date,
		rounds: rounds,
		res:    res,
	}
	for _, rows := range pages {
		for _, cells := range rows {
			tb.feed(cells)
		}
	}
	tb.finish()
	return res, nil
}

// pdfHeader pulls the location and date from the first page. The
// location sits on the row after the bulletin title; the date is the
// first long-form Spanish date anywhere on the page.
func pdfHeader(rows [][]string) (city, market string, date *time.Time) {
	for i, cells := range rows {
		text := strings.Join(cells, " ")
		if date == nil {
			if d, ok := ParseSpanishDate(text); ok {
				date = &d
			}
		}
		if city == "" && strings.Contains(strings.ToUpper(text), bulletinTitle) && i+1 < len(rows) {
			city, market = ExtractCityMarket(strings.Join(rows[i+1], " "))
		}
	}
	return city, market, date
}

// detectRounds determines how many price rounds the table carries by
// scanning the leading rows for round labels. Bulletins without a
// label publish a single round.
func detectRounds(rows [][]string) int {
	limit := len(rows)
	if limit > 10 {
		limit = 10
	}
	for _, cells := range rows[:limit] {
		text := strings.Join(cells, " ")
		if strings.Contains(text, "Ronda 3") {
			return 3
		}
		if strings.Contains(text, "Ronda 2") {
			return 2
		}
	}
	return 1
}

// tableBuilder carries the category state machine across pages.
// Category and subcategory labels appear as standalone rows above the
// products they cover, so non-price rows stack up and the next price
// row consumes them.
type tableBuilder struct {
	city    string
	market  string
	date    *time.Time
	rounds  int
	res     *Result
	stack   []string
	cat     string
	sub     string
	inTable bool
}

func (tb *tableBuilder) feed(cells []string) {
	if len(cells) == 0 {
		return
	}
	if IsHeaderRow(cells) {
		tb.inTable = true
		return
	}
	if !RowHasPriceData(cells, 3) {
		if tb.inTable {
			if label := CleanText(cells[0]); label != "" {
				tb.stack = append(tb.stack, label)
			}
		}
		return
	}
	tb.priceRow(cells)
}

func (tb *tableBuilder) priceRow(cells []string) {
	switch {
	case len(tb.stack) >= 2:
		tb.sub = tb.stack[len(tb.stack)-1]
		tb.cat = tb.stack[len(tb.stack)-2]
		if rest := tb.stack[:len(tb.stack)-2]; len(rest) > 0 {
			tb.res.Issues = append(tb.res.Issues, Issue{
				Kind:    model.ErrProcessingFailed,
				Message: fmt.Sprintf("unused category labels before %q: %s", cells[0], strings.Join(rest, "; ")),
				Row:     tb.payload(cells),
			})
		}
		tb.stack = tb.stack[:0]
	case len(tb.stack) == 1:
		tb.sub = tb.stack[0]
		tb.stack = tb.stack[:0]
	}

	if tb.cat == "" {
		tb.res.Issues = append(tb.res.Issues, Issue{
			Kind:    model.ErrMissingCategory,
			Message: fmt.Sprintf("no category in effect for product %q", cells[0]),
			Row:     tb.payload(cells),
		})
		return
	}

	row := model.RawPriceRow{
		Category:    tb.cat,
		Subcategory: tb.sub,
		Product:     CleanText(cells[0]),
		PriceDate:   tb.date,
		City:        tb.city,
		Market:      tb.market,
	}
	if len(cells) > 1 {
		row.Presentation = CleanText(cells[1])
	}
	if len(cells) > 2 {
		row.Units = CleanText(cells[2])
	}

	if len(cells) >= 5 {
		min, max := ParsePrice(cells[3]), ParsePrice(cells[4])
		if min != nil || max != nil {
			r := row
			r.Round = 1
			r.MinPrice = min
			r.MaxPrice = max
			tb.res.Rows = append(tb.res.Rows, r)
		}
	}
	if len(cells) >= 7 && tb.rounds >= 2 {
		min, max := ParsePrice(cells[5]), ParsePrice(cells[6])
		if min != nil && max != nil {
			r := row
			r.Round = 2
			r.MinPrice = min
			r.MaxPrice = max
			tb.res.Rows = append(tb.res.Rows, r)
		}
	}
}

// finish reports labels the last page accumulated but never consumed.
func (tb *tableBuilder) finish() {
	if len(tb.stack) > 0 {
		tb.res.Issues = append(tb.res.Issues, Issue{
			Kind:    model.ErrProcessingFailed,
			Message: "unconsumed category labels at end of table: " + strings.Join(tb.stack, "; "),
		})
		tb.stack = tb.stack[:0]
	}
}

func (tb *tableBuilder) payload(cells []string) *model.RowPayload {
	p := &model.RowPayload{
		SourceKind:  model.FileKindPDF,
		Category:    tb.cat,
		Subcategory: tb.sub,
		City:        tb.city,
		Market:      tb.market,
		Cells:       append([]string(nil), cells...),
	}
	if len(cells) > 0 {
		p.Product = CleanText(cells[0])
	}
	if tb.date != nil {
		p.PriceDate = tb.date.Format("2006-01-02")
	}
	return p
}
