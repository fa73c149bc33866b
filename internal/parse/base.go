// Package parse turns SIPSA bulletin documents into raw price rows.
// The shared helpers here handle the Spanish-language conventions both
// document families use: long-form dates, Colombian number formatting,
// and the "City (Region), Market" location strings.
package parse

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var spanishMonths = map[string]string{
	"enero":      "01",
	"febrero":    "02",
	"marzo":      "03",
	"abril":      "04",
	"mayo":       "05",
	"junio":      "06",
	"julio":      "07",
	"agosto":     "08",
	"septiembre": "09",
	"octubre":    "10",
	"noviembre":  "11",
	"diciembre":  "12",
}

// Accepts an optional leading day name, e.g. "viernes, 26 de diciembre de 2025".
var spanishDateRe = regexp.MustCompile(`(\d{1,2})\s+de\s+(\w+)\s+de\s+(\d{4})`)

// ParseSpanishDate extracts a long-form Spanish date from text. An
// unrecognized month name falls back to January rather than failing,
// matching how the bulletins are filed when the header is garbled.
func ParseSpanishDate(text string) (time.Time, bool) {
	m := spanishDateRe.FindStringSubmatch(strings.ToLower(text))
	if m == nil {
		return time.Time{}, false
	}
	day, err := strconv.Atoi(m[1])
	if err != nil {
		return time.Time{}, false
	}
	month, ok := spanishMonths[m[2]]
	if !ok {
		month = "01"
	}
	year, err := strconv.Atoi(m[3])
	if err != nil {
		return time.Time{}, false
	}
	mo, _ := strconv.Atoi(month)
	if day < 1 || day > 31 {
		return time.Time{}, false
	}
	return time.Date(year, time.Month(mo), day, 0, 0, 0, 0, time.UTC), true
}

// ParsePrice parses a Colombian-formatted price: dots are thousands
// separators, a comma is the decimal mark. Returns nil for empty
// cells, "n.d." markers, and non-positive values.
func ParsePrice(cell string) *float64 {
	s := strings.TrimSpace(cell)
	if s == "" || strings.EqualFold(s, "n.d.") || s == "0" {
		return nil
	}
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return nil
	}
	return &v
}

// ExtractCityMarket splits a bulletin location string into city and
// market. The common forms are "City (Region), Market" and plain
// "City, Market"; Bogotá D.C. locations keep the comma inside the
// city name, so anything containing "D.C." with three or more parts
// treats only the last part as the market.
func ExtractCityMarket(s string) (city, market string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ""
	}
	if open := strings.Index(s, "("); open >= 0 {
		if close := strings.Index(s[open:], ")"); close >= 0 {
			city = strings.TrimSpace(s[:open])
			rest := strings.TrimSpace(s[open+close+1:])
			market = strings.TrimSpace(strings.TrimPrefix(rest, ","))
			return city, market
		}
	}
	if strings.Contains(s, "D.C.") {
		parts := strings.Split(s, ",")
		if len(parts) >= 3 {
			city = strings.TrimSpace(strings.Join(parts[:len(parts)-1], ","))
			market = strings.TrimSpace(parts[len(parts)-1])
			return city, market
		}
	}
	if i := strings.Index(s, ","); i >= 0 {
		return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+1:])
	}
	return s, ""
}

var digitsRe = regexp.MustCompile(`\d+`)

// RowHasPriceData reports whether any cell at or after priceColStart
// holds a positive number once separators are stripped.
func RowHasPriceData(cells []string, priceColStart int) bool {
	for i := priceColStart; i < len(cells); i++ {
		digits := strings.Join(digitsRe.FindAllString(cells[i], -1), "")
		if digits == "" {
			continue
		}
		if v, err := strconv.ParseInt(digits, 10, 64); err == nil && v > 0 {
			return true
		}
	}
	return false
}

var headerMarkers = []string{"PRECIOS", "PRODUCTO", "MÍNIMO", "MÁXIMO", "PAGINA", "RONDA", "PRESENTACIÓN"}

// IsHeaderRow reports whether a table row is a column header or page
// furniture rather than data.
func IsHeaderRow(cells []string) bool {
	if len(cells) == 0 {
		return false
	}
	first := strings.ToUpper(cells[0])
	for _, m := range headerMarkers {
		if strings.Contains(first, m) {
			return true
		}
	}
	return false
}

var spaceRe = regexp.MustCompile(`\s+`)

// CleanText collapses internal whitespace and trims the result.
func CleanText(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// Member filenames inside city archives carry the date as -DD-MM-YYYY.
var memberDateRe = regexp.MustCompile(`-(\d{1,2})-(\d{1,2})-(\d{4})`)

// ParseMemberFilename splits a city-archive member name such as
// "Bogotá, D.C., Corabastos-26-12-2025.pdf" into city, market, and
// date. The date segment is removed before the location split.
func ParseMemberFilename(name string) (city, market string, date *time.Time) {
	base := strings.TrimSuffix(strings.TrimSuffix(name, ".pdf"), ".PDF")
	if m := memberDateRe.FindStringSubmatch(base); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if day >= 1 && day <= 31 && month >= 1 && month <= 12 {
			d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
			date = &d
		}
		base = strings.Replace(base, m[0], "", 1)
	}
	if i := strings.Index(base, ","); i >= 0 {
		return CleanText(base[:i]), CleanText(base[i+1:]), date
	}
	return CleanText(base), "", date
}
