// Package scrape discovers bulletin file links on the DANE portal and
// registers them into the download ledger. Link discovery is regexp
// over raw HTML; the portal's markup is machine-generated and stable.
package scrape

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/agroamigo/sipsa-cli/internal/model"
)

// Link categories used in storage paths and filtering.
const (
	CategoryAnexo    = "anexo"
	CategoryInformes = "informes_ciudades"
	CategoryBoletin  = "boletin"
)

// FileLink is one downloadable bulletin file discovered on a portal
// page, with everything the registrar needs to fetch and file it.
type FileLink struct {
	URL        string
	LinkText   string
	FileKind   model.FileKind
	FileDate   *time.Time
	Filename   string
	SourcePage string
}

var monthAbbr = map[string]time.Month{
	"ene": time.January, "feb": time.February, "mar": time.March,
	"abr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "ago": time.August, "sep": time.September,
	"sept": time.September, "oct": time.October, "nov": time.November,
	"dic": time.December,
}

var monthNames = map[string]time.Month{
	"enero": time.January, "febrero": time.February, "marzo": time.March,
	"abril": time.April, "mayo": time.May, "junio": time.June,
	"julio": time.July, "agosto": time.August, "septiembre": time.September,
	"octubre": time.October, "noviembre": time.November, "diciembre": time.December,
}

var (
	// Modern filenames: anex-SIPSADiario-24dic2025.xlsx. Older files
	// use the four-letter "sept".
	modernDateRe = regexp.MustCompile(`(\d{1,2})([a-z]{3,4}?)(\d{4})`)
	// Pre-2019 filenames: mayoristas_noviembre_30_2018.xlsx.
	historicalDateRe = regexp.MustCompile(`mayoristas_([a-z]+)_(\d{1,2})_(\d{4})`)
)

// DateFromURL extracts the publication date encoded in a file URL.
// Returns nil when neither naming scheme matches.
func DateFromURL(rawURL string) *time.Time {
	lower := strings.ToLower(rawURL)

	if m := modernDateRe.FindStringSubmatch(lower); m != nil {
		if month, ok := monthAbbr[m[2]]; ok {
			if d := buildDate(m[3], month, m[1]); d != nil {
				return d
			}
		}
	}
	if m := historicalDateRe.FindStringSubmatch(lower); m != nil {
		if month, ok := monthNames[m[1]]; ok {
			if d := buildDate(m[3], month, m[2]); d != nil {
				return d
			}
		}
	}
	return nil
}

func buildDate(yearStr string, month time.Month, dayStr string) *time.Time {
	year, _ := strconv.Atoi(yearStr)
	day, _ := strconv.Atoi(dayStr)
	if day < 1 || day > 31 {
		return nil
	}
	d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if d.Day() != day {
		// Rolled over, e.g. 31 of a 30-day month.
		return nil
	}
	return &d
}

// KindFromLink infers the file kind from the href extension, falling
// back to the link text. Returns "" for non-data links.
func KindFromLink(href, linkText string) model.FileKind {
	h := strings.ToLower(href)
	t := strings.ToLower(linkText)

	switch {
	case strings.HasSuffix(h, ".zip"):
		return model.FileKindZIP
	case strings.HasSuffix(h, ".pdf"):
		return model.FileKindPDF
	case strings.HasSuffix(h, ".xlsx"), strings.HasSuffix(h, ".xls"):
		return model.FileKindExcel
	}
	switch {
	case strings.Contains(t, "informes por ciudades"), strings.Contains(h, "regionales"):
		return model.FileKindZIP
	case strings.Contains(t, "anexo"), strings.Contains(h, "anex-"):
		return model.FileKindExcel
	}
	return ""
}

// Category classifies a link for filtering and storage paths. The bare
// "mayoristas" fallback catches historical anexo files whose link text
// is just the date.
func Category(href, linkText string) string {
	h := strings.ToLower(href)
	t := strings.ToLower(linkText)

	switch {
	case strings.Contains(t, "informes por ciudades"), strings.Contains(h, "regionales"):
		return CategoryInformes
	case strings.Contains(t, "anexo"), strings.Contains(h, "anex-"):
		return CategoryAnexo
	case strings.Contains(t, "bolet"), strings.Contains(h, "bolet"):
		return CategoryBoletin
	case strings.Contains(h, "mayoristas"):
		return CategoryAnexo
	}
	return ""
}

var (
	anchorRe = regexp.MustCompile(`(?is)<a\s[^>]*href="([^"]+)"[^>]*>(.*?)</a>`)
	tagRe    = regexp.MustCompile(`<[^>]+>`)
)

var entityReplacer = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
	"&nbsp;", " ",
)

var wsRe = regexp.MustCompile(`\s+`)

func anchorText(inner string) string {
	s := tagRe.ReplaceAllString(inner, " ")
	s = entityReplacer.Replace(s)
	return strings.TrimSpace(wsRe.ReplaceAllString(s, " "))
}

// ExtractLinks finds all bulletin file links in a page. Only hrefs
// under /files/ are considered; everything else on the portal is
// navigation.
func ExtractLinks(pageURL, html, baseURL string) []FileLink {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}

	var links []FileLink
	for _, m := range anchorRe.FindAllStringSubmatch(html, -1) {
		href := entityReplacer.Replace(m[1])
		if !strings.HasPrefix(href, "/files/") {
			continue
		}
		text := anchorText(m[2])
		kind := KindFromLink(href, text)
		if kind == "" {
			continue
		}
		ref, err := url.Parse(href)
		if err != nil {
			continue
		}
		segments := strings.Split(ref.Path, "/")
		links = append(links, FileLink{
			URL:        base.ResolveReference(ref).String(),
			LinkText:   text,
			FileKind:   kind,
			FileDate:   DateFromURL(href),
			Filename:   segments[len(segments)-1],
			SourcePage: pageURL,
		})
	}
	return links
}
