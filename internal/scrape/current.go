package scrape

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// PageFetcher fetches a portal page as HTML.
type PageFetcher interface {
	FetchPage(ctx context.Context, rawURL string) (string, error)
}

// Summary reports one scraper run.
type Summary struct {
	TotalFound int      `json:"total_found"`
	Downloaded int      `json:"downloaded"`
	Skipped    int      `json:"skipped"`
	Failed     int      `json:"failed"`
	EntryIDs   []string `json:"entry_ids,omitempty"`
}

// Filter narrows which discovered links a scraper run registers.
// Boletín PDFs are excluded unless asked for; they duplicate the city
// archives and parse poorly.
type Filter struct {
	AnexoOnly      bool
	InformesOnly   bool
	IncludeBoletin bool
}

func (f Filter) keep(link FileLink) bool {
	cat := Category(link.URL, link.LinkText)
	if cat == CategoryBoletin && !f.IncludeBoletin {
		return false
	}
	if f.AnexoOnly {
		return strings.Contains(strings.ToLower(link.LinkText), "anexo") ||
			strings.Contains(strings.ToLower(link.URL), "anex-")
	}
	if f.InformesOnly {
		return strings.Contains(strings.ToLower(link.LinkText), "informes") ||
			strings.Contains(strings.ToLower(link.URL), "regionales")
	}
	return true
}

// CurrentMonthScraper registers the current month's files from the
// main bulletin page.
type CurrentMonthScraper struct {
	Pages     PageFetcher
	Registrar *Registrar
	BaseURL   string
	MainPath  string
}

// Run discovers and registers the current month's files. Links whose
// filename carries no parseable date stay in the set so the registrar
// can ledger them as date parse failures.
func (s *CurrentMonthScraper) Run(ctx context.Context, filter Filter) (*Summary, error) {
	mainPage := strings.TrimSuffix(s.BaseURL, "/") + s.MainPath
	zap.L().Info("fetching main bulletin page", zap.String("url", mainPage))

	html, err := s.Pages.FetchPage(ctx, mainPage)
	if err != nil {
		return nil, eris.Wrap(err, "scrape: fetch main page")
	}

	var links []FileLink
	for _, link := range ExtractLinks(mainPage, html, s.BaseURL) {
		if !filter.keep(link) {
			continue
		}
		links = append(links, link)
	}

	summary := &Summary{TotalFound: len(links)}
	for _, link := range links {
		if ctx.Err() != nil {
			return summary, eris.Wrap(ctx.Err(), "scrape: cancelled")
		}
		status, entryID, err := s.Registrar.Register(ctx, link)
		if err != nil {
			return summary, err
		}
		summary.count(status, entryID)
	}

	zap.L().Info("current month scrape done",
		zap.Int("found", summary.TotalFound),
		zap.Int("downloaded", summary.Downloaded),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}

func (s *Summary) count(status RegisterStatus, entryID string) {
	switch status {
	case StatusDownloaded, StatusDryRun:
		s.Downloaded++
		if entryID != "" {
			s.EntryIDs = append(s.EntryIDs, entryID)
		}
	case StatusSkipped:
		s.Skipped++
	case StatusFailed:
		s.Failed++
	}
}

func (s *Summary) merge(o *Summary) {
	s.TotalFound += o.TotalFound
	s.Downloaded += o.Downloaded
	s.Skipped += o.Skipped
	s.Failed += o.Failed
	s.EntryIDs = append(s.EntryIDs, o.EntryIDs...)
}
