package scrape

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Informes por ciudades archives only exist from this date on.
var informesAvailableFrom = time.Date(2020, time.March, 1, 0, 0, 0, 0, time.UTC)

// HistoricalScraper walks the portal's month archive pages and
// registers every file inside a date range.
type HistoricalScraper struct {
	Pages     PageFetcher
	Registrar *Registrar
	BaseURL   string
	MainPath  string
	Threads   int
}

// Run registers all files dated within [start, end]. Month pages are
// fetched sequentially (each month usually has one page); the file
// downloads inside a month fan out across Threads workers.
func (s *HistoricalScraper) Run(ctx context.Context, start, end time.Time, filter Filter) (*Summary, error) {
	if end.Before(start) {
		return nil, eris.Errorf("scrape: end date %s before start date %s",
			end.Format("2006-01-02"), start.Format("2006-01-02"))
	}
	if filter.InformesOnly && start.Before(informesAvailableFrom) {
		zap.L().Warn("informes por ciudades archives start in March 2020",
			zap.String("requested_start", start.Format("2006-01-02")))
	}

	mainPage := strings.TrimSuffix(s.BaseURL, "/") + s.MainPath
	html, err := s.Pages.FetchPage(ctx, mainPage)
	if err != nil {
		return nil, eris.Wrap(err, "scrape: fetch main page")
	}

	months := MonthPageURLs(html, s.BaseURL)
	zap.L().Info("historical months discovered", zap.Int("months", len(months)))

	summary := &Summary{}
	for _, key := range SortedMonthKeys(months) {
		if key.First().After(end) || key.Last().Before(start) {
			continue
		}
		links := s.monthLinks(ctx, key, months[key])
		var inRange []FileLink
		for _, link := range links {
			if !filter.keep(link) {
				continue
			}
			if link.FileDate != nil && (link.FileDate.Before(start) || link.FileDate.After(end)) {
				continue
			}
			inRange = append(inRange, link)
		}
		monthSummary, err := s.registerAll(ctx, inRange)
		summary.merge(monthSummary)
		if err != nil {
			return summary, err
		}
		zap.L().Info("month scraped",
			zap.Int("year", key.Year),
			zap.String("month", key.Month.String()),
			zap.Int("found", monthSummary.TotalFound),
			zap.Int("downloaded", monthSummary.Downloaded),
		)
	}
	return summary, nil
}

// monthLinks tries each known URL for a month until one yields links.
// Reposted archive pages live under -1/-2 suffixes that rarely appear
// on the main page, so those are probed as fallbacks.
func (s *HistoricalScraper) monthLinks(ctx context.Context, key MonthKey, urls []string) []FileLink {
	candidates := append([]string(nil), urls...)
	for _, u := range urls {
		for _, suffix := range []string{"-1", "-2"} {
			if !contains(candidates, u+suffix) {
				candidates = append(candidates, u+suffix)
			}
		}
	}
	for _, u := range candidates {
		html, err := s.Pages.FetchPage(ctx, u)
		if err != nil {
			zap.L().Debug("month page fetch failed",
				zap.String("url", u), zap.Error(err))
			continue
		}
		if links := ExtractLinks(u, html, s.BaseURL); len(links) > 0 {
			return links
		}
	}
	zap.L().Warn("no links found for month",
		zap.Int("year", key.Year), zap.String("month", key.Month.String()))
	return nil
}

func (s *HistoricalScraper) registerAll(ctx context.Context, links []FileLink) (*Summary, error) {
	summary := &Summary{TotalFound: len(links)}
	threads := s.Threads
	if threads < 1 {
		threads = 1
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(threads)
	for _, link := range links {
		link := link
		g.Go(func() error {
			status, entryID, err := s.Registrar.Register(gctx, link)
			if err != nil {
				return err
			}
			mu.Lock()
			summary.count(status, entryID)
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()
	return summary, err
}
