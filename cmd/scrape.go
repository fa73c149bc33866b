package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agroamigo/sipsa-cli/internal/scrape"
)

var scrapeCurrentCmd = &cobra.Command{
	Use:   "scrape-current",
	Short: "Register the current month's bulletin files",
	Long:  "Discovers PDF, Excel, and ZIP links on the main bulletin page and registers each file exactly once: fetch, store, record. Already-registered URLs are skipped without re-fetching.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd)
		defer stop()

		if err := cfg.Validate("scrape"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		objects, err := openObjects(ctx)
		if err != nil {
			return err
		}

		f := newFetcher()
		scraper := &scrape.CurrentMonthScraper{
			Pages:     f,
			Registrar: newRegistrar(st, objects, f),
			BaseURL:   cfg.Scrape.BaseURL,
			MainPath:  cfg.Scrape.CurrentMonthPath,
		}

		summary, err := scraper.Run(ctx, scrapeFilter(cmd))
		if err != nil {
			return eris.Wrap(err, "scrape-current")
		}

		printScrapeSummary(summary)
		return scrapeFailures(summary)
	},
}

var scrapeHistoricalCmd = &cobra.Command{
	Use:   "scrape-historical",
	Short: "Register bulletin files from the month archives",
	Long: `Walks the historical archive's month pages and registers every file
dated inside the requested range. Use --year for a whole year, or
--start-date/--end-date (YYYY-MM-DD) for an arbitrary range.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd)
		defer stop()

		if err := cfg.Validate("scrape"); err != nil {
			return err
		}

		start, end, err := historicalRange(cmd)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		objects, err := openObjects(ctx)
		if err != nil {
			return err
		}

		f := newFetcher()
		scraper := &scrape.HistoricalScraper{
			Pages:     f,
			Registrar: newRegistrar(st, objects, f),
			BaseURL:   cfg.Scrape.BaseURL,
			MainPath:  cfg.Scrape.HistoricalPath,
			Threads:   cfg.Pipeline.Threads,
		}

		zap.L().Info("scraping historical archives",
			zap.String("start", start.Format("2006-01-02")),
			zap.String("end", end.Format("2006-01-02")))

		summary, err := scraper.Run(ctx, start, end, scrapeFilter(cmd))
		if err != nil {
			return eris.Wrap(err, "scrape-historical")
		}

		printScrapeSummary(summary)
		return scrapeFailures(summary)
	},
}

func scrapeFilter(cmd *cobra.Command) scrape.Filter {
	anexoOnly, _ := cmd.Flags().GetBool("anexo-only")
	informesOnly, _ := cmd.Flags().GetBool("informes-only")
	includeBoletin, _ := cmd.Flags().GetBool("include-boletin")
	return scrape.Filter{
		AnexoOnly:      anexoOnly,
		InformesOnly:   informesOnly,
		IncludeBoletin: includeBoletin,
	}
}

// historicalRange resolves --year or --start-date/--end-date into a
// concrete date range.
func historicalRange(cmd *cobra.Command) (time.Time, time.Time, error) {
	year, _ := cmd.Flags().GetInt("year")
	startStr, _ := cmd.Flags().GetString("start-date")
	endStr, _ := cmd.Flags().GetString("end-date")

	if year > 0 {
		if startStr != "" || endStr != "" {
			return time.Time{}, time.Time{}, eris.New("use either --year or --start-date/--end-date, not both")
		}
		start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
		return start, time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC), nil
	}

	if startStr == "" || endStr == "" {
		return time.Time{}, time.Time{}, eris.New("either --year or both --start-date and --end-date are required")
	}
	start, err := time.Parse("2006-01-02", startStr)
	if err != nil {
		return time.Time{}, time.Time{}, eris.Wrapf(err, "parse --start-date %q", startStr)
	}
	end, err := time.Parse("2006-01-02", endStr)
	if err != nil {
		return time.Time{}, time.Time{}, eris.Wrapf(err, "parse --end-date %q", endStr)
	}
	return start, end, nil
}

func printScrapeSummary(s *scrape.Summary) {
	fmt.Printf("Found %d files: %d downloaded, %d skipped, %d failed\n",
		s.TotalFound, s.Downloaded, s.Skipped, s.Failed)
}

// scrapeFailures turns per-file failures into a command error so the
// process exits non-zero when the run was not clean.
func scrapeFailures(s *scrape.Summary) error {
	if s.Failed == 0 {
		return nil
	}
	return eris.Errorf("%d of %d files failed; see the download error ledger", s.Failed, s.TotalFound)
}

func addScrapeFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("anexo-only", false, "only the Excel anexo files")
	cmd.Flags().Bool("informes-only", false, "only the informes por ciudades archives")
	cmd.Flags().Bool("include-boletin", false, "also register boletín PDFs")
}

func init() {
	addScrapeFlags(scrapeCurrentCmd)

	addScrapeFlags(scrapeHistoricalCmd)
	scrapeHistoricalCmd.Flags().Int("year", 0, "scrape a whole calendar year")
	scrapeHistoricalCmd.Flags().String("start-date", "", "range start (YYYY-MM-DD)")
	scrapeHistoricalCmd.Flags().String("end-date", "", "range end (YYYY-MM-DD)")

	rootCmd.AddCommand(scrapeCurrentCmd)
	rootCmd.AddCommand(scrapeHistoricalCmd)
}
