package main

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/agroamigo/sipsa-cli/internal/pipeline"
	"github.com/agroamigo/sipsa-cli/internal/scrape"
	"github.com/agroamigo/sipsa-cli/internal/storage"
	"github.com/agroamigo/sipsa-cli/internal/store"
)

var runCurrentCmd = &cobra.Command{
	Use:   "run-current",
	Short: "Scrape the current month and process everything pending",
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
			return eris.Wrap(err, "run-current: scrape")
		}
		printScrapeSummary(summary)

		if err := processPending(ctx, st, objects); err != nil {
			return err
		}
		return scrapeFailures(summary)
	},
}

var runHistoricalCmd = &cobra.Command{
	Use:   "run-historical",
	Short: "Scrape a historical date range and process everything pending",
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

		summary, err := scraper.Run(ctx, start, end, scrapeFilter(cmd))
		if err != nil {
			return eris.Wrap(err, "run-historical: scrape")
		}
		printScrapeSummary(summary)

		if err := processPending(ctx, st, objects); err != nil {
			return err
		}
		return scrapeFailures(summary)
	},
}

// processPending runs the extraction pipeline over whatever is still
// unprocessed, the files the scrape just registered included.
func processPending(ctx context.Context, st store.Store, objects storage.ObjectStore) error {
	p, err := newPipeline(ctx, st, objects)
	if err != nil {
		return err
	}
	summary, err := p.Run(ctx, pipeline.ProcessOptions{})
	if err != nil {
		return eris.Wrap(err, "process pending entries")
	}
	printProcessSummary(summary)
	return processFailures(summary)
}

func init() {
	addScrapeFlags(runCurrentCmd)

	addScrapeFlags(runHistoricalCmd)
	runHistoricalCmd.Flags().Int("year", 0, "scrape a whole calendar year")
	runHistoricalCmd.Flags().String("start-date", "", "range start (YYYY-MM-DD)")
	runHistoricalCmd.Flags().String("end-date", "", "range end (YYYY-MM-DD)")

	rootCmd.AddCommand(runCurrentCmd)
	rootCmd.AddCommand(runHistoricalCmd)
}
