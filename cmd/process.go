package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/agroamigo/sipsa-cli/internal/model"
	"github.com/agroamigo/sipsa-cli/internal/pipeline"
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Parse registered files into price observations",
	Long: `Runs unprocessed download entries through the extraction pipeline:
ZIP archives expand into per-city PDFs, documents parse into raw rows,
and rows normalize into price observations. Failures land in the error
ledger and leave the entry unprocessed for a later retry.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd)
		defer stop()

		if err := cfg.Validate("process"); err != nil {
			return err
		}

		opts, err := processOptions(cmd)
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

		p, err := newPipeline(ctx, st, objects)
		if err != nil {
			return err
		}

		summary, err := p.Run(ctx, opts)
		if err != nil {
			return eris.Wrap(err, "process")
		}

		printProcessSummary(summary)
		return processFailures(summary)
	},
}

func processOptions(cmd *cobra.Command) (pipeline.ProcessOptions, error) {
	entryID, _ := cmd.Flags().GetString("entry-id")
	dateStr, _ := cmd.Flags().GetString("date")
	kindStr, _ := cmd.Flags().GetString("kind")
	limit, _ := cmd.Flags().GetInt("limit")

	opts := pipeline.ProcessOptions{EntryID: entryID, Limit: limit}

	if dateStr != "" {
		d, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			return opts, eris.Wrapf(err, "parse --date %q", dateStr)
		}
		opts.Date = &d
	}

	kind, err := parseFileKind(kindStr)
	if err != nil {
		return opts, err
	}
	opts.Kind = kind

	return opts, nil
}

func parseFileKind(s string) (model.FileKind, error) {
	switch model.FileKind(s) {
	case "", model.FileKindPDF, model.FileKindExcel, model.FileKindZIP:
		return model.FileKind(s), nil
	default:
		return "", eris.Errorf("unknown file kind %q (pdf, excel, or zip)", s)
	}
}

func printProcessSummary(s *pipeline.Summary) {
	fmt.Printf("Processed %d entries: %d succeeded, %d failed\n", s.Entries, s.Succeeded, s.Failed)
	fmt.Printf("  %d documents, %d observations, %d errors recorded\n", s.Documents, s.Observations, s.Errors)
}

// processFailures turns per-entry failures into a command error so the
// process exits non-zero when entries were left in a failed state.
func processFailures(s *pipeline.Summary) error {
	if s.Failed == 0 {
		return nil
	}
	return eris.Errorf("%d of %d entries failed; see the processing error ledger", s.Failed, s.Entries)
}

func init() {
	processCmd.Flags().String("entry-id", "", "process a single download entry")
	processCmd.Flags().String("date", "", "only entries dated YYYY-MM-DD")
	processCmd.Flags().String("kind", "", "only entries of this file kind (pdf, excel, zip)")
	processCmd.Flags().Int("limit", 0, "stop after this many entries")

	rootCmd.AddCommand(processCmd)
}
