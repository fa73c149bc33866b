package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/agroamigo/sipsa-cli/internal/model"
	"github.com/agroamigo/sipsa-cli/internal/pipeline"
)

var retryErrorsCmd = &cobra.Command{
	Use:   "retry-errors",
	Short: "Re-drive unresolved errors through the pipeline",
	Long: `Sweeps both error ledgers. Processing errors re-run extraction for
their entry; download errors re-fetch their URL. Errors resolve when
the retry succeeds, otherwise their retry count grows. --error-type
narrows the sweep to one kind from either taxonomy.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd)
		defer stop()

		if err := cfg.Validate("process"); err != nil {
			return err
		}

		errType, _ := cmd.Flags().GetString("error-type")
		downloadsOnly, _ := cmd.Flags().GetBool("downloads-only")
		processingOnly, _ := cmd.Flags().GetBool("processing-only")
		if downloadsOnly && processingOnly {
			return eris.New("--downloads-only and --processing-only are mutually exclusive")
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
		f := newFetcher()
		coord := &pipeline.RetryCoordinator{
			Pipeline:  p,
			Registrar: newRegistrar(st, objects, f),
		}

		if !downloadsOnly {
			summary, err := coord.RetryProcessing(ctx, model.ProcessingErrorKind(errType))
			if err != nil {
				return eris.Wrap(err, "retry-errors: processing ledger")
			}
			fmt.Printf("Processing errors: %d retried, %d resolved\n", summary.Total, summary.Resolved)
		}
		if !processingOnly {
			summary, err := coord.RetryDownloads(ctx, model.DownloadErrorKind(errType))
			if err != nil {
				return eris.Wrap(err, "retry-errors: download ledger")
			}
			fmt.Printf("Download errors: %d retried, %d resolved\n", summary.Total, summary.Resolved)
		}
		return nil
	},
}

func init() {
	retryErrorsCmd.Flags().String("error-type", "", "only errors of this kind (e.g. no_prices_extracted, http_error)")
	retryErrorsCmd.Flags().Bool("downloads-only", false, "only sweep the download ledger")
	retryErrorsCmd.Flags().Bool("processing-only", false, "only sweep the processing ledger")

	rootCmd.AddCommand(retryErrorsCmd)
}
