package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/agroamigo/sipsa-cli/internal/geo"
)

var geoCmd = &cobra.Command{
	Use:   "geo",
	Short: "Geographic reference data",
}

var geoLoadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load the DIVIPOLA department and municipality reference",
	Long: `Reads the DIVIPOLA tab-separated export and upserts departments and
municipalities. The processing stage uses the loaded reference to
canonicalize bulletin city names.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("migrate"); err != nil {
			return err
		}

		path, _ := cmd.Flags().GetString("file")
		if path == "" {
			path = cfg.Geo.DatasetPath
		}

		f, err := os.Open(path)
		if err != nil {
			return eris.Wrapf(err, "geo load: open %s", path)
		}
		defer f.Close()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		n, err := geo.Load(ctx, st, f)
		if err != nil {
			return eris.Wrap(err, "geo load")
		}

		fmt.Printf("Loaded %d municipalities from %s\n", n, path)
		return nil
	},
}

func init() {
	geoLoadCmd.Flags().String("file", "", "path to the DIVIPOLA TSV (defaults to geo.dataset_path)")
	geoCmd.AddCommand(geoLoadCmd)
	rootCmd.AddCommand(geoCmd)
}
