package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/civicworks/roster-cli/internal/roll"
	"github.com/civicworks/roster-cli/internal/store"
)

var (
	exportVersion string
	exportGeoJSON bool
	exportOut     string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a roster version as CSV or GeoJSON",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if exportVersion == "" {
			return eris.New("--version is required")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		out := os.Stdout
		if exportOut != "" {
			f, err := os.Create(exportOut)
			if err != nil {
				return eris.Wrapf(err, "create %s", exportOut)
			}
			defer f.Close() //nolint:errcheck
			out = f
		}

		if exportGeoJSON {
			voters, err := st.GeocodedVoters(ctx, exportVersion)
			if err != nil {
				return err
			}
			return roll.ExportGeoJSON(out, voters)
		}

		voters, err := st.ListVoters(ctx, exportVersion, store.VoterFilter{})
		if err != nil {
			return err
		}
		return roll.ExportCSV(out, voters)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportVersion, "version", "", "roster version id to export")
	exportCmd.Flags().BoolVar(&exportGeoJSON, "geojson", false, "emit a GeoJSON FeatureCollection of geocoded voters")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output file (default stdout)")
	rootCmd.AddCommand(exportCmd)
}
