package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/civicworks/roster-cli/internal/roll"
)

var (
	importCSVPath  string
	importXLSXPath string
	importVersion  string
	importAliases  string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a roll export into a roster version",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if importVersion == "" {
			return eris.New("--version is required")
		}
		if (importCSVPath == "") == (importXLSXPath == "") {
			return eris.New("exactly one of --csv or --xlsx is required")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		opts := []roll.ImporterOption{
			roll.WithBatchSize(cfg.Import.BatchSize),
			roll.WithMaxErrors(cfg.Import.MaxErrors),
		}
		aliasFile := importAliases
		if aliasFile == "" {
			aliasFile = cfg.Import.AliasFile
		}
		if aliasFile != "" {
			aliases, err := roll.LoadAliases(aliasFile)
			if err != nil {
				return err
			}
			opts = append(opts, roll.WithAliases(aliases))
		}
		im := roll.NewImporter(st, opts...)

		var result *roll.ImportResult
		if importCSVPath != "" {
			data, err := os.ReadFile(importCSVPath)
			if err != nil {
				return eris.Wrapf(err, "read %s", importCSVPath)
			}
			result, err = im.ImportCSV(ctx, importVersion, string(data))
			if err != nil {
				return err
			}
		} else {
			result, err = im.ImportXLSX(ctx, importVersion, importXLSXPath)
			if err != nil {
				return err
			}
		}

		fmt.Printf("Imported %d voters.\n", result.Imported)
		if len(result.Errors) > 0 {
			fmt.Fprintf(os.Stderr, "%d rows rejected:\n", len(result.Errors))
			for _, e := range result.Errors {
				fmt.Fprintln(os.Stderr, "  "+e)
			}
		}
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importCSVPath, "csv", "", "path to a CSV roll export")
	importCmd.Flags().StringVar(&importXLSXPath, "xlsx", "", "path to an XLSX roll export")
	importCmd.Flags().StringVar(&importVersion, "version", "", "target roster version id")
	importCmd.Flags().StringVar(&importAliases, "aliases", "", "path to a YAML header alias file")
	rootCmd.AddCommand(importCmd)
}
