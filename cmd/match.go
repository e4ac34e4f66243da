package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/civicworks/roster-cli/internal/match"
)

var matchVersion string

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Link voters in a version to household members",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if matchVersion == "" {
			return eris.New("--version is required")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		m := match.NewMatcher(st, match.WithUpdateBatchSize(cfg.Match.UpdateBatchSize))
		result, err := m.Run(ctx, matchVersion)
		if err != nil {
			return err
		}
		fmt.Printf("Matched %d of %d voters (%d unmatched).\n", result.Matched, result.Total, result.Unmatched)
		return nil
	},
}

func init() {
	matchCmd.Flags().StringVar(&matchVersion, "version", "", "roster version id to match")
	rootCmd.AddCommand(matchCmd)
}
