package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/civicworks/roster-cli/internal/model"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Manage roster versions",
	Long:  "Commands for creating, listing, activating, and clearing roster versions.",
}

var versionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List roster versions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		versions, err := st.ListVersions(ctx)
		if err != nil {
			return eris.Wrap(err, "version list")
		}
		if len(versions) == 0 {
			fmt.Fprintln(os.Stderr, "No versions found.")
			return nil
		}
		formatVersionList(os.Stdout, versions)
		return nil
	},
}

var versionCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new roster version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		v, err := st.CreateVersion(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "version create")
		}
		fmt.Printf("Created version %s (%s)\n", v.ID, v.Name)
		return nil
	},
}

var versionActivateCmd = &cobra.Command{
	Use:   "activate <version-id>",
	Short: "Mark one version active, deactivating all others",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.SetActiveVersion(ctx, args[0]); err != nil {
			return eris.Wrap(err, "version activate")
		}
		fmt.Printf("Version %s is now active.\n", args[0])
		return nil
	},
}

var versionClearCmd = &cobra.Command{
	Use:   "clear <version-id>",
	Short: "Delete every voter belonging to a version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.ClearVersionVoters(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "version clear")
		}
		fmt.Printf("Deleted %d voters from version %s.\n", n, args[0])
		return nil
	},
}

func formatVersionList(w io.Writer, versions []model.RosterVersion) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tACTIVE\tCREATED")
	for _, v := range versions {
		active := ""
		if v.Active {
			active = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", v.ID, v.Name, active, v.CreatedAt.Format("2006-01-02 15:04"))
	}
	tw.Flush() //nolint:errcheck
}

func init() {
	versionCmd.AddCommand(versionListCmd)
	versionCmd.AddCommand(versionCreateCmd)
	versionCmd.AddCommand(versionActivateCmd)
	versionCmd.AddCommand(versionClearCmd)
	rootCmd.AddCommand(versionCmd)
}
