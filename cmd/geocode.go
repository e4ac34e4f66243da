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

var geocodeVersion string

var geocodeCmd = &cobra.Command{
	Use:   "geocode",
	Short: "Manage geocoding jobs",
	Long:  "Commands for starting, inspecting, pausing, and resuming geocoding jobs.",
}

var geocodeStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start (or reattach to) a geocoding job for a version",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if geocodeVersion == "" {
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

		engine := initEngine(st)
		job, err := engine.Start(ctx, geocodeVersion)
		if err != nil {
			return err
		}
		fmt.Printf("Job %s %s (%d targets).\n", job.ID, job.Status, job.Total)

		// The loop outlives the command only in serve mode; here we block
		// until it finishes or is paused.
		engine.Wait()

		final, err := st.GetGeocodeJob(ctx, job.ID)
		if err != nil {
			return err
		}
		printJob(os.Stdout, final)
		return nil
	},
}

var geocodeStatusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show a geocoding job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		job, err := st.GetGeocodeJob(ctx, args[0])
		if err != nil {
			return err
		}
		printJob(os.Stdout, job)
		return nil
	},
}

var geocodePauseCmd = &cobra.Command{
	Use:   "pause <job-id>",
	Short: "Pause a running geocoding job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := initEngine(st).Pause(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("Job %s pausing after the record in flight.\n", args[0])
		return nil
	},
}

var geocodeResumeCmd = &cobra.Command{
	Use:   "resume <job-id>",
	Short: "Resume a paused geocoding job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		engine := initEngine(st)
		job, err := engine.Resume(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Job %s resumed at %d/%d.\n", job.ID, job.Processed, job.Total)

		engine.Wait()

		final, err := st.GetGeocodeJob(ctx, job.ID)
		if err != nil {
			return err
		}
		printJob(os.Stdout, final)
		return nil
	},
}

func printJob(w io.Writer, j *model.GeocodeJob) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Job:\t%s\n", j.ID)
	fmt.Fprintf(tw, "Version:\t%s\n", j.VersionID)
	fmt.Fprintf(tw, "Status:\t%s\n", j.Status)
	fmt.Fprintf(tw, "Progress:\t%d/%d (geocoded %d, failed %d, skipped %d)\n",
		j.Processed, j.Total, j.Geocoded, j.Failed, j.Skipped)
	if j.Error != "" {
		fmt.Fprintf(tw, "Error:\t%s\n", j.Error)
	}
	tw.Flush() //nolint:errcheck
}

func init() {
	geocodeStartCmd.Flags().StringVar(&geocodeVersion, "version", "", "roster version id to geocode")
	geocodeCmd.AddCommand(geocodeStartCmd)
	geocodeCmd.AddCommand(geocodeStatusCmd)
	geocodeCmd.AddCommand(geocodePauseCmd)
	geocodeCmd.AddCommand(geocodeResumeCmd)
	rootCmd.AddCommand(geocodeCmd)
}
