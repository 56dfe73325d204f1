package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"scriptcast/internal/app"
	"scriptcast/pkg/config"
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Inspect archived runs",
}

var archiveListCmd = &cobra.Command{
	Use:   "list <run-id>",
	Short: "List the artifacts archived for a run",
	Long:  `List the video and thumbnail archived for a run, from the local archive directory or the configured GCS bucket.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runArchiveList,
}

func init() {
	archiveCmd.AddCommand(archiveListCmd)
	rootCmd.AddCommand(archiveCmd)
}

func runArchiveList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	runID := args[0]

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	archiver, closeArchive, err := app.OpenArchive(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeArchive() }()

	paths, err := archiver.List(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to list run %s: %w", runID, err)
	}

	out := cmd.OutOrStdout()
	if len(paths) == 0 {
		_, _ = fmt.Fprintln(out, warnStyle.Render("No artifacts archived for "+runID))
		return nil
	}
	for _, path := range paths {
		_, _ = fmt.Fprintln(out, path)
	}
	return nil
}
