package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/logflow/reportflow/pkg/tui"
)

var (
	marksProject string
	marksDataset string
)

var watermarksCmd = &cobra.Command{
	Use:   "watermarks",
	Short: "Show the latest report per sheet",
	Long: `Show the last_report table of project.dataset: for every sheet, the label
and timestamp of the latest report imported.

Examples:
  reportflow watermarks --project acme --dataset reports`,
	RunE: runWatermarks,
}

func init() {
	watermarksCmd.Flags().StringVar(&marksProject, "project", "", "Warehouse project")
	watermarksCmd.Flags().StringVar(&marksDataset, "dataset", "", "Warehouse dataset")

	rootCmd.AddCommand(watermarksCmd)
}

func runWatermarks(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	marks, err := a.runner.Watermarks(ctx, marksProject, marksDataset)
	if err != nil {
		return err
	}

	p := &tui.Printer{W: cmd.OutOrStdout()}
	p.Header(fmt.Sprintf("%s.%s (%d sheets)", marksProject, marksDataset, marks.Len()))
	for _, e := range marks.Entries() {
		fmt.Fprintf(p.W, "  %-24s %-24s %s\n", e.SheetID, e.Label, e.Date.UTC().Format(time.DateTime))
	}
	return nil
}
