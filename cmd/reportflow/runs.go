package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/logflow/reportflow/pkg/checkpoint"
	"github.com/logflow/reportflow/pkg/tui"
)

var (
	runsLimit int
	runsPrune time.Duration
)

var runsCmd = &cobra.Command{
	Use:   "runs [run-id]",
	Short: "Show run journal records",
	Long: `Show recent import runs recorded by the run journal, or one run in detail.
Requires checkpoint.backend to be file or redis.

Examples:
  reportflow runs
  reportflow runs --limit 5
  reportflow runs 6f1c2e4a-...
  reportflow runs --prune 168h    # file backend: remove finished runs older than 7 days`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRuns,
}

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "Number of runs to show")
	runsCmd.Flags().DurationVar(&runsPrune, "prune", 0, "Remove finished runs older than this (file backend)")

	rootCmd.AddCommand(runsCmd)
}

func runRuns(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	if !a.journal.Enabled() {
		return errors.New("run journal is disabled (set checkpoint.backend)")
	}
	p := &tui.Printer{W: cmd.OutOrStdout()}

	if runsPrune > 0 {
		fb, ok := a.journal.Backend().(*checkpoint.FileBackend)
		if !ok {
			return fmt.Errorf("--prune requires the file backend, have %s", a.journal.Backend().Name())
		}
		n, err := fb.Cleanup(ctx, runsPrune)
		if err != nil {
			return err
		}
		p.OK(fmt.Sprintf("removed %d runs", n))
		return nil
	}

	if len(args) == 1 {
		run, err := a.journal.Get(ctx, args[0])
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("run %s not found", args[0])
		}
		if err != nil {
			return err
		}
		printRun(p, run)
		return nil
	}

	runs, err := a.journal.Recent(ctx, runsLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		p.Muted("no runs recorded")
		return nil
	}
	for _, run := range runs {
		fmt.Fprintf(p.W, "  %-36s %-12s %s.%s  %d files  %s\n",
			run.ID, run.Phase, run.Project, run.Dataset, run.Files,
			run.UpdatedAt.Local().Format(time.DateTime))
	}
	return nil
}

func printRun(p *tui.Printer, run *checkpoint.Run) {
	p.Header("Run " + run.ID)
	p.Field("Target", run.Project+"."+run.Dataset)
	p.Field("Phase", string(run.Phase))
	p.Field("Files", fmt.Sprintf("%d (%d skipped)", run.Files, len(run.Skipped)))
	p.Field("Started", run.StartedAt.Local().Format(time.DateTime))
	if run.Phase.Done() {
		p.Field("Duration", tui.FormatDuration(run.Duration()))
	}
	if len(run.Tables) > 0 {
		p.Field("Tables", strings.Join(run.Tables, ", "))
		for _, t := range run.Tables {
			p.Muted(fmt.Sprintf("%-30s %d rows", t, run.Rows[t]))
		}
	}
	for _, s := range run.Skipped {
		p.Fail(s.Name + ": " + s.Reason)
	}
	if run.Error != "" {
		p.Fail(run.Error)
	}
}
