package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/logflow/reportflow/pkg/report"
	"github.com/logflow/reportflow/pkg/tui"
)

var parseCmd = &cobra.Command{
	Use:   "parse <filename>...",
	Short: "Decompose report filenames",
	Long: `Decompose report filenames into their metadata without reading them.
Exits non-zero if any name is invalid.

Examples:
  reportflow parse 'SA360_MyLabel_Budget Pacing_0a1b2c_2024-01-15T09:30:00.000Z.csv'
  reportflow parse exports/*.csv`,
	Args:              cobra.MinimumNArgs(1),
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		p := &tui.Printer{W: cmd.OutOrStdout()}
		if invalid := printNames(p, args); invalid > 0 {
			return fmt.Errorf("%d of %d filenames invalid", invalid, len(args))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(parseCmd)
}

func printNames(p *tui.Printer, names []string) (invalid int) {
	for _, arg := range names {
		name, err := report.Parse(filepath.Base(arg))
		if err != nil {
			p.Fail(fmt.Sprintf("%s: %v", arg, err))
			invalid++
			continue
		}
		p.Header(name.Filename)
		p.Field("Category", name.Category)
		p.Field("Label", name.Label)
		p.Field("Rule", name.Rule)
		p.Field("Table", name.Table())
		p.Field("Sheet", name.SourceID)
		p.Field("Timestamp", name.Timestamp.Format("2006-01-02 15:04:05"))
	}
	return invalid
}
