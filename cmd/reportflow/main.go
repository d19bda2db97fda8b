// reportflow - Ingests periodic CSV report exports into a columnar warehouse,
// tagging rows with filename metadata and tracking the latest report per sheet.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/logflow/reportflow/pkg/config"
	"github.com/logflow/reportflow/pkg/logger"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// Global flags
var (
	configFile string
	verbose    bool
)

// Loaded in PersistentPreRunE.
var (
	cfg      *config.Config
	closeLog = func() error { return nil }
)

func main() {
	err := rootCmd.Execute()
	closeLog()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "reportflow",
	Short: "reportflow - Load CSV report exports into the warehouse",
	Long: `reportflow ingests batches of CSV report exports named
{category}_{label}_{rule}_{sheet}_{timestamp}.csv. Every file's rows are tagged
with the metadata in its name, appended to one warehouse table per rule, and
the last_report table records the latest report seen per sheet.

Configuration is read from /etc/reportflow/config.yaml, ~/.reportflow/config.yaml,
./.reportflow.yaml, the --config file and REPORTFLOW_* environment variables.`,
	Version:           fmt.Sprintf("%s (%s)", version, commit),
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (YAML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	m := config.NewManager(configFile)
	if err := m.Load(); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg = m.Get()
	if verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	closer, err := logger.Setup(cfg.Log)
	if err != nil {
		return err
	}
	closeLog = closer
	return nil
}
