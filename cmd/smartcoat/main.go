package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/teranos/smartcoat/cmd/smartcoat/commands"
	"github.com/teranos/smartcoat/config"
	"github.com/teranos/smartcoat/logger"
)

var rootCmd = &cobra.Command{
	Use:   "smartcoat",
	Short: "SmartCoat - coating job sequencing optimizer",
	Long: `SmartCoat - changeover-aware sequencing for coating lines.

SmartCoat orders a batch of coating jobs on a single line so that the time
lost to chemical changeovers is as small as possible, then lays the chosen
route out on a minute timeline.

Available commands:
  optimize   - Solve a job batch and render the timeline
  jobs       - Manage named job sets
  changeover - Manage changeover tables
  runs       - Inspect recorded solve runs
  serve      - Start the HTTP + WebSocket server
  config     - Manage configuration
  version    - Show version information

Examples:
  smartcoat optimize --scenario shift.yaml     # Solve a bundled scenario
  smartcoat jobs import jobs.csv --set day1    # Import a CSV into a named set
  smartcoat changeover show standard           # Print a stored changeover table
  smartcoat runs list --status completed       # List finished solve runs
  smartcoat serve                              # Start the server`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize the global logger before any command runs. Skip for
		// commands whose stdout is meant to be piped (like 'config show').
		if cmd.Name() == "show" || cmd.Name() == "path" {
			return nil
		}
		level := zapcore.InfoLevel
		if jsonOut, _ := cmd.Root().PersistentFlags().GetBool("json"); jsonOut {
			// Machine output owns stdout; keep info chatter off it
			level = zapcore.WarnLevel
		}
		if verbosity, _ := cmd.Flags().GetCount("verbose"); verbosity > 0 {
			level = zapcore.DebugLevel
		}
		jsonLogs := false
		if cfg, err := config.Load(); err == nil {
			jsonLogs = cfg.Logging.JSON
		}
		if err := logger.InitializeWithLevel(jsonLogs, level); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	// Add global flags
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv)")
	rootCmd.PersistentFlags().Bool("json", false, "Output results as JSON")

	// Add commands
	rootCmd.AddCommand(commands.OptimizeCmd)
	rootCmd.AddCommand(commands.JobsCmd)
	rootCmd.AddCommand(commands.ChangeoverCmd)
	rootCmd.AddCommand(commands.RunsCmd)
	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
