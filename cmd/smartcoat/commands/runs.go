package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teranos/smartcoat/display"
	"github.com/teranos/smartcoat/store"
	"github.com/teranos/smartcoat/sym"
)

// RunsCmd inspects recorded solve runs
var RunsCmd = &cobra.Command{
	Use:   "runs",
	Short: sym.Run + " Inspect recorded solve runs",
	Long: sym.Run + ` runs - solve run history.

Every queued or saved solve leaves a run row: the strategy, the route it
found, the total changeover cost, and how the run ended.

Status filters:
  queued    - Runs waiting for a worker
  running   - Runs being solved right now
  completed - Runs that found a route
  failed    - Runs that errored
  canceled  - Runs withdrawn before execution

Examples:
  smartcoat runs list                     # List recent runs
  smartcoat runs list --status failed     # Only failed runs
  smartcoat runs show 4f8a21b0-...        # Full detail for one run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded solve runs",
	RunE:  runRunsList,
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full detail for one solve run",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

var (
	runsStatusFlag string
	runsLimitFlag  int
)

func init() {
	runsListCmd.Flags().StringVar(&runsStatusFlag, "status", "", "Filter by status (queued, running, completed, failed, canceled)")
	runsListCmd.Flags().IntVar(&runsLimitFlag, "limit", 50, "Maximum number of runs to display")

	RunsCmd.AddCommand(runsListCmd)
	RunsCmd.AddCommand(runsShowCmd)
}

func runRunsList(cmd *cobra.Command, args []string) error {
	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()
	st := store.NewStore(database)

	runs, err := st.ListRuns(cmd.Context(), runsStatusFlag, runsLimitFlag)
	if err != nil {
		return err
	}

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(runs)
	}
	display.PrintRuns(runs)
	return nil
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()
	st := store.NewStore(database)

	run, err := st.GetRun(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(run)
	}

	fmt.Printf("%s Run %s\n", sym.Run, run.ID)
	fmt.Printf("  Status:   %s\n", run.Status)
	fmt.Printf("  Strategy: %s\n", run.Strategy)
	if run.AnchorJob != "" {
		fmt.Printf("  Anchor:   %s\n", run.AnchorJob)
	}
	if run.JobSetID != "" {
		fmt.Printf("  Job set:  %s\n", run.JobSetID)
	}
	fmt.Println()

	if len(run.RouteIDs) > 0 {
		fmt.Printf("Route: %s (%d jobs)\n", strings.Join(run.RouteIDs, " -> "), len(run.RouteIDs))
		fmt.Printf("Total cost: %d minutes of changeover\n", run.TotalCost)
		fmt.Printf("Iterations: %d\n", run.Iterations)
		if run.BudgetExhausted {
			fmt.Println("Search ended at its iteration budget")
		}
		fmt.Println()
	}

	if run.Error != "" {
		fmt.Printf("Error: %s\n\n", run.Error)
	}

	fmt.Printf("Created: %s\n", run.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	if run.StartedAt != nil {
		fmt.Printf("Started: %s\n", run.StartedAt.Local().Format("2006-01-02 15:04:05"))
	}
	if run.CompletedAt != nil {
		fmt.Printf("Ended:   %s\n", run.CompletedAt.Local().Format("2006-01-02 15:04:05"))
	}
	return nil
}
