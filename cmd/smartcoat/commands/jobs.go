package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/smartcoat/coat"
	"github.com/teranos/smartcoat/display"
	"github.com/teranos/smartcoat/errors"
	"github.com/teranos/smartcoat/ingest"
	"github.com/teranos/smartcoat/store"
	"github.com/teranos/smartcoat/sym"
)

// JobsCmd manages named job sets
var JobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: sym.Plan + " Manage named job sets",
	Long: sym.Plan + ` jobs - named job set management.

Job sets are stored batches of coating jobs, importable from CSV and
referenced by name from optimize and the server API.

Examples:
  smartcoat jobs import jobs.csv --set day1    # Import a CSV (replaces the set)
  smartcoat jobs add --set day1 --id J07 --chemical C2 --minutes 30
  smartcoat jobs list                          # List stored sets
  smartcoat jobs list day1                     # Show the jobs in a set
  smartcoat jobs clear day1                    # Delete a set`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var jobsImportCmd = &cobra.Command{
	Use:   "import <file.csv>",
	Short: "Import a CSV job batch into a named set",
	Long: `Import coating jobs from a CSV file into a named set.

The CSV needs a header row with Job_ID, Chemical_Type, Slide_Type,
Priority, and Estimated_Time_mins columns; extra columns are ignored.
By default the import replaces the set; --append merges into it.`,
	Args: cobra.ExactArgs(1),
	RunE: runJobsImport,
}

var jobsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a single job to a named set",
	Long: `Add one coating job to a named set, creating the set if needed.

Example:
  smartcoat jobs add --set day1 --id J07 --chemical C2 --slide frosted --priority 1 --minutes 30`,
	RunE: runJobsAdd,
}

var jobsListCmd = &cobra.Command{
	Use:   "list [set]",
	Short: "List job sets, or the jobs in one set",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runJobsList,
}

var jobsClearCmd = &cobra.Command{
	Use:   "clear <set>",
	Short: "Delete a job set",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsClear,
}

var (
	jobsImportSet    string
	jobsImportAppend bool
	jobsAddSet       string
	jobsAddID        string
	jobsAddChemical  string
	jobsAddSlide     string
	jobsAddPriority  int
	jobsAddMinutes   int
)

func init() {
	jobsImportCmd.Flags().StringVar(&jobsImportSet, "set", "", "Job set name (required)")
	jobsImportCmd.Flags().BoolVar(&jobsImportAppend, "append", false, "Merge into the existing set instead of replacing it")

	jobsAddCmd.Flags().StringVar(&jobsAddSet, "set", "", "Job set name (required)")
	jobsAddCmd.Flags().StringVar(&jobsAddID, "id", "", "Job ID (required)")
	jobsAddCmd.Flags().StringVar(&jobsAddChemical, "chemical", "", "Chemical type (required)")
	jobsAddCmd.Flags().StringVar(&jobsAddSlide, "slide", "", "Slide type")
	jobsAddCmd.Flags().IntVar(&jobsAddPriority, "priority", coat.PriorityNormal, "Priority: 1 urgent, 2 normal, 3 low")
	jobsAddCmd.Flags().IntVar(&jobsAddMinutes, "minutes", 0, "Estimated coating minutes (required)")

	JobsCmd.AddCommand(jobsImportCmd)
	JobsCmd.AddCommand(jobsAddCmd)
	JobsCmd.AddCommand(jobsListCmd)
	JobsCmd.AddCommand(jobsClearCmd)
}

func runJobsImport(cmd *cobra.Command, args []string) error {
	if jobsImportSet == "" {
		return errors.New("--set is required")
	}

	jobs, err := ingest.ReadJobsCSVFile(args[0])
	if err != nil {
		return err
	}

	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()
	st := store.NewStore(database)
	ctx := cmd.Context()

	if jobsImportAppend {
		existing, err := st.GetJobSet(ctx, jobsImportSet)
		if err != nil && !errors.IsNotFoundError(err) {
			return err
		}
		if existing != nil {
			jobs = append(existing.Jobs, jobs...)
		}
	}

	set, err := st.SaveJobSet(ctx, jobsImportSet, jobs)
	if err != nil {
		return err
	}
	pterm.Success.Printf("%s Imported %d jobs into set %q\n", sym.Plan, len(set.Jobs), set.Name)
	return nil
}

func runJobsAdd(cmd *cobra.Command, args []string) error {
	if jobsAddSet == "" {
		return errors.New("--set is required")
	}
	if jobsAddID == "" || jobsAddChemical == "" {
		return errors.New("--id and --chemical are required")
	}
	if jobsAddMinutes <= 0 {
		return errors.New("--minutes must be positive")
	}

	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()
	st := store.NewStore(database)
	ctx := cmd.Context()

	var jobs []coat.Job
	existing, err := st.GetJobSet(ctx, jobsAddSet)
	if err != nil && !errors.IsNotFoundError(err) {
		return err
	}
	if existing != nil {
		jobs = existing.Jobs
	}
	jobs = append(jobs, coat.Job{
		ID:       jobsAddID,
		Chemical: jobsAddChemical,
		Slide:    jobsAddSlide,
		Priority: jobsAddPriority,
		Minutes:  jobsAddMinutes,
	})

	set, err := st.SaveJobSet(ctx, jobsAddSet, jobs)
	if err != nil {
		return err
	}
	pterm.Success.Printf("%s Added %s to set %q (%d jobs)\n", sym.Plan, jobsAddID, set.Name, len(set.Jobs))
	return nil
}

func runJobsList(cmd *cobra.Command, args []string) error {
	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()
	st := store.NewStore(database)
	ctx := cmd.Context()

	if len(args) == 0 {
		sets, err := st.ListJobSets(ctx)
		if err != nil {
			return err
		}
		if display.ShouldOutputJSON(cmd) {
			return display.OutputJSON(sets)
		}
		if len(sets) == 0 {
			pterm.Info.Println("No job sets stored")
			return nil
		}
		fmt.Printf("%-20s %6s  %s\n", "NAME", "JOBS", "UPDATED")
		fmt.Printf("%-20s %6s  %s\n", "----", "----", "-------")
		for _, set := range sets {
			fmt.Printf("%-20s %6d  %s\n", set.Name, set.JobCount, set.UpdatedAt.Local().Format("2006-01-02 15:04"))
		}
		return nil
	}

	set, err := st.GetJobSet(ctx, args[0])
	if err != nil {
		return err
	}
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(set)
	}
	fmt.Printf("%s Job set %q (%d jobs)\n\n", sym.Plan, set.Name, len(set.Jobs))
	fmt.Printf("%-4s %-12s %-10s %-10s %-4s %s\n", "#", "JOB", "CHEMICAL", "SLIDE", "PRI", "MINS")
	for i, job := range set.Jobs {
		fmt.Printf("%-4d %-12s %-10s %-10s P%-3d %d\n",
			i+1, job.ID, job.Chemical, job.Slide, job.Priority, job.Minutes)
	}
	return nil
}

func runJobsClear(cmd *cobra.Command, args []string) error {
	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()
	st := store.NewStore(database)

	if err := st.DeleteJobSet(cmd.Context(), args[0]); err != nil {
		return err
	}
	pterm.Success.Printf("%s Deleted job set %q\n", sym.Plan, args[0])
	return nil
}
