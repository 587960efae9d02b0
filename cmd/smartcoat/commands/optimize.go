package commands

import (
	"context"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/smartcoat/coat"
	"github.com/teranos/smartcoat/config"
	"github.com/teranos/smartcoat/display"
	"github.com/teranos/smartcoat/errors"
	"github.com/teranos/smartcoat/ingest"
	"github.com/teranos/smartcoat/logger"
	"github.com/teranos/smartcoat/sequence"
	"github.com/teranos/smartcoat/store"
	"github.com/teranos/smartcoat/sym"
)

// OptimizeCmd solves a job batch and renders the resulting timeline
var OptimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: sym.Seq + " Solve a job batch and render the timeline",
	Long: sym.Seq + ` optimize - changeover-aware sequencing.

Reads coating jobs and a changeover table, finds the cheapest route that
starts at the anchor job, and renders the resulting minute timeline.

Inputs, one of:
  --scenario FILE    YAML bundling jobs, changeovers, and anchor
  --jobs FILE        CSV job batch (with --changeovers or --changeover-set)
  --job-set NAME     stored job set (with --changeovers or --changeover-set)

Examples:
  smartcoat optimize --scenario shift.yaml
  smartcoat optimize --jobs jobs.csv --changeovers table.toml
  smartcoat optimize --job-set day1 --changeover-set standard --anchor J07
  smartcoat optimize --scenario shift.yaml --save          # record the run
  smartcoat optimize --scenario shift.yaml --export route.csv`,
	RunE: runOptimize,
}

var (
	optimizeScenario      string
	optimizeJobsFile      string
	optimizeJobSet        string
	optimizeChangeovers   string
	optimizeChangeoverSet string
	optimizeAnchor        string
	optimizeStrategy      string
	optimizeIterations    int
	optimizeWorkers       int
	optimizeSave          bool
	optimizeExport        string
	optimizeWidth         int
)

func init() {
	OptimizeCmd.Flags().StringVar(&optimizeScenario, "scenario", "", "YAML scenario file (jobs + changeovers + anchor)")
	OptimizeCmd.Flags().StringVar(&optimizeJobsFile, "jobs", "", "CSV job batch file")
	OptimizeCmd.Flags().StringVar(&optimizeJobSet, "job-set", "", "Stored job set name")
	OptimizeCmd.Flags().StringVar(&optimizeChangeovers, "changeovers", "", "TOML changeover table file")
	OptimizeCmd.Flags().StringVar(&optimizeChangeoverSet, "changeover-set", "", "Stored changeover table name")
	OptimizeCmd.Flags().StringVar(&optimizeAnchor, "anchor", "", "Anchor job ID (default: scenario anchor, then first job)")
	OptimizeCmd.Flags().StringVar(&optimizeStrategy, "strategy", "", "Solve strategy: construction or local-search (default: config)")
	OptimizeCmd.Flags().IntVar(&optimizeIterations, "iterations", 0, "Local-search round cap (default: proportional to job count)")
	OptimizeCmd.Flags().IntVar(&optimizeWorkers, "solver-workers", 0, "Parallel candidate evaluation workers (default: config)")
	OptimizeCmd.Flags().BoolVar(&optimizeSave, "save", false, "Record the solve as a run in the database")
	OptimizeCmd.Flags().StringVar(&optimizeExport, "export", "", "Write the route to a CSV file")
	OptimizeCmd.Flags().IntVar(&optimizeWidth, "width", display.DefaultGanttWidth, "Gantt bar area width in terminal cells")
}

func runOptimize(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	ctx := cmd.Context()

	// Stored sets and --save need the database; file-only solves don't
	var st *store.Store
	if optimizeJobSet != "" || optimizeChangeoverSet != "" || optimizeSave {
		database, err := openDatabase("")
		if err != nil {
			return err
		}
		defer database.Close()
		st = store.NewStore(database)
	}

	jobs, table, anchor, jobSetID, err := resolveOptimizeInputs(ctx, st)
	if err != nil {
		return err
	}

	list, err := coat.NewJobList(jobs...)
	if err != nil {
		return err
	}
	if err := list.Validate(table.Chemicals()); err != nil {
		return err
	}

	anchorIdx := 0
	if anchor != "" {
		anchorIdx = -1
		for i, j := range list.Jobs() {
			if j.ID == anchor {
				anchorIdx = i
				break
			}
		}
		if anchorIdx < 0 {
			return errors.Newf("anchor job %q is not in the job set", anchor)
		}
	}

	scfg := cfg.SequenceSolverConfig()
	if optimizeStrategy != "" {
		strategy, err := sequence.ParseStrategy(optimizeStrategy)
		if err != nil {
			return err
		}
		scfg.Strategy = strategy
	}
	if optimizeIterations > 0 {
		scfg.MaxIterations = optimizeIterations
	}
	if optimizeWorkers > 0 {
		scfg.Workers = optimizeWorkers
	}
	scfg.Trace = func(stage string) {
		logger.Debugw("Solve stage", "stage", stage)
	}

	solver, err := sequence.NewSolver(scfg)
	if err != nil {
		return err
	}

	matrix, err := sequence.BuildMatrix(list.Jobs(), table, cfg.MatrixOptions())
	if err != nil {
		return err
	}

	solveCtx := ctx
	if cfg.Solver.DeadlineMS > 0 {
		var cancel context.CancelFunc
		solveCtx, cancel = context.WithTimeout(ctx, time.Duration(cfg.Solver.DeadlineMS)*time.Millisecond)
		defer cancel()
	}

	res, err := solver.Solve(solveCtx, matrix, anchorIdx)
	if err != nil {
		if errors.Is(err, sequence.ErrNoFeasibleSequence) {
			return errors.Wrap(err, "no feasible sequence for this batch")
		}
		return err
	}

	tl, err := sequence.Assemble(res, matrix)
	if err != nil {
		return err
	}

	jsonOut := display.ShouldOutputJSON(cmd)
	if jsonOut {
		err = display.OutputJSON(struct {
			Result   sequence.Result   `json:"result"`
			Timeline sequence.Timeline `json:"timeline"`
		}{res, tl})
		if err != nil {
			return err
		}
	} else {
		display.PrintResultSummary(res, tl)
		pterm.Println()
		display.PrintGantt(tl, optimizeWidth)
		pterm.Println()
		display.PrintRouteTable(tl)
	}

	if optimizeExport != "" {
		if err := ingest.WriteRouteCSVFile(optimizeExport, tl); err != nil {
			return errors.Wrapf(err, "failed to export route to %s", optimizeExport)
		}
		if !jsonOut {
			pterm.Info.Printf("Route written to %s\n", optimizeExport)
		}
	}

	if optimizeSave {
		run, err := saveRun(ctx, st, jobSetID, anchor, res)
		if err != nil {
			return err
		}
		if !jsonOut {
			pterm.Info.Printf("Saved as run %s\n", shortID(run.ID))
		}
	}

	return nil
}

// resolveOptimizeInputs assembles jobs, changeover table, anchor, and job set
// ID from the input flags. A scenario bundles all three and excludes the other
// sources; otherwise jobs and changeovers are resolved independently.
func resolveOptimizeInputs(ctx context.Context, st *store.Store) ([]coat.Job, *coat.ChangeoverTable, string, string, error) {
	if optimizeScenario != "" {
		if optimizeJobsFile != "" || optimizeJobSet != "" || optimizeChangeovers != "" || optimizeChangeoverSet != "" {
			return nil, nil, "", "", errors.New("--scenario already bundles jobs and changeovers; drop the other input flags")
		}
		scenario, err := ingest.LoadScenario(optimizeScenario)
		if err != nil {
			return nil, nil, "", "", err
		}
		list, err := scenario.JobList()
		if err != nil {
			return nil, nil, "", "", err
		}
		table, err := scenario.Table()
		if err != nil {
			return nil, nil, "", "", err
		}
		anchor := optimizeAnchor
		if anchor == "" {
			anchor = scenario.Anchor
		}
		return list.Jobs(), table, anchor, "", nil
	}

	var jobs []coat.Job
	var jobSetID string
	switch {
	case optimizeJobsFile != "" && optimizeJobSet != "":
		return nil, nil, "", "", errors.New("use --jobs or --job-set, not both")
	case optimizeJobsFile != "":
		var err error
		jobs, err = ingest.ReadJobsCSVFile(optimizeJobsFile)
		if err != nil {
			return nil, nil, "", "", err
		}
	case optimizeJobSet != "":
		set, err := st.GetJobSet(ctx, optimizeJobSet)
		if err != nil {
			return nil, nil, "", "", errors.Wrapf(err, "job set %q", optimizeJobSet)
		}
		jobs = set.Jobs
		jobSetID = set.ID
	default:
		return nil, nil, "", "", errors.New("optimize needs --scenario, --jobs, or --job-set")
	}

	var table *coat.ChangeoverTable
	switch {
	case optimizeChangeovers != "" && optimizeChangeoverSet != "":
		return nil, nil, "", "", errors.New("use --changeovers or --changeover-set, not both")
	case optimizeChangeovers != "":
		var err error
		table, err = ingest.LoadChangeoverTOML(optimizeChangeovers)
		if err != nil {
			return nil, nil, "", "", err
		}
	case optimizeChangeoverSet != "":
		set, err := st.GetChangeoverSet(ctx, optimizeChangeoverSet)
		if err != nil {
			return nil, nil, "", "", errors.Wrapf(err, "changeover set %q", optimizeChangeoverSet)
		}
		table = set.Table
	default:
		return nil, nil, "", "", errors.New("optimize needs --changeovers or --changeover-set alongside the job input")
	}

	return jobs, table, optimizeAnchor, jobSetID, nil
}

// saveRun records a completed foreground solve as run history, walking the
// same queued/running/completed transitions the background workers use.
func saveRun(ctx context.Context, st *store.Store, jobSetID, anchor string, res sequence.Result) (*store.Run, error) {
	run, err := st.CreateRun(ctx, jobSetID, res.Strategy, anchor)
	if err != nil {
		return nil, errors.Wrap(err, "failed to record run")
	}
	if err := st.MarkRunStarted(ctx, run.ID); err != nil {
		return nil, errors.Wrapf(err, "failed to record run %s", run.ID)
	}
	if err := st.CompleteRun(ctx, run.ID, res); err != nil {
		return nil, errors.Wrapf(err, "failed to record run %s", run.ID)
	}
	return run, nil
}
