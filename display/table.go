package display

import (
	"fmt"
	"strings"
	"time"

	"github.com/pterm/pterm"

	"github.com/teranos/smartcoat/sequence"
	"github.com/teranos/smartcoat/store"
)

// FormatRouteTable renders the schedule as fixed-width rows, header first
func FormatRouteTable(tl sequence.Timeline) []string {
	if len(tl.Tasks) == 0 {
		return nil
	}

	idWidth, chemWidth, slideWidth := 3, 8, 5
	for _, task := range tl.Tasks {
		if len(task.Job.ID) > idWidth {
			idWidth = len(task.Job.ID)
		}
		if len(task.Job.Chemical) > chemWidth {
			chemWidth = len(task.Job.Chemical)
		}
		if len(task.Job.Slide) > slideWidth {
			slideWidth = len(task.Job.Slide)
		}
	}

	rows := make([]string, 0, len(tl.Tasks)+1)
	rows = append(rows, fmt.Sprintf("%-4s %-*s %-*s %-*s %-3s %6s %6s %6s",
		"#", idWidth, "Job", chemWidth, "Chemical", slideWidth, "Slide",
		"Pri", "Start", "Mins", "Gap"))
	for i, task := range tl.Tasks {
		rows = append(rows, fmt.Sprintf("%-4d %-*s %-*s %-*s P%-2d %6d %6d %6d",
			i+1, idWidth, task.Job.ID, chemWidth, task.Job.Chemical,
			slideWidth, task.Job.Slide, task.Job.Priority,
			task.StartMinute, task.Minutes, task.GapBefore))
	}
	return rows
}

// PrintRouteTable prints the schedule table
func PrintRouteTable(tl sequence.Timeline) {
	for i, row := range FormatRouteTable(tl) {
		if i == 0 {
			pterm.Println(pterm.Gray(row))
			continue
		}
		pterm.Println(row)
	}
}

// PrintResultSummary prints the solve outcome banner and its statistics
func PrintResultSummary(res sequence.Result, tl sequence.Timeline) {
	pterm.Success.Printf("Optimized sequence found. Total cost: %d (span %dm)\n",
		res.TotalCost, tl.TotalSpan)
	pterm.Printf("  route: %s\n", strings.Join(res.JobIDs, " -> "))
	pterm.Printf("  strategy %s, %d iterations, %d evaluations in %s\n",
		res.Strategy, res.Iterations, res.Evaluations, res.Duration.Round(time.Microsecond))

	if res.BudgetExhausted {
		reason := "budget exhausted"
		if stopped, ok := res.Meta["stopped"].(string); ok {
			reason = fmt.Sprintf("stopped: %s", stopped)
		}
		pterm.Warning.Printf("Search ended early (%s); showing the best route found so far\n", reason)
	}
}

// PrintRuns prints a run listing, newest first as the store returns them
func PrintRuns(runs []*store.Run) {
	if len(runs) == 0 {
		pterm.Info.Println("No solve runs recorded")
		return
	}

	pterm.Println(pterm.Gray(fmt.Sprintf("%-10s %-12s %-14s %8s %6s  %-19s %s",
		"ID", "Status", "Strategy", "Cost", "Jobs", "Created", "Error")))
	for _, run := range runs {
		cost := "-"
		if run.Status == store.RunStatusCompleted {
			cost = fmt.Sprintf("%d", run.TotalCost)
		}
		pterm.Printf("%-10s %s %-14s %8s %6d  %-19s %s\n",
			shortID(run.ID),
			runStatusTag(run.Status),
			run.Strategy,
			cost,
			len(run.RouteIDs),
			run.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			run.Error)
	}
}

// runStatusTag colors a fixed-width status cell by lifecycle state
func runStatusTag(status string) string {
	cell := fmt.Sprintf("%-12s", status)
	switch status {
	case store.RunStatusCompleted:
		return pterm.Green(cell)
	case store.RunStatusFailed:
		return pterm.Red(cell)
	case store.RunStatusRunning:
		return pterm.Cyan(cell)
	case store.RunStatusCanceled:
		return pterm.Yellow(cell)
	default:
		return pterm.Gray(cell)
	}
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
