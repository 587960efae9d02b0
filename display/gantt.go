package display

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"

	"github.com/teranos/smartcoat/sequence"
)

// DefaultGanttWidth is the bar area width in terminal cells
const DefaultGanttWidth = 60

type colorFunc func(a ...interface{}) string

func plain(a ...interface{}) string { return fmt.Sprint(a...) }

// chemicalPalette cycles per chemical in first-seen order
var chemicalPalette = []colorFunc{
	pterm.Cyan,
	pterm.Green,
	pterm.Magenta,
	pterm.Yellow,
	pterm.Blue,
	pterm.LightCyan,
	pterm.LightGreen,
	pterm.LightMagenta,
}

// FormatGantt renders the timeline as proportional text bars, one row per
// job. Bars are offset to their start minute; changeover gaps show as
// shaded cells before the bar.
func FormatGantt(tl sequence.Timeline, width int) []string {
	return ganttRows(tl, width, func(string) colorFunc { return plain }, plain)
}

// PrintGantt prints the timeline with bars colored by chemical and gaps in
// red, followed by a chemical legend
func PrintGantt(tl sequence.Timeline, width int) {
	colors := make(map[string]colorFunc)
	var order []string
	colorFor := func(chemical string) colorFunc {
		c, ok := colors[chemical]
		if !ok {
			c = chemicalPalette[len(order)%len(chemicalPalette)]
			colors[chemical] = c
			order = append(order, chemical)
		}
		return c
	}

	for _, row := range ganttRows(tl, width, colorFor, pterm.Red) {
		pterm.Println(row)
	}

	if len(order) > 0 {
		var legend []string
		for _, chemical := range order {
			legend = append(legend, colors[chemical]("█")+" "+chemical)
		}
		pterm.Println()
		pterm.Println("  " + strings.Join(legend, "   ") + "   " + pterm.Red("░") + " changeover")
	}
}

func ganttRows(tl sequence.Timeline, width int, colorFor func(string) colorFunc, gapColor colorFunc) []string {
	if len(tl.Tasks) == 0 {
		return nil
	}
	if width <= 0 {
		width = DefaultGanttWidth
	}
	span := tl.TotalSpan
	if span <= 0 {
		span = 1
	}
	scale := func(minute int) int {
		return minute * width / span
	}

	idWidth := 3
	for _, task := range tl.Tasks {
		if len(task.Job.ID) > idWidth {
			idWidth = len(task.Job.ID)
		}
	}
	// Row prefix is "<id> P<n> ", so the bar area starts idWidth+4 cells in
	prefix := idWidth + 4

	rows := make([]string, 0, len(tl.Tasks)+1)
	rows = append(rows, ganttAxis(prefix, width, tl.TotalSpan))

	for _, task := range tl.Tasks {
		gapStart := scale(task.StartMinute - task.GapBefore)
		barStart := scale(task.StartMinute)
		barEnd := scale(task.StartMinute + task.Minutes)
		if barEnd <= barStart {
			barEnd = barStart + 1
		}

		var b strings.Builder
		fmt.Fprintf(&b, "%-*s P%d ", idWidth, task.Job.ID, task.Job.Priority)
		b.WriteString(strings.Repeat(" ", gapStart))
		if barStart > gapStart {
			b.WriteString(gapColor(strings.Repeat("░", barStart-gapStart)))
		}
		b.WriteString(colorFor(task.Job.Chemical)(strings.Repeat("█", barEnd-barStart)))
		fmt.Fprintf(&b, " %dm", task.Minutes)
		if task.GapBefore > 0 {
			fmt.Fprintf(&b, " (+%dm changeover)", task.GapBefore)
		}
		rows = append(rows, b.String())
	}
	return rows
}

// ganttAxis lays a minute scale over the bar area: zero at the left edge,
// the total span at the right
func ganttAxis(prefix, width, span int) string {
	endLabel := fmt.Sprintf("%dm", span)
	pad := width - 1 - len(endLabel)
	if pad < 1 {
		return strings.Repeat(" ", prefix) + "0 " + endLabel
	}
	return strings.Repeat(" ", prefix) + "0" + strings.Repeat(" ", pad) + endLabel
}
