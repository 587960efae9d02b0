// Package sym defines canonical glyphs for smartcoat subsystem markers.
// These symbols are stable across CLI, server, and documentation.
package sym

// Domain symbols.
const (
	Seq  = "⇶" // sequencing solver: cost model, construction, local search
	Chem = "⇋" // chemical changeover transitions
	Plan = "▤" // assembled timeline / schedule output
)

// System infrastructure symbols.
const (
	Run      = "꩜" // async solve runs, queue, worker pool
	RunOpen  = "✿" // graceful startup with orphaned run recovery
	RunClose = "❀" // graceful shutdown with checkpoint preservation
	DB       = "⊔" // database/storage layer
)

// descriptions binds each glyph to its human-readable meaning.
var descriptions = map[string]string{
	Seq:      "Sequencing solver",
	Chem:     "Chemical changeover",
	Plan:     "Assembled timeline",
	Run:      "Async solve runs and worker pool",
	RunOpen:  "Graceful startup",
	RunClose: "Graceful shutdown",
	DB:       "Database/storage layer",
}

// Describe returns the human-readable meaning for a glyph, or "" if unknown.
func Describe(glyph string) string {
	return descriptions[glyph]
}
