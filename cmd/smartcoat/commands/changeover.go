package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/smartcoat/coat"
	"github.com/teranos/smartcoat/config"
	"github.com/teranos/smartcoat/display"
	"github.com/teranos/smartcoat/errors"
	"github.com/teranos/smartcoat/ingest"
	"github.com/teranos/smartcoat/store"
	"github.com/teranos/smartcoat/sym"
)

// ChangeoverCmd manages changeover tables
var ChangeoverCmd = &cobra.Command{
	Use:   "changeover",
	Short: sym.Chem + " Manage changeover tables",
	Long: sym.Chem + ` changeover - transition table management.

Changeover tables record the minutes the line loses when it switches from
one chemical to another. Times are directional and pairs can be marked
forbidden so the solver never schedules them back to back.

Examples:
  smartcoat changeover show                    # List stored tables
  smartcoat changeover show standard           # Print a table as a grid
  smartcoat changeover set standard --from C1 --to C2 --minutes 20
  smartcoat changeover set standard --from C2 --to C3 --forbid --both
  smartcoat changeover import table.toml --set standard`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var changeoverShowCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "List changeover tables, or print one as a grid",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runChangeoverShow,
}

var changeoverSetCmd = &cobra.Command{
	Use:   "set <name>",
	Short: "Set or forbid one transition in a table",
	Long: `Set the minutes for one chemical transition, or mark it forbidden.

A table that does not exist yet is seeded from the configured chemical
label set (coating.chemicals) before the change is applied.`,
	Args: cobra.ExactArgs(1),
	RunE: runChangeoverSet,
}

var changeoverImportCmd = &cobra.Command{
	Use:   "import <file.toml>",
	Short: "Import a TOML changeover table into a named set",
	Args:  cobra.ExactArgs(1),
	RunE:  runChangeoverImport,
}

var (
	changeoverFrom      string
	changeoverTo        string
	changeoverMinutes   int
	changeoverForbid    bool
	changeoverBoth      bool
	changeoverImportSet string
)

func init() {
	changeoverSetCmd.Flags().StringVar(&changeoverFrom, "from", "", "Source chemical (required)")
	changeoverSetCmd.Flags().StringVar(&changeoverTo, "to", "", "Target chemical (required)")
	changeoverSetCmd.Flags().IntVar(&changeoverMinutes, "minutes", 0, "Changeover minutes")
	changeoverSetCmd.Flags().BoolVar(&changeoverForbid, "forbid", false, "Mark the transition forbidden instead of timed")
	changeoverSetCmd.Flags().BoolVar(&changeoverBoth, "both", false, "Apply to the reverse direction as well")

	changeoverImportCmd.Flags().StringVar(&changeoverImportSet, "set", "", "Changeover set name (required)")

	ChangeoverCmd.AddCommand(changeoverShowCmd)
	ChangeoverCmd.AddCommand(changeoverSetCmd)
	ChangeoverCmd.AddCommand(changeoverImportCmd)
}

func runChangeoverShow(cmd *cobra.Command, args []string) error {
	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()
	st := store.NewStore(database)
	ctx := cmd.Context()

	if len(args) == 0 {
		sets, err := st.ListChangeoverSets(ctx)
		if err != nil {
			return err
		}
		if display.ShouldOutputJSON(cmd) {
			return display.OutputJSON(sets)
		}
		if len(sets) == 0 {
			pterm.Info.Println("No changeover tables stored")
			return nil
		}
		fmt.Printf("%-20s %-30s %s\n", "NAME", "CHEMICALS", "UPDATED")
		fmt.Printf("%-20s %-30s %s\n", "----", "---------", "-------")
		for _, set := range sets {
			fmt.Printf("%-20s %-30s %s\n",
				set.Name, joinChemicals(set.Chemicals), set.UpdatedAt.Local().Format("2006-01-02 15:04"))
		}
		return nil
	}

	set, err := st.GetChangeoverSet(ctx, args[0])
	if err != nil {
		return err
	}
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(struct {
			Name      string            `json:"name"`
			Chemicals []string          `json:"chemicals"`
			Entries   []coat.TableEntry `json:"entries"`
			Forbidden []coat.Transition `json:"forbidden,omitempty"`
		}{set.Name, set.Table.Chemicals(), set.Table.Entries(), set.Table.ForbiddenTransitions()})
	}

	fmt.Printf("%s Changeover table %q\n\n", sym.Chem, set.Name)
	printChangeoverGrid(set.Table)
	if forbidden := set.Table.ForbiddenTransitions(); len(forbidden) > 0 {
		fmt.Println()
		for _, tr := range forbidden {
			fmt.Printf("  forbidden: %s -> %s\n", tr.From, tr.To)
		}
	}
	return nil
}

func runChangeoverSet(cmd *cobra.Command, args []string) error {
	name := args[0]
	if changeoverFrom == "" || changeoverTo == "" {
		return errors.New("--from and --to are required")
	}
	if changeoverForbid && cmd.Flags().Changed("minutes") {
		return errors.New("use --minutes or --forbid, not both")
	}
	if !changeoverForbid && !cmd.Flags().Changed("minutes") {
		return errors.New("provide --minutes or --forbid")
	}

	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()
	st := store.NewStore(database)
	ctx := cmd.Context()

	table, err := loadOrSeedTable(ctx, st, name)
	if err != nil {
		return err
	}

	pairs := [][2]string{{changeoverFrom, changeoverTo}}
	if changeoverBoth {
		pairs = append(pairs, [2]string{changeoverTo, changeoverFrom})
	}
	for _, pair := range pairs {
		if changeoverForbid {
			err = table.Forbid(pair[0], pair[1])
		} else {
			err = table.SetMinutes(pair[0], pair[1], changeoverMinutes)
		}
		if err != nil {
			return err
		}
	}

	if _, err := st.SaveChangeoverSet(ctx, name, table); err != nil {
		return err
	}

	for _, pair := range pairs {
		if changeoverForbid {
			pterm.Success.Printf("%s %s -> %s forbidden in %q\n", sym.Chem, pair[0], pair[1], name)
		} else {
			pterm.Success.Printf("%s %s -> %s = %dm in %q\n", sym.Chem, pair[0], pair[1], changeoverMinutes, name)
		}
	}
	return nil
}

func runChangeoverImport(cmd *cobra.Command, args []string) error {
	if changeoverImportSet == "" {
		return errors.New("--set is required")
	}

	table, err := ingest.LoadChangeoverTOML(args[0])
	if err != nil {
		return err
	}

	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()
	st := store.NewStore(database)

	set, err := st.SaveChangeoverSet(cmd.Context(), changeoverImportSet, table)
	if err != nil {
		return err
	}
	pterm.Success.Printf("%s Imported table %q: %d chemicals, %d entries, %d forbidden\n",
		sym.Chem, set.Name, len(table.Chemicals()), len(table.Entries()), len(table.ForbiddenTransitions()))
	return nil
}

// loadOrSeedTable fetches the named table, or seeds a fresh one over the
// configured chemical label set when the name is new
func loadOrSeedTable(ctx context.Context, st *store.Store, name string) (*coat.ChangeoverTable, error) {
	set, err := st.GetChangeoverSet(ctx, name)
	if err == nil {
		return set.Table, nil
	}
	if !errors.IsNotFoundError(err) {
		return nil, err
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}
	if len(cfg.Coating.Chemicals) == 0 {
		return nil, errors.Newf(
			"changeover set %q does not exist and no coating.chemicals are configured to seed one", name)
	}
	if cfg.Coating.DefaultChangeoverMinutes > 0 {
		return coat.NewUniformChangeoverTable(cfg.Coating.Chemicals, cfg.Coating.DefaultChangeoverMinutes)
	}
	return coat.NewChangeoverTable(cfg.Coating.Chemicals)
}

// printChangeoverGrid prints the transition matrix, source chemicals down the
// side and targets across the top. Undefined pairs show as a dot, forbidden
// ones as an x.
func printChangeoverGrid(table *coat.ChangeoverTable) {
	chems := table.Chemicals()

	colWidth := 5
	for _, c := range chems {
		if len(c)+2 > colWidth {
			colWidth = len(c) + 2
		}
	}

	header := fmt.Sprintf("%-*s", colWidth, "")
	for _, to := range chems {
		header += fmt.Sprintf("%*s", colWidth, to)
	}
	pterm.Println(pterm.Gray(header))

	for _, from := range chems {
		row := fmt.Sprintf("%-*s", colWidth, from)
		for _, to := range chems {
			cell := "·"
			if table.IsForbidden(from, to) {
				cell = "x"
			} else if minutes, err := table.Minutes(from, to); err == nil {
				cell = strconv.Itoa(minutes)
			}
			row += fmt.Sprintf("%*s", colWidth, cell)
		}
		pterm.Println(row)
	}
}

// joinChemicals compacts a label list for a table cell
func joinChemicals(chemicals []string) string {
	out := ""
	for i, c := range chemicals {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}
