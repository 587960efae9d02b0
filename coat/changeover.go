package coat

import (
	"sort"

	"github.com/teranos/smartcoat/errors"
)

// Chemical label set bounds.
const (
	MinChemicals = 2
	MaxChemicals = 10
)

// Transition is an ordered chemical pair: the line moves From one chemical To
// the next. Changeover times are directional; C1->C2 and C2->C1 are distinct.
type Transition struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ChangeoverTable holds transition minutes between ordered chemical pairs.
// Identity pairs are preset to zero. A pair with no entry is a configuration
// error surfaced at lookup time, never silently defaulted; transitions can
// also be marked forbidden to keep the solver from ever scheduling them
// back to back.
type ChangeoverTable struct {
	chemicals []string
	minutes   map[Transition]int
	forbidden map[Transition]bool
}

// NewChangeoverTable builds a table over the given chemical label set.
// Identity transitions start at zero minutes; all other pairs are undefined
// until SetMinutes is called.
func NewChangeoverTable(chemicals []string) (*ChangeoverTable, error) {
	if len(chemicals) < MinChemicals || len(chemicals) > MaxChemicals {
		return nil, errors.Newf("chemical label set must have between %d and %d entries, got %d",
			MinChemicals, MaxChemicals, len(chemicals))
	}
	seen := make(map[string]bool, len(chemicals))
	labels := make([]string, len(chemicals))
	for i, c := range chemicals {
		if c == "" {
			return nil, errors.New("chemical label must not be empty")
		}
		if seen[c] {
			return nil, errors.Newf("duplicate chemical label %q", c)
		}
		seen[c] = true
		labels[i] = c
	}

	t := &ChangeoverTable{
		chemicals: labels,
		minutes:   make(map[Transition]int, len(labels)*len(labels)),
		forbidden: make(map[Transition]bool),
	}
	for _, c := range labels {
		t.minutes[Transition{From: c, To: c}] = 0
	}
	return t, nil
}

// NewUniformChangeoverTable builds a fully defined table: identity pairs at
// zero, every other ordered pair at the given minutes. This mirrors the
// shop-floor default of one flat changeover time between any two chemicals.
func NewUniformChangeoverTable(chemicals []string, minutes int) (*ChangeoverTable, error) {
	t, err := NewChangeoverTable(chemicals)
	if err != nil {
		return nil, err
	}
	if minutes < 0 {
		return nil, errors.Newf("changeover minutes must be non-negative, got %d", minutes)
	}
	for _, from := range t.chemicals {
		for _, to := range t.chemicals {
			if from != to {
				t.minutes[Transition{From: from, To: to}] = minutes
			}
		}
	}
	return t, nil
}

// SetMinutes defines the changeover time for an ordered pair. Setting a pair
// clears any forbidden mark on it.
func (t *ChangeoverTable) SetMinutes(from, to string, minutes int) error {
	if !t.HasChemical(from) {
		return errors.Newf("unknown chemical type %q", from)
	}
	if !t.HasChemical(to) {
		return errors.Newf("unknown chemical type %q", to)
	}
	if minutes < 0 {
		return errors.Newf("changeover %s->%s: minutes must be non-negative, got %d", from, to, minutes)
	}
	tr := Transition{From: from, To: to}
	t.minutes[tr] = minutes
	delete(t.forbidden, tr)
	return nil
}

// Forbid marks an ordered pair as an illegal transition. The solver will never
// place these two chemicals back to back; if no complete route can avoid the
// pair, the solve fails rather than scheduling it.
func (t *ChangeoverTable) Forbid(from, to string) error {
	if !t.HasChemical(from) {
		return errors.Newf("unknown chemical type %q", from)
	}
	if !t.HasChemical(to) {
		return errors.Newf("unknown chemical type %q", to)
	}
	tr := Transition{From: from, To: to}
	t.forbidden[tr] = true
	delete(t.minutes, tr)
	return nil
}

// IsForbidden reports whether the ordered pair is marked illegal.
func (t *ChangeoverTable) IsForbidden(from, to string) bool {
	return t.forbidden[Transition{From: from, To: to}]
}

// Minutes returns the changeover time for an ordered pair. An undefined pair
// is a configuration error, not a default.
func (t *ChangeoverTable) Minutes(from, to string) (int, error) {
	tr := Transition{From: from, To: to}
	if t.forbidden[tr] {
		return 0, errors.Mark(
			errors.Newf("transition %s->%s is forbidden", from, to),
			ErrMissingChangeover)
	}
	m, ok := t.minutes[tr]
	if !ok {
		err := errors.Mark(
			errors.Newf("no changeover entry for %s->%s", from, to),
			ErrMissingChangeover)
		return 0, errors.WithHint(err, "define the pair with SetMinutes or configure a fallback")
	}
	return m, nil
}

// HasChemical reports whether the label belongs to the configured set.
func (t *ChangeoverTable) HasChemical(label string) bool {
	return containsLabel(t.chemicals, label)
}

// Chemicals returns a copy of the configured label set in input order.
func (t *ChangeoverTable) Chemicals() []string {
	out := make([]string, len(t.chemicals))
	copy(out, t.chemicals)
	return out
}

// Entries returns all defined transitions sorted by (from, to), for display
// and persistence. Forbidden pairs are not included; list those with
// ForbiddenTransitions.
func (t *ChangeoverTable) Entries() []TableEntry {
	entries := make([]TableEntry, 0, len(t.minutes))
	for tr, m := range t.minutes {
		entries = append(entries, TableEntry{From: tr.From, To: tr.To, Minutes: m})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].From != entries[j].From {
			return entries[i].From < entries[j].From
		}
		return entries[i].To < entries[j].To
	})
	return entries
}

// ForbiddenTransitions returns the forbidden pairs sorted by (from, to).
func (t *ChangeoverTable) ForbiddenTransitions() []Transition {
	out := make([]Transition, 0, len(t.forbidden))
	for tr := range t.forbidden {
		out = append(out, tr)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}

// TableEntry is one defined transition, used for display and persistence.
type TableEntry struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Minutes int    `json:"minutes"`
}

// Complete checks that every ordered pair over the label set is either defined
// or explicitly forbidden. Ingested tables are checked with this before a
// solve so a missing pair surfaces as a configuration error up front rather
// than mid-build.
func (t *ChangeoverTable) Complete() error {
	for _, from := range t.chemicals {
		for _, to := range t.chemicals {
			tr := Transition{From: from, To: to}
			if t.forbidden[tr] {
				continue
			}
			if _, ok := t.minutes[tr]; !ok {
				return errors.Mark(
					errors.Newf("no changeover entry for %s->%s", from, to),
					ErrMissingChangeover)
			}
		}
	}
	return nil
}
