package ingest

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/teranos/smartcoat/coat"
	"github.com/teranos/smartcoat/errors"
)

// Scenario bundles everything one solve needs in a single YAML document:
// the chemical label set, the changeover table, the jobs, and optionally
// which job the line starts on.
//
//	name: monday-morning
//	chemicals: [C1, C2]
//	default_changeover: 15
//	changeovers:
//	  - {from: C1, to: C2, minutes: 20}
//	  - {from: C2, to: C1, forbidden: true}
//	anchor: JOB-A
//	jobs:
//	  - {id: JOB-A, chemical: C1, slide: standard, priority: 1, minutes: 30}
type Scenario struct {
	Name              string           `yaml:"name"`
	Chemicals         []string         `yaml:"chemicals"`
	DefaultChangeover *int             `yaml:"default_changeover,omitempty"`
	Changeovers       []TransitionSpec `yaml:"changeovers,omitempty"`
	Anchor            string           `yaml:"anchor,omitempty"`
	Jobs              []ScenarioJob    `yaml:"jobs"`
}

// ScenarioJob is one job row in a scenario document. The same shape serves
// YAML scenarios, TOML tables, and JSON solve requests.
type ScenarioJob struct {
	ID       string `yaml:"id" toml:"id" json:"id"`
	Chemical string `yaml:"chemical" toml:"chemical" json:"chemical"`
	Slide    string `yaml:"slide,omitempty" toml:"slide" json:"slide,omitempty"`
	Priority int    `yaml:"priority" toml:"priority" json:"priority"`
	Minutes  int    `yaml:"minutes" toml:"minutes" json:"minutes"`
}

// TransitionSpec is one changeover declaration, shared by the YAML scenario,
// TOML table, and JSON solve request formats. Forbidden pairs omit minutes.
type TransitionSpec struct {
	From      string `yaml:"from" toml:"from" json:"from"`
	To        string `yaml:"to" toml:"to" json:"to"`
	Minutes   int    `yaml:"minutes,omitempty" toml:"minutes" json:"minutes,omitempty"`
	Forbidden bool   `yaml:"forbidden,omitempty" toml:"forbidden" json:"forbidden,omitempty"`
}

// ParseScenario decodes and validates a scenario document
func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "parse scenario YAML"), errors.ErrInvalidRequest)
	}
	if len(sc.Jobs) == 0 {
		return nil, errors.Mark(errors.New("scenario has no jobs"), errors.ErrInvalidRequest)
	}
	if sc.Anchor != "" && !sc.hasJob(sc.Anchor) {
		return nil, errors.Mark(
			errors.Newf("anchor %q is not one of the scenario's jobs", sc.Anchor),
			errors.ErrInvalidRequest)
	}
	return &sc, nil
}

// LoadScenario reads a scenario file from disk
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read scenario %s", path)
	}
	sc, err := ParseScenario(data)
	if err != nil {
		return nil, errors.Wrapf(err, "scenario %s", path)
	}
	return sc, nil
}

func (s *Scenario) hasJob(id string) bool {
	for _, j := range s.Jobs {
		if j.ID == id {
			return true
		}
	}
	return false
}

// JobList converts the scenario's job rows into a validated list
func (s *Scenario) JobList() (coat.JobList, error) {
	jobs := make([]coat.Job, len(s.Jobs))
	for i, j := range s.Jobs {
		jobs[i] = coat.Job{
			ID:       j.ID,
			Chemical: j.Chemical,
			Slide:    j.Slide,
			Priority: j.Priority,
			Minutes:  j.Minutes,
		}
	}
	list, err := coat.NewJobList(jobs...)
	if err != nil {
		return coat.JobList{}, err
	}
	if err := list.Validate(s.Chemicals); err != nil {
		return coat.JobList{}, err
	}
	return list, nil
}

// Table builds the scenario's changeover table
func (s *Scenario) Table() (*coat.ChangeoverTable, error) {
	return BuildTable(s.Chemicals, s.DefaultChangeover, s.Changeovers)
}

// AnchorIndex resolves the anchor job ID to its position in the job list.
// An empty anchor means the first job.
func (s *Scenario) AnchorIndex() int {
	if s.Anchor == "" {
		return 0
	}
	for i, j := range s.Jobs {
		if j.ID == s.Anchor {
			return i
		}
	}
	return 0
}

// BuildTable assembles a changeover table from a label set, an optional
// uniform default, and explicit pair declarations. Explicit pairs override
// the default; forbidden marks always win.
func BuildTable(chemicals []string, defaultMinutes *int, specs []TransitionSpec) (*coat.ChangeoverTable, error) {
	var table *coat.ChangeoverTable
	var err error
	if defaultMinutes != nil {
		table, err = coat.NewUniformChangeoverTable(chemicals, *defaultMinutes)
	} else {
		table, err = coat.NewChangeoverTable(chemicals)
	}
	if err != nil {
		return nil, err
	}

	for _, spec := range specs {
		if spec.Forbidden {
			err = table.Forbid(spec.From, spec.To)
		} else {
			err = table.SetMinutes(spec.From, spec.To, spec.Minutes)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "changeover %s->%s", spec.From, spec.To)
		}
	}
	return table, nil
}
