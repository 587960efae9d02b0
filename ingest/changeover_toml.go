package ingest

import (
	"os"

	"github.com/BurntSushi/toml"

	"github.com/teranos/smartcoat/coat"
	"github.com/teranos/smartcoat/errors"
)

// ChangeoverFile is the TOML changeover table format:
//
//	chemicals = ["C1", "C2", "C3"]
//	default = 15
//
//	[[changeover]]
//	from = "C1"
//	to = "C2"
//	minutes = 20
//
//	[[changeover]]
//	from = "C2"
//	to = "C3"
//	forbidden = true
//
// With a default, unlisted pairs get the default minutes; without one they
// stay undefined and surface as configuration errors at cost time.
type ChangeoverFile struct {
	Chemicals   []string         `toml:"chemicals"`
	Default     *int             `toml:"default"`
	Changeovers []TransitionSpec `toml:"changeover"`
}

// ParseChangeoverTOML decodes a changeover table document
func ParseChangeoverTOML(data []byte) (*coat.ChangeoverTable, error) {
	var file ChangeoverFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "parse changeover TOML"), errors.ErrInvalidRequest)
	}
	if len(file.Chemicals) == 0 {
		return nil, errors.Mark(errors.New("changeover table lists no chemicals"), errors.ErrInvalidRequest)
	}
	return BuildTable(file.Chemicals, file.Default, file.Changeovers)
}

// LoadChangeoverTOML reads a changeover table file from disk
func LoadChangeoverTOML(path string) (*coat.ChangeoverTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read changeover table %s", path)
	}
	table, err := ParseChangeoverTOML(data)
	if err != nil {
		return nil, errors.Wrapf(err, "changeover table %s", path)
	}
	return table, nil
}
