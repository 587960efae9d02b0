// Package ingest reads job lists and changeover tables from the file formats
// the shop floor actually exchanges: CSV job sheets, TOML changeover tables,
// and YAML scenario files bundling both. Errors carry the offending row or
// pair so a bad cell in a 200-line sheet is findable.
package ingest

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/teranos/smartcoat/coat"
	"github.com/teranos/smartcoat/errors"
)

// Required job sheet columns. Order is free and extra columns are ignored;
// names are matched case-insensitively after trimming.
const (
	ColumnJobID    = "Job_ID"
	ColumnChemical = "Chemical_Type"
	ColumnSlide    = "Slide_Type"
	ColumnPriority = "Priority"
	ColumnMinutes  = "Estimated_Time_mins"
)

var requiredColumns = []string{ColumnJobID, ColumnChemical, ColumnSlide, ColumnPriority, ColumnMinutes}

// ReadJobsCSV parses a job sheet. The header row is required; data rows are
// validated one at a time and the first bad row fails the import with its
// row number (header = row 1).
func ReadJobsCSV(r io.Reader) ([]coat.Job, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.Mark(errors.New("job sheet is empty"), errors.ErrInvalidRequest)
	}
	if err != nil {
		return nil, errors.Wrap(err, "read job sheet header")
	}

	index, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	var jobs []coat.Job
	seen := make(map[string]int)
	row := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			return nil, errors.Wrapf(err, "row %d", row)
		}

		job, err := parseJobRecord(record, index)
		if err != nil {
			return nil, errors.Wrapf(err, "row %d", row)
		}
		if first, dup := seen[job.ID]; dup {
			return nil, errors.Mark(
				errors.Newf("row %d: duplicate job ID %q (first seen at row %d)", row, job.ID, first),
				coat.ErrInvalidJob)
		}
		seen[job.ID] = row
		jobs = append(jobs, job)
	}

	if len(jobs) == 0 {
		return nil, errors.Mark(errors.New("job sheet has a header but no job rows"), errors.ErrInvalidRequest)
	}
	return jobs, nil
}

// ReadJobsCSVFile reads a job sheet from disk
func ReadJobsCSVFile(path string) ([]coat.Job, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open job sheet %s", path)
	}
	defer f.Close()

	jobs, err := ReadJobsCSV(f)
	if err != nil {
		return nil, errors.Wrapf(err, "job sheet %s", path)
	}
	return jobs, nil
}

// columnIndex maps the required columns to their positions in the header.
// The first cell may carry a UTF-8 BOM from spreadsheet exports.
func columnIndex(header []string) (map[string]int, error) {
	index := make(map[string]int, len(requiredColumns))
	for i, cell := range header {
		if i == 0 {
			cell = strings.TrimPrefix(cell, "\ufeff")
		}
		name := strings.TrimSpace(cell)
		for _, want := range requiredColumns {
			if strings.EqualFold(name, want) {
				if _, dup := index[want]; dup {
					return nil, errors.Mark(
						errors.Newf("job sheet header repeats column %q", want),
						errors.ErrInvalidRequest)
				}
				index[want] = i
			}
		}
	}

	var missing []string
	for _, want := range requiredColumns {
		if _, ok := index[want]; !ok {
			missing = append(missing, want)
		}
	}
	if len(missing) > 0 {
		err := errors.Mark(
			errors.Newf("job sheet header is missing columns: %s", strings.Join(missing, ", ")),
			errors.ErrInvalidRequest)
		return nil, errors.WithHintf(err, "required columns: %s", strings.Join(requiredColumns, ", "))
	}
	return index, nil
}

func parseJobRecord(record []string, index map[string]int) (coat.Job, error) {
	cell := func(column string) string {
		return strings.TrimSpace(record[index[column]])
	}

	priority, err := strconv.Atoi(cell(ColumnPriority))
	if err != nil {
		return coat.Job{}, errors.Mark(
			errors.Newf("priority %q is not a number", cell(ColumnPriority)),
			errors.ErrInvalidRequest)
	}
	minutes, err := strconv.Atoi(cell(ColumnMinutes))
	if err != nil {
		return coat.Job{}, errors.Mark(
			errors.Newf("estimated minutes %q is not a number", cell(ColumnMinutes)),
			errors.ErrInvalidRequest)
	}

	job := coat.Job{
		ID:       cell(ColumnJobID),
		Chemical: cell(ColumnChemical),
		Slide:    cell(ColumnSlide),
		Priority: priority,
		Minutes:  minutes,
	}
	if err := job.Validate(nil); err != nil {
		return coat.Job{}, err
	}
	return job, nil
}
