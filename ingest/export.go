package ingest

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/teranos/smartcoat/errors"
	"github.com/teranos/smartcoat/sequence"
)

var routeHeader = []string{
	"Position",
	ColumnJobID,
	ColumnChemical,
	ColumnSlide,
	ColumnPriority,
	"Start_min",
	ColumnMinutes,
	"Changeover_before_mins",
}

// WriteRouteCSV writes a solved timeline as a CSV sheet, one row per job in
// schedule order. Column names mirror the import sheet so a solved route can
// be re-imported as a job list.
func WriteRouteCSV(w io.Writer, tl sequence.Timeline) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(routeHeader); err != nil {
		return errors.Wrap(err, "write route header")
	}
	for i, task := range tl.Tasks {
		row := []string{
			strconv.Itoa(i + 1),
			task.Job.ID,
			task.Job.Chemical,
			task.Job.Slide,
			strconv.Itoa(task.Job.Priority),
			strconv.Itoa(task.StartMinute),
			strconv.Itoa(task.Minutes),
			strconv.Itoa(task.GapBefore),
		}
		if err := writer.Write(row); err != nil {
			return errors.Wrapf(err, "write route row %d", i+1)
		}
	}

	writer.Flush()
	return errors.Wrap(writer.Error(), "flush route sheet")
}

// WriteRouteCSVFile writes the timeline sheet to disk
func WriteRouteCSVFile(path string, tl sequence.Timeline) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create route sheet %s", path)
	}
	if err := WriteRouteCSV(f, tl); err != nil {
		f.Close()
		return errors.Wrapf(err, "route sheet %s", path)
	}
	return errors.Wrapf(f.Close(), "close route sheet %s", path)
}
