package sequence

import (
	"github.com/teranos/smartcoat/coat"
	"github.com/teranos/smartcoat/errors"
)

// ScheduledTask places one job on the timeline. GapBefore is the changeover
// pause inserted immediately before the job starts; zero for the first job
// and for same-chemical transitions.
type ScheduledTask struct {
	Job         coat.Job `json:"job"`
	StartMinute int      `json:"start_minute"`
	Minutes     int      `json:"minutes"`
	GapBefore   int      `json:"gap_before"`
}

// GapMark records where a changeover pause sits on the timeline, for
// rendering markers between bars.
type GapMark struct {
	AtMinute int    `json:"at_minute"`
	Minutes  int    `json:"minutes"`
	From     string `json:"from"`
	To       string `json:"to"`
}

// Timeline is a route laid out on a single track from minute zero. TotalSpan
// is the sum of all job durations plus all changeover gaps.
type Timeline struct {
	Tasks     []ScheduledTask `json:"tasks"`
	Gaps      []GapMark       `json:"gaps"`
	TotalSpan int             `json:"total_span"`
}

// Assemble lays a solved route out on the timeline. Gap minutes come from the
// matrix the route was solved against, so fallback-resolved pairs schedule
// exactly as they were costed. The inputs are not modified.
func Assemble(res Result, m *Matrix) (Timeline, error) {
	if m == nil || m.Len() == 0 {
		return Timeline{}, errors.New("timeline requires a cost matrix")
	}
	if err := validateOrder(res.Order, m.Len()); err != nil {
		return Timeline{}, errors.Wrap(err, "assemble timeline")
	}

	tl := Timeline{Tasks: make([]ScheduledTask, 0, len(res.Order))}
	cursor := 0
	for k, idx := range res.Order {
		job := m.Job(idx)
		gap := 0
		if k > 0 {
			prevIdx := res.Order[k-1]
			gap = m.GapMinutes(prevIdx, idx)
			if gap == Forbidden {
				return Timeline{}, errors.AssertionFailedf(
					"route crosses forbidden transition %s->%s",
					m.Job(prevIdx).ID, job.ID)
			}
			if gap > 0 {
				tl.Gaps = append(tl.Gaps, GapMark{
					AtMinute: cursor,
					Minutes:  gap,
					From:     m.Job(prevIdx).Chemical,
					To:       job.Chemical,
				})
				cursor += gap
			}
		}
		tl.Tasks = append(tl.Tasks, ScheduledTask{
			Job:         job,
			StartMinute: cursor,
			Minutes:     job.Minutes,
			GapBefore:   gap,
		})
		cursor += job.Minutes
	}
	tl.TotalSpan = cursor
	return tl, nil
}

// validateOrder checks that order is a permutation of [0, n).
func validateOrder(order []int, n int) error {
	if len(order) != n {
		return errors.Newf("route length %d does not match %d jobs", len(order), n)
	}
	seen := make([]bool, n)
	for pos, idx := range order {
		if idx < 0 || idx >= n {
			return errors.Newf("route position %d holds index %d, out of range [0, %d)", pos, idx, n)
		}
		if seen[idx] {
			return errors.Newf("route visits job index %d twice", idx)
		}
		seen[idx] = true
	}
	return nil
}
