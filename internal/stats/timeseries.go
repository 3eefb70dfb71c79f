package stats

import "sort"

// DailyPoint is one day of the control-vs-treatment conversion rate series.
type DailyPoint struct {
	Date          string  `json:"date"`
	ControlRate   float64 `json:"control_rate"`
	TreatmentRate float64 `json:"treatment_rate"`
}

// BuildDaily buckets events into UTC calendar days and computes the per-day
// conversion rate for the control and treatment variants, using the same
// session distinctness rule as Aggregate. Days where a variant saw no
// visitors report rate 0, not null. Output is strictly ascending by date.
//
// Bucketing is always UTC so the series is deterministic regardless of where
// the server or the visitor runs.
func BuildDaily(events []Event, goal, controlID, treatmentID string) []DailyPoint {
	type dayCounter struct {
		sessions   map[string]struct{}
		converting map[string]struct{}
	}
	type day struct {
		control   dayCounter
		treatment dayCounter
	}

	newCounter := func() dayCounter {
		return dayCounter{
			sessions:   make(map[string]struct{}),
			converting: make(map[string]struct{}),
		}
	}

	days := make(map[string]*day)
	for _, ev := range events {
		if ev.VariantID != controlID && ev.VariantID != treatmentID {
			continue
		}

		date := ev.Timestamp.UTC().Format("2006-01-02")
		d, ok := days[date]
		if !ok {
			d = &day{control: newCounter(), treatment: newCounter()}
			days[date] = d
		}

		c := &d.control
		if ev.VariantID == treatmentID {
			c = &d.treatment
		}
		c.sessions[ev.SessionID] = struct{}{}
		if ev.EventType == goal {
			c.converting[ev.SessionID] = struct{}{}
		}
	}

	rate := func(c dayCounter) float64 {
		if len(c.sessions) == 0 {
			return 0
		}
		return float64(len(c.converting)) / float64(len(c.sessions))
	}

	points := make([]DailyPoint, 0, len(days))
	for date, d := range days {
		points = append(points, DailyPoint{
			Date:          date,
			ControlRate:   rate(d.control),
			TreatmentRate: rate(d.treatment),
		})
	}

	sort.Slice(points, func(i, j int) bool { return points[i].Date < points[j].Date })
	return points
}
