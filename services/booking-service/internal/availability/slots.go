package availability

import "time"

type Interval struct {
	Start time.Time
	End   time.Time
}

// Slot is one step of a provider's working day.
type Slot struct {
	Start     time.Time `json:"start"`
	Available bool      `json:"available"`
}

// Slots walks [windowStart, windowEnd) in step increments and marks each start unavailable
// when it is before now or overlaps a busy interval.
func Slots(windowStart, windowEnd time.Time, step time.Duration, busy []Interval, now time.Time) []Slot {
	if step <= 0 || !windowEnd.After(windowStart) {
		return nil
	}

	var slots []Slot
	for t := windowStart; t.Before(windowEnd); t = t.Add(step) {
		slots = append(slots, Slot{
			Start:     t,
			Available: !t.Before(now) && !overlapsAny(t, t.Add(step), busy),
		})
	}
	return slots
}

// Hourly turns busy slot starts into one-hour intervals.
func Hourly(starts []time.Time) []Interval {
	out := make([]Interval, 0, len(starts))
	for _, s := range starts {
		out = append(out, Interval{Start: s, End: s.Add(time.Hour)})
	}
	return out
}

func overlapsAny(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		// Half-open intervals: [start,end) overlaps [b.Start,b.End) iff start < b.End && b.Start < end.
		if start.Before(b.End) && b.Start.Before(end) {
			return true
		}
	}
	return false
}
