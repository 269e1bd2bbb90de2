package schedule

import "time"

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether two half-open intervals intersect.
// Touching endpoints do not conflict: [10:00,11:00) and [11:00,12:00) are disjoint.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && iv.End.After(other.Start)
}

// Conflicts reports whether candidate intersects any of the existing intervals.
// Pure predicate over already-fetched candidates; fetching the right set and
// any concurrency ordering is the caller's job.
func Conflicts(candidate Interval, existing []Interval) bool {
	for _, iv := range existing {
		if candidate.Overlaps(iv) {
			return true
		}
	}
	return false
}

// Occurrences returns every date in [from, to] that falls on weekday wd,
// in ascending order. The cursor advances from `from` to the first matching
// weekday, then steps by 7 days. Times of day on from/to are ignored.
func Occurrences(wd time.Weekday, from, to time.Time) []time.Time {
	from = truncateToDate(from)
	to = truncateToDate(to)
	if to.Before(from) {
		return nil
	}

	cursor := from
	for cursor.Weekday() != wd {
		cursor = cursor.AddDate(0, 0, 1)
	}

	var dates []time.Time
	for !cursor.After(to) {
		dates = append(dates, cursor)
		cursor = cursor.AddDate(0, 0, 7)
	}

	return dates
}

// At combines a calendar date with a time-of-day taken from clock.
func At(date, clock time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(),
		clock.Hour(), clock.Minute(), clock.Second(), 0, date.Location())
}

func truncateToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
