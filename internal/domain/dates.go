package domain

import "time"

// DateRange is a closed interval of calendar days. Times are compared at day
// granularity in UTC, so a single-day booking has Start == End.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func NewDateRange(start time.Time, end time.Time) DateRange {
	return DateRange{Start: DateOf(start), End: DateOf(end)}
}

func (r DateRange) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

func (r DateRange) Valid() bool {
	if r.Start.IsZero() || r.End.IsZero() {
		return false
	}
	return !DateOf(r.End).Before(DateOf(r.Start))
}

// Overlaps uses closed endpoints: ranges touching on one day overlap.
func (r DateRange) Overlaps(other DateRange) bool {
	return !DateOf(r.Start).After(DateOf(other.End)) && !DateOf(r.End).Before(DateOf(other.Start))
}

func (r DateRange) Contains(day time.Time) bool {
	d := DateOf(day)
	return !d.Before(DateOf(r.Start)) && !d.After(DateOf(r.End))
}

// Days is the number of billable days, never less than one.
func (r DateRange) Days() int {
	if !r.Valid() {
		return 1
	}
	days := int(DateOf(r.End).Sub(DateOf(r.Start)).Hours() / 24)
	return max(days, 1)
}

// EachDay calls fn for every calendar day in the range, inclusive.
func (r DateRange) EachDay(fn func(day time.Time)) {
	if !r.Valid() {
		return
	}
	end := DateOf(r.End)
	for day := DateOf(r.Start); !day.After(end); day = day.AddDate(0, 0, 1) {
		fn(day)
	}
}

func DateOf(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
