package tracker

import (
	"math"
	"time"
)

// daysBetween returns the whole-calendar-day difference between two
// instants, both viewed in loc. Two timestamps on the same calendar date
// yield 0 regardless of hour; the result is the day slot that is due.
func daysBetween(from, to time.Time, loc *time.Location) int {
	f := from.In(loc)
	t := to.In(loc)
	fd := time.Date(f.Year(), f.Month(), f.Day(), 0, 0, 0, 0, loc)
	td := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	// Round, not truncate: a DST transition makes a day 23 or 25 hours.
	return int(math.Round(td.Sub(fd).Hours() / 24))
}
