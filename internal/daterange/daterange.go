// Package daterange provides the calendar-day cursor that drives a run.
// Dates are normalized to midnight UTC so that advancing by one day is never
// affected by daylight-saving transitions.
package daterange

import (
	"fmt"
	"iter"
	"time"

	apperrors "github.com/agbru/dayrun/internal/errors"
)

// Layout is the date format used in file names and stage arguments.
const Layout = "2006-01-02"

const secondsPerDay = 24 * 60 * 60

// Range is an inclusive span of calendar days.
type Range struct {
	Begin time.Time
	End   time.Time
	// SkipLeapDay drops February 29 from the iteration.
	SkipLeapDay bool
}

// Day is one step of the cursor.
type Day struct {
	// Index is the zero-based position among yielded days.
	Index int
	// Date is midnight UTC of the day.
	Date time.Time
}

// String returns the day formatted with Layout.
func (d Day) String() string { return Format(d.Date) }

// Parse parses a YYYY-MM-DD string into midnight UTC.
func Parse(s string) (time.Time, error) {
	return parseField("date", s)
}

func parseField(field, s string) (time.Time, error) {
	t, err := time.Parse(Layout, s)
	if err != nil {
		return time.Time{}, apperrors.ValidationError{Field: field, Message: fmt.Sprintf("%q is not a YYYY-MM-DD date", s)}
	}
	return t, nil
}

// Format renders a date with Layout.
func Format(t time.Time) string { return t.Format(Layout) }

// New builds a validated Range from two YYYY-MM-DD strings.
func New(begin, end string, skipLeapDay bool) (Range, error) {
	b, err := parseField("begin", begin)
	if err != nil {
		return Range{}, err
	}
	e, err := parseField("end", end)
	if err != nil {
		return Range{}, err
	}
	r := Range{Begin: b, End: e, SkipLeapDay: skipLeapDay}
	return r, r.Validate()
}

// Validate checks that Begin does not come after End.
func (r Range) Validate() error {
	if r.Begin.After(r.End) {
		return apperrors.ValidationError{
			Field:   "begin",
			Message: fmt.Sprintf("%s is after end %s", Format(r.Begin), Format(r.End)),
		}
	}
	return nil
}

// Days yields every day of the range in order. The cursor advances by one
// calendar day and never passes End.
func (r Range) Days() iter.Seq[Day] {
	return func(yield func(Day) bool) {
		begin, end := normalize(r.Begin), normalize(r.End)
		i := 0
		for d := begin; !d.After(end); d = d.AddDate(0, 0, 1) {
			if r.SkipLeapDay && IsLeapDay(d) {
				continue
			}
			if !yield(Day{Index: i, Date: d}) {
				return
			}
			i++
		}
	}
}

// Count returns how many days Days yields.
func (r Range) Count() int {
	begin, end := normalize(r.Begin), normalize(r.End)
	if begin.After(end) {
		return 0
	}
	// Both ends are UTC midnight, so whole days are an exact Unix division.
	// time.Duration would overflow past ~292 years.
	n := int((end.Unix()-begin.Unix())/secondsPerDay) + 1
	if r.SkipLeapDay {
		n -= leapDaysBetween(begin, end)
	}
	return n
}

// IsLeapDay reports whether t falls on February 29.
func IsLeapDay(t time.Time) bool {
	return t.Month() == time.February && t.Day() == 29
}

func leapDaysBetween(begin, end time.Time) int {
	n := 0
	for y := begin.Year(); y <= end.Year(); y++ {
		if !isLeapYear(y) {
			continue
		}
		ld := time.Date(y, time.February, 29, 0, 0, 0, 0, time.UTC)
		if !ld.Before(begin) && !ld.After(end) {
			n++
		}
	}
	return n
}

func isLeapYear(y int) bool {
	return y%4 == 0 && (y%100 != 0 || y%400 == 0)
}

func normalize(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
