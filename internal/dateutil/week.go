package dateutil

import (
	"fmt"
	"time"
)

// Weekday is an ISO weekday index: Monday is 0 and Sunday is 6.
type Weekday int

const (
	Monday Weekday = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var weekdayCodes = [...]string{"MO", "TU", "WE", "TH", "FR", "SA", "SU"}

// WeekdayOf converts a time.Weekday into an ISO weekday.
func WeekdayOf(w time.Weekday) Weekday {
	return Weekday((int(w) + 6) % 7)
}

// IsValid reports whether w is in 0..6.
func (w Weekday) IsValid() bool {
	return w >= Monday && w <= Sunday
}

// Std converts w back to a time.Weekday.
func (w Weekday) Std() time.Weekday {
	return time.Weekday((int(w) + 1) % 7)
}

// Code returns the two-letter iCalendar code (MO..SU).
func (w Weekday) Code() string {
	if !w.IsValid() {
		return fmt.Sprintf("Weekday(%d)", int(w))
	}
	return weekdayCodes[w]
}

func (w Weekday) String() string {
	if !w.IsValid() {
		return w.Code()
	}
	return w.Std().String()
}

// MondayOf returns the Monday of the ISO week containing d.
func MondayOf(d Date) Date {
	return d.AddDays(-int(d.Weekday()))
}

// WeekDistance returns the number of weeks between the Mondays of the ISO
// weeks containing a and b. It is 0 for dates in the same week and negative
// when b's week precedes a's.
func WeekDistance(a, b Date) int {
	return MondayOf(b).DaysSince(MondayOf(a)) / 7
}

// NthWeekdayOfMonth returns the n-th occurrence of weekday in the given month.
//
// For n < 0 the count runs from the end of the month: the first matching
// weekday of the following month is located and |n| whole weeks are
// subtracted, so n = -1 is the last such weekday of the month.
//
// n must be non-zero. The result is not clamped: when the month has fewer
// than |n| matching weekdays the returned date lies outside the month and the
// caller has to check it.
func NthWeekdayOfMonth(year int, month time.Month, n int, weekday Weekday) Date {
	if n < 0 {
		next := firstWeekdayOnOrAfter(NewDate(year, month, 1).AddDays(DaysIn(year, month)), weekday)
		return next.AddDays(7 * n)
	}
	first := firstWeekdayOnOrAfter(NewDate(year, month, 1), weekday)
	return first.AddDays(7 * (n - 1))
}

func firstWeekdayOnOrAfter(d Date, weekday Weekday) Date {
	offset := (int(weekday) - int(d.Weekday()) + 7) % 7
	return d.AddDays(offset)
}
