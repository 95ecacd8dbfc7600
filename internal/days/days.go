// Package days groups expanded event occurrences into per-day buckets.
package days

import (
	"errors"
	"fmt"
	"slices"

	"calview/internal/dateutil"
	"calview/internal/model"
)

// ErrInvalidRange is returned when a query's first day is after its last day.
var ErrInvalidRange = errors.New("days: range start is after range end")

// Source produces the occurrences overlapping the half-open day range
// [first, last). *model.Calendar implements Source.
type Source interface {
	Occurrences(first, last dateutil.Date) []model.ExpandedEvent
}

// Get returns one CalendarDay per date in [first, last), in ascending order.
// Every day is present even when it has no events. An occurrence appears on
// every day it overlaps inside the range; each day's events are sorted by
// start time, keeping source order for equal starts.
//
// Sources must not change while Get runs.
func Get(sources []Source, first, last dateutil.Date) ([]model.CalendarDay, error) {
	if err := checkRange(first, last); err != nil {
		return nil, err
	}

	n := last.DaysSince(first)
	buckets := make([][]model.ExpandedEvent, n)

	for _, src := range sources {
		for _, x := range src.Occurrences(first, last) {
			spanFirst, spanLast := x.DaySpan()
			lo := max(spanFirst.DaysSince(first), 0)
			hi := min(spanLast.DaysSince(first), n-1)
			for i := lo; i <= hi; i++ {
				buckets[i] = append(buckets[i], x)
			}
		}
	}

	out := make([]model.CalendarDay, n)
	for i := range out {
		events := buckets[i]
		slices.SortStableFunc(events, func(a, b model.ExpandedEvent) int {
			return a.Start.Compare(b.Start)
		})
		out[i] = model.CalendarDay{Date: first.AddDays(i), Events: events}
	}
	return out, nil
}

// Calendars adapts calendars to the Source interface.
func Calendars(cals []*model.Calendar) []Source {
	out := make([]Source, len(cals))
	for i, c := range cals {
		out[i] = c
	}
	return out
}

func checkRange(first, last dateutil.Date) error {
	if first.After(last) {
		return fmt.Errorf("%w: [%s, %s)", ErrInvalidRange, first, last)
	}
	return nil
}
