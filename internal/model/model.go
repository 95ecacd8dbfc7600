package model

import (
	"time"

	"github.com/samber/mo"

	"calview/internal/dateutil"
	"calview/internal/recurrence"
)

// Event is a source calendar event before recurrence expansion.
//
// Start is already resolved to the display timezone; day arithmetic uses
// Start's own location.
type Event struct {
	ID         string // iCalendar UID or a generated identifier
	CalendarID string // parent calendar

	Title       string
	Description string
	Location    string

	AllDay   bool
	Start    time.Time
	Duration time.Duration

	// Rule is nil for non-recurring events.
	Rule *recurrence.Rule

	// RecurrenceOf is set on an instance that replaces the occurrence of
	// the recurring event RecurrenceOf on RecurrenceDate.
	RecurrenceOf   string
	RecurrenceDate dateutil.Date
}

// End returns Start + Duration.
func (e *Event) End() time.Time {
	return e.Start.Add(e.Duration)
}

// IsRecurring reports whether the event has a recurrence rule.
func (e *Event) IsRecurring() bool {
	return e.Rule != nil && !e.Rule.IsZero()
}

// Occurrences returns the occurrence dates of e up to and including hardEnd.
// A non-recurring event has exactly one occurrence, its own start date.
func (e *Event) Occurrences(hardEnd mo.Option[dateutil.Date]) recurrence.Sequence {
	anchor := dateutil.DateOf(e.Start)
	if !e.IsRecurring() {
		single, _ := recurrence.NewDaily(recurrence.Options{Interval: 1, Count: mo.Some(1)})
		return recurrence.Generate(single, anchor, hardEnd)
	}
	return recurrence.Generate(*e.Rule, anchor, hardEnd)
}

// ExpandedEvent is one occurrence of an Event. It refers to the original
// event and only carries its own start time; the original must not be
// mutated while expanded events are in use.
type ExpandedEvent struct {
	Event *Event
	Start time.Time
}

// Expand projects e onto the occurrence date d, keeping e's time of day.
func (e *Event) Expand(d dateutil.Date) ExpandedEvent {
	return ExpandedEvent{Event: e, Start: d.At(e.Start)}
}

func (x ExpandedEvent) ID() string              { return x.Event.ID }
func (x ExpandedEvent) CalendarID() string      { return x.Event.CalendarID }
func (x ExpandedEvent) Title() string           { return x.Event.Title }
func (x ExpandedEvent) Description() string     { return x.Event.Description }
func (x ExpandedEvent) Location() string        { return x.Event.Location }
func (x ExpandedEvent) AllDay() bool            { return x.Event.AllDay }
func (x ExpandedEvent) Duration() time.Duration { return x.Event.Duration }
func (x ExpandedEvent) End() time.Time          { return x.Start.Add(x.Event.Duration) }

// Rule returns the original event's recurrence rule, or nil.
func (x ExpandedEvent) Rule() *recurrence.Rule { return x.Event.Rule }

// InstanceKey identifies this occurrence among all occurrences of the event.
func (x ExpandedEvent) InstanceKey() string {
	return x.Event.ID + "@" + x.Start.Format(time.RFC3339)
}

// DaySpan returns the first and last day (inclusive) the occurrence covers.
//
// All-day events cover [start date, end date) and at least one day. Timed
// events cover every day from start to end, except that an end exactly at
// midnight does not spill into that day. Zero-length events cover one day.
func (x ExpandedEvent) DaySpan() (first, last dateutil.Date) {
	first = dateutil.DateOf(x.Start)

	if x.AllDay() {
		// Whole days, rounded so a DST shift inside the span does not count.
		n := int((x.Duration() + 12*time.Hour) / (24 * time.Hour))
		last = first.AddDays(n - 1)
	} else {
		end := x.End()
		last = dateutil.DateOf(end)
		if end.After(x.Start) && end.Equal(last.In(end.Location())) {
			last = last.AddDays(-1)
		}
	}
	if last.Before(first) {
		last = first
	}
	return first, last
}

// CalendarDay is one day and the occurrences overlapping it, ordered by
// start time.
type CalendarDay struct {
	Date   dateutil.Date
	Events []ExpandedEvent
}

// Calendar is a source calendar: a named set of events.
type Calendar struct {
	ID     string
	Name   string
	Events []*Event
}

// Occurrences returns every occurrence of the calendar's events that
// overlaps the half-open day range [first, last).
func (c *Calendar) Occurrences(first, last dateutil.Date) []ExpandedEvent {
	if !first.Before(last) {
		return nil
	}
	hardEnd := mo.Some(last.AddDays(-1))

	var out []ExpandedEvent
	for _, ev := range c.Events {
		for d := range ev.Occurrences(hardEnd).All() {
			x := ev.Expand(d)
			if _, lastDay := x.DaySpan(); lastDay.Before(first) {
				continue
			}
			out = append(out, x)
		}
	}
	return out
}
