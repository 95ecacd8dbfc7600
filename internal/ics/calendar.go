package ics

import (
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"calview/internal/dateutil"
	appLog "calview/internal/log"
	"calview/internal/model"
)

const (
	productID     = "-//calview//calview//EN"
	icsUTCLayout   = "20060102T150405Z"
	icsLocalLayout = "20060102T150405"
	icsDateLayout  = "20060102"
)

// BuildCalendar turns the parsed events of one source into a model.Calendar
// whose event times are expressed in loc.
//
//   - RRULE/EXDATE become a recurrence.Rule on the event. RRULEs that cannot
//     be represented are logged and the event keeps its first occurrence only.
//   - VEVENTs sharing a UID (or a UID and RECURRENCE-ID) collapse into the one
//     with the highest SEQUENCE; on a tie the first one wins.
//   - A RECURRENCE-ID override adds its original date as an exception of the
//     master event and is kept as a standalone event.
//   - All-day events keep their civil dates regardless of loc.
func BuildCalendar(src Source, events []ParsedEvent, loc *time.Location) *model.Calendar {
	if loc == nil {
		loc = time.Local
	}
	cal := &model.Calendar{ID: src.ID, Name: src.Name}
	if cal.Name == "" {
		cal.Name = src.ID
	}

	var plain, overrides []ParsedEvent
	for _, p := range events {
		if p.IsOverride && p.Recurrence != nil {
			overrides = append(overrides, p)
		} else {
			plain = append(plain, p)
		}
	}
	plain = latestByKey(plain, func(p ParsedEvent) string { return p.UID })
	overrides = latestByKey(overrides, func(p ParsedEvent) string {
		return p.UID + "\x00" + p.Recurrence.UTC().Format(time.RFC3339)
	})
	if dropped := len(events) - len(plain) - len(overrides); dropped > 0 {
		appLog.Debug("ics superseded events dropped", "id", src.ID, "dropped", dropped)
	}

	masters := make(map[string]*model.Event)
	for _, p := range plain {
		ev := toEvent(src, p, loc)
		if ev.IsRecurring() {
			masters[p.UID] = ev
		}
		cal.Events = append(cal.Events, ev)
	}

	for _, o := range overrides {
		rid := civilDate(*o.Recurrence, o.AllDay, loc)
		ev := toEvent(src, o, loc)
		ev.ID = o.UID + "/" + rid.String()
		ev.RecurrenceOf = o.UID
		ev.RecurrenceDate = rid

		if m, ok := masters[o.UID]; ok {
			r, err := m.Rule.WithException(rid)
			if err != nil {
				appLog.Error("ics override exception rejected", err, "id", src.ID, "uid", o.UID, "recurrence_id", rid.String())
			} else {
				m.Rule = &r
			}
		} else {
			appLog.Debug("ics override without recurring master", "id", src.ID, "uid", o.UID)
		}
		cal.Events = append(cal.Events, ev)
	}

	appLog.Info("ics calendar built", "id", src.ID, "events", len(cal.Events), "overrides", len(overrides))
	return cal
}

// latestByKey keeps one event per key, preferring the higher SEQUENCE and
// the earlier event on a tie. Events stay in order of first appearance.
func latestByKey(events []ParsedEvent, key func(ParsedEvent) string) []ParsedEvent {
	index := make(map[string]int, len(events))
	out := make([]ParsedEvent, 0, len(events))
	for _, p := range events {
		k := key(p)
		if i, ok := index[k]; ok {
			if p.Seq > out[i].Seq {
				out[i] = p
			}
			continue
		}
		index[k] = len(out)
		out = append(out, p)
	}
	return out
}

func toEvent(src Source, p ParsedEvent, loc *time.Location) *model.Event {
	ev := &model.Event{
		ID:          p.UID,
		CalendarID:  src.ID,
		Title:       p.Summary,
		Description: p.Description,
		Location:    p.Location,
		AllDay:      p.AllDay,
	}

	if p.AllDay {
		first := dateutil.DateOf(p.Start)
		n := max(dateutil.DateOf(p.End).DaysSince(first), 1)
		ev.Start = first.In(loc)
		ev.Duration = time.Duration(n) * 24 * time.Hour
	} else {
		ev.Start = p.Start.In(loc)
		ev.Duration = p.End.Sub(p.Start)
	}

	if p.RawRRule == "" || p.IsOverride {
		return ev
	}

	exceptions := make([]dateutil.Date, 0, len(p.ExDates))
	for _, x := range p.ExDates {
		exceptions = append(exceptions, civilDate(x, p.AllDay, loc))
	}
	// BYDAY and friends are relative to DTSTART's own zone. All-day dates
	// never move.
	ruleLoc := loc
	if p.AllDay {
		ruleLoc = p.Start.Location()
	}
	rule, err := ParseRuleIn(p.RawRRule, p.Start, ruleLoc, exceptions)
	if err != nil {
		appLog.Error("ics rrule not supported, keeping first occurrence", err, "id", src.ID, "uid", p.UID, "rrule", p.RawRRule)
		return ev
	}
	ev.Rule = &rule
	return ev
}

// civilDate returns the calendar date of t. All-day values keep their own
// date; timed values are converted to loc first.
func civilDate(t time.Time, allDay bool, loc *time.Location) dateutil.Date {
	if allDay {
		return dateutil.DateOf(t)
	}
	return dateutil.DateOf(t.In(loc))
}

// EncodeCalendar serializes cal back into an iCalendar document. Timed
// events are written as wall clock with a TZID when their zone has an IANA
// name and in UTC otherwise; all-day events as VALUE=DATE.
func EncodeCalendar(cal *model.Calendar) (string, error) {
	out := ical.NewCalendar()
	out.SetProductId(productID)

	stamp := time.Now().UTC()
	for _, ev := range cal.Events {
		uid := ev.ID
		if ev.RecurrenceOf != "" {
			uid = ev.RecurrenceOf
		}
		ve := out.AddEvent(uid)
		ve.SetDtStampTime(stamp)
		if ev.RecurrenceOf != "" {
			addRecurrenceID(ve, cal, ev)
		}
		ve.SetSummary(ev.Title)
		if ev.Description != "" {
			ve.SetDescription(ev.Description)
		}
		if ev.Location != "" {
			ve.SetLocation(ev.Location)
		}

		if ev.AllDay {
			ve.SetAllDayStartAt(ev.Start)
			ve.SetAllDayEndAt(ev.End())
		} else {
			setTimed(ve, ical.ComponentPropertyDtStart, ev.Start)
			setTimed(ve, ical.ComponentPropertyDtEnd, ev.End())
		}

		if !ev.IsRecurring() {
			continue
		}
		ruleLoc := ev.Start.Location()
		if !ev.AllDay {
			ruleLoc = writtenZone(ev.Start)
		}
		rule, err := FormatRuleIn(*ev.Rule, ev.Start, ruleLoc)
		if err != nil {
			return "", fmt.Errorf("ics: encode %s: %w", ev.ID, err)
		}
		ve.AddProperty(ical.ComponentPropertyRrule, rule)

		if ev.AllDay {
			if ex := FormatExceptions(*ev.Rule); ex != "" {
				ve.AddProperty(ical.ComponentPropertyExdate, ex, ical.WithValue(string(ical.ValueDataTypeDate)))
			}
			continue
		}
		exceptions := ev.Rule.Exceptions()
		if len(exceptions) == 0 {
			continue
		}
		parts := make([]string, 0, len(exceptions))
		for _, d := range exceptions {
			parts = append(parts, d.At(ev.Start).UTC().Format(icsUTCLayout))
		}
		ve.AddProperty(ical.ComponentPropertyExdate, strings.Join(parts, ","))
	}

	return out.Serialize(), nil
}

// writtenZone is the zone a timed value is written in: t's own zone when a
// reader can load it by name, UTC otherwise.
func writtenZone(t time.Time) *time.Location {
	loc := t.Location()
	if loc == time.UTC || loc == time.Local || loc.String() == "Local" {
		return time.UTC
	}
	if _, err := time.LoadLocation(loc.String()); err != nil {
		return time.UTC
	}
	return loc
}

func setTimed(ve *ical.VEvent, prop ical.ComponentProperty, t time.Time) {
	loc := writtenZone(t)
	if loc == time.UTC {
		ve.SetProperty(prop, t.UTC().Format(icsUTCLayout))
		return
	}
	ve.SetProperty(prop, t.In(loc).Format(icsLocalLayout), ical.WithTZID(loc.String()))
}

// addRecurrenceID writes the RECURRENCE-ID of an override instance: the
// replaced date at the master's time of day, or a plain date for all-day
// events.
func addRecurrenceID(ve *ical.VEvent, cal *model.Calendar, ev *model.Event) {
	if ev.AllDay {
		ve.AddProperty(ical.ComponentPropertyRecurrenceId, ev.RecurrenceDate.In(time.UTC).Format(icsDateLayout),
			ical.WithValue(string(ical.ValueDataTypeDate)))
		return
	}
	clock := ev.Start
	for _, m := range cal.Events {
		if m.ID == ev.RecurrenceOf {
			clock = m.Start
			break
		}
	}
	ve.AddProperty(ical.ComponentPropertyRecurrenceId, ev.RecurrenceDate.At(clock).UTC().Format(icsUTCLayout))
}
