package ics

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/samber/mo"
	"github.com/teambition/rrule-go"

	"calview/internal/dateutil"
	"calview/internal/recurrence"
)

// ErrUnsupportedRule is returned for RRULEs that cannot be expressed as a
// recurrence.Rule, e.g. BYSETPOS, BYHOUR or a BYMONTHDAY that differs from
// the event's own day.
var ErrUnsupportedRule = errors.New("ics: unsupported RRULE")

var freqKinds = map[rrule.Frequency]recurrence.Kind{
	rrule.DAILY:   recurrence.Daily,
	rrule.WEEKLY:  recurrence.Weekly,
	rrule.MONTHLY: recurrence.Monthly,
	rrule.YEARLY:  recurrence.Yearly,
}

var rruleWeekdays = [7]rrule.Weekday{rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA, rrule.SU}

// ParseRule converts an RRULE value (without the "RRULE:" prefix) into a
// recurrence.Rule for an event starting at anchor. Ordinals, weekdays and
// month days in the RRULE must agree with anchor; UNTIL is read in anchor's
// location.
func ParseRule(raw string, anchor time.Time, exceptions []dateutil.Date) (recurrence.Rule, error) {
	return ParseRuleIn(raw, anchor, anchor.Location(), exceptions)
}

// ParseRuleIn is ParseRule for an event whose DTSTART is dtstart but whose
// occurrences are evaluated on dates in loc. BYDAY and BYMONTHDAY keep their
// meaning in dtstart's zone: when the move to loc puts the start on another
// date, weekly weekdays follow it, and patterns that cannot follow it fail
// with ErrUnsupportedRule. exceptions are already dates in loc.
func ParseRuleIn(raw string, dtstart time.Time, loc *time.Location, exceptions []dateutil.Date) (recurrence.Rule, error) {
	if loc == nil {
		loc = dtstart.Location()
	}
	opt, err := rrule.StrToROptionInLocation(strings.TrimPrefix(strings.TrimSpace(raw), "RRULE:"), dtstart.Location())
	if err != nil {
		return recurrence.Rule{}, fmt.Errorf("ics: parse RRULE %q: %w", raw, err)
	}

	kind, ok := freqKinds[opt.Freq]
	if !ok {
		return recurrence.Rule{}, fmt.Errorf("%w: FREQ=%v", ErrUnsupportedRule, opt.Freq)
	}
	if len(opt.Bysetpos)+len(opt.Byyearday)+len(opt.Byweekno)+len(opt.Byhour)+
		len(opt.Byminute)+len(opt.Bysecond)+len(opt.Byeaster) > 0 {
		return recurrence.Rule{}, fmt.Errorf("%w: %s", ErrUnsupportedRule, raw)
	}

	day := dateutil.DateOf(dtstart)
	shift := dateutil.DateOf(dtstart.In(loc)).DaysSince(day)

	opts := recurrence.Options{
		Interval:   max(opt.Interval, 1),
		Exceptions: exceptions,
	}
	if opt.Count > 0 {
		opts.Count = mo.Some(opt.Count)
	}
	if !opt.Until.IsZero() {
		opts.Until = mo.Some(dateutil.DateOf(opt.Until.In(loc)))
	}

	if len(opt.Bymonth) > 0 && !slices.Equal(opt.Bymonth, []int{int(day.Month)}) {
		return recurrence.Rule{}, fmt.Errorf("%w: BYMONTH does not match %s", ErrUnsupportedRule, day)
	}
	if len(opt.Bymonth) > 0 && kind != recurrence.Yearly {
		return recurrence.Rule{}, fmt.Errorf("%w: BYMONTH with FREQ=%v", ErrUnsupportedRule, opt.Freq)
	}
	if len(opt.Bymonthday) > 0 {
		if kind != recurrence.Monthly && kind != recurrence.Yearly {
			return recurrence.Rule{}, fmt.Errorf("%w: BYMONTHDAY with FREQ=%v", ErrUnsupportedRule, opt.Freq)
		}
		if !slices.Equal(opt.Bymonthday, []int{day.Day}) {
			return recurrence.Rule{}, fmt.Errorf("%w: BYMONTHDAY does not match %s", ErrUnsupportedRule, day)
		}
	}

	switch kind {
	case recurrence.Weekly:
		weekdays, err := weeklyDaysOf(opt, day)
		if err != nil {
			return recurrence.Rule{}, err
		}
		if opts.Weekdays, err = shiftWeekdays(weekdays, shift, opts.Interval); err != nil {
			return recurrence.Rule{}, err
		}
	case recurrence.Monthly:
		if len(opt.Byweekday) > 0 {
			mode, err := monthlyModeOf(opt.Byweekday, day)
			if err != nil {
				return recurrence.Rule{}, err
			}
			opts.MonthlyMode = mode
		}
		if shift != 0 && (opts.MonthlyMode != recurrence.ByMonthDay || !stableMonthDay(day.Day, shift)) {
			return recurrence.Rule{}, fmt.Errorf("%w: monthly rule moves to another day in %s", ErrUnsupportedRule, loc)
		}
	case recurrence.Yearly:
		if len(opt.Byweekday) > 0 {
			return recurrence.Rule{}, fmt.Errorf("%w: BYDAY with FREQ=%v", ErrUnsupportedRule, opt.Freq)
		}
		if shift != 0 && !stableMonthDay(day.Day, shift) {
			return recurrence.Rule{}, fmt.Errorf("%w: yearly rule moves to another month in %s", ErrUnsupportedRule, loc)
		}
	default:
		if len(opt.Byweekday) > 0 {
			return recurrence.Rule{}, fmt.Errorf("%w: BYDAY with FREQ=%v", ErrUnsupportedRule, opt.Freq)
		}
	}

	return recurrence.New(kind, opts)
}

// weeklyDaysOf returns the BYDAY weekdays of a weekly rule. The generator
// always repeats on the anchor's weekday and groups weeks from Monday, so
// BYDAY must contain the anchor's weekday, and a week start other than
// Monday is only accepted where it cannot change which weeks are picked.
func weeklyDaysOf(opt *rrule.ROption, anchor dateutil.Date) ([]dateutil.Weekday, error) {
	var weekdays []dateutil.Weekday
	for i := range opt.Byweekday {
		wd := &opt.Byweekday[i]
		if wd.N() != 0 {
			return nil, fmt.Errorf("%w: ordinal BYDAY in a weekly rule", ErrUnsupportedRule)
		}
		weekdays = append(weekdays, dateutil.Weekday(wd.Day()))
	}
	if len(weekdays) > 0 && !slices.Contains(weekdays, anchor.Weekday()) {
		return nil, fmt.Errorf("%w: BYDAY does not include %s", ErrUnsupportedRule, anchor.Weekday().Code())
	}
	if opt.Interval > 1 && len(weekdays) > 1 && opt.Wkst != rrule.MO {
		return nil, fmt.Errorf("%w: WKST=%s with INTERVAL=%d", ErrUnsupportedRule, opt.Wkst, opt.Interval)
	}
	return weekdays, nil
}

// shiftWeekdays moves weekdays by shift days. With an interval above one a
// weekday may not cross the Monday week boundary, since that would move its
// occurrences into the off weeks.
func shiftWeekdays(weekdays []dateutil.Weekday, shift, interval int) ([]dateutil.Weekday, error) {
	if shift == 0 || len(weekdays) == 0 {
		return weekdays, nil
	}
	out := make([]dateutil.Weekday, 0, len(weekdays))
	for _, wd := range weekdays {
		moved := int(wd) + shift
		if interval > 1 && (moved < 0 || moved > 6) {
			return nil, fmt.Errorf("%w: BYDAY=%s crosses the week boundary after moving %d days", ErrUnsupportedRule, wd.Code(), shift)
		}
		out = append(out, dateutil.Weekday(((moved%7)+7)%7))
	}
	return out, nil
}

// stableMonthDay reports whether moving day of month by shift lands on the
// same day number in every month, which holds away from month ends.
func stableMonthDay(day, shift int) bool {
	return day <= 28 && day+shift >= 1 && day+shift <= 28
}

// monthlyModeOf maps a single ordinal BYDAY such as 2TU or -1TH onto the
// monthly mode whose ordinal, derived from anchor, is the same.
func monthlyModeOf(byweekday []rrule.Weekday, anchor dateutil.Date) (recurrence.MonthlyMode, error) {
	if len(byweekday) != 1 {
		return 0, fmt.Errorf("%w: monthly BYDAY with %d weekdays", ErrUnsupportedRule, len(byweekday))
	}
	wd := &byweekday[0]
	if dateutil.Weekday(wd.Day()) != anchor.Weekday() {
		return 0, fmt.Errorf("%w: BYDAY=%s on a %s", ErrUnsupportedRule, wd, anchor.Weekday())
	}

	mode := recurrence.ByWeekdayInMonth
	if wd.N() < 0 {
		mode = recurrence.ByLastWeekdayInMonth
	}
	if want := recurrence.WeekdayIndex(anchor, mode); wd.N() != want {
		return 0, fmt.Errorf("%w: BYDAY=%s but %s is ordinal %d", ErrUnsupportedRule, wd, anchor, want)
	}
	return mode, nil
}

// FormatRule renders r as an RRULE value for an event starting at anchor.
// UNTIL is written as the last second of that day in anchor's location.
// Exceptions are not part of an RRULE; see FormatExceptions.
func FormatRule(r recurrence.Rule, anchor time.Time) (string, error) {
	return FormatRuleIn(r, anchor, anchor.Location())
}

// FormatRuleIn is FormatRule for an event whose DTSTART will be written in
// loc rather than in start's own zone. It is the inverse of ParseRuleIn: when
// loc puts the start on another date, weekly weekdays move with it, and
// patterns that cannot move fail with ErrUnsupportedRule.
func FormatRuleIn(r recurrence.Rule, start time.Time, loc *time.Location) (string, error) {
	if r.IsZero() {
		return "", errors.New("ics: format RRULE: empty rule")
	}
	if loc == nil {
		loc = start.Location()
	}
	day := dateutil.DateOf(start)
	written := dateutil.DateOf(start.In(loc))
	shift := written.DaysSince(day)

	opt := rrule.ROption{Interval: r.Interval()}
	switch r.Kind() {
	case recurrence.Daily:
		opt.Freq = rrule.DAILY
	case recurrence.Weekly:
		opt.Freq = rrule.WEEKLY
		if wds := r.Weekdays(); len(wds) > 0 {
			if !slices.Contains(wds, day.Weekday()) {
				wds = append(wds, day.Weekday())
			}
			moved, err := shiftWeekdays(wds, shift, r.Interval())
			if err != nil {
				return "", err
			}
			slices.Sort(moved)
			for _, wd := range moved {
				opt.Byweekday = append(opt.Byweekday, rruleWeekdays[wd])
			}
		}
	case recurrence.Monthly:
		opt.Freq = rrule.MONTHLY
		if shift != 0 && (r.MonthlyMode() != recurrence.ByMonthDay || !stableMonthDay(day.Day, shift)) {
			return "", fmt.Errorf("%w: monthly rule moves to another day in %s", ErrUnsupportedRule, loc)
		}
		if r.MonthlyMode() == recurrence.ByMonthDay {
			opt.Bymonthday = []int{written.Day}
		} else {
			n := recurrence.WeekdayIndex(day, r.MonthlyMode())
			opt.Byweekday = []rrule.Weekday{rruleWeekdays[day.Weekday()].Nth(n)}
		}
	case recurrence.Yearly:
		opt.Freq = rrule.YEARLY
		if shift != 0 && !stableMonthDay(day.Day, shift) {
			return "", fmt.Errorf("%w: yearly rule moves to another month in %s", ErrUnsupportedRule, loc)
		}
	default:
		return "", fmt.Errorf("ics: format RRULE: %w", recurrence.ErrInvalidKind)
	}

	if n, ok := r.Count().Get(); ok {
		if n == 0 {
			// COUNT=0 is indistinguishable from an absent COUNT.
			return "", fmt.Errorf("%w: COUNT=0", ErrUnsupportedRule)
		}
		opt.Count = n
	}
	if u, ok := r.Until().Get(); ok {
		opt.Until = time.Date(u.Year, u.Month, u.Day, 23, 59, 59, 0, start.Location())
	}

	return opt.RRuleString(), nil
}

// FormatExceptions renders the rule's exception dates as an EXDATE value
// list with VALUE=DATE semantics, e.g. "20050110,20050117". It returns ""
// when there are none.
func FormatExceptions(r recurrence.Rule) string {
	exceptions := r.Exceptions()
	parts := make([]string, 0, len(exceptions))
	for _, d := range exceptions {
		parts = append(parts, fmt.Sprintf("%04d%02d%02d", d.Year, int(d.Month), d.Day))
	}
	return strings.Join(parts, ",")
}
