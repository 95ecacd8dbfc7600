// Package recurrence models recurrence rules and expands them into
// occurrence dates.
//
// A Rule is an immutable value. Every edit goes through Replace, which
// returns a new, re-validated Rule. Occurrences are produced by Generate as a
// restartable lazy Sequence.
package recurrence

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/samber/mo"

	"calview/internal/dateutil"
)

// Kind selects the stepping algorithm of a Rule.
type Kind int

const (
	Daily Kind = iota + 1
	Weekly
	Monthly
	Yearly
)

func (k Kind) String() string {
	switch k {
	case Daily:
		return "DAILY"
	case Weekly:
		return "WEEKLY"
	case Monthly:
		return "MONTHLY"
	case Yearly:
		return "YEARLY"
	default:
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// MonthlyMode selects how a Monthly rule picks the day within each month.
type MonthlyMode int

const (
	// ByMonthDay repeats on the anchor's day of month.
	ByMonthDay MonthlyMode = iota
	// ByWeekdayInMonth repeats on the anchor's ordinal weekday, e.g. the 2nd Tuesday.
	ByWeekdayInMonth
	// ByLastWeekdayInMonth repeats on the anchor's ordinal weekday counted
	// from the end of the month, e.g. the last Thursday.
	ByLastWeekdayInMonth
)

func (m MonthlyMode) String() string {
	switch m {
	case ByMonthDay:
		return "by_month_day"
	case ByWeekdayInMonth:
		return "by_weekday_in_month"
	case ByLastWeekdayInMonth:
		return "by_last_weekday_in_month"
	default:
		return "MonthlyMode(" + strconv.Itoa(int(m)) + ")"
	}
}

func (m MonthlyMode) valid() bool {
	return m >= ByMonthDay && m <= ByLastWeekdayInMonth
}

var (
	ErrInvalidKind        = errors.New("recurrence: invalid rule kind")
	ErrInvalidInterval    = errors.New("recurrence: interval must be at least 1")
	ErrInvalidCount       = errors.New("recurrence: count must not be negative")
	ErrCountAndUntil      = errors.New("recurrence: count and until are mutually exclusive")
	ErrInvalidException   = errors.New("recurrence: exception is not a valid date")
	ErrInvalidUntil       = errors.New("recurrence: until is not a valid date")
	ErrInvalidWeekday     = errors.New("recurrence: weekday out of range")
	ErrInvalidMonthlyMode = errors.New("recurrence: invalid monthly mode")
)

// Options holds the editable fields of a Rule. Weekdays is only read for
// Weekly rules and MonthlyMode only for Monthly rules.
type Options struct {
	Interval    int
	Count       mo.Option[int]
	Until       mo.Option[dateutil.Date]
	Exceptions  []dateutil.Date
	Weekdays    []dateutil.Weekday
	MonthlyMode MonthlyMode
}

// Rule describes one recurrence pattern.
//
// Exceptions and weekdays are stored sorted and without duplicates, so two
// rules built from the same sets in a different order are Equal.
type Rule struct {
	kind        Kind
	interval    int
	count       mo.Option[int]
	until       mo.Option[dateutil.Date]
	exceptions  []dateutil.Date
	weekdays    []dateutil.Weekday
	monthlyMode MonthlyMode
}

// New validates opts and builds a Rule of the given kind.
func New(kind Kind, opts Options) (Rule, error) {
	if kind < Daily || kind > Yearly {
		return Rule{}, fmt.Errorf("%w: %d", ErrInvalidKind, int(kind))
	}
	if opts.Interval < 1 {
		return Rule{}, fmt.Errorf("%w: got %d", ErrInvalidInterval, opts.Interval)
	}
	if opts.Count.IsPresent() && opts.Until.IsPresent() {
		return Rule{}, ErrCountAndUntil
	}
	if n, ok := opts.Count.Get(); ok && n < 0 {
		return Rule{}, fmt.Errorf("%w: got %d", ErrInvalidCount, n)
	}
	if u, ok := opts.Until.Get(); ok && !u.IsValid() {
		return Rule{}, fmt.Errorf("%w: %s", ErrInvalidUntil, u)
	}
	for _, ex := range opts.Exceptions {
		if !ex.IsValid() {
			return Rule{}, fmt.Errorf("%w: %s", ErrInvalidException, ex)
		}
	}

	r := Rule{
		kind:       kind,
		interval:   opts.Interval,
		count:      opts.Count,
		until:      opts.Until,
		exceptions: sortedUnique(opts.Exceptions, dateutil.Date.Compare),
	}

	switch kind {
	case Weekly:
		for _, wd := range opts.Weekdays {
			if !wd.IsValid() {
				return Rule{}, fmt.Errorf("%w: %d", ErrInvalidWeekday, int(wd))
			}
		}
		r.weekdays = sortedUnique(opts.Weekdays, func(a, b dateutil.Weekday) int { return int(a) - int(b) })
	case Monthly:
		if !opts.MonthlyMode.valid() {
			return Rule{}, fmt.Errorf("%w: %d", ErrInvalidMonthlyMode, int(opts.MonthlyMode))
		}
		r.monthlyMode = opts.MonthlyMode
	}

	return r, nil
}

// NewDaily builds a Daily rule.
func NewDaily(opts Options) (Rule, error) { return New(Daily, opts) }

// NewWeekly builds a Weekly rule repeating on the given weekdays in addition
// to the anchor's own weekday.
func NewWeekly(opts Options) (Rule, error) { return New(Weekly, opts) }

// NewMonthly builds a Monthly rule in the mode given by opts.MonthlyMode.
func NewMonthly(opts Options) (Rule, error) { return New(Monthly, opts) }

// NewYearly builds a Yearly rule.
func NewYearly(opts Options) (Rule, error) { return New(Yearly, opts) }

func (r Rule) Kind() Kind                      { return r.kind }
func (r Rule) Interval() int                   { return r.interval }
func (r Rule) Count() mo.Option[int]           { return r.count }
func (r Rule) Until() mo.Option[dateutil.Date] { return r.until }
func (r Rule) MonthlyMode() MonthlyMode        { return r.monthlyMode }

// Exceptions returns a sorted copy of the exception dates.
func (r Rule) Exceptions() []dateutil.Date { return slices.Clone(r.exceptions) }

// Weekdays returns a sorted copy of the explicit weekdays of a Weekly rule.
// The anchor's weekday is not added here.
func (r Rule) Weekdays() []dateutil.Weekday { return slices.Clone(r.weekdays) }

// IsZero reports whether r is the zero Rule, which is not usable.
func (r Rule) IsZero() bool { return r.kind == 0 }

// IsException reports whether d is one of the rule's exception dates.
func (r Rule) IsException(d dateutil.Date) bool {
	_, found := slices.BinarySearchFunc(r.exceptions, d, dateutil.Date.Compare)
	return found
}

// Options returns a copy of the rule's fields, suitable for Replace or New.
func (r Rule) Options() Options {
	return Options{
		Interval:    r.interval,
		Count:       r.count,
		Until:       r.until,
		Exceptions:  r.Exceptions(),
		Weekdays:    r.Weekdays(),
		MonthlyMode: r.monthlyMode,
	}
}

// Replace returns a new rule of the same kind with the fields changed by
// edit. r itself is left untouched.
func (r Rule) Replace(edit func(*Options)) (Rule, error) {
	opts := r.Options()
	edit(&opts)
	return New(r.kind, opts)
}

// WithException returns a copy of r that also skips d.
func (r Rule) WithException(d dateutil.Date) (Rule, error) {
	return r.Replace(func(o *Options) {
		o.Exceptions = append(o.Exceptions, d)
	})
}

// Equal reports structural equality.
func (r Rule) Equal(o Rule) bool {
	return r.kind == o.kind &&
		r.interval == o.interval &&
		r.count == o.count &&
		r.until == o.until &&
		r.monthlyMode == o.monthlyMode &&
		slices.Equal(r.exceptions, o.exceptions) &&
		slices.Equal(r.weekdays, o.weekdays)
}

// Key returns a canonical string for r. Equal rules have equal keys, so the
// key can be used to index rules in maps.
func (r Rule) Key() string {
	var b strings.Builder
	b.WriteString(r.kind.String())
	b.WriteString(";I=")
	b.WriteString(strconv.Itoa(r.interval))
	if n, ok := r.count.Get(); ok {
		b.WriteString(";C=")
		b.WriteString(strconv.Itoa(n))
	}
	if u, ok := r.until.Get(); ok {
		b.WriteString(";U=")
		b.WriteString(u.String())
	}
	if r.kind == Monthly {
		b.WriteString(";M=")
		b.WriteString(r.monthlyMode.String())
	}
	if len(r.weekdays) > 0 {
		b.WriteString(";W=")
		for i, wd := range r.weekdays {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(wd.Code())
		}
	}
	if len(r.exceptions) > 0 {
		b.WriteString(";X=")
		for i, ex := range r.exceptions {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(ex.String())
		}
	}
	return b.String()
}

func (r Rule) String() string { return r.Key() }

func sortedUnique[T any](in []T, cmp func(a, b T) int) []T {
	if len(in) == 0 {
		return nil
	}
	out := slices.Clone(in)
	slices.SortFunc(out, cmp)
	return slices.CompactFunc(out, func(a, b T) bool { return cmp(a, b) == 0 })
}
