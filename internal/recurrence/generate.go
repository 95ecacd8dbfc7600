package recurrence

import (
	"iter"
	"time"

	"github.com/samber/mo"

	"calview/internal/dateutil"
)

// gregorianCycleMonths is the length of the Gregorian calendar cycle. Any
// month/day pattern that does not occur within one cycle never occurs.
const gregorianCycleMonths = 400 * 12

// Sequence is the lazy, possibly infinite list of occurrence dates of a rule
// anchored at a start date. A Sequence holds no iteration state: every call
// to Iterator or All starts over from the anchor and yields the same dates.
type Sequence struct {
	rule    Rule
	anchor  dateutil.Date
	hardEnd mo.Option[dateutil.Date]
}

// Generate returns the occurrences of rule starting at anchor, in ascending
// order and without duplicates. hardEnd, when present, is an inclusive upper
// bound applied on top of the rule's own count and until.
func Generate(rule Rule, anchor dateutil.Date, hardEnd mo.Option[dateutil.Date]) Sequence {
	return Sequence{rule: rule, anchor: anchor, hardEnd: hardEnd}
}

// Bounded reports whether the sequence is guaranteed to end.
func (s Sequence) Bounded() bool {
	return s.hardEnd.IsPresent() || s.rule.count.IsPresent() || s.rule.until.IsPresent()
}

// Iterator returns a fresh pull iterator positioned before the first date.
func (s Sequence) Iterator() *Iterator {
	it := &Iterator{
		rule:    s.rule,
		anchor:  s.anchor,
		hardEnd: s.hardEnd,
		cur:     s.anchor,
		year:    s.anchor.Year,
		month:   s.anchor.Month,
	}
	if s.rule.IsZero() || !s.anchor.IsValid() {
		it.done = true
		return it
	}

	switch s.rule.kind {
	case Weekly:
		it.weekdays[s.anchor.Weekday()] = true
		for _, wd := range s.rule.weekdays {
			it.weekdays[wd] = true
		}
	case Monthly:
		it.weekday = s.anchor.Weekday()
		it.index = WeekdayIndex(s.anchor, s.rule.monthlyMode)
	}
	return it
}

// All returns the sequence as a range-over-func iterator. Breaking out of the
// loop stops generation.
func (s Sequence) All() iter.Seq[dateutil.Date] {
	return func(yield func(dateutil.Date) bool) {
		it := s.Iterator()
		for {
			d, ok := it.Next()
			if !ok || !yield(d) {
				return
			}
		}
	}
}

// Take returns at most n dates from the start of the sequence.
func (s Sequence) Take(n int) []dateutil.Date {
	out := make([]dateutil.Date, 0, n)
	if n <= 0 {
		return out
	}
	for d := range s.All() {
		out = append(out, d)
		if len(out) == n {
			break
		}
	}
	return out
}

// Collect returns every date of the sequence. It only terminates for
// Bounded sequences.
func (s Sequence) Collect() []dateutil.Date {
	var out []dateutil.Date
	for d := range s.All() {
		out = append(out, d)
	}
	return out
}

// WeekdayIndex returns the ordinal of anchor's weekday within its month as
// used by the weekday monthly modes: 1..5 counting from the start for
// ByWeekdayInMonth, -1..-5 counting from the end for ByLastWeekdayInMonth,
// and 0 for ByMonthDay.
func WeekdayIndex(anchor dateutil.Date, mode MonthlyMode) int {
	switch mode {
	case ByWeekdayInMonth:
		return (anchor.Day-1)/7 + 1
	case ByLastWeekdayInMonth:
		return -((dateutil.DaysIn(anchor.Year, anchor.Month)-anchor.Day)/7 + 1)
	default:
		return 0
	}
}

// Iterator produces the dates of one Sequence on demand. It is not safe for
// concurrent use; create one per consumer with Sequence.Iterator.
type Iterator struct {
	rule    Rule
	anchor  dateutil.Date
	hardEnd mo.Option[dateutil.Date]

	cur     dateutil.Date // next candidate
	emitted int
	done    bool

	weekdays [7]bool

	year    int
	month   time.Month
	index   int
	weekday dateutil.Weekday
}

// Next returns the next occurrence, or false once the sequence is exhausted.
func (it *Iterator) Next() (dateutil.Date, bool) {
	for !it.done {
		cur := it.cur
		if it.stopAt(cur) {
			it.done = true
			break
		}
		it.advance()

		if it.rule.kind == Weekly && !it.weekdays[cur.Weekday()] {
			continue
		}
		if it.rule.IsException(cur) {
			continue
		}
		it.emitted++
		return cur, true
	}
	return dateutil.Date{}, false
}

// Emitted returns how many dates Next has returned so far.
func (it *Iterator) Emitted() int {
	return it.emitted
}

func (it *Iterator) stopAt(cur dateutil.Date) bool {
	if end, ok := it.hardEnd.Get(); ok && cur.After(end) {
		return true
	}
	if n, ok := it.rule.count.Get(); ok && it.emitted >= n {
		return true
	}
	if u, ok := it.rule.until.Get(); ok && cur.After(u) {
		return true
	}
	return false
}

// advance moves it.cur to the next candidate. When no further candidate
// exists the iterator is marked done after the current one is handled.
func (it *Iterator) advance() {
	switch it.rule.kind {
	case Daily:
		it.cur = it.cur.AddDays(it.rule.interval)
	case Weekly:
		it.advanceWeekly()
	case Monthly:
		it.advanceMonthly()
	case Yearly:
		it.advanceYearly()
	}
}

func (it *Iterator) advanceWeekly() {
	next := it.cur.AddDays(1)
	if next.Weekday() == dateutil.Monday && it.rule.interval > 1 {
		// Weeks off the interval hold no occurrences; jump over them.
		if r := dateutil.WeekDistance(it.anchor, next) % it.rule.interval; r != 0 {
			next = next.AddDays(7 * (it.rule.interval - r))
		}
	}
	it.cur = next
}

func (it *Iterator) advanceMonthly() {
	for range gregorianCycleMonths {
		it.stepMonths(it.rule.interval)

		var candidate dateutil.Date
		switch it.rule.monthlyMode {
		case ByMonthDay:
			candidate = dateutil.NewDate(it.year, it.month, it.anchor.Day)
			if !candidate.IsValid() {
				continue
			}
		default:
			candidate = dateutil.NthWeekdayOfMonth(it.year, it.month, it.index, it.weekday)
			if candidate.Year != it.year || candidate.Month != it.month {
				continue
			}
		}
		it.cur = candidate
		return
	}
	it.exhaust()
}

func (it *Iterator) advanceYearly() {
	for range gregorianCycleMonths / 12 {
		it.year += it.rule.interval
		candidate := dateutil.NewDate(it.year, it.anchor.Month, it.anchor.Day)
		if candidate.IsValid() {
			it.cur = candidate
			return
		}
	}
	it.exhaust()
}

// stepMonths adds n months to the tracked year/month pair.
func (it *Iterator) stepMonths(n int) {
	total := it.year*12 + int(it.month) - 1 + n
	it.year = total / 12
	it.month = time.Month(total%12 + 1)
}

// exhaust makes the next stop check fail by moving past every bound. Only
// reachable for patterns that never recur, such as a 5th weekday that never
// comes back under the chosen interval.
func (it *Iterator) exhaust() {
	it.hardEnd = mo.Some(it.cur)
	it.cur = it.cur.AddDays(1)
}
