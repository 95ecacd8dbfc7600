package recurrence

import (
	"testing"
	"time"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teambition/rrule-go"

	"calview/internal/dateutil"
)

func mustRule(t *testing.T, kind Kind, opts Options) Rule {
	t.Helper()
	r, err := New(kind, opts)
	require.NoError(t, err)
	return r
}

func noEnd() mo.Option[dateutil.Date] { return mo.None[dateutil.Date]() }

func TestGenerate_Daily(t *testing.T) {
	r := mustRule(t, Daily, Options{Interval: 3, Count: mo.Some(4)})
	got := Generate(r, date(2005, time.January, 30), noEnd()).Collect()

	assert.Equal(t, []dateutil.Date{
		date(2005, time.January, 30),
		date(2005, time.February, 2),
		date(2005, time.February, 5),
		date(2005, time.February, 8),
	}, got)
}

func TestGenerate_WeeklyEveryOtherWeek(t *testing.T) {
	r := mustRule(t, Weekly, Options{Interval: 2})
	got := Generate(r, date(2005, time.January, 3), noEnd()).Take(3)

	assert.Equal(t, []dateutil.Date{
		date(2005, time.January, 3),
		date(2005, time.January, 17),
		date(2005, time.January, 31),
	}, got)
}

func TestGenerate_WeeklyWithWeekdays(t *testing.T) {
	// Anchor on a Wednesday; Monday and Friday are added explicitly.
	r := mustRule(t, Weekly, Options{
		Interval: 2,
		Weekdays: []dateutil.Weekday{dateutil.Monday, dateutil.Friday},
		Count:    mo.Some(5),
	})
	got := Generate(r, date(2005, time.January, 5), noEnd()).Collect()

	// The Monday of the anchor week precedes the anchor and is not produced.
	assert.Equal(t, []dateutil.Date{
		date(2005, time.January, 5),
		date(2005, time.January, 7),
		date(2005, time.January, 17),
		date(2005, time.January, 19),
		date(2005, time.January, 21),
	}, got)
}

func TestGenerate_MonthlyByMonthDaySkipsShortMonths(t *testing.T) {
	r := mustRule(t, Monthly, Options{Interval: 1, Count: mo.Some(5), MonthlyMode: ByMonthDay})
	got := Generate(r, date(2005, time.January, 31), noEnd()).Collect()

	assert.Equal(t, []dateutil.Date{
		date(2005, time.January, 31),
		date(2005, time.March, 31),
		date(2005, time.May, 31),
		date(2005, time.July, 31),
		date(2005, time.August, 31),
	}, got)
}

func TestGenerate_MonthlyByMonthDayAcrossYear(t *testing.T) {
	r := mustRule(t, Monthly, Options{Interval: 5, Count: mo.Some(3), MonthlyMode: ByMonthDay})
	got := Generate(r, date(2005, time.October, 15), noEnd()).Collect()

	assert.Equal(t, []dateutil.Date{
		date(2005, time.October, 15),
		date(2006, time.March, 15),
		date(2006, time.August, 15),
	}, got)
}

func TestGenerate_MonthlySecondTuesday(t *testing.T) {
	// 2005-01-11 is the 2nd Tuesday of January.
	r := mustRule(t, Monthly, Options{Interval: 1, Count: mo.Some(6), MonthlyMode: ByWeekdayInMonth})
	got := Generate(r, date(2005, time.January, 11), noEnd()).Collect()

	require.Len(t, got, 6)
	for i, d := range got {
		assert.Equal(t, dateutil.Tuesday, d.Weekday(), d.String())
		assert.Equal(t, 2, (d.Day-1)/7+1, d.String())
		assert.Equal(t, time.Month(i+1), d.Month, "no month may be skipped")
	}
}

func TestGenerate_MonthlyFourteenthIsSecondWeekday(t *testing.T) {
	// 2005-06-14 is a Tuesday and the 2nd Tuesday of June.
	r := mustRule(t, Monthly, Options{Interval: 1, Count: mo.Some(2), MonthlyMode: ByWeekdayInMonth})
	got := Generate(r, date(2005, time.June, 14), noEnd()).Collect()

	assert.Equal(t, []dateutil.Date{date(2005, time.June, 14), date(2005, time.July, 12)}, got)
}

func TestGenerate_MonthlyFifthWeekdaySkipsMonths(t *testing.T) {
	// 2005-01-31 is the 5th Monday of January.
	r := mustRule(t, Monthly, Options{Interval: 1, Count: mo.Some(3), MonthlyMode: ByWeekdayInMonth})
	got := Generate(r, date(2005, time.January, 31), noEnd()).Collect()

	assert.Equal(t, []dateutil.Date{
		date(2005, time.January, 31),
		date(2005, time.May, 30),
		date(2005, time.August, 29),
	}, got)
}

func TestGenerate_MonthlyLastWeekday(t *testing.T) {
	tests := []struct {
		name   string
		anchor dateutil.Date
		want   []dateutil.Date
	}{
		{
			name:   "last thursday",
			anchor: date(2005, time.February, 24),
			want: []dateutil.Date{
				date(2005, time.February, 24),
				date(2005, time.March, 31),
				date(2005, time.April, 28),
			},
		},
		{
			name:   "anchor on the last day of the month",
			anchor: date(2005, time.February, 28), // Monday
			want: []dateutil.Date{
				date(2005, time.February, 28),
				date(2005, time.March, 28),
				date(2005, time.April, 25),
			},
		},
		{
			name:   "anchor exactly seven days before month end",
			anchor: date(2005, time.January, 24), // Monday, Jan 31 is the last Monday
			want: []dateutil.Date{
				date(2005, time.January, 24),
				date(2005, time.February, 21),
				date(2005, time.March, 21),
			},
		},
		{
			name:   "anchor six days before month end",
			anchor: date(2005, time.January, 25), // Tuesday, last Tuesday of January
			want: []dateutil.Date{
				date(2005, time.January, 25),
				date(2005, time.February, 22),
				date(2005, time.March, 29),
			},
		},
		{
			name:   "leap february",
			anchor: date(2008, time.February, 29), // Friday
			want: []dateutil.Date{
				date(2008, time.February, 29),
				date(2008, time.March, 28),
				date(2008, time.April, 25),
			},
		},
		{
			name:   "second to last in a thirty day month",
			anchor: date(2005, time.April, 23), // Saturday, Apr 30 is the last one
			want: []dateutil.Date{
				date(2005, time.April, 23),
				date(2005, time.May, 21),
				date(2005, time.June, 18),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := mustRule(t, Monthly, Options{Interval: 1, Count: mo.Some(3), MonthlyMode: ByLastWeekdayInMonth})
			assert.Equal(t, tt.want, Generate(r, tt.anchor, noEnd()).Collect())
		})
	}
}

func TestGenerate_YearlyLeapDay(t *testing.T) {
	r := mustRule(t, Yearly, Options{Interval: 1, Count: mo.Some(3)})
	got := Generate(r, date(2004, time.February, 29), noEnd()).Collect()

	assert.Equal(t, []dateutil.Date{
		date(2004, time.February, 29),
		date(2008, time.February, 29),
		date(2012, time.February, 29),
	}, got)
}

func TestGenerate_YearlySkipsCenturyYear(t *testing.T) {
	r := mustRule(t, Yearly, Options{Interval: 4, Count: mo.Some(2)})
	got := Generate(r, date(2096, time.February, 29), noEnd()).Collect()

	assert.Equal(t, []dateutil.Date{date(2096, time.February, 29), date(2104, time.February, 29)}, got)
}

func TestGenerate_CountIgnoresExceptions(t *testing.T) {
	ex := []dateutil.Date{date(2005, time.January, 2), date(2005, time.January, 4)}
	r := mustRule(t, Daily, Options{Interval: 1, Count: mo.Some(5), Exceptions: ex})
	got := Generate(r, date(2005, time.January, 1), noEnd()).Collect()

	assert.Len(t, got, 5)
	for _, d := range got {
		assert.NotContains(t, ex, d)
	}
	assert.Equal(t, date(2005, time.January, 7), got[len(got)-1])
}

func TestGenerate_CountWithWeeklyFilterAndExceptions(t *testing.T) {
	r := mustRule(t, Weekly, Options{
		Interval:   1,
		Weekdays:   []dateutil.Weekday{dateutil.Tuesday, dateutil.Thursday},
		Count:      mo.Some(4),
		Exceptions: []dateutil.Date{date(2005, time.January, 6)},
	})
	got := Generate(r, date(2005, time.January, 4), noEnd()).Collect()

	assert.Equal(t, []dateutil.Date{
		date(2005, time.January, 4),
		date(2005, time.January, 11),
		date(2005, time.January, 13),
		date(2005, time.January, 18),
	}, got)
}

func TestGenerate_UntilIsInclusive(t *testing.T) {
	until := date(2005, time.January, 17)
	r := mustRule(t, Weekly, Options{Interval: 1, Until: mo.Some(until)})
	got := Generate(r, date(2005, time.January, 3), noEnd()).Collect()

	require.NotEmpty(t, got)
	for _, d := range got {
		assert.False(t, d.After(until))
	}
	last := got[len(got)-1]
	assert.Equal(t, until, last)
	assert.True(t, last.AddDays(7).After(until))
}

func TestGenerate_HardEnd(t *testing.T) {
	r := mustRule(t, Daily, Options{Interval: 1})
	seq := Generate(r, date(2005, time.January, 1), mo.Some(date(2005, time.January, 3)))

	assert.True(t, seq.Bounded())
	assert.Equal(t, []dateutil.Date{
		date(2005, time.January, 1),
		date(2005, time.January, 2),
		date(2005, time.January, 3),
	}, seq.Collect())
}

func TestGenerate_HardEndBeforeAnchor(t *testing.T) {
	r := mustRule(t, Daily, Options{Interval: 1})
	got := Generate(r, date(2005, time.January, 10), mo.Some(date(2005, time.January, 1))).Collect()
	assert.Empty(t, got)
}

func TestGenerate_ZeroCount(t *testing.T) {
	r := mustRule(t, Yearly, Options{Interval: 1, Count: mo.Some(0)})
	assert.Empty(t, Generate(r, date(2005, time.January, 1), noEnd()).Collect())
}

func TestGenerate_AnchorCanBeException(t *testing.T) {
	r := mustRule(t, Daily, Options{
		Interval:   1,
		Count:      mo.Some(2),
		Exceptions: []dateutil.Date{date(2005, time.January, 1)},
	})
	got := Generate(r, date(2005, time.January, 1), noEnd()).Collect()
	assert.Equal(t, []dateutil.Date{date(2005, time.January, 2), date(2005, time.January, 3)}, got)
}

func TestGenerate_IsRestartable(t *testing.T) {
	r := mustRule(t, Weekly, Options{Interval: 1, Weekdays: []dateutil.Weekday{dateutil.Saturday}})
	seq := Generate(r, date(2005, time.January, 3), noEnd())

	first := seq.Take(10)
	second := seq.Take(10)
	assert.Equal(t, first, second)

	it := seq.Iterator()
	d, ok := it.Next()
	require.True(t, ok)
	assert.Equal(t, first[0], d)
	assert.Equal(t, 1, it.Emitted())

	// A new iterator is not affected by the one above.
	again, ok := seq.Iterator().Next()
	require.True(t, ok)
	assert.Equal(t, first[0], again)
}

func TestGenerate_StrictlyAscending(t *testing.T) {
	rules := []Rule{
		mustRule(t, Daily, Options{Interval: 2, Count: mo.Some(50)}),
		mustRule(t, Weekly, Options{Interval: 3, Weekdays: []dateutil.Weekday{0, 2, 4, 6}, Count: mo.Some(50)}),
		mustRule(t, Monthly, Options{Interval: 1, Count: mo.Some(50)}),
		mustRule(t, Monthly, Options{Interval: 2, Count: mo.Some(50), MonthlyMode: ByLastWeekdayInMonth}),
		mustRule(t, Yearly, Options{Interval: 1, Count: mo.Some(50)}),
	}
	for _, r := range rules {
		got := Generate(r, date(2005, time.January, 29), noEnd()).Collect()
		require.Len(t, got, 50, r.Key())
		for i := 1; i < len(got); i++ {
			assert.True(t, got[i].After(got[i-1]), "%s: %s then %s", r.Key(), got[i-1], got[i])
		}
	}
}

func TestGenerate_ZeroRule(t *testing.T) {
	assert.Empty(t, Generate(Rule{}, date(2005, time.January, 1), noEnd()).Take(3))
}

// TestGenerate_MatchesRRule cross-checks the generator against rrule-go for
// patterns both implement the same way.
func TestGenerate_MatchesRRule(t *testing.T) {
	const n = 40

	tests := []struct {
		name   string
		kind   Kind
		opts   Options
		anchor dateutil.Date
		ropt   rrule.ROption
	}{
		{
			name:   "daily interval 3",
			kind:   Daily,
			opts:   Options{Interval: 3},
			anchor: date(2005, time.January, 30),
			ropt:   rrule.ROption{Freq: rrule.DAILY, Interval: 3},
		},
		{
			name:   "weekly mo we fr every 2 weeks",
			kind:   Weekly,
			opts:   Options{Interval: 2, Weekdays: []dateutil.Weekday{dateutil.Monday, dateutil.Friday}},
			anchor: date(2005, time.January, 5),
			ropt: rrule.ROption{
				Freq:      rrule.WEEKLY,
				Interval:  2,
				Wkst:      rrule.MO,
				Byweekday: []rrule.Weekday{rrule.MO, rrule.WE, rrule.FR},
			},
		},
		{
			name:   "monthly on the 31st",
			kind:   Monthly,
			opts:   Options{Interval: 1, MonthlyMode: ByMonthDay},
			anchor: date(2005, time.January, 31),
			ropt:   rrule.ROption{Freq: rrule.MONTHLY, Interval: 1, Bymonthday: []int{31}},
		},
		{
			name:   "every 2 months on the 3rd friday",
			kind:   Monthly,
			opts:   Options{Interval: 2, MonthlyMode: ByWeekdayInMonth},
			anchor: date(2005, time.January, 21),
			ropt:   rrule.ROption{Freq: rrule.MONTHLY, Interval: 2, Byweekday: []rrule.Weekday{rrule.FR.Nth(3)}},
		},
		{
			name:   "last thursday",
			kind:   Monthly,
			opts:   Options{Interval: 1, MonthlyMode: ByLastWeekdayInMonth},
			anchor: date(2005, time.February, 24),
			ropt:   rrule.ROption{Freq: rrule.MONTHLY, Interval: 1, Byweekday: []rrule.Weekday{rrule.TH.Nth(-1)}},
		},
		{
			name:   "yearly leap day",
			kind:   Yearly,
			opts:   Options{Interval: 1},
			anchor: date(2004, time.February, 29),
			ropt:   rrule.ROption{Freq: rrule.YEARLY, Interval: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.ropt.Dtstart = tt.anchor.In(time.UTC)
			tt.ropt.Count = n
			rr, err := rrule.NewRRule(tt.ropt)
			require.NoError(t, err)

			want := make([]dateutil.Date, 0, n)
			for _, ts := range rr.All() {
				want = append(want, dateutil.DateOf(ts))
			}

			tt.opts.Count = mo.Some(n)
			got := Generate(mustRule(t, tt.kind, tt.opts), tt.anchor, noEnd()).Collect()
			assert.Equal(t, want, got)
		})
	}
}
