package dateutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDate_IsValid(t *testing.T) {
	tests := []struct {
		name string
		date Date
		want bool
	}{
		{"regular day", NewDate(2005, time.January, 31), true},
		{"leap day", NewDate(2004, time.February, 29), true},
		{"leap day in common year", NewDate(2005, time.February, 29), false},
		{"february 30", NewDate(2004, time.February, 30), false},
		{"day zero", NewDate(2005, time.March, 0), false},
		{"month 13", NewDate(2005, 13, 1), false},
		{"zero value", Date{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.date.IsValid())
		})
	}
}

func TestDate_Arithmetic(t *testing.T) {
	d := NewDate(2004, time.December, 30)

	assert.Equal(t, NewDate(2005, time.January, 2), d.AddDays(3))
	assert.Equal(t, NewDate(2004, time.November, 30), d.AddDays(-30))
	assert.Equal(t, 3, d.AddDays(3).DaysSince(d))
	assert.Equal(t, -3, d.DaysSince(d.AddDays(3)))

	assert.Equal(t, 1, NewDate(2005, time.March, 28).DaysSince(NewDate(2005, time.March, 27)))
}

func TestDate_Compare(t *testing.T) {
	a := NewDate(2005, time.January, 31)
	b := NewDate(2005, time.February, 1)

	assert.True(t, a.Before(b))
	assert.True(t, b.After(a))
	assert.Equal(t, 0, a.Compare(a))
	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, 1, NewDate(2006, time.January, 1).Compare(b))
}

func TestDate_ParseAndString(t *testing.T) {
	d, err := ParseDate("2005-02-24")
	require.NoError(t, err)
	assert.Equal(t, NewDate(2005, time.February, 24), d)
	assert.Equal(t, "2005-02-24", d.String())

	_, err = ParseDate("2005-02-30")
	assert.Error(t, err)

	var u Date
	require.NoError(t, u.UnmarshalText([]byte("2010-10-10")))
	assert.Equal(t, NewDate(2010, time.October, 10), u)
}

func TestDateOf_KeepsLocation(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*60*60)
	ts := time.Date(2005, time.January, 1, 2, 0, 0, 0, loc)

	assert.Equal(t, NewDate(2005, time.January, 1), DateOf(ts))
	assert.Equal(t, ts, NewDate(2005, time.January, 1).At(ts))
}

func TestWeekday(t *testing.T) {
	assert.Equal(t, Monday, WeekdayOf(time.Monday))
	assert.Equal(t, Sunday, WeekdayOf(time.Sunday))
	assert.Equal(t, time.Sunday, Sunday.Std())
	assert.Equal(t, "TH", Thursday.Code())
	assert.False(t, Weekday(7).IsValid())
	assert.Equal(t, Monday, NewDate(2005, time.January, 3).Weekday())
}

func TestWeekDistance(t *testing.T) {
	anchor := NewDate(2005, time.January, 3) // Monday

	tests := []struct {
		name string
		b    Date
		want int
	}{
		{"same day", anchor, 0},
		{"same week sunday", NewDate(2005, time.January, 9), 0},
		{"next monday", NewDate(2005, time.January, 10), 1},
		{"two weeks later", NewDate(2005, time.January, 17), 2},
		{"previous sunday", NewDate(2005, time.January, 2), -1},
		{"across year", NewDate(2004, time.December, 27), -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WeekDistance(anchor, tt.b))
		})
	}
}

func TestNthWeekdayOfMonth(t *testing.T) {
	tests := []struct {
		name    string
		year    int
		month   time.Month
		n       int
		weekday Weekday
		want    Date
	}{
		{"last thursday of february 2005", 2005, time.February, -1, Thursday, NewDate(2005, time.February, 24)},
		{"second tuesday of january 2005", 2005, time.January, 2, Tuesday, NewDate(2005, time.January, 11)},
		{"first saturday on the 1st", 2005, time.January, 1, Saturday, NewDate(2005, time.January, 1)},
		{"last monday on the 28th", 2005, time.February, -1, Monday, NewDate(2005, time.February, 28)},
		{"second to last friday", 2005, time.March, -2, Friday, NewDate(2005, time.March, 18)},
		{"last day of leap february", 2004, time.February, -1, Sunday, NewDate(2004, time.February, 29)},
		{"fifth monday overflows", 2005, time.February, 5, Monday, NewDate(2005, time.March, 7)},
		{"fifth monday exists", 2005, time.January, 5, Monday, NewDate(2005, time.January, 31)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NthWeekdayOfMonth(tt.year, tt.month, tt.n, tt.weekday))
		})
	}
}
