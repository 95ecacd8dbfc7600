package days

import (
	"errors"
	"slices"

	"calview/internal/dateutil"
	appLog "calview/internal/log"
	"calview/internal/model"
)

// ErrCacheMaterialized is returned by Extend once the window has been computed.
var ErrCacheMaterialized = errors.New("days: cache window already materialized")

// ExpandFunc computes the days of [first, last).
type ExpandFunc func(first, last dateutil.Date) ([]model.CalendarDay, error)

// SourcesFunc returns an ExpandFunc that runs Get over sources.
func SourcesFunc(sources []Source) ExpandFunc {
	return func(first, last dateutil.Date) ([]model.CalendarDay, error) {
		return Get(sources, first, last)
	}
}

// Cache serves day queries inside a working window [first, last) from a
// single expansion of the whole window.
//
// The window may only be widened with Extend before the first call to Days.
// Queries outside the window are passed to the expansion function directly.
// A Cache is not safe for concurrent use; give each request its own.
type Cache struct {
	expand      ExpandFunc
	first, last dateutil.Date

	days         []model.CalendarDay
	materialized bool
}

// NewCache returns a cache over [first, last).
func NewCache(expand ExpandFunc, first, last dateutil.Date) (*Cache, error) {
	if err := checkRange(first, last); err != nil {
		return nil, err
	}
	return &Cache{expand: expand, first: first, last: last}, nil
}

// Window returns the cached bounds.
func (c *Cache) Window() (first, last dateutil.Date) {
	return c.first, c.last
}

// Extend widens the window to also cover [first, last).
func (c *Cache) Extend(first, last dateutil.Date) error {
	if c.materialized {
		return ErrCacheMaterialized
	}
	if err := checkRange(first, last); err != nil {
		return err
	}
	if first.Before(c.first) {
		c.first = first
	}
	if last.After(c.last) {
		c.last = last
	}
	return nil
}

// Days returns the days of [first, last). The result is the caller's own
// copy; editing it does not affect later queries.
func (c *Cache) Days(first, last dateutil.Date) ([]model.CalendarDay, error) {
	if err := checkRange(first, last); err != nil {
		return nil, err
	}

	if first.Before(c.first) || last.After(c.last) {
		appLog.Debug("days cache bypass",
			"first", first, "last", last,
			"window_first", c.first, "window_last", c.last,
		)
		return c.expand(first, last)
	}

	if !c.materialized {
		days, err := c.expand(c.first, c.last)
		if err != nil {
			return nil, err
		}
		c.days = days
		c.materialized = true
		appLog.Debug("days cache materialized", "first", c.first, "last", c.last, "days", len(days))
	}

	lo := first.DaysSince(c.first)
	hi := last.DaysSince(c.first)
	out := make([]model.CalendarDay, 0, hi-lo)
	for _, day := range c.days[lo:hi] {
		out = append(out, model.CalendarDay{Date: day.Date, Events: slices.Clone(day.Events)})
	}
	return out, nil
}
