// Package sources keeps the parsed calendars of all configured ICS sources
// and refreshes them in the background.
package sources

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"calview/internal/config"
	"calview/internal/days"
	"calview/internal/ics"
	appLog "calview/internal/log"
	"calview/internal/model"
)

// Snapshot is an immutable set of calendars. Readers may hold on to a
// snapshot for as long as they like; refreshes publish a new one.
type Snapshot struct {
	Calendars []*model.Calendar
	LoadedAt  time.Time
}

// Sources returns the calendars as day engine sources.
func (s *Snapshot) Sources() []days.Source {
	return days.Calendars(s.Calendars)
}

// Calendar returns the calendar with the given ID, or nil.
func (s *Snapshot) Calendar(id string) *model.Calendar {
	for _, c := range s.Calendars {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// Loader fetches, parses and builds calendars for a fixed list of sources.
type Loader struct {
	fetcher *ics.Fetcher
	sources []ics.Source
	loc     *time.Location

	refreshMu sync.Mutex // one refresh at a time

	mu       sync.RWMutex
	snapshot *Snapshot
}

// NewLoader creates a Loader. Calendars are expressed in loc.
func NewLoader(fetcher *ics.Fetcher, srcs []ics.Source, loc *time.Location) *Loader {
	if loc == nil {
		loc = time.Local
	}
	return &Loader{
		fetcher:  fetcher,
		sources:  srcs,
		loc:      loc,
		snapshot: &Snapshot{},
	}
}

// FromConfig builds the source list from the config's ICS entries. Entries
// without URL and path are skipped; IDs default to the name, then the
// URL or path.
func FromConfig(cfg *config.Config) []ics.Source {
	out := make([]ics.Source, 0, len(cfg.ICS))
	for _, c := range cfg.ICS {
		if c.URL == "" && c.Path == "" {
			continue
		}
		id := c.ID
		if id == "" {
			switch {
			case c.Name != "":
				id = c.Name
			case c.URL != "":
				id = c.URL
			default:
				id = c.Path
			}
		}
		out = append(out, ics.Source{ID: id, Name: c.Name, URL: c.URL, Path: c.Path})
	}
	return out
}

// Snapshot returns the current snapshot. It is never nil.
func (l *Loader) Snapshot() *Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshot
}

// Refresh reloads every source and publishes a new snapshot. A source that
// fails to fetch or parse keeps its calendar from the previous snapshot.
// The returned error joins all per-source failures.
func (l *Loader) Refresh(ctx context.Context) (*Snapshot, error) {
	l.refreshMu.Lock()
	defer l.refreshMu.Unlock()

	started := time.Now()
	prev := l.Snapshot()

	results, fetchErrs := l.fetcher.FetchAll(ctx, l.sources)
	bodies := make(map[string]ics.FetchResult, len(results))
	for _, res := range results {
		bodies[res.Source.ID] = res
	}

	errs := fetchErrs
	next := &Snapshot{LoadedAt: time.Now()}
	for _, src := range l.sources {
		res, ok := bodies[src.ID]
		if !ok {
			next.keep(prev, src.ID)
			continue
		}
		events, err := ics.ParseICS(src, res.Body)
		if err != nil {
			errs = append(errs, fmt.Errorf("sources: parse %s: %w", src.ID, err))
			next.keep(prev, src.ID)
			continue
		}
		next.Calendars = append(next.Calendars, ics.BuildCalendar(src, events, l.loc))
	}

	l.mu.Lock()
	l.snapshot = next
	l.mu.Unlock()

	err := errors.Join(errs...)
	if err != nil {
		appLog.Error("sources refresh had failures", err, "failed", len(errs), "sources", len(l.sources))
	}
	appLog.Info("sources refreshed", "calendars", len(next.Calendars), "took", time.Since(started).String())
	return next, err
}

func (s *Snapshot) keep(prev *Snapshot, id string) {
	if c := prev.Calendar(id); c != nil {
		appLog.Warn("sources keeping stale calendar", "id", id, "loaded_at", prev.LoadedAt)
		s.Calendars = append(s.Calendars, c)
	}
}

// Schedule runs l.Refresh on the given cron spec (standard 5-field syntax)
// until ctx is cancelled. The returned cron is already started.
func Schedule(ctx context.Context, l *Loader, spec string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if _, err := l.Refresh(ctx); err != nil {
			appLog.Debug("scheduled refresh finished with errors", "spec", spec)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("sources: schedule %q: %w", spec, err)
	}
	c.Start()
	appLog.Info("sources refresh scheduled", "spec", spec)

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return c, nil
}
