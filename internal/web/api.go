package web

import (
	"net/http"
	"time"

	"github.com/samber/mo"

	"calview/internal/dateutil"
	"calview/internal/days"
	"calview/internal/ics"
	appLog "calview/internal/log"
	"calview/internal/model"
)

// maxRangeDays caps the span of a single day or occurrence query.
const maxRangeDays = 732

// eventDTO is a JSON-friendly view of one occurrence.
type eventDTO struct {
	CalendarID  string    `json:"calendar_id"`
	ID          string    `json:"id"`
	InstanceKey string    `json:"instance_key"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	AllDay      bool      `json:"all_day"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Recurring   bool      `json:"recurring"`
	Rule        string    `json:"rule,omitempty"`
}

type dayDTO struct {
	Date    dateutil.Date `json:"date"`
	InMonth *bool         `json:"in_month,omitempty"`
	Events  []eventDTO    `json:"events"`
}

type daysResponse struct {
	Start    dateutil.Date `json:"start"`
	End      dateutil.Date `json:"end"`
	Timezone string        `json:"timezone"`
	LoadedAt time.Time     `json:"loaded_at"`
	Days     []dayDTO      `json:"days"`
}

type weekDTO struct {
	Start dateutil.Date `json:"start"`
	Days  []dayDTO      `json:"days"`
}

type monthResponse struct {
	Year      int       `json:"year"`
	Month     int       `json:"month"`
	WeekStart string    `json:"week_start"`
	Timezone  string    `json:"timezone"`
	Weeks     []weekDTO `json:"weeks"`
}

type occurrencesResponse struct {
	CalendarID string          `json:"calendar_id"`
	EventID    string          `json:"event_id"`
	Title      string          `json:"title"`
	Rule       string          `json:"rule,omitempty"`
	Exceptions string          `json:"exceptions,omitempty"`
	Start      dateutil.Date   `json:"start"`
	End        dateutil.Date   `json:"end"`
	Dates      []dateutil.Date `json:"dates"`
}

type refreshResponse struct {
	Calendars int       `json:"calendars"`
	LoadedAt  time.Time `json:"loaded_at"`
	Error     string    `json:"error,omitempty"`
}

func toEventDTO(x model.ExpandedEvent) eventDTO {
	dto := eventDTO{
		CalendarID:  x.CalendarID(),
		ID:          x.ID(),
		InstanceKey: x.InstanceKey(),
		Title:       x.Title(),
		Description: x.Description(),
		Location:    x.Location(),
		AllDay:      x.AllDay(),
		Start:       x.Start,
		End:         x.End(),
		Recurring:   x.Event.IsRecurring(),
	}
	if dto.Recurring {
		if rule, err := ics.FormatRule(*x.Rule(), x.Event.Start); err == nil {
			dto.Rule = rule
		}
	}
	return dto
}

func toDayDTOs(in []model.CalendarDay) []dayDTO {
	out := make([]dayDTO, 0, len(in))
	for _, day := range in {
		dto := dayDTO{Date: day.Date, Events: make([]eventDTO, 0, len(day.Events))}
		for _, x := range day.Events {
			dto.Events = append(dto.Events, toEventDTO(x))
		}
		out = append(out, dto)
	}
	return out
}

// handleDays returns day buckets for [start, end).
//
// GET /api/days?start=2005-01-03&end=2005-01-10
//   - start: 첫 날 (기본: 오늘 - backfill)
//   - end:   마지막 날 다음 날, 미포함 (기본: 오늘 + horizon)
func (s *Server) handleDays(w http.ResponseWriter, r *http.Request) {
	first, last, err := s.parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap := s.store.Snapshot()
	got, err := days.Get(snap.Sources(), first, last)
	if err != nil {
		appLog.Error("api days failed", err, "start", first.String(), "end", last.String())
		writeError(w, http.StatusInternalServerError, "failed to compute days")
		return
	}

	writeJSON(w, http.StatusOK, daysResponse{
		Start:    first,
		End:      last,
		Timezone: s.loc.String(),
		LoadedAt: snap.LoadedAt,
		Days:     toDayDTOs(got),
	})
}

// handleMonth returns a month grid of whole weeks starting on the
// configured week start day.
//
// GET /api/month?year=2005&month=1 (기본: 이번 달)
func (s *Server) handleMonth(w http.ResponseWriter, r *http.Request) {
	today := s.today()
	q := r.URL.Query()
	year := parseIntDefault(q.Get("year"), today.Year)
	month := parseIntDefault(q.Get("month"), int(today.Month))
	if year < 1 || year > 9999 || month < 1 || month > 12 {
		writeError(w, http.StatusBadRequest, "invalid year or month")
		return
	}

	gridStart, gridEnd := monthGrid(year, time.Month(month), s.cfg.FirstWeekday())

	snap := s.store.Snapshot()
	cache, err := days.NewCache(days.SourcesFunc(snap.Sources()), gridStart, gridEnd)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to build month")
		return
	}

	resp := monthResponse{
		Year:      year,
		Month:     month,
		WeekStart: s.cfg.WeekStart,
		Timezone:  s.loc.String(),
	}
	for ws := gridStart; ws.Before(gridEnd); ws = ws.AddDays(7) {
		week, err := cache.Days(ws, ws.AddDays(7))
		if err != nil {
			appLog.Error("api month failed", err, "week", ws.String())
			writeError(w, http.StatusInternalServerError, "failed to compute days")
			return
		}
		dtos := toDayDTOs(week)
		for i := range dtos {
			in := dtos[i].Date.Year == year && dtos[i].Date.Month == time.Month(month)
			dtos[i].InMonth = &in
		}
		resp.Weeks = append(resp.Weeks, weekDTO{Start: ws, Days: dtos})
	}

	writeJSON(w, http.StatusOK, resp)
}

// monthGrid returns the half-open range of whole weeks covering the month.
func monthGrid(year int, month time.Month, weekStart dateutil.Weekday) (first, last dateutil.Date) {
	firstOfMonth := dateutil.NewDate(year, month, 1)
	offset := (int(firstOfMonth.Weekday()) - int(weekStart) + 7) % 7
	first = firstOfMonth.AddDays(-offset)

	nextMonth := firstOfMonth.AddDays(dateutil.DaysIn(year, month))
	weeks := (nextMonth.DaysSince(first) + 6) / 7
	return first, first.AddDays(7 * weeks)
}

// handleOccurrences lists the occurrence dates of one event in [start, end).
//
// GET /api/occurrences?calendar=team&event=standup@test&start=...&end=...
func (s *Server) handleOccurrences(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	calID, eventID := q.Get("calendar"), q.Get("event")
	if calID == "" || eventID == "" {
		writeError(w, http.StatusBadRequest, "calendar and event are required")
		return
	}
	first, last, err := s.parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cal := s.store.Snapshot().Calendar(calID)
	if cal == nil {
		writeError(w, http.StatusNotFound, "calendar not found")
		return
	}
	var ev *model.Event
	for _, e := range cal.Events {
		if e.ID == eventID {
			ev = e
			break
		}
	}
	if ev == nil {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}

	resp := occurrencesResponse{
		CalendarID: cal.ID,
		EventID:    ev.ID,
		Title:      ev.Title,
		Start:      first,
		End:        last,
		Dates:      []dateutil.Date{},
	}
	if ev.IsRecurring() {
		if rule, err := ics.FormatRule(*ev.Rule, ev.Start); err == nil {
			resp.Rule = rule
		}
		resp.Exceptions = ics.FormatExceptions(*ev.Rule)
	}
	if first.Before(last) {
		for d := range ev.Occurrences(mo.Some(last.AddDays(-1))).All() {
			if !d.Before(first) {
				resp.Dates = append(resp.Dates, d)
			}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleCalendarICS exports one calendar as an iCalendar document.
//
// GET /api/calendar.ics?calendar=team
func (s *Server) handleCalendarICS(w http.ResponseWriter, r *http.Request) {
	calID := r.URL.Query().Get("calendar")
	cal := s.store.Snapshot().Calendar(calID)
	if cal == nil {
		writeError(w, http.StatusNotFound, "calendar not found")
		return
	}

	body, err := ics.EncodeCalendar(cal)
	if err != nil {
		appLog.Error("api calendar export failed", err, "calendar", calID)
		writeError(w, http.StatusInternalServerError, "failed to encode calendar")
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

// handleRefresh reloads all sources immediately.
//
// POST /api/refresh
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	snap, err := s.store.Refresh(r.Context())
	resp := refreshResponse{Calendars: len(snap.Calendars), LoadedAt: snap.LoadedAt}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}
