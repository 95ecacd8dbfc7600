package main

import (
	"fmt"
	"io"
	"time"

	"calview/internal/model"
)

// renderAgenda writes one heading per day followed by its events.
func renderAgenda(w io.Writer, got []model.CalendarDay) error {
	for _, day := range got {
		if _, err := fmt.Fprintln(w, day.Date.In(time.UTC).Format("Mon 2006-01-02")); err != nil {
			return err
		}
		if len(day.Events) == 0 {
			if _, err := fmt.Fprintln(w, "  (no events)"); err != nil {
				return err
			}
			continue
		}
		for _, x := range day.Events {
			when := "all day"
			if !x.AllDay() {
				when = x.Start.Format("15:04") + "-" + x.End().Format("15:04")
			}
			line := fmt.Sprintf("  %-11s  %s [%s]", when, x.Title(), x.CalendarID())
			if loc := x.Location(); loc != "" {
				line += " @ " + loc
			}
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
		}
	}
	return nil
}
