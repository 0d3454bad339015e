package pipeline

import "time"

// Window is the inclusive JST interval a daily run accepts records from.
type Window struct {
	Start time.Time
	End   time.Time
}

// WindowFor computes the collection window for a run: from anchorHour on the
// previous day up to one second before anchorHour on the run date.
func WindowFor(now time.Time, anchorHour int) Window {
	local := now.In(JST)
	anchor := time.Date(local.Year(), local.Month(), local.Day(), anchorHour, 0, 0, 0, JST)
	return Window{
		Start: anchor.AddDate(0, 0, -1),
		End:   anchor.Add(-time.Second),
	}
}

// Contains reports whether t falls inside the window, boundaries included.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}
