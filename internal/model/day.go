package model

import "time"

// DayWindow is the local calendar day [Start, End) used to deduplicate
// attendance marks. End is the next local midnight.
type DayWindow struct {
	Start time.Time
	End   time.Time
}

// DayOf returns the calendar day containing t in loc.
func DayOf(t time.Time, loc *time.Location) DayWindow {
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	y, m, d := t.Date()
	return DayWindow{
		Start: time.Date(y, m, d, 0, 0, 0, 0, loc),
		End:   time.Date(y, m, d+1, 0, 0, 0, 0, loc),
	}
}

// Contains reports whether t falls inside the window. End is excluded.
func (w DayWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Key is the ISO date of the window, e.g. 2024-03-09.
func (w DayWindow) Key() string { return w.Start.Format("2006-01-02") }
