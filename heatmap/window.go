package heatmap

import (
	"errors"
	"fmt"
	"time"
)

// Mode selects how a Window spans the calendar.
type Mode string

const (
	// ModeRolling spans the last Days calendar days ending today.
	ModeRolling Mode = "rolling"
	// ModeYear spans January 1 through December 31 of Year.
	ModeYear Mode = "year"
)

// Window describes the span of days a grid covers.
type Window struct {
	Mode Mode `json:"mode"`
	Days int  `json:"days,omitempty"`
	Year int  `json:"year,omitempty"`
}

// Rolling returns a window covering the last days calendar days.
func Rolling(days int) Window {
	return Window{Mode: ModeRolling, Days: days}
}

// Year returns a window covering the full calendar year.
func Year(year int) Window {
	return Window{Mode: ModeYear, Year: year}
}

// Range resolves the window to its inclusive [start, end] day bounds,
// both at local midnight. The today argument anchors rolling windows.
func (w Window) Range(today time.Time) (time.Time, time.Time, error) {
	switch w.Mode {
	case ModeRolling:
		if w.Days < 1 {
			return time.Time{}, time.Time{}, errors.New("rolling window requires days >= 1")
		}
		end := DayStart(today)
		start := end.AddDate(0, 0, -(w.Days - 1))
		return start, end, nil
	case ModeYear:
		if w.Year < 1 {
			return time.Time{}, time.Time{}, errors.New("year window requires a positive year")
		}
		start := time.Date(w.Year, time.January, 1, 0, 0, 0, 0, time.Local)
		end := time.Date(w.Year, time.December, 31, 0, 0, 0, 0, time.Local)
		return start, end, nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("unknown window mode %q", w.Mode)
	}
}

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// DayStart truncates t to local midnight.
func DayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// SameDay reports whether a and b fall on the same calendar day.
func SameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

// ParseDate parses a YYYY-MM-DD string into a local-midnight time.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.Local)
	if err != nil {
		return time.Time{}, err
	}
	return DayStart(t), nil
}

// FormatDate renders a time as its YYYY-MM-DD calendar date.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}
