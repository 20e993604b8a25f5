package heatmap

import (
	"errors"
	"time"

	"github.com/habitgrid/habitgrid/models"
)

// Cell is one rendered day of a habit grid.
type Cell struct {
	Date      string  `json:"date"`
	Count     int     `json:"count"`
	Intensity float64 `json:"intensity"`
	IsToday   bool    `json:"is_today,omitempty"`
}

// Week holds seven cells Sunday through Saturday. Cells outside the
// window are nil so the grid always consists of complete weeks.
type Week [7]*Cell

// BuildGrid maps a habit's entries onto a Sunday-aligned week-major grid
// for the given window. Entries are matched by calendar date; days without
// an entry get count 0. The today argument anchors rolling windows and the
// year-mode IsToday flag, so output is reproducible for fixed inputs.
func BuildGrid(entries []models.HabitEntry, dailyGoal int, w Window, today time.Time) ([]Week, error) {
	if dailyGoal < 1 {
		return nil, errors.New("daily goal must be positive")
	}

	start, end, err := w.Range(today)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(entries))
	for _, e := range entries {
		// Drivers may hand dates back in UTC; match on the local calendar day.
		counts[FormatDate(e.EntryDate.Local())] = e.Count
	}

	// Pull the grid start back to the Sunday on/before the window start
	// and push the end out to the following Saturday.
	gridStart := start.AddDate(0, 0, -int(start.Weekday()))
	gridEnd := end.AddDate(0, 0, int(time.Saturday-end.Weekday()))

	var weeks []Week
	week := Week{}
	slot := 0
	for d := gridStart; !d.After(gridEnd); d = d.AddDate(0, 0, 1) {
		if !d.Before(start) && !d.After(end) {
			key := FormatDate(d)
			count := counts[key]
			week[slot] = &Cell{
				Date:      key,
				Count:     count,
				Intensity: Intensity(count, dailyGoal),
				IsToday:   w.Mode == ModeYear && SameDay(d, today),
			}
		}
		slot++
		if slot == 7 {
			weeks = append(weeks, week)
			week = Week{}
			slot = 0
		}
	}

	return weeks, nil
}

// Intensity returns the normalized progress ratio min(count/goal, 1).
func Intensity(count, dailyGoal int) float64 {
	if count <= 0 || dailyGoal < 1 {
		return 0
	}
	ratio := float64(count) / float64(dailyGoal)
	if ratio > 1 {
		return 1
	}
	return ratio
}
