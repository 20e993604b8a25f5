package heatmap

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/habitgrid/habitgrid/models"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.Local)
}

func entry(t time.Time, count int) models.HabitEntry {
	return models.HabitEntry{EntryDate: t, Count: count}
}

func realCells(weeks []Week) []*Cell {
	var cells []*Cell
	for _, w := range weeks {
		for _, c := range w {
			if c != nil {
				cells = append(cells, c)
			}
		}
	}
	return cells
}

func TestBuildGrid_RollingWindowAlignment(t *testing.T) {
	// 2024-03-20 is a Wednesday; a 10-day window starts Monday 03-11,
	// so the grid starts Sunday 03-10 and ends Saturday 03-23.
	today := day(2024, time.March, 20)

	weeks, err := BuildGrid(nil, 1, Rolling(10), today)
	if err != nil {
		t.Fatalf("BuildGrid: %v", err)
	}

	if len(weeks) != 2 {
		t.Fatalf("expected 2 weeks, got %d", len(weeks))
	}
	if weeks[0][0] != nil {
		t.Error("expected padding before window start (Sunday 03-10)")
	}
	if weeks[0][1] == nil || weeks[0][1].Date != "2024-03-11" {
		t.Errorf("expected first real cell 2024-03-11, got %+v", weeks[0][1])
	}
	if weeks[1][3] == nil || weeks[1][3].Date != "2024-03-20" {
		t.Errorf("expected last real cell 2024-03-20, got %+v", weeks[1][3])
	}
	for slot := 4; slot < 7; slot++ {
		if weeks[1][slot] != nil {
			t.Errorf("expected padding after today at slot %d", slot)
		}
	}

	cells := realCells(weeks)
	if len(cells) != 10 {
		t.Fatalf("expected 10 real cells, got %d", len(cells))
	}
	if last := cells[len(cells)-1]; last.Date != FormatDate(today) {
		t.Errorf("last real cell should be today, got %s", last.Date)
	}
}

func TestBuildGrid_YearWindow(t *testing.T) {
	today := day(2024, time.June, 15)

	weeks, err := BuildGrid(nil, 1, Year(2024), today)
	if err != nil {
		t.Fatalf("BuildGrid: %v", err)
	}

	cells := realCells(weeks)
	if len(cells) != 366 { // 2024 is a leap year
		t.Fatalf("expected 366 real cells, got %d", len(cells))
	}

	// 2024-01-01 is a Monday, 2024-12-31 a Tuesday.
	if weeks[0][0] != nil {
		t.Error("expected nil padding before January 1")
	}
	if weeks[0][1] == nil || weeks[0][1].Date != "2024-01-01" {
		t.Errorf("expected 2024-01-01 in slot 1 of the first week, got %+v", weeks[0][1])
	}
	last := weeks[len(weeks)-1]
	if last[2] == nil || last[2].Date != "2024-12-31" {
		t.Errorf("expected 2024-12-31 in slot 2 of the last week, got %+v", last[2])
	}
	for slot := 3; slot < 7; slot++ {
		if last[slot] != nil {
			t.Errorf("expected nil padding after December 31 at slot %d", slot)
		}
	}

	todayCount := 0
	for _, c := range cells {
		if c.IsToday {
			todayCount++
			if c.Date != "2024-06-15" {
				t.Errorf("IsToday set on wrong cell %s", c.Date)
			}
		}
	}
	if todayCount != 1 {
		t.Errorf("expected exactly one IsToday cell, got %d", todayCount)
	}
}

func TestBuildGrid_YearWindowWithoutToday(t *testing.T) {
	// Viewing a past year: no cell is today.
	weeks, err := BuildGrid(nil, 1, Year(2023), day(2024, time.June, 15))
	if err != nil {
		t.Fatalf("BuildGrid: %v", err)
	}
	for _, c := range realCells(weeks) {
		if c.IsToday {
			t.Fatalf("IsToday set in a past-year grid on %s", c.Date)
		}
	}
}

func TestBuildGrid_CountsAndIntensity(t *testing.T) {
	today := day(2024, time.January, 1)
	entries := []models.HabitEntry{entry(today, 2)}

	weeks, err := BuildGrid(entries, 3, Rolling(1), today)
	if err != nil {
		t.Fatalf("BuildGrid: %v", err)
	}

	cells := realCells(weeks)
	if len(cells) != 1 {
		t.Fatalf("expected 1 real cell, got %d", len(cells))
	}
	if cells[0].Count != 2 {
		t.Errorf("expected count 2, got %d", cells[0].Count)
	}
	if math.Abs(cells[0].Intensity-2.0/3.0) > 1e-9 {
		t.Errorf("expected intensity 0.667, got %v", cells[0].Intensity)
	}
}

func TestBuildGrid_EntryMatchIgnoresTimeOfDay(t *testing.T) {
	today := day(2024, time.May, 10)
	// An entry stored with a stray time component still matches its day.
	noon := time.Date(2024, time.May, 10, 12, 30, 0, 0, time.Local)

	weeks, err := BuildGrid([]models.HabitEntry{entry(noon, 4)}, 4, Rolling(1), today)
	if err != nil {
		t.Fatalf("BuildGrid: %v", err)
	}
	cells := realCells(weeks)
	if len(cells) != 1 || cells[0].Count != 4 {
		t.Fatalf("expected the noon entry to land on its calendar day, got %+v", cells)
	}
	if cells[0].Intensity != 1 {
		t.Errorf("expected saturated intensity, got %v", cells[0].Intensity)
	}
}

func TestBuildGrid_EmptyEntries(t *testing.T) {
	weeks, err := BuildGrid(nil, 5, Rolling(30), day(2024, time.July, 4))
	if err != nil {
		t.Fatalf("BuildGrid: %v", err)
	}
	for _, c := range realCells(weeks) {
		if c.Count != 0 || c.Intensity != 0 {
			t.Fatalf("expected empty cell, got count=%d intensity=%v on %s", c.Count, c.Intensity, c.Date)
		}
	}
}

func TestBuildGrid_Deterministic(t *testing.T) {
	today := day(2024, time.February, 29)
	entries := []models.HabitEntry{
		entry(day(2024, time.February, 10), 1),
		entry(day(2024, time.February, 20), 3),
	}

	first, err := BuildGrid(entries, 3, Rolling(45), today)
	if err != nil {
		t.Fatalf("BuildGrid: %v", err)
	}
	second, err := BuildGrid(entries, 3, Rolling(45), today)
	if err != nil {
		t.Fatalf("BuildGrid: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("identical inputs must produce identical grids")
	}
}

func TestBuildGrid_RejectsBadInput(t *testing.T) {
	today := day(2024, time.January, 1)

	if _, err := BuildGrid(nil, 0, Rolling(7), today); err == nil {
		t.Error("expected error for zero daily goal")
	}
	if _, err := BuildGrid(nil, 1, Rolling(0), today); err == nil {
		t.Error("expected error for zero-day rolling window")
	}
	if _, err := BuildGrid(nil, 1, Window{Mode: "weekly"}, today); err == nil {
		t.Error("expected error for unknown window mode")
	}
}

func TestIntensity(t *testing.T) {
	tests := []struct {
		name  string
		count int
		goal  int
		want  float64
	}{
		{"zero count", 0, 5, 0},
		{"negative count", -1, 5, 0},
		{"partial", 1, 4, 0.25},
		{"saturates at goal", 5, 5, 1},
		{"clamps above goal", 12, 5, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Intensity(tt.count, tt.goal); got != tt.want {
				t.Errorf("Intensity(%d, %d) = %v, want %v", tt.count, tt.goal, got, tt.want)
			}
		})
	}

	// Monotonic non-decreasing in count.
	prev := 0.0
	for count := 0; count <= 10; count++ {
		got := Intensity(count, 4)
		if got < prev {
			t.Fatalf("intensity decreased at count=%d: %v < %v", count, got, prev)
		}
		if got < 0 || got > 1 {
			t.Fatalf("intensity out of range at count=%d: %v", count, got)
		}
		prev = got
	}
}

func TestParseDateRoundTrip(t *testing.T) {
	parsed, err := ParseDate("2024-03-09")
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if !parsed.Equal(day(2024, time.March, 9)) {
		t.Errorf("parsed to %v", parsed)
	}
	if got := FormatDate(parsed); got != "2024-03-09" {
		t.Errorf("round trip gave %s", got)
	}
	if _, err := ParseDate("03/09/2024"); err == nil {
		t.Error("expected error for malformed date")
	}
}
