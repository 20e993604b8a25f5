package models

import "time"

// HabitEntry stores the recorded count for one habit on one calendar day.
// EntryDate is normalized to local midnight; the composite unique index
// guarantees at most one row per (habit, date).
type HabitEntry struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	HabitID   uint      `gorm:"index;index:idx_entries_habit_date,unique;not null" json:"habit_id"`
	EntryDate time.Time `gorm:"index:idx_entries_habit_date,unique;type:date;not null" json:"entry_date"`
	Count     int       `gorm:"not null;default:0" json:"count"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
