package models

import "time"

// Habit represents a tracked daily habit owned by a single user.
// Color is a 6-hex-digit RGB string including the leading '#'.
type Habit struct {
	ID          uint         `gorm:"primaryKey" json:"id"`
	UserID      uint         `gorm:"index;not null" json:"user_id"`
	Name        string       `gorm:"size:100;not null" json:"name"`
	Description string       `gorm:"size:255" json:"description"`
	DailyGoal   int          `gorm:"not null" json:"daily_goal"`
	Color       string       `gorm:"size:7;not null" json:"color"`
	Active      bool         `gorm:"not null;default:true" json:"active"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	User        User         `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	Entries     []HabitEntry `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
}
