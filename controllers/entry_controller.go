package controllers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/habitgrid/habitgrid/heatmap"
	"github.com/habitgrid/habitgrid/models"
	"github.com/habitgrid/habitgrid/utils"
)

const defaultEntrySinceDays = 365

// EntryController manages habit entry reads and mutations.
type EntryController struct {
	db *gorm.DB
}

// NewEntryController creates a new controller instance.
func NewEntryController(db *gorm.DB) *EntryController {
	return &EntryController{db: db}
}

// ListEntries returns an owned habit's entries ascending by date.
// Window selection: ?since_days=N for the last N days ending today, or
// ?from=YYYY-MM-DD&to=YYYY-MM-DD for an explicit range.
func (e *EntryController) ListEntries(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	habit, ok := findOwnedHabit(ctx, e.db, userID)
	if !ok {
		return
	}

	start, end, ok := parseEntryRange(ctx)
	if !ok {
		return
	}

	entries, err := listEntriesBetween(e.db, habit.ID, start, end)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50040, "failed to list entries")
		return
	}

	utils.Success(ctx, gin.H{"items": entries})
}

// UpsertEntry overwrites the count for an owned habit on one calendar day,
// creating the row when absent.
func (e *EntryController) UpsertEntry(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	habit, ok := findOwnedHabit(ctx, e.db, userID)
	if !ok {
		return
	}

	date, ok := parseEntryDate(ctx)
	if !ok {
		return
	}

	var req struct {
		Count *int `json:"count" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil || req.Count == nil {
		utils.Error(ctx, http.StatusBadRequest, 40041, "invalid request payload")
		return
	}
	if *req.Count < 0 {
		utils.Error(ctx, http.StatusBadRequest, 40042, "count must be non-negative")
		return
	}

	entry := models.HabitEntry{HabitID: habit.ID, EntryDate: date, Count: *req.Count}
	err := e.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "habit_id"}, {Name: "entry_date"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"count": *req.Count, "updated_at": time.Now()}),
	}).Create(&entry).Error
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50041, "failed to save entry")
		return
	}

	// Re-read so the response carries the authoritative row (the upsert
	// path does not populate ID on conflict for every driver).
	saved, err := e.loadEntry(habit.ID, date)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50041, "failed to save entry")
		return
	}

	invalidateDashboard(userID)
	utils.Success(ctx, gin.H{"entry": saved})
}

// IncrementEntry adds amount (default 1) to an owned habit's count on one
// day, creating the row with count=amount when absent. Routed both with a
// :date parameter and without one, in which case today is assumed.
func (e *EntryController) IncrementEntry(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	habit, ok := findOwnedHabit(ctx, e.db, userID)
	if !ok {
		return
	}

	date, ok := parseEntryDateOrToday(ctx)
	if !ok {
		return
	}

	amount := 1
	var req struct {
		Amount *int `json:"amount"`
	}
	if err := ctx.ShouldBindJSON(&req); err == nil && req.Amount != nil {
		amount = *req.Amount
	}
	if amount < 1 {
		utils.Error(ctx, http.StatusBadRequest, 40043, "amount must be a positive integer")
		return
	}

	entry := models.HabitEntry{HabitID: habit.ID, EntryDate: date, Count: amount}
	err := e.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "habit_id"}, {Name: "entry_date"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"count": gorm.Expr("count + ?", amount), "updated_at": time.Now()}),
	}).Create(&entry).Error
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50042, "failed to increment entry")
		return
	}

	saved, err := e.loadEntry(habit.ID, date)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50042, "failed to increment entry")
		return
	}

	invalidateDashboard(userID)
	utils.Success(ctx, gin.H{"entry": saved})
}

func (e *EntryController) loadEntry(habitID uint, date time.Time) (*models.HabitEntry, error) {
	var entry models.HabitEntry
	next := date.AddDate(0, 0, 1)
	err := e.db.Where("habit_id = ? AND entry_date >= ? AND entry_date < ?", habitID, date, next).First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func listEntriesBetween(db *gorm.DB, habitID uint, start, end time.Time) ([]models.HabitEntry, error) {
	var entries []models.HabitEntry
	err := db.Where("habit_id = ? AND entry_date >= ? AND entry_date < ?", habitID, start, end.AddDate(0, 0, 1)).
		Order("entry_date ASC").
		Find(&entries).Error
	return entries, err
}

func parseEntryDateOrToday(ctx *gin.Context) (time.Time, bool) {
	if strings.TrimSpace(ctx.Param("date")) == "" {
		return heatmap.DayStart(time.Now()), true
	}
	return parseEntryDate(ctx)
}

func parseEntryDate(ctx *gin.Context) (time.Time, bool) {
	date, err := heatmap.ParseDate(strings.TrimSpace(ctx.Param("date")))
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40040, "date must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return date, true
}

func parseEntryRange(ctx *gin.Context) (time.Time, time.Time, bool) {
	fromStr := strings.TrimSpace(ctx.Query("from"))
	toStr := strings.TrimSpace(ctx.Query("to"))

	if fromStr != "" || toStr != "" {
		from, err := heatmap.ParseDate(fromStr)
		if err != nil {
			utils.Error(ctx, http.StatusBadRequest, 40044, "from must be YYYY-MM-DD")
			return time.Time{}, time.Time{}, false
		}
		to, err := heatmap.ParseDate(toStr)
		if err != nil {
			utils.Error(ctx, http.StatusBadRequest, 40045, "to must be YYYY-MM-DD")
			return time.Time{}, time.Time{}, false
		}
		if to.Before(from) {
			utils.Error(ctx, http.StatusBadRequest, 40046, "to must not precede from")
			return time.Time{}, time.Time{}, false
		}
		return from, to, true
	}

	sinceDays := defaultEntrySinceDays
	if v := strings.TrimSpace(ctx.Query("since_days")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			utils.Error(ctx, http.StatusBadRequest, 40047, "since_days must be a positive integer")
			return time.Time{}, time.Time{}, false
		}
		sinceDays = n
	}
	end := heatmap.DayStart(time.Now())
	start := end.AddDate(0, 0, -(sinceDays - 1))
	return start, end, true
}
