package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/habitgrid/habitgrid/heatmap"
	"github.com/habitgrid/habitgrid/models"
	"github.com/habitgrid/habitgrid/utils"
)

const habitNameMaxLen = 100

// HabitController manages CRUD operations for habits.
type HabitController struct {
	db *gorm.DB
}

// NewHabitController creates a new controller instance.
func NewHabitController(db *gorm.DB) *HabitController {
	return &HabitController{db: db}
}

// ListHabits returns the requester's active habits ordered by creation.
// Pass ?all=1 to include archived habits.
func (h *HabitController) ListHabits(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	query := h.db.Where("user_id = ?", userID).Order("created_at ASC")
	if ctx.Query("all") != "1" {
		query = query.Where("active = ?", true)
	}

	var habits []models.Habit
	if err := query.Find(&habits).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50020, "failed to list habits")
		return
	}

	utils.Success(ctx, gin.H{"items": habits})
}

// CreateHabit validates and stores a new habit for the requester.
func (h *HabitController) CreateHabit(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var req struct {
		Name        string `json:"name" binding:"required"`
		Description string `json:"description"`
		DailyGoal   int    `json:"daily_goal" binding:"required"`
		Color       string `json:"color" binding:"required"`
	}

	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return
	}

	name := utils.Sanitize(strings.TrimSpace(req.Name))
	if name == "" {
		utils.Error(ctx, http.StatusBadRequest, 40021, "name cannot be empty")
		return
	}
	if len([]rune(name)) > habitNameMaxLen {
		utils.Error(ctx, http.StatusBadRequest, 40022, "name is too long")
		return
	}
	if req.DailyGoal < 1 {
		utils.Error(ctx, http.StatusBadRequest, 40023, "daily goal must be a positive integer")
		return
	}
	if !heatmap.ColorPattern.MatchString(req.Color) {
		utils.Error(ctx, http.StatusBadRequest, 40024, "color must be in #RRGGBB format")
		return
	}

	habit := models.Habit{
		UserID:      userID,
		Name:        name,
		Description: utils.Sanitize(strings.TrimSpace(req.Description)),
		DailyGoal:   req.DailyGoal,
		Color:       req.Color,
		Active:      true,
	}

	if err := h.db.Create(&habit).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50021, "failed to create habit")
		return
	}

	invalidateDashboard(userID)
	utils.Success(ctx, gin.H{"habit": habit})
}

// UpdateHabit applies partial changes to an owned habit.
func (h *HabitController) UpdateHabit(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	habit, ok := h.findOwnedHabit(ctx, userID)
	if !ok {
		return
	}

	var req struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
		DailyGoal   *int    `json:"daily_goal"`
		Color       *string `json:"color"`
		Active      *bool   `json:"active"`
	}

	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40025, "invalid request payload")
		return
	}

	if req.Name != nil {
		name := utils.Sanitize(strings.TrimSpace(*req.Name))
		if name == "" {
			utils.Error(ctx, http.StatusBadRequest, 40021, "name cannot be empty")
			return
		}
		if len([]rune(name)) > habitNameMaxLen {
			utils.Error(ctx, http.StatusBadRequest, 40022, "name is too long")
			return
		}
		habit.Name = name
	}
	if req.Description != nil {
		habit.Description = utils.Sanitize(strings.TrimSpace(*req.Description))
	}
	if req.DailyGoal != nil {
		if *req.DailyGoal < 1 {
			utils.Error(ctx, http.StatusBadRequest, 40023, "daily goal must be a positive integer")
			return
		}
		habit.DailyGoal = *req.DailyGoal
	}
	if req.Color != nil {
		if !heatmap.ColorPattern.MatchString(*req.Color) {
			utils.Error(ctx, http.StatusBadRequest, 40024, "color must be in #RRGGBB format")
			return
		}
		habit.Color = *req.Color
	}
	if req.Active != nil {
		habit.Active = *req.Active
	}

	if err := h.db.Save(habit).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50022, "failed to update habit")
		return
	}

	invalidateDashboard(userID)
	utils.Success(ctx, gin.H{"habit": habit})
}

// ArchiveHabit marks an owned habit inactive, keeping its entries.
func (h *HabitController) ArchiveHabit(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	habit, ok := h.findOwnedHabit(ctx, userID)
	if !ok {
		return
	}

	habit.Active = false
	if err := h.db.Save(habit).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50023, "failed to archive habit")
		return
	}

	invalidateDashboard(userID)
	utils.Success(ctx, gin.H{"habit": habit})
}

// DeleteHabit hard-deletes an owned habit and all of its entries.
func (h *HabitController) DeleteHabit(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	habit, ok := h.findOwnedHabit(ctx, userID)
	if !ok {
		return
	}

	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("habit_id = ?", habit.ID).Delete(&models.HabitEntry{}).Error; err != nil {
			return err
		}
		return tx.Delete(habit).Error
	})
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50024, "failed to delete habit")
		return
	}

	invalidateDashboard(userID)
	utils.Success(ctx, gin.H{"habit": habit})
}

// findOwnedHabit loads the habit from the :id path parameter and verifies
// ownership. Foreign and missing habits answer with the same 404 so
// existence never leaks. Writes the error response itself on failure.
func (h *HabitController) findOwnedHabit(ctx *gin.Context, userID uint) (*models.Habit, bool) {
	return findOwnedHabit(ctx, h.db, userID)
}

func findOwnedHabit(ctx *gin.Context, db *gorm.DB, userID uint) (*models.Habit, bool) {
	id, err := strconv.ParseUint(strings.TrimSpace(ctx.Param("id")), 10, 32)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40026, "invalid habit id")
		return nil, false
	}

	var habit models.Habit
	if err := db.Where("id = ? AND user_id = ?", id, userID).First(&habit).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			utils.Error(ctx, http.StatusNotFound, 40420, "habit not found")
			return nil, false
		}
		utils.Error(ctx, http.StatusInternalServerError, 50025, "failed to load habit")
		return nil, false
	}
	return &habit, true
}

func invalidateDashboard(userID uint) {
	utils.InvalidateByPrefix("cache:dashboard:" + strconv.Itoa(int(userID)) + ":")
}
