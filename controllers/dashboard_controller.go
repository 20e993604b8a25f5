package controllers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/habitgrid/habitgrid/heatmap"
	"github.com/habitgrid/habitgrid/models"
	"github.com/habitgrid/habitgrid/utils"
)

const defaultRollingDays = 91

// DashboardController composes per-habit heatmaps for the signed-in user.
type DashboardController struct {
	db *gorm.DB
}

// NewDashboardController creates a new controller instance.
func NewDashboardController(db *gorm.DB) *DashboardController {
	return &DashboardController{db: db}
}

// renderedCell is a grid cell with its display color resolved.
type renderedCell struct {
	heatmap.Cell
	Color string `json:"color"`
}

// habitHeatmap is one habit's renderable grid. Failed is set when the
// entry fetch for this habit errored; other habits still render.
type habitHeatmap struct {
	Habit  models.Habit      `json:"habit"`
	Weeks  [][]*renderedCell `json:"weeks"`
	Failed bool              `json:"failed,omitempty"`
}

// GetDashboard returns one heatmap per active habit for the requested
// window (?window=rolling&days=N, or ?window=year&year=Y) plus the
// earliest entry year seen, for the year-selector control.
func (d *DashboardController) GetDashboard(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	window, ok := parseWindow(ctx)
	if !ok {
		return
	}

	cacheKey := dashboardCacheKey(userID, window)
	if b, ok := utils.CacheGetBytes(cacheKey); ok {
		ctx.Data(http.StatusOK, "application/json", b)
		return
	}

	var habits []models.Habit
	if err := d.db.Where("user_id = ? AND active = ?", userID, true).Order("created_at ASC").Find(&habits).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50060, "failed to list habits")
		return
	}

	today := time.Now()
	start, end, err := window.Range(today)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40060, err.Error())
		return
	}

	heatmaps := make([]habitHeatmap, 0, len(habits))
	earliestYear := 0
	for _, habit := range habits {
		entries, err := listEntriesBetween(d.db, habit.ID, start, end)
		if err != nil {
			utils.Sugar.Warnf("dashboard: entries fetch failed habit=%d err=%v", habit.ID, err)
			heatmaps = append(heatmaps, habitHeatmap{Habit: habit, Failed: true})
			continue
		}

		weeks, err := heatmap.BuildGrid(entries, habit.DailyGoal, window, today)
		if err != nil {
			utils.Sugar.Warnf("dashboard: grid build failed habit=%d err=%v", habit.ID, err)
			heatmaps = append(heatmaps, habitHeatmap{Habit: habit, Failed: true})
			continue
		}

		heatmaps = append(heatmaps, habitHeatmap{
			Habit: habit,
			Weeks: renderWeeks(weeks, habit.Color),
		})

		for _, entry := range entries {
			if y := entry.EntryDate.Year(); earliestYear == 0 || y < earliestYear {
				earliestYear = y
			}
		}
	}

	if earliestYear == 0 {
		earliestYear = today.Year()
	}

	payload := gin.H{
		"window":        window,
		"heatmaps":      heatmaps,
		"earliest_year": earliestYear,
		"has_habits":    len(habits) > 0,
	}

	// Cache the wrapped envelope like list endpoints do; cap the TTL at the
	// next local midnight since rolling windows shift with the calendar day.
	wrapper := struct {
		Code    int         `json:"code"`
		Message string      `json:"message"`
		Data    interface{} `json:"data"`
	}{Code: 0, Message: "success", Data: payload}
	utils.CacheSetJSON(cacheKey, wrapper, dashboardCacheTTL(today))

	utils.Success(ctx, payload)
}

func renderWeeks(weeks []heatmap.Week, baseColor string) [][]*renderedCell {
	rendered := make([][]*renderedCell, len(weeks))
	for i, week := range weeks {
		row := make([]*renderedCell, 7)
		for j, cell := range week {
			if cell == nil {
				continue
			}
			row[j] = &renderedCell{
				Cell:  *cell,
				Color: heatmap.MapColor(baseColor, cell.Intensity),
			}
		}
		rendered[i] = row
	}
	return rendered
}

func parseWindow(ctx *gin.Context) (heatmap.Window, bool) {
	mode := strings.TrimSpace(ctx.Query("window"))
	switch mode {
	case "year":
		yearStr := strings.TrimSpace(ctx.Query("year"))
		year, err := strconv.Atoi(yearStr)
		if err != nil || year < 1 {
			utils.Error(ctx, http.StatusBadRequest, 40061, "year must be a positive integer")
			return heatmap.Window{}, false
		}
		return heatmap.Year(year), true
	case "", "rolling":
		days := defaultRollingDays
		if v := strings.TrimSpace(ctx.Query("days")); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				utils.Error(ctx, http.StatusBadRequest, 40062, "days must be a positive integer")
				return heatmap.Window{}, false
			}
			days = n
		}
		return heatmap.Rolling(days), true
	default:
		utils.Error(ctx, http.StatusBadRequest, 40063, "window must be rolling or year")
		return heatmap.Window{}, false
	}
}

func dashboardCacheKey(userID uint, w heatmap.Window) string {
	if w.Mode == heatmap.ModeYear {
		return fmt.Sprintf("cache:dashboard:%d:year=%d", userID, w.Year)
	}
	return fmt.Sprintf("cache:dashboard:%d:rolling=%d", userID, w.Days)
}

func dashboardCacheTTL(now time.Time) time.Duration {
	midnight := heatmap.DayStart(now).AddDate(0, 0, 1)
	ttl := time.Until(midnight)
	if ttl > time.Hour {
		ttl = time.Hour
	}
	if ttl < time.Minute {
		ttl = time.Minute
	}
	return ttl
}
