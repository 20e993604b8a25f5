package main

import (
	"github.com/habitgrid/habitgrid/config"
	"github.com/habitgrid/habitgrid/models"
	"github.com/habitgrid/habitgrid/routes"
	"github.com/habitgrid/habitgrid/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}

	db := config.InitDatabase(&models.User{}, &models.Habit{}, &models.HabitEntry{})

	r := routes.SetupRouter(db)

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := utils.GraceServer(":"+cfg.AppPort, r); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
