package handlers

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/fileshare/backend/internal/middleware"
	"github.com/fileshare/backend/internal/models"
	"github.com/fileshare/backend/pkg/utils"
)

type StatsHandler struct {
	DB *gorm.DB
}

func NewStatsHandler(db *gorm.DB) *StatsHandler {
	return &StatsHandler{DB: db}
}

type userStats struct {
	TotalFiles     int64 `json:"totalFiles"`
	PublicFiles    int64 `json:"publicFiles"`
	PrivateFiles   int64 `json:"privateFiles"`
	TotalSize      int64 `json:"totalSize"`
	TotalDownloads int64 `json:"totalDownloads"`
}

// Me aggregates the caller's file stats in a single query.
func (h *StatsHandler) Me(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var stats userStats
	err := h.DB.Model(&models.File{}).
		Select(`count(*) as total_files,
			coalesce(sum(case when is_public then 1 else 0 end), 0) as public_files,
			coalesce(sum(case when is_public then 0 else 1 end), 0) as private_files,
			coalesce(sum(size), 0) as total_size,
			coalesce(sum(download_count), 0) as total_downloads`).
		Where("owner_id = ?", currentUser.ID).
		Scan(&stats).Error
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed computing stats")
	}

	return utils.Success(c, fiber.StatusOK, stats)
}
