package handlers

import (
	"fmt"
	"mime"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/fileshare/backend/internal/middleware"
	"github.com/fileshare/backend/internal/models"
	"github.com/fileshare/backend/internal/storage"
	"github.com/fileshare/backend/pkg/logger"
	"github.com/fileshare/backend/pkg/utils"
)

// logoExtensions limits branding uploads to images regardless of the
// general upload allow-list.
var logoExtensions = map[string]bool{
	"png":  true,
	"jpg":  true,
	"jpeg": true,
	"gif":  true,
}

type SettingsHandler struct {
	DB      *gorm.DB
	Storage storage.Backend
}

func NewSettingsHandler(db *gorm.DB, backend storage.Backend) *SettingsHandler {
	return &SettingsHandler{DB: db, Storage: backend}
}

// GetLogo reports the active logo, which is always the newest settings row.
func (h *SettingsHandler) GetLogo(c *fiber.Ctx) error {
	var setting models.Setting
	err := h.DB.Order("created_at DESC").First(&setting).Error
	if err == gorm.ErrRecordNotFound {
		return utils.Success(c, fiber.StatusOK, fiber.Map{"logo": nil})
	}
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading settings")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"logo": setting.LogoFilename})
}

// UploadLogo stores a new logo and appends a settings row pointing at it.
// Earlier rows are left alone, so a bad upload is undone by uploading again.
func (h *SettingsHandler) UploadLogo(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	fileHeader, err := c.FormFile("logo")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "logo file is required")
	}

	filename := utils.SanitizeFilename(strings.TrimSpace(fileHeader.Filename))
	if filename == "" {
		return utils.Error(c, fiber.StatusBadRequest, "invalid filename")
	}

	if !logoExtensions[utils.FileExtension(filename)] {
		return utils.Error(c, fiber.StatusBadRequest, "logo must be an image")
	}

	src, err := fileHeader.Open()
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed opening uploaded file")
	}
	defer src.Close()

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = mime.TypeByExtension("." + utils.FileExtension(filename))
	}

	prefix, err := utils.RandomHex(4)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating storage name")
	}
	storageName := fmt.Sprintf("logo_%s_%s", prefix, filename)
	if err := h.Storage.Save(c.Context(), storageName, src, fileHeader.Size, contentType); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed storing logo")
	}

	setting := models.Setting{LogoFilename: storageName}
	if err := h.DB.Create(&setting).Error; err != nil {
		_ = h.Storage.Delete(c.Context(), storageName)
		return utils.Error(c, fiber.StatusInternalServerError, "failed saving settings")
	}

	logger.InfoWithUser(currentUser.ID.String(), "logo_updated", map[string]interface{}{
		"logo_filename": storageName,
	})

	return utils.Success(c, fiber.StatusCreated, setting)
}

// ServeLogo streams a logo blob. Logos are branding, so this route is
// public; the name check keeps it from reaching outside the logo store.
func (h *SettingsHandler) ServeLogo(c *fiber.Ctx) error {
	name := c.Params("filename")
	if name == "" || utils.SanitizeFilename(name) != name {
		return utils.Error(c, fiber.StatusNotFound, "logo not found")
	}

	blob, size, err := h.Storage.Open(c.Context(), name)
	if err != nil {
		if err == storage.ErrNotFound {
			return utils.Error(c, fiber.StatusNotFound, "logo not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed reading logo")
	}

	contentType := mime.TypeByExtension("." + utils.FileExtension(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Set("Content-Type", contentType)
	return c.SendStream(blob, int(size))
}
