package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fileshare/backend/internal/config"
	"github.com/fileshare/backend/internal/middleware"
	"github.com/fileshare/backend/internal/models"
	"github.com/fileshare/backend/internal/services"
	"github.com/fileshare/backend/internal/storage"
	"github.com/fileshare/backend/pkg/logger"
	"github.com/fileshare/backend/pkg/sharetoken"
	"github.com/fileshare/backend/pkg/utils"
)

type FilesHandler struct {
	DB      *gorm.DB
	Storage storage.Backend
	Access  *services.AccessService
	Upload  config.UploadConfig
}

func NewFilesHandler(db *gorm.DB, backend storage.Backend, access *services.AccessService, upload config.UploadConfig) *FilesHandler {
	return &FilesHandler{DB: db, Storage: backend, Access: access, Upload: upload}
}

func (h *FilesHandler) UploadFile(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "file is required")
	}

	transactionNumber := strings.TrimSpace(c.FormValue("transactionNumber"))
	if transactionNumber == "" {
		return utils.Error(c, fiber.StatusBadRequest, "transactionNumber is required")
	}
	isPublic := strings.EqualFold(strings.TrimSpace(c.FormValue("isPublic")), "true")

	filename := utils.SanitizeFilename(strings.TrimSpace(fileHeader.Filename))
	if filename == "" {
		return utils.Error(c, fiber.StatusBadRequest, "invalid filename")
	}

	ext := utils.FileExtension(filename)
	if !h.Upload.ExtensionAllowed(ext) {
		return utils.Error(c, fiber.StatusBadRequest, "file type not allowed")
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = mime.TypeByExtension("." + ext)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	token, err := sharetoken.New()
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating share token")
	}

	stream, err := fileHeader.Open()
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed opening uploaded file")
	}
	defer stream.Close()

	// Random prefix keeps storage names collision-free and unguessable even
	// when two users upload the same filename.
	prefix, err := utils.RandomHex(8)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating storage name")
	}
	storageName := prefix + "_" + filename

	if err := h.Storage.Save(c.Context(), storageName, stream, fileHeader.Size, contentType); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed storing file")
	}

	entry := models.File{
		StorageName:       storageName,
		OriginalName:      filename,
		OwnerID:           currentUser.ID,
		IsPublic:          isPublic,
		ShareToken:        token,
		Size:              fileHeader.Size,
		FileType:          ext,
		TransactionNumber: transactionNumber,
	}

	if err := h.DB.Create(&entry).Error; err != nil {
		// Roll the blob back so a failed insert never leaves orphaned bytes.
		_ = h.Storage.Delete(c.Context(), storageName)
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating file record")
	}

	logger.InfoWithUser(currentUser.ID.String(), "file_uploaded", map[string]interface{}{
		"file_id":            entry.ID.String(),
		"file_name":          filename,
		"file_size":          fileHeader.Size,
		"file_type":          ext,
		"is_public":          isPublic,
		"transaction_number": transactionNumber,
	})

	return utils.Success(c, fiber.StatusCreated, entry)
}

func (h *FilesHandler) List(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var files []models.File
	if err := h.DB.Preload("Owner").Where("owner_id = ?", currentUser.ID).Order("created_at DESC").Find(&files).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing files")
	}

	return utils.Success(c, fiber.StatusOK, files)
}

func (h *FilesHandler) Get(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	fileID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid file id")
	}

	var file models.File
	if err := h.DB.Preload("Owner").First(&file, "id = ?", fileID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "file not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading file")
	}

	if !h.Access.CanView(currentUser.ID, file) {
		return utils.Error(c, fiber.StatusForbidden, "access denied")
	}

	return utils.Success(c, fiber.StatusOK, file)
}

type renameFileRequest struct {
	Name string `json:"name"`
}

func (h *FilesHandler) Rename(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	fileID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid file id")
	}

	var file models.File
	if err := h.DB.First(&file, "id = ?", fileID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "file not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading file")
	}

	if !h.Access.CanModify(currentUser.ID, file) {
		return utils.Error(c, fiber.StatusForbidden, "access denied")
	}

	var req renameFileRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return utils.Error(c, fiber.StatusBadRequest, "name cannot be empty")
	}

	if err := h.DB.Model(&file).Update("original_name", name).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed renaming file")
	}

	logger.InfoWithUser(currentUser.ID.String(), "file_renamed", map[string]interface{}{
		"file_id":   file.ID.String(),
		"file_name": name,
	})

	return utils.Success(c, fiber.StatusOK, file)
}

// ToggleVisibility flips the public flag. The share token survives the flip,
// so a link goes dark when private and works again when public.
func (h *FilesHandler) ToggleVisibility(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	fileID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid file id")
	}

	var file models.File
	if err := h.DB.First(&file, "id = ?", fileID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "file not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading file")
	}

	if !h.Access.CanModify(currentUser.ID, file) {
		return utils.Error(c, fiber.StatusForbidden, "access denied")
	}

	if err := h.DB.Model(&file).Update("is_public", !file.IsPublic).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating visibility")
	}

	logger.InfoWithUser(currentUser.ID.String(), "file_visibility_toggled", map[string]interface{}{
		"file_id":   file.ID.String(),
		"is_public": file.IsPublic,
	})

	return utils.Success(c, fiber.StatusOK, file)
}

func (h *FilesHandler) Delete(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	fileID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid file id")
	}

	var file models.File
	if err := h.DB.First(&file, "id = ?", fileID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "file not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading file")
	}

	if !h.Access.CanModify(currentUser.ID, file) {
		logger.WarnWithUser(currentUser.ID.String(), "permission_denied", map[string]interface{}{
			"action":    "file_delete",
			"target_id": file.ID.String(),
		})
		return utils.Error(c, fiber.StatusForbidden, "access denied")
	}

	// Blob first. The backend treats a missing blob as already deleted.
	if err := h.Storage.Delete(c.Context(), file.StorageName); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting file")
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("file_id = ?", file.ID).Delete(&models.BundleFile{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.File{}, "id = ?", file.ID).Error
	})
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting file")
	}

	logger.InfoWithUser(currentUser.ID.String(), "file_deleted", map[string]interface{}{
		"file_id":   file.ID.String(),
		"file_name": file.OriginalName,
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "file deleted"})
}

// SharedGet resolves a share link to file metadata. The optional from_bundle
// query parameter names the bundle link the viewer came through; it is
// attached as context only when that bundle really contains the file.
func (h *FilesHandler) SharedGet(c *fiber.Ctx) error {
	var file models.File
	if err := h.DB.First(&file, "share_token = ?", c.Params("token")).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "file not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading file")
	}

	if !h.Access.CanView(viewerID(c), file) {
		return utils.Error(c, fiber.StatusForbidden, "access denied")
	}

	var bundleCtx *models.Bundle
	if bundleToken := strings.TrimSpace(c.Query("from_bundle")); bundleToken != "" {
		var bundle models.Bundle
		if err := h.DB.First(&bundle, "share_token = ?", bundleToken).Error; err == nil {
			contained, err := h.Access.BundleContains(c.Context(), bundle.ID, file.ID)
			if err == nil && contained {
				bundleCtx = &bundle
			}
		}
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"file": file, "bundle": bundleCtx})
}

// SharedView streams content for in-browser display. Views are free: only
// explicit downloads move the counter.
func (h *FilesHandler) SharedView(c *fiber.Ctx) error {
	var file models.File
	if err := h.DB.First(&file, "share_token = ?", c.Params("token")).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "file not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading file")
	}

	if !h.Access.CanView(viewerID(c), file) {
		return utils.Error(c, fiber.StatusForbidden, "access denied")
	}

	blob, size, err := h.openBlob(c, &file)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return utils.Error(c, fiber.StatusInternalServerError, "file content unavailable")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed reading file")
	}

	c.Set("Content-Type", contentTypeFor(&file))
	c.Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", file.OriginalName))
	return c.SendStream(blob, int(size))
}

func (h *FilesHandler) SharedDownload(c *fiber.Ctx) error {
	var file models.File
	if err := h.DB.First(&file, "share_token = ?", c.Params("token")).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "file not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading file")
	}

	if !h.Access.CanView(viewerID(c), file) {
		return utils.Error(c, fiber.StatusForbidden, "access denied")
	}

	blob, size, err := h.openBlob(c, &file)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return utils.Error(c, fiber.StatusInternalServerError, "file content unavailable")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed reading file")
	}

	// The counter moves only once the blob is confirmed readable: failed and
	// forbidden attempts never count.
	if err := h.DB.Model(&models.File{}).Where("id = ?", file.ID).
		UpdateColumn("download_count", gorm.Expr("download_count + 1")).Error; err != nil {
		logger.Error("download_count_increment_failed", err, map[string]interface{}{
			"file_id": file.ID.String(),
		})
	}

	logger.Info("file_downloaded", map[string]interface{}{
		"file_id":   file.ID.String(),
		"file_name": file.OriginalName,
		"anonymous": viewerID(c) == uuid.Nil,
	})

	c.Set("Content-Type", contentTypeFor(&file))
	c.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.OriginalName))
	return c.SendStream(blob, int(size))
}

// openBlob opens a file's stored content, logging loudly when a metadata row
// has outlived its bytes. Callers map the error onto a response.
func (h *FilesHandler) openBlob(c *fiber.Ctx, file *models.File) (io.ReadCloser, int64, error) {
	blob, size, err := h.Storage.Open(c.Context(), file.StorageName)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			logger.Error("file_blob_missing", err, map[string]interface{}{
				"file_id":      file.ID.String(),
				"storage_name": file.StorageName,
			})
		}
		return nil, 0, err
	}
	return blob, size, nil
}

func viewerID(c *fiber.Ctx) uuid.UUID {
	if currentUser := middleware.GetCurrentUser(c); currentUser != nil {
		return currentUser.ID
	}
	return uuid.Nil
}

func contentTypeFor(file *models.File) string {
	if ct := mime.TypeByExtension("." + file.FileType); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
