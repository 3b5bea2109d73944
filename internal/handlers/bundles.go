package handlers

import (
	"archive/zip"
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fileshare/backend/internal/middleware"
	"github.com/fileshare/backend/internal/models"
	"github.com/fileshare/backend/internal/services"
	"github.com/fileshare/backend/internal/storage"
	"github.com/fileshare/backend/pkg/logger"
	"github.com/fileshare/backend/pkg/sharetoken"
	"github.com/fileshare/backend/pkg/utils"
)

type BundlesHandler struct {
	DB      *gorm.DB
	Storage storage.Backend
	Access  *services.AccessService
}

func NewBundlesHandler(db *gorm.DB, backend storage.Backend, access *services.AccessService) *BundlesHandler {
	return &BundlesHandler{DB: db, Storage: backend, Access: access}
}

type bundleRequest struct {
	Name              string   `json:"name"`
	TransactionNumber string   `json:"transactionNumber"`
	IsPublic          bool     `json:"isPublic"`
	FileIDs           []string `json:"fileIDs"`
}

// validate trims the request fields and returns the deduplicated file
// selection, or a message describing what is wrong with the request.
func (req *bundleRequest) validate() ([]uuid.UUID, string) {
	req.Name = strings.TrimSpace(req.Name)
	req.TransactionNumber = strings.TrimSpace(req.TransactionNumber)

	if req.Name == "" {
		return nil, "name is required"
	}
	if req.TransactionNumber == "" {
		return nil, "transactionNumber is required"
	}
	if len(req.FileIDs) == 0 {
		return nil, "at least one file is required"
	}

	seen := make(map[uuid.UUID]struct{}, len(req.FileIDs))
	ids := make([]uuid.UUID, 0, len(req.FileIDs))
	for _, raw := range req.FileIDs {
		id, err := parseUUID(raw)
		if err != nil {
			return nil, "invalid file id in selection"
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	return ids, ""
}

func (h *BundlesHandler) Create(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req bundleRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	fileIDs, validationErr := req.validate()
	if validationErr != "" {
		return utils.Error(c, fiber.StatusBadRequest, validationErr)
	}

	owned, err := h.Access.VerifyFilesOwned(c.Context(), currentUser.ID, fileIDs)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed verifying file ownership")
	}
	if !owned {
		logger.WarnWithUser(currentUser.ID.String(), "permission_denied", map[string]interface{}{
			"action": "bundle_create",
		})
		return utils.Error(c, fiber.StatusForbidden, "selection contains files you do not own")
	}

	token, err := sharetoken.New()
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating share token")
	}

	bundle := models.Bundle{
		Name:              req.Name,
		TransactionNumber: req.TransactionNumber,
		OwnerID:           currentUser.ID,
		IsPublic:          req.IsPublic,
		ShareToken:        token,
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&bundle).Error; err != nil {
			return err
		}
		memberships := make([]models.BundleFile, len(fileIDs))
		for i, fileID := range fileIDs {
			memberships[i] = models.BundleFile{BundleID: bundle.ID, FileID: fileID}
		}
		return tx.Create(&memberships).Error
	})
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating bundle")
	}

	bundle.FileCount = int64(len(fileIDs))

	logger.InfoWithUser(currentUser.ID.String(), "bundle_created", map[string]interface{}{
		"bundle_id":          bundle.ID.String(),
		"bundle_name":        bundle.Name,
		"transaction_number": bundle.TransactionNumber,
		"file_count":         len(fileIDs),
	})

	return utils.Success(c, fiber.StatusCreated, bundle)
}

func (h *BundlesHandler) List(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var bundles []models.Bundle
	if err := h.DB.Where("owner_id = ?", currentUser.ID).Order("created_at DESC").Find(&bundles).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing bundles")
	}

	if len(bundles) > 0 {
		bundleIDs := make([]uuid.UUID, len(bundles))
		for i, b := range bundles {
			bundleIDs[i] = b.ID
		}

		var results []struct {
			BundleID uuid.UUID
			Count    int64
		}
		err := h.DB.Model(&models.BundleFile{}).
			Select("bundle_id, count(*) as count").
			Where("bundle_id IN ?", bundleIDs).
			Group("bundle_id").
			Scan(&results).Error
		if err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed counting bundle files")
		}

		counts := make(map[uuid.UUID]int64)
		for _, r := range results {
			counts[r.BundleID] = r.Count
		}

		for i := range bundles {
			bundles[i].FileCount = counts[bundles[i].ID]
		}
	}

	return utils.Success(c, fiber.StatusOK, bundles)
}

func (h *BundlesHandler) Get(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	bundleID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid bundle id")
	}

	var bundle models.Bundle
	if err := h.DB.First(&bundle, "id = ?", bundleID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "bundle not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading bundle")
	}

	if !h.Access.CanView(currentUser.ID, bundle) {
		return utils.Error(c, fiber.StatusForbidden, "access denied")
	}

	files, err := h.bundleFiles(bundle.ID)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading bundle files")
	}
	bundle.Files = files
	bundle.FileCount = int64(len(files))

	return utils.Success(c, fiber.StatusOK, bundle)
}

// Update is a full replace: fields and the whole membership set are taken
// from the request, in one transaction, so readers never observe the
// half-cleared state.
func (h *BundlesHandler) Update(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	bundleID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid bundle id")
	}

	var bundle models.Bundle
	if err := h.DB.First(&bundle, "id = ?", bundleID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "bundle not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading bundle")
	}

	if !h.Access.CanModify(currentUser.ID, bundle) {
		return utils.Error(c, fiber.StatusForbidden, "access denied")
	}

	var req bundleRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	fileIDs, validationErr := req.validate()
	if validationErr != "" {
		return utils.Error(c, fiber.StatusBadRequest, validationErr)
	}

	owned, err := h.Access.VerifyFilesOwned(c.Context(), currentUser.ID, fileIDs)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed verifying file ownership")
	}
	if !owned {
		logger.WarnWithUser(currentUser.ID.String(), "permission_denied", map[string]interface{}{
			"action":    "bundle_update",
			"target_id": bundle.ID.String(),
		})
		return utils.Error(c, fiber.StatusForbidden, "selection contains files you do not own")
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&bundle).Updates(map[string]interface{}{
			"name":               req.Name,
			"transaction_number": req.TransactionNumber,
			"is_public":          req.IsPublic,
		}).Error; err != nil {
			return err
		}
		if err := tx.Where("bundle_id = ?", bundle.ID).Delete(&models.BundleFile{}).Error; err != nil {
			return err
		}
		memberships := make([]models.BundleFile, len(fileIDs))
		for i, fileID := range fileIDs {
			memberships[i] = models.BundleFile{BundleID: bundle.ID, FileID: fileID}
		}
		return tx.Create(&memberships).Error
	})
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating bundle")
	}

	files, err := h.bundleFiles(bundle.ID)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading bundle files")
	}
	bundle.Files = files
	bundle.FileCount = int64(len(files))

	logger.InfoWithUser(currentUser.ID.String(), "bundle_updated", map[string]interface{}{
		"bundle_id":  bundle.ID.String(),
		"file_count": len(fileIDs),
	})

	return utils.Success(c, fiber.StatusOK, bundle)
}

func (h *BundlesHandler) ToggleVisibility(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	bundleID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid bundle id")
	}

	var bundle models.Bundle
	if err := h.DB.First(&bundle, "id = ?", bundleID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "bundle not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading bundle")
	}

	if !h.Access.CanModify(currentUser.ID, bundle) {
		return utils.Error(c, fiber.StatusForbidden, "access denied")
	}

	if err := h.DB.Model(&bundle).Update("is_public", !bundle.IsPublic).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating visibility")
	}

	logger.InfoWithUser(currentUser.ID.String(), "bundle_visibility_toggled", map[string]interface{}{
		"bundle_id": bundle.ID.String(),
		"is_public": bundle.IsPublic,
	})

	return utils.Success(c, fiber.StatusOK, bundle)
}

// Delete removes the bundle and its membership rows. Member files stay.
func (h *BundlesHandler) Delete(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	bundleID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid bundle id")
	}

	var bundle models.Bundle
	if err := h.DB.First(&bundle, "id = ?", bundleID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "bundle not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading bundle")
	}

	if !h.Access.CanModify(currentUser.ID, bundle) {
		logger.WarnWithUser(currentUser.ID.String(), "permission_denied", map[string]interface{}{
			"action":    "bundle_delete",
			"target_id": bundle.ID.String(),
		})
		return utils.Error(c, fiber.StatusForbidden, "access denied")
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("bundle_id = ?", bundle.ID).Delete(&models.BundleFile{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Bundle{}, "id = ?", bundle.ID).Error
	})
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting bundle")
	}

	logger.InfoWithUser(currentUser.ID.String(), "bundle_deleted", map[string]interface{}{
		"bundle_id":   bundle.ID.String(),
		"bundle_name": bundle.Name,
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "bundle deleted"})
}

func (h *BundlesHandler) SharedGet(c *fiber.Ctx) error {
	var bundle models.Bundle
	if err := h.DB.First(&bundle, "share_token = ?", c.Params("token")).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "bundle not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading bundle")
	}

	if !h.Access.CanView(viewerID(c), bundle) {
		return utils.Error(c, fiber.StatusForbidden, "access denied")
	}

	files, err := h.bundleFiles(bundle.ID)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading bundle files")
	}
	bundle.Files = files
	bundle.FileCount = int64(len(files))

	return utils.Success(c, fiber.StatusOK, bundle)
}

// SharedDownload streams every member file as one zip archive named after
// the bundle's transaction number. Members whose blob has gone missing are
// skipped with a warning rather than failing the whole archive.
func (h *BundlesHandler) SharedDownload(c *fiber.Ctx) error {
	var bundle models.Bundle
	if err := h.DB.First(&bundle, "share_token = ?", c.Params("token")).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "bundle not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading bundle")
	}

	if !h.Access.CanView(viewerID(c), bundle) {
		return utils.Error(c, fiber.StatusForbidden, "access denied")
	}

	files, err := h.bundleFiles(bundle.ID)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading bundle files")
	}
	if len(files) == 0 {
		return utils.Error(c, fiber.StatusNotFound, "bundle has no files")
	}

	if err := h.DB.Model(&models.Bundle{}).Where("id = ?", bundle.ID).
		UpdateColumn("download_count", gorm.Expr("download_count + 1")).Error; err != nil {
		logger.Error("download_count_increment_failed", err, map[string]interface{}{
			"bundle_id": bundle.ID.String(),
		})
	}

	logger.Info("bundle_downloaded", map[string]interface{}{
		"bundle_id":  bundle.ID.String(),
		"file_count": len(files),
		"anonymous":  viewerID(c) == uuid.Nil,
	})

	zipName := utils.SanitizeFilename(bundle.TransactionNumber)
	if zipName == "" {
		zipName = "bundle"
	}
	zipName += ".zip"

	bundleID := bundle.ID.String()

	c.Set("Content-Type", "application/zip")
	c.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", zipName))
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		zw := zip.NewWriter(w)
		defer zw.Close()

		// The request context is already recycled by the time this writer
		// runs, so blob reads get their own.
		ctx := context.Background()

		for _, member := range files {
			blob, _, err := h.Storage.Open(ctx, member.StorageName)
			if err != nil {
				logger.Warn("bundle_member_blob_missing", map[string]interface{}{
					"bundle_id":    bundleID,
					"file_id":      member.ID.String(),
					"storage_name": member.StorageName,
				})
				continue
			}

			entry, err := zw.Create(member.OriginalName)
			if err != nil {
				blob.Close()
				return
			}
			if _, err := io.Copy(entry, blob); err != nil {
				blob.Close()
				return
			}
			blob.Close()
		}
	})
	return nil
}

// bundleFiles loads the bundle's live member files, stably ordered for
// display and zip assembly.
func (h *BundlesHandler) bundleFiles(bundleID uuid.UUID) ([]models.File, error) {
	var files []models.File
	err := h.DB.
		Joins("JOIN bundle_files ON bundle_files.file_id = files.id").
		Where("bundle_files.bundle_id = ?", bundleID).
		Order("files.original_name ASC").
		Find(&files).Error
	return files, err
}
