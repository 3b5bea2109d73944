package services

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fileshare/backend/internal/models"
)

// Resource is anything gated by the owner-or-public rule: files and bundles.
type Resource interface {
	ResourceOwnerID() uuid.UUID
	PubliclyVisible() bool
}

type AccessService struct {
	DB *gorm.DB
}

func NewAccessService(db *gorm.DB) *AccessService {
	return &AccessService{DB: db}
}

// CanView reports whether viewerID may read the resource. Public resources
// are readable by anyone, including anonymous callers (uuid.Nil viewer).
func (a *AccessService) CanView(viewerID uuid.UUID, res Resource) bool {
	if res.PubliclyVisible() {
		return true
	}
	return viewerID != uuid.Nil && viewerID == res.ResourceOwnerID()
}

// CanModify reports whether viewerID may change or delete the resource.
// Visibility never grants write access.
func (a *AccessService) CanModify(viewerID uuid.UUID, res Resource) bool {
	return viewerID != uuid.Nil && viewerID == res.ResourceOwnerID()
}

// BundleContains reports whether the file is a member of the bundle.
func (a *AccessService) BundleContains(ctx context.Context, bundleID, fileID uuid.UUID) (bool, error) {
	var count int64
	err := a.DB.WithContext(ctx).
		Model(&models.BundleFile{}).
		Where("bundle_id = ? AND file_id = ?", bundleID, fileID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// VerifyFilesOwned checks that every id names a live file owned by ownerID.
// Duplicate ids count once.
func (a *AccessService) VerifyFilesOwned(ctx context.Context, ownerID uuid.UUID, fileIDs []uuid.UUID) (bool, error) {
	seen := make(map[uuid.UUID]struct{}, len(fileIDs))
	unique := make([]uuid.UUID, 0, len(fileIDs))
	for _, id := range fileIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	if len(unique) == 0 {
		return true, nil
	}

	var count int64
	err := a.DB.WithContext(ctx).
		Model(&models.File{}).
		Where("owner_id = ? AND id IN ?", ownerID, unique).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count == int64(len(unique)), nil
}
