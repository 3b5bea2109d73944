package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BundleFile is a bare membership row. It does NOT use BaseModel: membership
// is hard-deleted when a bundle is edited or removed, so soft-delete residue
// can never shadow a (bundle_id, file_id) pair.
type BundleFile struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	BundleID  uuid.UUID `json:"bundleID" gorm:"type:uuid;not null;uniqueIndex:idx_bundle_file;index"`
	FileID    uuid.UUID `json:"fileID" gorm:"type:uuid;not null;uniqueIndex:idx_bundle_file;index"`
	CreatedAt time.Time `json:"createdAt" gorm:"not null"`
}

func (bf *BundleFile) BeforeCreate(_ *gorm.DB) error {
	if bf.ID == uuid.Nil {
		bf.ID = uuid.New()
	}
	return nil
}

func (BundleFile) TableName() string {
	return "bundle_files"
}
