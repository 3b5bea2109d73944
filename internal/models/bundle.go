package models

import "github.com/google/uuid"

type Bundle struct {
	BaseModel
	Name              string    `json:"name" gorm:"type:varchar(255);not null"`
	TransactionNumber string    `json:"transactionNumber" gorm:"type:varchar(100);not null;index"`
	OwnerID           uuid.UUID `json:"ownerID" gorm:"type:uuid;not null;index"`
	IsPublic          bool      `json:"isPublic" gorm:"not null;default:false"`
	ShareToken        string    `json:"shareToken" gorm:"type:varchar(64);uniqueIndex;not null"`
	DownloadCount     int64     `json:"downloadCount" gorm:"not null;default:0"`

	Owner User `json:"owner,omitempty" gorm:"foreignKey:OwnerID;references:ID"`

	// Files and FileCount are filled by handler queries over bundle_files;
	// membership rows are managed explicitly, not through an association.
	Files     []File `json:"files,omitempty" gorm:"-"`
	FileCount int64  `json:"fileCount" gorm:"-"`
}

func (b Bundle) ResourceOwnerID() uuid.UUID { return b.OwnerID }

func (b Bundle) PubliclyVisible() bool { return b.IsPublic }
