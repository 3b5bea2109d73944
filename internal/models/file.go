package models

import "github.com/google/uuid"

type File struct {
	BaseModel
	// StorageName is the blob key inside the storage backend. It is never
	// serialized: share links are keyed by ShareToken, never by where the
	// bytes live.
	StorageName       string    `json:"-" gorm:"type:varchar(255);uniqueIndex;not null"`
	OriginalName      string    `json:"originalName" gorm:"type:varchar(255);not null"`
	OwnerID           uuid.UUID `json:"ownerID" gorm:"type:uuid;not null;index"`
	IsPublic          bool      `json:"isPublic" gorm:"not null;default:false"`
	ShareToken        string    `json:"shareToken" gorm:"type:varchar(64);uniqueIndex;not null"`
	Size              int64     `json:"size" gorm:"not null;default:0"`
	FileType          string    `json:"fileType" gorm:"type:varchar(16);not null"`
	DownloadCount     int64     `json:"downloadCount" gorm:"not null;default:0"`
	TransactionNumber string    `json:"transactionNumber" gorm:"type:varchar(100);not null;index"`

	Owner User `json:"owner,omitempty" gorm:"foreignKey:OwnerID;references:ID"`
}

func (f File) ResourceOwnerID() uuid.UUID { return f.OwnerID }

func (f File) PubliclyVisible() bool { return f.IsPublic }
