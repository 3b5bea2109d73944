package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Setting is an append-only branding log. Rows are never updated or deleted;
// the active logo is the newest row.
type Setting struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	LogoFilename string    `json:"logoFilename" gorm:"type:varchar(255);not null"`
	CreatedAt    time.Time `json:"createdAt" gorm:"not null;index"`
}

func (s *Setting) BeforeCreate(_ *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

func (Setting) TableName() string {
	return "settings"
}
