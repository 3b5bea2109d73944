package models

type User struct {
	BaseModel
	Username     string `json:"username" gorm:"type:varchar(80);uniqueIndex;not null"`
	Email        string `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash string `json:"-" gorm:"type:text;not null"`

	Files   []File   `json:"-" gorm:"foreignKey:OwnerID"`
	Bundles []Bundle `json:"-" gorm:"foreignKey:OwnerID"`
}
