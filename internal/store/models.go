package store

import "time"

// GORM models used for persistence.
type UserModel struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string
	OrgID        string `gorm:"index;not null"`
	Name         string
	Location     string
	Website      string

	ResetPasswordToken   string `gorm:"index"`
	ResetPasswordExpires time.Time

	CreatedAt time.Time `gorm:"not null"`

	Tokens []ProviderTokenModel `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

type ProviderTokenModel struct {
	ID          uint   `gorm:"primaryKey"`
	UserID      string `gorm:"index;not null"`
	Kind        string `gorm:"not null"`
	AccessToken string `gorm:"not null"`
}

type PositionModel struct {
	ID           string `gorm:"primaryKey"`
	OrgID        string `gorm:"index;not null"`
	Title        string `gorm:"not null"`
	StartingDate time.Time
	CreatedAt    time.Time `gorm:"not null"`
}
