package models

import "gorm.io/gorm"

// User is a trading account holder. API credentials are only required when
// the user's settings select live mode.
type User struct {
	gorm.Model
	Email     string    `gorm:"uniqueIndex;not null" json:"email"`
	APIKey    string    `json:"-"`
	APISecret string    `json:"-"`
	Settings  *Settings `gorm:"constraint:OnDelete:CASCADE" json:"settings,omitempty"`
}

// HasCredentials reports whether both live-trading credentials are set.
func (u *User) HasCredentials() bool {
	return u.APIKey != "" && u.APISecret != ""
}
