package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role is the authorization level of a user.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// User represents an authenticated library member or administrator.
type User struct {
	ID               uuid.UUID      `json:"id" gorm:"type:char(36);primaryKey"`
	Name             string         `json:"name" gorm:"size:255;not null"`
	Email            string         `json:"email" gorm:"uniqueIndex;size:255;not null"`
	PasswordHash     string         `json:"-" gorm:"size:255;not null"` // Never expose in JSON
	Role             Role           `json:"role" gorm:"size:20;not null;default:'USER';index"`
	ResetTokenHash   *string        `json:"-" gorm:"size:64;uniqueIndex"`
	ResetTokenExpiry *time.Time     `json:"-"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `json:"-" gorm:"index"`
}

// BeforeCreate sets UUID before creating the record.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	return nil
}

// IsAdmin reports whether the user has the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
