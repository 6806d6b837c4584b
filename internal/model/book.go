package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Book is a catalog entry together with its copy ledger.
//
// AvailableCopies always equals TotalCopies minus the number of active
// borrowings of the book. Both counters are guarded by CHECK constraints.
type Book struct {
	ID              uuid.UUID      `json:"id" gorm:"type:char(36);primaryKey"`
	Title           string         `json:"title" gorm:"size:255;not null;index"`
	Author          string         `json:"author" gorm:"size:255;not null;index"`
	ISBN            string         `json:"isbn" gorm:"size:32;not null;uniqueIndex"`
	PublishedYear   int            `json:"published_year" gorm:"not null"`
	Genre           string         `json:"genre" gorm:"size:100;not null;index"`
	Description     string         `json:"description" gorm:"type:text"`
	CoverImage      string         `json:"cover_image" gorm:"size:512"`
	TotalCopies     int            `json:"total_copies" gorm:"not null;check:total_copies >= 0"`
	AvailableCopies int            `json:"available_copies" gorm:"not null;check:available_copies >= 0 AND available_copies <= total_copies"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `json:"-" gorm:"index"`
}

// BeforeCreate sets UUID before creating the record.
func (b *Book) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}
