package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID           string    `gorm:"primaryKey"`
	Name         string    `gorm:"not null"`
	Email        string    `gorm:"uniqueIndex;not null"`
	PasswordHash string    `gorm:"not null"`
	Role         string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

type BookModel struct {
	ID        string         `gorm:"primaryKey"`
	Name      string         `gorm:"not null"`
	Desc      string         `gorm:"type:text;not null"`
	Image     datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedBy string         `gorm:"not null;index"`
	CreatedAt time.Time      `gorm:"not null"`
	UpdatedAt time.Time      `gorm:"not null"`
}

// ReviewModel carries the composite unique key that makes the
// one-review-per-user-per-book invariant a storage-level guarantee.
type ReviewModel struct {
	ID        string    `gorm:"primaryKey"`
	BookID    string    `gorm:"not null;uniqueIndex:idx_reviews_book_user"`
	UserID    string    `gorm:"not null;uniqueIndex:idx_reviews_book_user"`
	Desc      string    `gorm:"type:text"`
	Rate      int       `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;index"`
}
