package domain

import "time"

type UserRole string

const (
	RoleAdmin UserRole = "Admin"
	RoleUser  UserRole = "User"
)

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// BookImage references the uploaded cover in object storage.
type BookImage struct {
	PublicID string `json:"publicId"`
	URL      string `json:"url"`
}

type Book struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Desc      string    `json:"desc"`
	Image     BookImage `json:"bookImg"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Review struct {
	ID        string    `json:"id"`
	BookID    string    `json:"bookId"`
	UserID    string    `json:"userId"`
	Desc      string    `json:"desc"`
	Rate      int       `json:"rate"`
	CreatedAt time.Time `json:"createdAt"`
}

// ReviewWithAuthor joins a review with the author's public profile.
// The author's password hash never serializes (see User.PasswordHash).
type ReviewWithAuthor struct {
	Review
	Author User `json:"user"`
}
