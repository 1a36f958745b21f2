package store

import (
	"errors"

	"reviewshelf/pkg/domain"
)

// ErrDuplicateReview is returned when a (book, user) pair already has a review.
var ErrDuplicateReview = errors.New("duplicate review")

// Store defines persistence operations for users, books, and reviews.
type Store interface {
	// users
	SaveUser(domain.User) error
	HasUserEmail(email string) (bool, error)
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)
	UserCount() (int, error)

	// books
	SaveBook(domain.Book) error
	ListBooks() ([]domain.Book, error)
	ListBooksByPublisher(publisherID string) ([]domain.Book, error)
	GetBook(id string) (domain.Book, bool, error)
	DeleteBook(id string) error

	// reviews
	CreateReview(domain.Review) error
	HasReview(bookID, userID string) (bool, error)
	ListReviewsByBook(bookID string) ([]domain.ReviewWithAuthor, error)
}

// SessionStore issues and validates session tokens.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}
