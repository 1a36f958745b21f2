package app

import "errors"

var (
	// ErrInvalidCredentials is returned for both unknown email and wrong
	// password. The uniform message avoids account enumeration.
	ErrInvalidCredentials = errors.New("Invalid Credentials.")

	// ErrFillFullForm is returned when registration fields are missing.
	ErrFillFullForm = errors.New("Please fill full form")

	// ErrEmailAlreadyRegistered is returned on a duplicate registration email.
	ErrEmailAlreadyRegistered = errors.New("User already registered")

	ErrUserNotFound  = errors.New("user not found")
	ErrAdminNotFound = errors.New("Admin not found")

	// ErrAllDetailsRequired is returned when book name or description is missing.
	ErrAllDetailsRequired = errors.New("All details are required")

	ErrBookImageRequired = errors.New("book image is required")
	ErrBookNotFound      = errors.New("book not found")
	ErrInvalidBookID     = errors.New("Invalid Book ID")

	// ErrAlreadyReviewed is returned when the user has already reviewed the book.
	ErrAlreadyReviewed = errors.New("You already given a review..")

	ErrInvalidRating = errors.New("rating must be between 1 and 5")

	// ErrUploadFailed covers object storage failures while publishing a book.
	ErrUploadFailed = errors.New("error while uploading the image")
)

// UnsupportedImageError is returned when an uploaded cover has a content type
// outside the allowed set.
type UnsupportedImageError struct {
	ContentType string
}

func (e *UnsupportedImageError) Error() string {
	return e.ContentType + " not supported"
}
