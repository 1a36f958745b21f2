package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"reviewshelf/pkg/auth"
	"reviewshelf/pkg/domain"
	"reviewshelf/pkg/storage"
	"reviewshelf/pkg/store"
)

// allowedImageTypes is the accepted set of cover image content types.
var allowedImageTypes = map[string]bool{
	"image/jpg":  true,
	"image/jpeg": true,
	"image/png":  true,
}

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	SessionTTL    time.Duration
	JWTSecret     string
	JWTIssuer     string
	JWTAudience   string
	JWTLeeway     time.Duration

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	Store    store.Store
	Sessions store.SessionStore
	Objects  storage.ObjectStore
}

// App is the core application service wiring storage, sessions, and uploads.
type App struct {
	store    store.Store
	sessions store.SessionStore
	objects  storage.ObjectStore
}

// New constructs the application with database storage, JWT sessions, and
// object storage for cover images.
func New(cfg Config) (*App, error) {
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = 72 * time.Hour
	}

	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}

	sessionStore := cfg.Sessions
	if sessionStore == nil {
		if strings.TrimSpace(cfg.JWTSecret) == "" {
			return nil, fmt.Errorf("jwtSecret is required")
		}
		var revoker store.TokenRevoker = store.NewMemoryTokenRevoker()
		if strings.TrimSpace(cfg.RedisAddr) != "" {
			revoker = store.NewRedisTokenRevoker(cfg.RedisAddr, cfg.RedisPassword)
		}
		jwtStore, err := store.NewJWTSessionStoreWithOptions(cfg.JWTSecret, cfg.SessionTTL, revoker, store.JWTOptions{
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
			Leeway:   cfg.JWTLeeway,
		})
		if err != nil {
			return nil, fmt.Errorf("init jwt session store: %w", err)
		}
		sessionStore = jwtStore
	}

	objectStore := cfg.Objects
	if objectStore == nil {
		if strings.TrimSpace(cfg.MinioEndpoint) == "" {
			return nil, fmt.Errorf("minio endpoint required")
		}
		var err error
		objectStore, err = storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			return nil, fmt.Errorf("init minio store: %w", err)
		}
	}

	return &App{
		store:    dataStore,
		sessions: sessionStore,
		objects:  objectStore,
	}, nil
}

// Register creates a new account and issues a session token.
// The first account ever created becomes the admin.
func (a *App) Register(name, email, password string) (domain.User, string, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(strings.ToLower(email))
	if name == "" || email == "" || password == "" {
		return domain.User{}, "", ErrFillFullForm
	}
	if err := auth.ValidatePassword(password); err != nil {
		return domain.User{}, "", err
	}
	exists, err := a.store.HasUserEmail(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("check email: %w", err)
	}
	if exists {
		return domain.User{}, "", ErrEmailAlreadyRegistered
	}
	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("hash password: %w", err)
	}
	role := domain.RoleUser
	count, err := a.store.UserCount()
	if err != nil {
		return domain.User{}, "", fmt.Errorf("count users: %w", err)
	}
	if count == 0 {
		role = domain.RoleAdmin
	}
	now := time.Now().UTC()
	user := domain.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, "", fmt.Errorf("save user: %w", err)
	}
	return a.issueSession(user)
}

// Login validates credentials and issues a session token.
func (a *App) Login(email, password string) (domain.User, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	user, ok, err := a.store.GetUserByEmail(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return domain.User{}, "", ErrInvalidCredentials
	}
	if !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	return a.issueSession(user)
}

func (a *App) issueSession(user domain.User) (domain.User, string, error) {
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue session token: %w", err)
	}
	return user, token, nil
}

// Logout invalidates the presented session token. Idempotent.
func (a *App) Logout(token string) error {
	if strings.TrimSpace(token) == "" {
		return nil
	}
	return a.sessions.DeleteSession(token)
}

// UserFromToken resolves a user from a session token. A token whose subject
// no longer exists resolves to nothing.
func (a *App) UserFromToken(token string) (domain.User, bool) {
	uid, ok, err := a.sessions.GetUserIDByToken(token)
	if err != nil || !ok {
		return domain.User{}, false
	}
	user, found, err := a.store.GetUserByID(uid)
	if err != nil || !found {
		return domain.User{}, false
	}
	return user, true
}

// UpdateProfile applies a partial update to a user's name and email.
// Changing email to one held by another account is a conflict.
func (a *App) UpdateProfile(userID string, name, email *string) (domain.User, error) {
	user, ok, err := a.store.GetUserByID(userID)
	if err != nil {
		return domain.User{}, fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return domain.User{}, ErrUserNotFound
	}
	changed := false
	if name != nil && strings.TrimSpace(*name) != "" && strings.TrimSpace(*name) != user.Name {
		user.Name = strings.TrimSpace(*name)
		changed = true
	}
	if email != nil && strings.TrimSpace(*email) != "" {
		next := strings.TrimSpace(strings.ToLower(*email))
		if next != user.Email {
			existing, found, err := a.store.GetUserByEmail(next)
			if err != nil {
				return domain.User{}, fmt.Errorf("check email: %w", err)
			}
			if found && existing.ID != user.ID {
				return domain.User{}, ErrEmailAlreadyRegistered
			}
			user.Email = next
			changed = true
		}
	}
	// A no-op update leaves the record untouched, timestamp included.
	if !changed {
		return user, nil
	}
	user.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, fmt.Errorf("update user: %w", err)
	}
	return user, nil
}

// PublishBook uploads the cover image and creates the catalog entry.
// The image is rolled back from object storage if persistence fails.
func (a *App) PublishBook(ctx context.Context, creator domain.User, name, desc string, image io.Reader, size int64, filename, contentType string) (domain.Book, error) {
	name = strings.TrimSpace(name)
	desc = strings.TrimSpace(desc)
	if image == nil {
		return domain.Book{}, ErrBookImageRequired
	}
	if !allowedImageTypes[contentType] {
		return domain.Book{}, &UnsupportedImageError{ContentType: contentType}
	}
	if name == "" || desc == "" {
		return domain.Book{}, ErrAllDetailsRequired
	}

	bookID := uuid.NewString()
	key := "covers/" + bookID + "/" + sanitizeObjectName(filename)
	url, err := a.objects.Put(ctx, key, image, size, contentType)
	if err != nil {
		return domain.Book{}, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	now := time.Now().UTC()
	book := domain.Book{
		ID:   bookID,
		Name: name,
		Desc: desc,
		Image: domain.BookImage{
			PublicID: key,
			URL:      url,
		},
		CreatedBy: creator.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.store.SaveBook(book); err != nil {
		_ = a.objects.Delete(ctx, key)
		return domain.Book{}, fmt.Errorf("save book: %w", err)
	}
	return book, nil
}

// ListPublisherBooks returns books published by the given admin.
func (a *App) ListPublisherBooks(adminID string) ([]domain.Book, error) {
	admin, ok, err := a.store.GetUserByID(adminID)
	if err != nil {
		return nil, fmt.Errorf("fetch user: %w", err)
	}
	if !ok || admin.Role != domain.RoleAdmin {
		return nil, ErrAdminNotFound
	}
	books, err := a.store.ListBooksByPublisher(adminID)
	if err != nil {
		return nil, fmt.Errorf("list publisher books: %w", err)
	}
	return books, nil
}

// ListAllBooks returns the full catalog.
func (a *App) ListAllBooks() ([]domain.Book, error) {
	books, err := a.store.ListBooks()
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	return books, nil
}

// GetBook returns a single catalog entry.
func (a *App) GetBook(bookID string) (domain.Book, error) {
	book, ok, err := a.store.GetBook(bookID)
	if err != nil {
		return domain.Book{}, fmt.Errorf("fetch book: %w", err)
	}
	if !ok {
		return domain.Book{}, ErrBookNotFound
	}
	return book, nil
}

// UpdateBook applies a partial update to name and description. The cover
// image is immutable after publication.
func (a *App) UpdateBook(bookID string, name, desc *string) (domain.Book, error) {
	book, ok, err := a.store.GetBook(bookID)
	if err != nil {
		return domain.Book{}, fmt.Errorf("fetch book: %w", err)
	}
	if !ok {
		return domain.Book{}, ErrBookNotFound
	}
	changed := false
	if name != nil && strings.TrimSpace(*name) != "" && strings.TrimSpace(*name) != book.Name {
		book.Name = strings.TrimSpace(*name)
		changed = true
	}
	if desc != nil && strings.TrimSpace(*desc) != "" && strings.TrimSpace(*desc) != book.Desc {
		book.Desc = strings.TrimSpace(*desc)
		changed = true
	}
	// A no-op update leaves the record untouched, timestamp included.
	if !changed {
		return book, nil
	}
	book.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveBook(book); err != nil {
		return domain.Book{}, fmt.Errorf("update book: %w", err)
	}
	return book, nil
}

// DeleteBook removes the book, its reviews, and its cover object.
func (a *App) DeleteBook(ctx context.Context, bookID string) error {
	book, ok, err := a.store.GetBook(bookID)
	if err != nil {
		return fmt.Errorf("fetch book: %w", err)
	}
	if !ok {
		return ErrBookNotFound
	}
	if err := a.store.DeleteBook(bookID); err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	if book.Image.PublicID != "" {
		// Orphaned cover objects are tolerable; the record is gone.
		_ = a.objects.Delete(ctx, book.Image.PublicID)
	}
	return nil
}

// SubmitReview records one user's review of a book. Each user reviews a
// given book at most once, enforced atomically at the storage layer.
func (a *App) SubmitReview(reviewer domain.User, bookID, desc string, rate int) (domain.Review, error) {
	if rate < 1 || rate > 5 {
		return domain.Review{}, ErrInvalidRating
	}
	if _, ok, err := a.store.GetBook(bookID); err != nil {
		return domain.Review{}, fmt.Errorf("fetch book: %w", err)
	} else if !ok {
		return domain.Review{}, ErrBookNotFound
	}
	if _, ok, err := a.store.GetUserByID(reviewer.ID); err != nil {
		return domain.Review{}, fmt.Errorf("fetch user: %w", err)
	} else if !ok {
		return domain.Review{}, ErrUserNotFound
	}
	// Fast path for the friendly message; the storage constraint is what
	// actually guarantees uniqueness under concurrency.
	already, err := a.store.HasReview(bookID, reviewer.ID)
	if err != nil {
		return domain.Review{}, fmt.Errorf("check review: %w", err)
	}
	if already {
		return domain.Review{}, ErrAlreadyReviewed
	}
	review := domain.Review{
		ID:        uuid.NewString(),
		BookID:    bookID,
		UserID:    reviewer.ID,
		Desc:      strings.TrimSpace(desc),
		Rate:      rate,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.store.CreateReview(review); err != nil {
		if errors.Is(err, store.ErrDuplicateReview) {
			return domain.Review{}, ErrAlreadyReviewed
		}
		return domain.Review{}, fmt.Errorf("create review: %w", err)
	}
	return review, nil
}

// BookReviewsResult aggregates a book's reviews.
type BookReviewsResult struct {
	Reviews       []domain.ReviewWithAuthor
	AverageRating float64
	TotalReviews  int
}

// BookReviews returns a book's reviews with author profiles and the average
// rating rounded to two decimals. Any well-formed ID is answered; an unknown
// or review-less book aggregates to 0.
func (a *App) BookReviews(bookID string) (BookReviewsResult, error) {
	if _, err := uuid.Parse(bookID); err != nil {
		return BookReviewsResult{}, ErrInvalidBookID
	}
	reviews, err := a.store.ListReviewsByBook(bookID)
	if err != nil {
		return BookReviewsResult{}, fmt.Errorf("list reviews: %w", err)
	}
	result := BookReviewsResult{
		Reviews:      reviews,
		TotalReviews: len(reviews),
	}
	if len(reviews) > 0 {
		sum := 0
		for _, r := range reviews {
			sum += r.Rate
		}
		result.AverageRating = math.Round(float64(sum)/float64(len(reviews))*100) / 100
	}
	return result, nil
}

// sanitizeObjectName keeps object keys to a safe character set and strips
// any path components from client-supplied filenames.
func sanitizeObjectName(filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	name := strings.Trim(b.String(), "._")
	if name == "" {
		return "cover"
	}
	return name
}
