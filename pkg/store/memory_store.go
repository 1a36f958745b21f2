package store

import (
	"sync"

	"reviewshelf/pkg/domain"
)

// MemoryStore keeps all records in-process. Used by tests and local development.
type MemoryStore struct {
	mu      sync.RWMutex
	users   map[string]domain.User
	email   map[string]string // email -> user ID
	books   map[string]domain.Book
	order   []string // book insertion order
	reviews map[string]domain.Review
	pair    map[string]string // bookID+"\x00"+userID -> review ID
	rorder  []string          // review insertion order
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[string]domain.User),
		email:   make(map[string]string),
		books:   make(map[string]domain.Book),
		reviews: make(map[string]domain.Review),
		pair:    make(map[string]string),
	}
}

// SaveUser registers or updates a user.
func (m *MemoryStore) SaveUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.users[u.ID]; ok && prev.Email != u.Email {
		delete(m.email, prev.Email)
	}
	m.users[u.ID] = u
	m.email[u.Email] = u.ID
	return nil
}

// HasUserEmail checks if email exists.
func (m *MemoryStore) HasUserEmail(email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.email[email]
	return ok, nil
}

// GetUserByEmail looks up a user by email.
func (m *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id, ok := m.email[email]; ok {
		u, exists := m.users[id]
		return u, exists, nil
	}
	return domain.User{}, false, nil
}

// GetUserByID returns a user by ID.
func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

// UserCount returns number of users.
func (m *MemoryStore) UserCount() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users), nil
}

// SaveBook stores or replaces a book record and tracks insertion order.
func (m *MemoryStore) SaveBook(b domain.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.books[b.ID]; !exists {
		m.order = append(m.order, b.ID)
	}
	m.books[b.ID] = b
	return nil
}

// ListBooks returns books in insertion order.
func (m *MemoryStore) ListBooks() ([]domain.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Book, 0, len(m.order))
	for _, id := range m.order {
		if b, ok := m.books[id]; ok {
			res = append(res, b)
		}
	}
	return res, nil
}

// ListBooksByPublisher returns books filtered by the registering admin.
func (m *MemoryStore) ListBooksByPublisher(publisherID string) ([]domain.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Book, 0, len(m.order))
	for _, id := range m.order {
		if b, ok := m.books[id]; ok && b.CreatedBy == publisherID {
			res = append(res, b)
		}
	}
	return res, nil
}

// GetBook retrieves a book by ID.
func (m *MemoryStore) GetBook(id string) (domain.Book, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.books[id]
	return b, ok, nil
}

// DeleteBook removes a book and cascades to its reviews.
func (m *MemoryStore) DeleteBook(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.books, id)
	filtered := m.order[:0]
	for _, item := range m.order {
		if item != id {
			filtered = append(filtered, item)
		}
	}
	m.order = filtered
	kept := m.rorder[:0]
	for _, rid := range m.rorder {
		r, ok := m.reviews[rid]
		if ok && r.BookID == id {
			delete(m.reviews, rid)
			delete(m.pair, pairKey(r.BookID, r.UserID))
			continue
		}
		kept = append(kept, rid)
	}
	m.rorder = kept
	return nil
}

// CreateReview inserts a review unless the (book, user) pair already has one.
// Check and insert happen under one lock, so concurrent duplicates cannot race.
func (m *MemoryStore) CreateReview(r domain.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey(r.BookID, r.UserID)
	if _, exists := m.pair[key]; exists {
		return ErrDuplicateReview
	}
	m.reviews[r.ID] = r
	m.pair[key] = r.ID
	m.rorder = append(m.rorder, r.ID)
	return nil
}

// HasReview checks whether the (book, user) pair already reviewed.
func (m *MemoryStore) HasReview(bookID, userID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.pair[pairKey(bookID, userID)]
	return ok, nil
}

// ListReviewsByBook returns reviews joined with their authors, oldest first.
func (m *MemoryStore) ListReviewsByBook(bookID string) ([]domain.ReviewWithAuthor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.ReviewWithAuthor, 0)
	for _, rid := range m.rorder {
		r, ok := m.reviews[rid]
		if !ok || r.BookID != bookID {
			continue
		}
		author := m.users[r.UserID]
		res = append(res, domain.ReviewWithAuthor{Review: r, Author: author})
	}
	return res, nil
}

func pairKey(bookID, userID string) string {
	return bookID + "\x00" + userID
}
