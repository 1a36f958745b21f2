package store

import (
	"errors"
	"sync"
	"testing"
	"time"

	"reviewshelf/pkg/domain"
)

func seedUser(t *testing.T, s *MemoryStore, id, email string, role domain.UserRole) domain.User {
	t.Helper()
	u := domain.User{
		ID:        id,
		Name:      "name-" + id,
		Email:     email,
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.SaveUser(u); err != nil {
		t.Fatalf("save user: %v", err)
	}
	return u
}

func TestMemoryStoreUserEmailIndexFollowsUpdates(t *testing.T) {
	s := NewMemoryStore()
	seedUser(t, s, "u1", "old@example.com", domain.RoleUser)

	u, ok, err := s.GetUserByEmail("old@example.com")
	if err != nil || !ok || u.ID != "u1" {
		t.Fatalf("lookup by email: ok=%v err=%v", ok, err)
	}

	u.Email = "new@example.com"
	if err := s.SaveUser(u); err != nil {
		t.Fatalf("update user: %v", err)
	}
	if ok, _ := s.HasUserEmail("old@example.com"); ok {
		t.Fatalf("old email should be released after update")
	}
	if ok, _ := s.HasUserEmail("new@example.com"); !ok {
		t.Fatalf("new email should be indexed")
	}
}

func TestMemoryStoreCreateReviewRejectsDuplicatePair(t *testing.T) {
	s := NewMemoryStore()
	review := domain.Review{ID: "r1", BookID: "b1", UserID: "u1", Rate: 4}
	if err := s.CreateReview(review); err != nil {
		t.Fatalf("first review: %v", err)
	}
	dup := domain.Review{ID: "r2", BookID: "b1", UserID: "u1", Rate: 5}
	if err := s.CreateReview(dup); !errors.Is(err, ErrDuplicateReview) {
		t.Fatalf("expected duplicate review error, got: %v", err)
	}
	// A different user reviewing the same book is fine.
	other := domain.Review{ID: "r3", BookID: "b1", UserID: "u2", Rate: 3}
	if err := s.CreateReview(other); err != nil {
		t.Fatalf("other user review: %v", err)
	}
}

func TestMemoryStoreConcurrentDuplicateReviewsAdmitOne(t *testing.T) {
	s := NewMemoryStore()
	const attempts = 32
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.CreateReview(domain.Review{
				ID:     "r-" + string(rune('a'+i%26)) + string(rune('0'+i/26)),
				BookID: "b1",
				UserID: "u1",
				Rate:   5,
			})
		}(i)
	}
	wg.Wait()
	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, ErrDuplicateReview) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one review to survive, got %d", succeeded)
	}
	reviews, err := s.ListReviewsByBook("b1")
	if err != nil {
		t.Fatalf("list reviews: %v", err)
	}
	if len(reviews) != 1 {
		t.Fatalf("expected one stored review, got %d", len(reviews))
	}
}

func TestMemoryStoreDeleteBookCascadesReviews(t *testing.T) {
	s := NewMemoryStore()
	seedUser(t, s, "u1", "a@example.com", domain.RoleUser)
	if err := s.SaveBook(domain.Book{ID: "b1", Name: "One"}); err != nil {
		t.Fatalf("save book: %v", err)
	}
	if err := s.SaveBook(domain.Book{ID: "b2", Name: "Two"}); err != nil {
		t.Fatalf("save book: %v", err)
	}
	if err := s.CreateReview(domain.Review{ID: "r1", BookID: "b1", UserID: "u1", Rate: 4}); err != nil {
		t.Fatalf("review b1: %v", err)
	}
	if err := s.CreateReview(domain.Review{ID: "r2", BookID: "b2", UserID: "u1", Rate: 2}); err != nil {
		t.Fatalf("review b2: %v", err)
	}

	if err := s.DeleteBook("b1"); err != nil {
		t.Fatalf("delete book: %v", err)
	}
	if _, ok, _ := s.GetBook("b1"); ok {
		t.Fatalf("book should be gone")
	}
	if reviews, _ := s.ListReviewsByBook("b1"); len(reviews) != 0 {
		t.Fatalf("reviews of deleted book should be cascaded, got %d", len(reviews))
	}
	if reviews, _ := s.ListReviewsByBook("b2"); len(reviews) != 1 {
		t.Fatalf("other book's reviews must survive, got %d", len(reviews))
	}
	// The pair is free again after cascade.
	if err := s.CreateReview(domain.Review{ID: "r4", BookID: "b1", UserID: "u1", Rate: 1}); err != nil {
		t.Fatalf("re-review after cascade: %v", err)
	}
}

func TestMemoryStoreListReviewsJoinsAuthor(t *testing.T) {
	s := NewMemoryStore()
	author := seedUser(t, s, "u1", "a@example.com", domain.RoleUser)
	if err := s.CreateReview(domain.Review{ID: "r1", BookID: "b1", UserID: author.ID, Rate: 4}); err != nil {
		t.Fatalf("review: %v", err)
	}
	reviews, err := s.ListReviewsByBook("b1")
	if err != nil {
		t.Fatalf("list reviews: %v", err)
	}
	if len(reviews) != 1 {
		t.Fatalf("expected one review, got %d", len(reviews))
	}
	if reviews[0].Author.Email != author.Email || reviews[0].Author.Name != author.Name {
		t.Fatalf("expected author join, got %+v", reviews[0].Author)
	}
}
