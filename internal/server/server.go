package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"reviewshelf/internal/app"
	"reviewshelf/internal/ratelimit"
	"reviewshelf/internal/util"
	"reviewshelf/pkg/domain"
)

// Session cookie names, one per role. The frontend distinguishes admin
// sessions from reader sessions by which cookie is set.
const (
	userCookie  = "User_Token"
	adminCookie = "Admin_Token"
)

const defaultMaxUploadBytes = 8 << 20

// Config wires required dependencies for the HTTP server.
type Config struct {
	App *app.App

	RedisAddr     string
	RedisPassword string

	RegisterLimitPerMinute int
	LoginLimitPerMinute    int

	CORSOrigin     string
	TrustProxy     bool
	CookieSecure   bool
	SessionTTL     time.Duration
	MaxUploadBytes int64
}

// Server exposes the HTTP API.
type Server struct {
	app             *app.App
	mux             *http.ServeMux
	corsOrigin      string
	trustProxy      bool
	cookieSecure    bool
	sessionTTL      time.Duration
	maxUploadBytes  int64
	registerLimiter *ratelimit.FixedWindowLimiter
	loginLimiter    *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured. Rate limiting on the
// credential endpoints is enabled when a Redis address is supplied.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, fmt.Errorf("app is required")
	}
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = 72 * time.Hour
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	s := &Server{
		app:            cfg.App,
		mux:            http.NewServeMux(),
		corsOrigin:     cfg.CORSOrigin,
		trustProxy:     cfg.TrustProxy,
		cookieSecure:   cfg.CookieSecure,
		sessionTTL:     cfg.SessionTTL,
		maxUploadBytes: cfg.MaxUploadBytes,
	}
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		newLimiter := func(name string, limit int) (*ratelimit.FixedWindowLimiter, error) {
			prefix := "reviewshelf:ratelimit:" + name
			limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, prefix, limit, time.Minute)
			if err != nil {
				return nil, fmt.Errorf("init %s limiter: %w", name, err)
			}
			return limiter, nil
		}
		registerLimit := cfg.RegisterLimitPerMinute
		if registerLimit <= 0 {
			registerLimit = 10
		}
		loginLimit := cfg.LoginLimitPerMinute
		if loginLimit <= 0 {
			loginLimit = 20
		}
		var err error
		if s.registerLimiter, err = newLimiter("register", registerLimit); err != nil {
			return nil, err
		}
		if s.loginLimiter, err = newLimiter("login", loginLimit); err != nil {
			return nil, err
		}
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler with the middleware chain applied.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(util.WithSecurityHeaders(util.WithCORS(s.corsOrigin, s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// identity
	s.mux.HandleFunc("/user/register", s.handleRegister)
	s.mux.HandleFunc("/user/login", s.handleLogin)
	s.mux.Handle("/user/logout", s.authenticated(s.handleLogout))
	s.mux.Handle("/user/fetch-me", s.authenticated(s.handleFetchMe))
	s.mux.Handle("/user/update/", s.authenticated(s.handleUpdateProfile))

	// catalog; the read endpoints are public
	s.mux.Handle("/book/publish", s.adminOnly(s.handlePublishBook))
	s.mux.Handle("/book/fetch-publisher-book", s.adminOnly(s.handlePublisherBooks))
	s.mux.HandleFunc("/book/fetch-all-book", s.handleAllBooks)
	s.mux.HandleFunc("/book/fetch-single-book/", s.handleSingleBook)
	s.mux.Handle("/book/update/", s.adminOnly(s.handleUpdateBook))
	s.mux.Handle("/book/delete/", s.adminOnly(s.handleDeleteBook))

	// reviews; reading aggregates is public, writing needs a reader session
	s.mux.Handle("/book/give-review/", s.userOnly(s.handleGiveReview))
	s.mux.HandleFunc("/book/average-book-review/", s.handleBookReviews)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "ok"})
}

// auth wrappers
type authHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := sessionToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "Please login to continue")
			return
		}
		user, ok := s.app.UserFromToken(token)
		if !ok {
			writeError(w, http.StatusUnauthorized, "Please login to continue")
			return
		}
		next(w, r, user)
	})
}

func (s *Server) adminOnly(next authHandler) http.Handler {
	return s.authenticated(func(w http.ResponseWriter, r *http.Request, user domain.User) {
		if user.Role != domain.RoleAdmin {
			writeError(w, http.StatusForbidden, "Only admin can access this resource")
			return
		}
		next(w, r, user)
	})
}

func (s *Server) userOnly(next authHandler) http.Handler {
	return s.authenticated(func(w http.ResponseWriter, r *http.Request, user domain.User) {
		if user.Role != domain.RoleUser {
			writeError(w, http.StatusForbidden, "Only user can access this resource")
			return
		}
		next(w, r, user)
	})
}

// sessionToken reads the session from the role cookies, reader first.
func sessionToken(r *http.Request) (string, bool) {
	for _, name := range []string{userCookie, adminCookie} {
		if c, err := r.Cookie(name); err == nil && strings.TrimSpace(c.Value) != "" {
			return c.Value, true
		}
	}
	return "", false
}

// identity handlers

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.registerLimiter, "too many registration attempts") {
		return
	}
	var req registerRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, token, err := s.app.Register(req.Name, req.Email, req.Password)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	s.setSessionCookie(w, user.Role, token)
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": "User registered successfully",
		"user":    user,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.loginLimiter, "too many login attempts") {
		return
	}
	var req loginRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, token, err := s.app.Login(req.Email, req.Password)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	s.setSessionCookie(w, user.Role, token)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Login successful",
		"user":    user,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if token, ok := sessionToken(r); ok {
		if err := s.app.Logout(token); err != nil {
			slog.Error("logout", "error", err, "request_id", util.RequestIDFromRequest(r))
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
	}
	s.clearSessionCookie(w, userCookie)
	s.clearSessionCookie(w, adminCookie)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Logged out successfully",
	})
}

func (s *Server) handleFetchMe(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": strings.ToUpper(user.Name) + " WELCOME",
		"user":    user,
	})
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w)
		return
	}
	userID, ok := pathID(r, "/user/update/")
	if !ok {
		http.NotFound(w, r)
		return
	}
	if user.ID != userID && user.Role != domain.RoleAdmin {
		writeError(w, http.StatusForbidden, "cannot update another user's profile")
		return
	}
	var req updateProfileRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	updated, err := s.app.UpdateProfile(userID, req.Name, req.Email)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Profile updated successfully",
		"user":    updated,
	})
}

// catalog handlers

func (s *Server) handlePublishBook(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("bookImg")
	if err != nil {
		s.writeAppError(w, r, app.ErrBookImageRequired)
		return
	}
	defer file.Close()
	contentType := header.Header.Get("Content-Type")
	book, err := s.app.PublishBook(r.Context(), user, r.FormValue("name"), r.FormValue("desc"), file, header.Size, header.Filename, contentType)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": "Book published successfully",
		"book":    book,
	})
}

func (s *Server) handlePublisherBooks(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	books, err := s.app.ListPublisherBooks(user.ID)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Books fetched successfully",
		"books":   books,
	})
}

func (s *Server) handleAllBooks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	books, err := s.app.ListAllBooks()
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Books fetched successfully",
		"books":   books,
	})
}

func (s *Server) handleSingleBook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	bookID, ok := pathID(r, "/book/fetch-single-book/")
	if !ok {
		http.NotFound(w, r)
		return
	}
	book, err := s.app.GetBook(bookID)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Book fetched successfully",
		"book":    book,
	})
}

func (s *Server) handleUpdateBook(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w)
		return
	}
	bookID, ok := pathID(r, "/book/update/")
	if !ok {
		http.NotFound(w, r)
		return
	}
	var req updateBookRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	book, err := s.app.UpdateBook(bookID, req.Name, req.Desc)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Book updated successfully",
		"book":    book,
	})
}

func (s *Server) handleDeleteBook(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	bookID, ok := pathID(r, "/book/delete/")
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := s.app.DeleteBook(r.Context(), bookID); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Book deleted successfully",
	})
}

// review handlers

func (s *Server) handleGiveReview(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	bookID, ok := pathID(r, "/book/give-review/")
	if !ok {
		http.NotFound(w, r)
		return
	}
	var req giveReviewRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	review, err := s.app.SubmitReview(user, bookID, req.Desc, req.Rate)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": "Review submitted successfully",
		"review":  review,
	})
}

func (s *Server) handleBookReviews(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	bookID, ok := pathID(r, "/book/average-book-review/")
	if !ok {
		http.NotFound(w, r)
		return
	}
	result, err := s.app.BookReviews(bookID)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	message := "Reviews fetched successfully"
	if result.TotalReviews == 0 {
		message = "No reviews found"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"message":       message,
		"reviews":       result.Reviews,
		"averageRating": result.AverageRating,
		"totalReviews":  result.TotalReviews,
	})
}

// cookies

func (s *Server) setSessionCookie(w http.ResponseWriter, role domain.UserRole, token string) {
	name := userCookie
	if role == domain.RoleAdmin {
		name = adminCookie
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.sessionTTL / time.Second),
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// rate limiting

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, msg string) bool {
	if limiter == nil {
		return true
	}
	key := r.URL.Path + "|" + util.ClientIP(r, s.trustProxy)
	if limiter.Allow(key) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}

// error mapping

func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	var unsupported *app.UnsupportedImageError
	switch {
	case errors.Is(err, app.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, app.ErrFillFullForm),
		errors.Is(err, app.ErrAllDetailsRequired),
		errors.Is(err, app.ErrBookImageRequired),
		errors.Is(err, app.ErrInvalidRating),
		errors.Is(err, app.ErrInvalidBookID):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &unsupported):
		writeError(w, http.StatusBadRequest, unsupported.Error())
	case errors.Is(err, app.ErrEmailAlreadyRegistered),
		errors.Is(err, app.ErrAlreadyReviewed):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrUserNotFound),
		errors.Is(err, app.ErrAdminNotFound),
		errors.Is(err, app.ErrBookNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrUploadFailed):
		slog.Error("cover upload failed", "error", err, "request_id", util.RequestIDFromRequest(r))
		writeError(w, http.StatusInternalServerError, app.ErrUploadFailed.Error())
	default:
		slog.Error("request failed", "error", err, "path", r.URL.Path, "request_id", util.RequestIDFromRequest(r))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// helpers

func pathID(r *http.Request, prefix string) (string, bool) {
	id := strings.TrimPrefix(r.URL.Path, prefix)
	if id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "message": msg})
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type updateProfileRequest struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
}

type updateBookRequest struct {
	Name *string `json:"name"`
	Desc *string `json:"desc"`
}

type giveReviewRequest struct {
	Desc string `json:"desc"`
	Rate int    `json:"rate"`
}
