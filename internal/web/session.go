// Package web provides the HTTP server, Spotify login and JSON API for Adorify.
package web

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/justestif/adorify/internal/auth"
	"github.com/justestif/adorify/internal/db"
)

const (
	sessionCookieName = "session_id"
	sessionTTL        = 24 * time.Hour
)

// Session represents an authenticated user session.
type Session struct {
	ID        string
	Token     *oauth2.Token
	UserID    string
	UserName  string
	CreatedAt time.Time
}

// SessionManager defines the interface for session management. It is also
// the token authority the refresh scheduler works against.
type SessionManager interface {
	auth.TokenStore

	Create(ctx context.Context, token *oauth2.Token, userID, userName string) (*Session, error)
	Get(ctx context.Context, id string) *Session
	Delete(ctx context.Context, id string)
	GetFromRequest(r *http.Request) *Session
	SetCookie(w http.ResponseWriter, session *Session)
	ClearCookie(w http.ResponseWriter)
}

// ============================================================================
// In-Memory Session Store (for development/testing)
// ============================================================================

// SessionStore manages user sessions in memory.
type SessionStore struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	nextRefresh map[string]time.Time
}

// NewSessionStore creates a new in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions:    make(map[string]*Session),
		nextRefresh: make(map[string]time.Time),
	}
}

// Create generates a new session with the given token and user info.
func (s *SessionStore) Create(_ context.Context, token *oauth2.Token, userID, userName string) (*Session, error) {
	id, err := auth.NewState(32)
	if err != nil {
		return nil, err
	}

	session := &Session{
		ID:        id,
		Token:     token,
		UserID:    userID,
		UserName:  userName,
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	s.sessions[id] = session
	s.mu.Unlock()

	return session, nil
}

// Get retrieves a live session by ID.
func (s *SessionStore) Get(_ context.Context, id string) *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.live(id)
	if !ok {
		return nil
	}
	cp := *session
	return &cp
}

// live must be called with mu held.
func (s *SessionStore) live(id string) (*Session, bool) {
	session, ok := s.sessions[id]
	if !ok || time.Since(session.CreatedAt) > sessionTTL {
		return nil, false
	}
	return session, true
}

// Delete removes a session by ID.
func (s *SessionStore) Delete(_ context.Context, id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	delete(s.nextRefresh, id)
	s.mu.Unlock()
}

// Token returns the session's current OAuth token.
func (s *SessionStore) Token(_ context.Context, id string) (*oauth2.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.live(id)
	if !ok {
		return nil, auth.ErrNoSession
	}
	tok := *session.Token
	return &tok, nil
}

// SaveToken replaces the session's OAuth token.
func (s *SessionStore) SaveToken(_ context.Context, id string, token *oauth2.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.live(id)
	if !ok {
		return auth.ErrNoSession
	}
	session.Token = token
	return nil
}

// SetNextRefresh records when the session's token refresh fires; nil clears it.
func (s *SessionStore) SetNextRefresh(_ context.Context, id string, next *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.live(id); !ok {
		return auth.ErrNoSession
	}
	if next == nil {
		delete(s.nextRefresh, id)
		return nil
	}
	s.nextRefresh[id] = *next
	return nil
}

// ListScheduled returns sessions with a pending refresh, soonest first.
func (s *SessionStore) ListScheduled(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.nextRefresh))
	for id := range s.nextRefresh {
		if _, ok := s.live(id); ok {
			ids = append(ids, id)
		}
	}
	slices.SortFunc(ids, func(a, b string) int {
		return s.nextRefresh[a].Compare(s.nextRefresh[b])
	})
	return ids, nil
}

// GetFromRequest extracts the session from the request cookie.
func (s *SessionStore) GetFromRequest(r *http.Request) *Session {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return nil
	}
	return s.Get(r.Context(), cookie.Value)
}

// SetCookie sets the session cookie on the response.
func (s *SessionStore) SetCookie(w http.ResponseWriter, session *Session) {
	setCookie(w, session)
}

// ClearCookie removes the session cookie from the response.
func (s *SessionStore) ClearCookie(w http.ResponseWriter) {
	clearCookie(w)
}

// ============================================================================
// Database-Backed Session Store
// ============================================================================

// DBSessionStore manages user sessions in PostgreSQL.
type DBSessionStore struct {
	database *db.DB
}

// NewDBSessionStore creates a new database-backed session store.
func NewDBSessionStore(database *db.DB) *DBSessionStore {
	return &DBSessionStore{database: database}
}

// Create generates a new session and stores it in the database.
func (s *DBSessionStore) Create(ctx context.Context, token *oauth2.Token, userID, userName string) (*Session, error) {
	id, err := auth.NewState(32)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	dbSession := &db.Session{
		ID:           id,
		UserID:       userID,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenExpiry:  token.Expiry,
		CreatedAt:    now,
		ExpiresAt:    now.Add(sessionTTL),
	}

	if err := s.database.Sessions().Create(ctx, dbSession); err != nil {
		return nil, err
	}

	return &Session{
		ID:        id,
		Token:     token,
		UserID:    userID,
		UserName:  userName,
		CreatedAt: now,
	}, nil
}

// Get retrieves a session by ID from the database.
func (s *DBSessionStore) Get(ctx context.Context, id string) *Session {
	dbSession, err := s.database.Sessions().Get(ctx, id)
	if err != nil {
		return nil
	}

	// Get user info for the session
	user, err := s.database.Users().Get(ctx, dbSession.UserID)
	if err != nil {
		return nil
	}

	return &Session{
		ID:        dbSession.ID,
		Token:     tokenOf(dbSession),
		UserID:    dbSession.UserID,
		UserName:  user.DisplayName,
		CreatedAt: dbSession.CreatedAt,
	}
}

// Delete removes a session from the database.
func (s *DBSessionStore) Delete(ctx context.Context, id string) {
	_ = s.database.Sessions().Delete(ctx, id)
}

// Token returns the session's current OAuth token.
func (s *DBSessionStore) Token(ctx context.Context, id string) (*oauth2.Token, error) {
	dbSession, err := s.database.Sessions().Get(ctx, id)
	if err != nil {
		return nil, noSession(err)
	}
	return tokenOf(dbSession), nil
}

// SaveToken updates the OAuth token for a session in the database.
func (s *DBSessionStore) SaveToken(ctx context.Context, id string, token *oauth2.Token) error {
	return noSession(s.database.Sessions().UpdateToken(ctx, id, token.AccessToken, token.RefreshToken, token.Expiry))
}

// SetNextRefresh persists when the session's token refresh fires.
func (s *DBSessionStore) SetNextRefresh(ctx context.Context, id string, next *time.Time) error {
	return noSession(s.database.Sessions().SetNextRefresh(ctx, id, next))
}

// ListScheduled returns live sessions with a pending refresh.
func (s *DBSessionStore) ListScheduled(ctx context.Context) ([]string, error) {
	return s.database.Sessions().ListScheduled(ctx)
}

// GetFromRequest extracts the session from the request cookie.
func (s *DBSessionStore) GetFromRequest(r *http.Request) *Session {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return nil
	}
	return s.Get(r.Context(), cookie.Value)
}

// SetCookie sets the session cookie on the response.
func (s *DBSessionStore) SetCookie(w http.ResponseWriter, session *Session) {
	setCookie(w, session)
}

// ClearCookie removes the session cookie from the response.
func (s *DBSessionStore) ClearCookie(w http.ResponseWriter) {
	clearCookie(w)
}

// ============================================================================
// Helper Functions
// ============================================================================

func tokenOf(s *db.Session) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		Expiry:       s.TokenExpiry,
		TokenType:    "Bearer",
	}
}

// noSession translates a missing row into auth.ErrNoSession.
func noSession(err error) error {
	if errors.Is(err, db.ErrNotFound) {
		return auth.ErrNoSession
	}
	return err
}

// setCookie sets the session cookie on the response.
func setCookie(w http.ResponseWriter, session *Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    session.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(sessionTTL.Seconds()),
	})
}

// clearCookie removes the session cookie from the response.
func clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

// Ensure both stores implement SessionManager.
var (
	_ SessionManager = (*SessionStore)(nil)
	_ SessionManager = (*DBSessionStore)(nil)
)
