package web

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"

	"github.com/justestif/adorify/internal/auth"
	"github.com/justestif/adorify/internal/db"
	"github.com/justestif/adorify/internal/logger"
	spotifyclient "github.com/justestif/adorify/internal/spotify"
)

const oauthStateCookie = "oauth_state"

// RefreshScheduler keeps a session's OAuth token fresh.
type RefreshScheduler interface {
	Schedule(ctx context.Context, sessionID string) error
	Cancel(ctx context.Context, sessionID string) error
}

// UserStore persists the signed-in Spotify account.
type UserStore interface {
	Upsert(ctx context.Context, user *db.User) error
}

// Handlers contains the Spotify login handlers.
type Handlers struct {
	auth      *spotifyauth.Authenticator
	sessions  SessionManager
	scheduler RefreshScheduler
	users     UserStore
	logger    *slog.Logger
}

// NewHandlers creates a new Handlers instance. users may be nil.
func NewHandlers(authenticator *spotifyauth.Authenticator, sessions SessionManager, scheduler RefreshScheduler, users UserStore) *Handlers {
	return &Handlers{
		auth:      authenticator,
		sessions:  sessions,
		scheduler: scheduler,
		users:     users,
		logger:    logger.WithComponent("web-auth"),
	}
}

// Login initiates the Spotify OAuth flow (GET /auth/login).
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	// Generate state for CSRF protection
	state, err := auth.NewState(16)
	if err != nil {
		h.logger.Error("generating oauth state", "error", err)
		http.Error(w, "Failed to generate state", http.StatusInternalServerError)
		return
	}

	// Store state in cookie for validation on callback
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   300, // 5 minutes
	})

	http.Redirect(w, r, h.auth.AuthURL(state), http.StatusTemporaryRedirect)
}

// Callback handles the OAuth callback from Spotify (GET /callback).
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil {
		http.Error(w, "Missing state cookie", http.StatusBadRequest)
		return
	}

	state := r.URL.Query().Get("state")
	if state != stateCookie.Value {
		http.Error(w, "State mismatch", http.StatusBadRequest)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})

	if errMsg := r.URL.Query().Get("error"); errMsg != "" {
		h.logger.Warn("spotify declined authorization", "error", errMsg)
		http.Error(w, "Spotify auth error: "+errMsg, http.StatusBadRequest)
		return
	}

	token, err := h.auth.Token(ctx, state, r)
	if err != nil {
		h.logger.Error("exchanging authorization code", "error", err)
		http.Error(w, "Failed to get token", http.StatusInternalServerError)
		return
	}

	client := spotifyclient.New(spotify.New(h.auth.Client(ctx, token)))
	user, err := client.CurrentUser(ctx)
	if err != nil {
		h.logger.Error("fetching current user", "error", err)
		http.Error(w, "Failed to get user info", http.StatusInternalServerError)
		return
	}

	if h.users != nil {
		if err := h.users.Upsert(ctx, &db.User{ID: user.ID, DisplayName: user.DisplayName}); err != nil {
			h.logger.Error("saving user", "user_id", user.ID, "error", err)
			http.Error(w, "Failed to save user", http.StatusInternalServerError)
			return
		}
	}

	session, err := h.sessions.Create(ctx, token, user.ID, user.DisplayName)
	if err != nil {
		h.logger.Error("creating session", "user_id", user.ID, "error", err)
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	if err := h.scheduler.Schedule(ctx, session.ID); err != nil {
		// The session still works until the access token expires.
		h.logger.Warn("scheduling token refresh", "user_id", user.ID, "error", err)
	}

	h.sessions.SetCookie(w, session)
	h.logger.Info("user signed in", "user_id", user.ID)

	http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
}

// Logout clears the session and redirects to home (POST /auth/logout).
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if session := h.sessions.GetFromRequest(r); session != nil {
		if err := h.scheduler.Cancel(ctx, session.ID); err != nil {
			h.logger.Warn("cancelling token refresh", "user_id", session.UserID, "error", err)
		}
		h.sessions.Delete(ctx, session.ID)
	}

	h.sessions.ClearCookie(w)
	http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
}
