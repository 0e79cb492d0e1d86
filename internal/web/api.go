package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"

	"github.com/justestif/adorify/internal/logger"
	"github.com/justestif/adorify/internal/playlists"
	"github.com/justestif/adorify/internal/sessions"
	spotifyclient "github.com/justestif/adorify/internal/spotify"
	"github.com/justestif/adorify/internal/stats"
)

const maxBodyBytes = 1 << 20

// MetadataSource returns the playlist fetcher to use for a signed-in user.
type MetadataSource func(ctx context.Context, session *Session) playlists.Fetcher

// SpotifyMetadata looks playlists up with the session's own Spotify token.
// A non-nil cache is shared across users.
func SpotifyMetadata(authenticator *spotifyauth.Authenticator, cache *playlists.MetadataCache) MetadataSource {
	return func(ctx context.Context, session *Session) playlists.Fetcher {
		var fetcher playlists.Fetcher = spotifyclient.New(spotify.New(authenticator.Client(ctx, session.Token)))
		if cache != nil {
			fetcher = cache.Wrap(fetcher)
		}
		return fetcher
	}
}

// API serves the JSON endpoints under /api.
type API struct {
	sessions  *sessions.Service
	stats     *stats.Service
	playlists *playlists.Service
	metadata  MetadataSource
	logger    *slog.Logger
}

// NewAPI creates the JSON API handlers.
func NewAPI(sessionSvc *sessions.Service, statsSvc *stats.Service, playlistSvc *playlists.Service, metadata MetadataSource) *API {
	return &API{
		sessions:  sessionSvc,
		stats:     statsSvc,
		playlists: playlistSvc,
		metadata:  metadata,
		logger:    logger.WithComponent("api"),
	}
}

// Routes mounts the API on r. Every route requires a signed-in session.
func (a *API) Routes(r chi.Router, manager SessionManager) {
	r.Use(RequireSession(manager))

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", a.StartSession)
		r.Get("/stats", a.Stats)
		r.Get("/leaderboard", a.Leaderboard)
		r.Put("/{id}", a.CompleteSession)
	})

	r.Route("/playlists", func(r chi.Router) {
		r.Get("/liked", a.LikedPlaylists)
		r.Put("/{id}/like", a.LikePlaylist)
		r.Delete("/{id}/like", a.UnlikePlaylist)
	})
}

// ============================================================================
// Study sessions
// ============================================================================

type startSessionRequest struct {
	PlannedLength int    `json:"plannedLength"`
	PlaylistID    string `json:"playlistId"`
}

type startSessionResponse struct {
	ID uuid.UUID `json:"id"`
}

// StartSession handles POST /api/sessions.
func (a *API) StartSession(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r.Context())

	var req startSessionRequest
	if !a.decode(w, r, &req) {
		return
	}

	id, err := a.sessions.RecordStart(r.Context(), session.UserID, req.PlannedLength, req.PlaylistID)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, startSessionResponse{ID: id})
}

type completeSessionRequest struct {
	CompletedAmount *int   `json:"completedAmount"`
	PlaylistID      string `json:"playlistId"`
}

type completeSessionResponse struct {
	Applied bool `json:"applied"`
}

// CompleteSession handles PUT /api/sessions/{id}. Repeating a completion is
// not an error; applied reports whether this call recorded it.
func (a *API) CompleteSession(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, &sessions.ValidationError{Field: "id", Message: "must be a UUID"})
		return
	}

	var req completeSessionRequest
	if !a.decode(w, r, &req) {
		return
	}
	if req.CompletedAmount == nil {
		a.fail(w, r, &sessions.ValidationError{Field: "completedAmount", Message: "is required"})
		return
	}

	applied, err := a.sessions.RecordCompletion(r.Context(), session.UserID, id, *req.CompletedAmount, req.PlaylistID)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, completeSessionResponse{Applied: applied})
}

// ============================================================================
// Analytics
// ============================================================================

type playlistStat struct {
	playlists.Entry
	StudiedSeconds int `json:"studiedSeconds"`
}

type mostPlayedResponse struct {
	Week  []playlistStat `json:"week"`
	Month []playlistStat `json:"month"`
}

type statsResponse struct {
	TotalTime          int                `json:"totalTime"`
	TotalCompleted     int                `json:"totalCompleted"`
	TotalSessions      int                `json:"totalSessions"`
	MostPlayed         mostPlayedResponse `json:"mostPlayed"`
	StudyTimeHistogram []int              `json:"studyTimeHistogram"`
}

// Stats handles GET /api/sessions/stats. Most-played playlists whose metadata
// cannot be looked up are left out of the response.
func (a *API) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session := sessionFrom(ctx)

	st, err := a.stats.GetStats(ctx, session.UserID)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	ids := playlistIDs(st.MostPlayed.Week, st.MostPlayed.Month)
	described := make(map[string]playlists.Entry, len(ids))
	for _, e := range a.playlists.Describe(ctx, session.UserID, a.metadata(ctx, session), ids) {
		described[e.ID] = e
	}

	writeJSON(w, http.StatusOK, statsResponse{
		TotalTime:      st.TotalTime,
		TotalCompleted: st.TotalCompleted,
		TotalSessions:  st.TotalSessions,
		MostPlayed: mostPlayedResponse{
			Week:  decorate(st.MostPlayed.Week, described),
			Month: decorate(st.MostPlayed.Month, described),
		},
		StudyTimeHistogram: st.StudyTimeHistogram,
	})
}

// Leaderboard handles GET /api/sessions/leaderboard.
func (a *API) Leaderboard(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r.Context())

	board, err := a.stats.GetLeaderboard(r.Context(), session.UserID)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, board)
}

// playlistIDs returns the distinct ids across lists in first-seen order.
func playlistIDs(lists ...[]stats.PlaylistTime) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, list := range lists {
		for _, p := range list {
			if _, ok := seen[p.PlaylistID]; ok {
				continue
			}
			seen[p.PlaylistID] = struct{}{}
			ids = append(ids, p.PlaylistID)
		}
	}
	return ids
}

func decorate(list []stats.PlaylistTime, described map[string]playlists.Entry) []playlistStat {
	out := make([]playlistStat, 0, len(list))
	for _, p := range list {
		e, ok := described[p.PlaylistID]
		if !ok {
			continue
		}
		out = append(out, playlistStat{Entry: e, StudiedSeconds: p.Seconds})
	}
	return out
}

// ============================================================================
// Playlists
// ============================================================================

// LikedPlaylists handles GET /api/playlists/liked.
func (a *API) LikedPlaylists(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session := sessionFrom(ctx)

	entries, err := a.playlists.Liked(ctx, session.UserID, a.metadata(ctx, session))
	if err != nil {
		a.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, entries)
}

// LikePlaylist handles PUT /api/playlists/{id}/like.
func (a *API) LikePlaylist(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r.Context())

	if err := a.playlists.Like(r.Context(), session.UserID, chi.URLParam(r, "id")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UnlikePlaylist handles DELETE /api/playlists/{id}/like.
func (a *API) UnlikePlaylist(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r.Context())

	if err := a.playlists.Unlike(r.Context(), session.UserID, chi.URLParam(r, "id")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ============================================================================
// Session middleware
// ============================================================================

type sessionKey struct{}

// RequireSession rejects requests without a valid session cookie and makes
// the session available to the handlers that follow.
func RequireSession(manager SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := manager.GetFromRequest(r)
			if session == nil {
				writeJSON(w, http.StatusUnauthorized, errorResp("unauthorized", "sign in required", r))
				return
			}
			ctx := context.WithValue(r.Context(), sessionKey{}, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func sessionFrom(ctx context.Context) *Session {
	session, _ := ctx.Value(sessionKey{}).(*Session)
	return session
}

// ============================================================================
// Responses
// ============================================================================

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// APIError describes a failed API call.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func errorResp(code, message string, r *http.Request) ErrorResponse {
	return ErrorResponse{
		Error: APIError{
			Code:      code,
			Message:   message,
			RequestID: middleware.GetReqID(r.Context()),
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// statusFor maps a service error to its HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case sessions.IsValidation(err):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, sessions.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, sessions.ErrStorage), errors.Is(err, playlists.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)

	message := http.StatusText(status)
	if status < http.StatusInternalServerError {
		message = err.Error()
	} else {
		a.logger.Error("api request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
	}

	writeJSON(w, status, errorResp(code, message, r))
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("bad_request", "invalid JSON body", r))
		return false
	}
	return true
}
