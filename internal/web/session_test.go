package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/justestif/adorify/internal/auth"
)

func TestSessionStore_CreateAndGet(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()

	session, err := store.Create(ctx, &oauth2.Token{AccessToken: "a"}, "ana", "Ana")
	require.NoError(t, err)
	assert.Len(t, session.ID, 64)

	got := store.Get(ctx, session.ID)
	require.NotNil(t, got)
	assert.Equal(t, "ana", got.UserID)
	assert.Equal(t, "Ana", got.UserName)

	assert.Nil(t, store.Get(ctx, "unknown"))
}

func TestSessionStore_ExpiredSessionIsGone(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()

	session, err := store.Create(ctx, &oauth2.Token{AccessToken: "a"}, "ana", "Ana")
	require.NoError(t, err)
	store.sessions[session.ID].CreatedAt = time.Now().Add(-sessionTTL - time.Minute)

	assert.Nil(t, store.Get(ctx, session.ID))
	_, err = store.Token(ctx, session.ID)
	assert.ErrorIs(t, err, auth.ErrNoSession)
}

func TestSessionStore_TokenLifecycle(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()

	session, err := store.Create(ctx, &oauth2.Token{AccessToken: "old", RefreshToken: "r"}, "ana", "Ana")
	require.NoError(t, err)

	fresh := &oauth2.Token{AccessToken: "new", RefreshToken: "r", Expiry: time.Now().Add(time.Hour)}
	require.NoError(t, store.SaveToken(ctx, session.ID, fresh))

	tok, err := store.Token(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", tok.AccessToken)

	// The returned token is a copy.
	tok.AccessToken = "mutated"
	again, err := store.Token(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", again.AccessToken)

	assert.ErrorIs(t, store.SaveToken(ctx, "unknown", fresh), auth.ErrNoSession)
}

func TestSessionStore_RefreshSchedule(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()
	now := time.Now()

	late, err := store.Create(ctx, &oauth2.Token{}, "ana", "Ana")
	require.NoError(t, err)
	soon, err := store.Create(ctx, &oauth2.Token{}, "ben", "Ben")
	require.NoError(t, err)
	unscheduled, err := store.Create(ctx, &oauth2.Token{}, "cy", "Cy")
	require.NoError(t, err)

	lateAt, soonAt := now.Add(time.Hour), now.Add(time.Minute)
	require.NoError(t, store.SetNextRefresh(ctx, late.ID, &lateAt))
	require.NoError(t, store.SetNextRefresh(ctx, soon.ID, &soonAt))

	ids, err := store.ListScheduled(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{soon.ID, late.ID}, ids)
	assert.NotContains(t, ids, unscheduled.ID)

	require.NoError(t, store.SetNextRefresh(ctx, soon.ID, nil))
	store.Delete(ctx, late.ID)

	ids, err = store.ListScheduled(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	assert.ErrorIs(t, store.SetNextRefresh(ctx, late.ID, &lateAt), auth.ErrNoSession)
}

func TestSessionStore_Cookies(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()

	session, err := store.Create(ctx, &oauth2.Token{}, "ana", "Ana")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	store.SetCookie(rec, session)
	cookie := findCookie(rec, sessionCookieName)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, int(sessionTTL.Seconds()), cookie.MaxAge)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	got := store.GetFromRequest(req)
	require.NotNil(t, got)
	assert.Equal(t, session.ID, got.ID)

	assert.Nil(t, store.GetFromRequest(httptest.NewRequest(http.MethodGet, "/", nil)))
}
