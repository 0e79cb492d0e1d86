// Package auth configures Spotify OAuth and keeps session access tokens
// fresh with a persisted refresh schedule.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"

	spotifyauth "github.com/zmb3/spotify/v2/auth"
)

var (
	// ErrMissingCredentials is returned when the Spotify client ID or secret is not set.
	ErrMissingCredentials = errors.New("missing spotify client id or secret")

	// ErrNoSession is returned by a TokenStore when the session no longer exists.
	ErrNoSession = errors.New("session not found")
)

// New creates a Spotify authenticator for the web login flow. The scopes
// cover reading the user's profile and their private playlists' metadata.
func New(clientID, clientSecret, redirectURI string) (*spotifyauth.Authenticator, error) {
	if clientID == "" || clientSecret == "" {
		return nil, ErrMissingCredentials
	}

	return spotifyauth.New(
		spotifyauth.WithClientID(clientID),
		spotifyauth.WithClientSecret(clientSecret),
		spotifyauth.WithRedirectURL(redirectURI),
		spotifyauth.WithScopes(
			spotifyauth.ScopeUserReadPrivate,
			spotifyauth.ScopePlaylistReadPrivate,
			spotifyauth.ScopePlaylistReadCollaborative,
		),
	), nil
}

// NewState creates a random hex string for OAuth state and session IDs.
func NewState(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
