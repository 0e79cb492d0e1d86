// Package spotify provides a wrapper around the Spotify Web API.
package spotify

import (
	"context"
	"fmt"

	"github.com/zmb3/spotify/v2"
)

// Client wraps the Spotify API client with convenience methods.
type Client struct {
	api *spotify.Client
}

// New creates a new Spotify client wrapper.
// The underlying client should already be authenticated.
func New(api *spotify.Client) *Client {
	return &Client{api: api}
}

// User is the signed-in Spotify account.
type User struct {
	ID          string
	DisplayName string
}

// CurrentUser returns the signed-in user's ID and display name.
func (c *Client) CurrentUser(ctx context.Context) (User, error) {
	user, err := c.api.CurrentUser(ctx)
	if err != nil {
		return User{}, fmt.Errorf("getting current user: %w", err)
	}
	name := user.DisplayName
	if name == "" {
		name = user.ID
	}
	return User{ID: user.ID, DisplayName: name}, nil
}
