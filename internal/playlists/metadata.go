// Package playlists resolves playlist identifiers to display metadata and
// owns the per-playlist usage counters and likes.
package playlists

import (
	"context"
	"errors"
)

// Lookup errors returned by a Fetcher.
var (
	// ErrNotFound means the playlist does not exist or is not visible.
	ErrNotFound = errors.New("playlist not found")

	// ErrUnavailable means the catalog could not be reached.
	ErrUnavailable = errors.New("playlist catalog unavailable")
)

// Image is a playlist cover image.
type Image struct {
	URL    string `json:"url"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// Metadata is the display information for one playlist.
type Metadata struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Images []Image `json:"images"`
	Owner  string  `json:"owner"`
	Public bool    `json:"public"`
}

// Fetcher looks up a single playlist. Failures should wrap ErrNotFound or
// ErrUnavailable.
type Fetcher interface {
	Playlist(ctx context.Context, id string) (*Metadata, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, id string) (*Metadata, error)

// Playlist calls f.
func (f FetcherFunc) Playlist(ctx context.Context, id string) (*Metadata, error) {
	return f(ctx, id)
}
