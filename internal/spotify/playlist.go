package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/zmb3/spotify/v2"

	"github.com/justestif/adorify/internal/playlists"
)

// playlistFields limits the response to what the metadata needs; the track
// listing is never fetched.
const playlistFields = "id,name,images,owner.display_name,public"

// Playlist fetches display metadata for a playlist. It implements
// playlists.Fetcher.
func (c *Client) Playlist(ctx context.Context, id string) (*playlists.Metadata, error) {
	full, err := c.api.GetPlaylist(ctx, spotify.ID(id), spotify.Fields(playlistFields))
	if err != nil {
		return nil, classifyError(id, err)
	}
	return convertPlaylist(full), nil
}

func convertPlaylist(p *spotify.FullPlaylist) *playlists.Metadata {
	images := make([]playlists.Image, 0, len(p.Images))
	for _, img := range p.Images {
		images = append(images, playlists.Image{
			URL:    img.URL,
			Width:  int(img.Width),
			Height: int(img.Height),
		})
	}
	return &playlists.Metadata{
		ID:     p.ID.String(),
		Name:   p.Name,
		Images: images,
		Owner:  p.Owner.DisplayName,
		Public: p.IsPublic,
	}
}

// classifyError maps API errors onto the playlists lookup errors. Missing,
// malformed and private playlists are all "not found" to the caller.
func classifyError(id string, err error) error {
	if status, ok := statusOf(err); ok {
		switch status {
		case http.StatusNotFound, http.StatusBadRequest, http.StatusForbidden:
			return fmt.Errorf("%w: playlist %s: %w", playlists.ErrNotFound, id, err)
		}
	}
	return fmt.Errorf("%w: playlist %s: %w", playlists.ErrUnavailable, id, err)
}

func statusOf(err error) (int, bool) {
	var apiErr spotify.Error
	if errors.As(err, &apiErr) {
		return apiErr.Status, true
	}
	var apiErrPtr *spotify.Error
	if errors.As(err, &apiErrPtr) {
		return apiErrPtr.Status, true
	}
	return 0, false
}
