package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/zmb3/spotify/v2"

	"github.com/justestif/adorify/internal/playlists"
)

func TestConvertPlaylist(t *testing.T) {
	full := &spotify.FullPlaylist{
		SimplePlaylist: spotify.SimplePlaylist{
			ID:       "pl123",
			Name:     "Deep Focus",
			IsPublic: true,
			Owner:    spotify.User{DisplayName: "Spotify"},
			Images: []spotify.Image{
				{URL: "https://i.scdn.co/image/a", Width: 640, Height: 640},
				{URL: "https://i.scdn.co/image/b"},
			},
		},
	}

	got := convertPlaylist(full)

	if got.ID != "pl123" || got.Name != "Deep Focus" || got.Owner != "Spotify" || !got.Public {
		t.Errorf("unexpected metadata: %+v", got)
	}
	if len(got.Images) != 2 {
		t.Fatalf("got %d images, want 2", len(got.Images))
	}
	if got.Images[0].Width != 640 || got.Images[0].URL != "https://i.scdn.co/image/a" {
		t.Errorf("image[0] = %+v", got.Images[0])
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "not found", err: spotify.Error{Status: 404, Message: "Not found."}, want: playlists.ErrNotFound},
		{name: "invalid id", err: spotify.Error{Status: 400, Message: "Invalid base62 id"}, want: playlists.ErrNotFound},
		{name: "private", err: spotify.Error{Status: 403, Message: "Forbidden"}, want: playlists.ErrNotFound},
		{name: "rate limited", err: spotify.Error{Status: 429, Message: "Too many requests"}, want: playlists.ErrUnavailable},
		{name: "server error", err: spotify.Error{Status: 502, Message: "Bad gateway"}, want: playlists.ErrUnavailable},
		{name: "transport", err: errors.New("dial tcp: connection refused"), want: playlists.ErrUnavailable},
		{name: "wrapped", err: fmt.Errorf("request: %w", spotify.Error{Status: 404}), want: playlists.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyError("pl", tt.err)
			if !errors.Is(got, tt.want) {
				t.Errorf("classifyError() = %v, want %v", got, tt.want)
			}
			if !errors.Is(got, tt.err) {
				t.Errorf("classifyError() lost the cause: %v", got)
			}
		})
	}
}

func TestPlaylist(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("fields"); got != playlistFields {
			t.Errorf("fields = %q, want %q", got, playlistFields)
		}
		w.Header().Set("Content-Type", "application/json")
		switch strings.TrimPrefix(r.URL.Path, "/playlists/") {
		case "good":
			fmt.Fprint(w, `{"id":"good","name":"Lo-fi","public":false,"owner":{"display_name":"ana"},"images":[{"url":"https://img/1","width":300,"height":300}]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":{"status":404,"message":"Not found."}}`)
		}
	}))
	defer srv.Close()

	client := New(spotify.New(srv.Client(), spotify.WithBaseURL(srv.URL+"/")))

	meta, err := client.Playlist(context.Background(), "good")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if meta.Name != "Lo-fi" || meta.Owner != "ana" || meta.Public {
		t.Errorf("unexpected metadata: %+v", meta)
	}
	if len(meta.Images) != 1 || meta.Images[0].Height != 300 {
		t.Errorf("unexpected images: %+v", meta.Images)
	}

	_, err = client.Playlist(context.Background(), "missing")
	if !errors.Is(err, playlists.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
