package stats

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/justestif/adorify/internal/sessions"
)

// Totals summarizes a user's whole history.
type Totals struct {
	TotalTime      int // sum of completed seconds
	TotalCompleted int // sessions with a positive completed amount
	TotalSessions  int // every started session
}

// PlaylistTime is the completed time spent on one playlist within a window.
type PlaylistTime struct {
	PlaylistID string
	Seconds    int
}

// Aggregator computes totals and most-played rankings for a single user.
type Aggregator struct {
	reader sessions.Reader
	now    func() time.Time
}

// NewAggregator creates an Aggregator. A nil now uses time.Now.
func NewAggregator(reader sessions.Reader, now func() time.Time) *Aggregator {
	if now == nil {
		now = time.Now
	}
	return &Aggregator{reader: reader, now: now}
}

// Totals sums a user's history. A user without sessions gets zero totals.
func (a *Aggregator) Totals(ctx context.Context, username string) (Totals, error) {
	var t Totals
	for s, err := range a.reader.AllForUser(ctx, username) {
		if err != nil {
			return Totals{}, err
		}
		t.TotalSessions++
		t.TotalTime += s.CompletedAmount
		if s.CompletedAmount > 0 {
			t.TotalCompleted++
		}
	}
	return t, nil
}

// MostPlayed groups the user's sessions started within the window by
// playlist and orders them by summed completed time descending, then by
// playlist id ascending. Playlists that were only started still appear, with
// zero seconds. limit <= 0 returns every playlist.
func (a *Aggregator) MostPlayed(ctx context.Context, username string, window Window, limit int) ([]PlaylistTime, error) {
	since := window.Start(a.now())

	sums := make(map[string]int)
	for s, err := range a.reader.AllForUserSince(ctx, username, since) {
		if err != nil {
			return nil, err
		}
		sums[s.PlaylistID] += s.CompletedAmount
	}

	result := make([]PlaylistTime, 0, len(sums))
	for id, seconds := range sums {
		result = append(result, PlaylistTime{PlaylistID: id, Seconds: seconds})
	}
	slices.SortFunc(result, func(x, y PlaylistTime) int {
		if c := cmp.Compare(y.Seconds, x.Seconds); c != 0 {
			return c
		}
		return cmp.Compare(x.PlaylistID, y.PlaylistID)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
