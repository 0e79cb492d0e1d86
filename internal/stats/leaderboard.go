package stats

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/justestif/adorify/internal/sessions"
)

// DefaultTopUsers is the leaderboard size when none is configured.
const DefaultTopUsers = 10

// Entry is one ranked user.
type Entry struct {
	Username string `json:"username"`
	Score    int    `json:"score"`
	Rank     int    `json:"rank"`
}

// Leaderboard is the top of the ranking plus the requesting user's place in it.
type Leaderboard struct {
	TopUsers           []Entry `json:"topUsers"`
	RequestingUserInfo Entry   `json:"requestingUserInfo"`
}

// Ranker ranks every user by total completed seconds.
type Ranker struct {
	reader sessions.Reader
	topN   int
}

// NewRanker creates a Ranker returning at most topN users; topN <= 0 selects
// DefaultTopUsers.
func NewRanker(reader sessions.Reader, topN int) *Ranker {
	if topN <= 0 {
		topN = DefaultTopUsers
	}
	return &Ranker{reader: reader, topN: topN}
}

// Rank reads all sessions once, scores each user, and orders by score
// descending then username ascending. The requesting user is always part of
// the ordering, with a zero score if they have never studied.
func (r *Ranker) Rank(ctx context.Context, username string) (Leaderboard, error) {
	scores := make(map[string]int)
	for s, err := range r.reader.AllGlobalSince(ctx, time.Time{}) {
		if err != nil {
			return Leaderboard{}, err
		}
		scores[s.Username] += s.CompletedAmount
	}
	if _, ok := scores[username]; !ok {
		scores[username] = 0
	}

	ordered := make([]Entry, 0, len(scores))
	for name, score := range scores {
		ordered = append(ordered, Entry{Username: name, Score: score})
	}
	slices.SortFunc(ordered, func(a, b Entry) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Username, b.Username)
	})

	var board Leaderboard
	for i := range ordered {
		ordered[i].Rank = i + 1
		if ordered[i].Username == username {
			board.RequestingUserInfo = ordered[i]
		}
	}
	board.TopUsers = ordered[:min(r.topN, len(ordered))]
	return board, nil
}
