// Package stats derives per-user analytics and the global leaderboard from
// recorded study sessions. All results are computed on demand; nothing here
// is stored.
package stats

import "time"

// Window is a trailing period ending at query time.
type Window int

const (
	// Week is the trailing 7 days.
	Week Window = iota
	// Month is the trailing 30 days.
	Month
)

// Days returns the window length in days.
func (w Window) Days() int {
	if w == Month {
		return 30
	}
	return 7
}

// Start returns the inclusive lower bound of the window ending at now.
func (w Window) Start(now time.Time) time.Time {
	return now.Add(-time.Duration(w.Days()) * 24 * time.Hour)
}

func (w Window) String() string {
	if w == Month {
		return "month"
	}
	return "week"
}
