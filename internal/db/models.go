package db

import (
	"time"

	"github.com/google/uuid"
)

// User represents a Spotify user profile.
type User struct {
	ID          string
	DisplayName string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Session represents an authenticated web session.
type Session struct {
	ID            string
	UserID        string
	AccessToken   string
	RefreshToken  string
	TokenExpiry   time.Time
	NextRefreshAt *time.Time // nullable - set once a refresh task is scheduled
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

// StudySession is one timed study attempt against a playlist.
type StudySession struct {
	ID              uuid.UUID
	Username        string
	PlaylistID      string
	PlannedLength   int
	CompletedAmount int
	StartedAt       time.Time
	CompletedAt     *time.Time // nullable - set exactly once on completion
}

// PlaylistUsage holds the denormalized usage counters for a playlist.
type PlaylistUsage struct {
	PlaylistID     string
	UsedCount      int64
	CompletedCount int64
	UpdatedAt      time.Time
}
