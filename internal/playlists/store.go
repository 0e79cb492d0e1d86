package playlists

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/justestif/adorify/internal/db"
)

// Usage holds the denormalized counters for one playlist.
type Usage struct {
	UsedCount      int64
	CompletedCount int64
}

// Store persists usage counters and likes.
type Store interface {
	IncrementUsed(ctx context.Context, playlistID string) error
	IncrementCompleted(ctx context.Context, playlistID string, delta int) error
	Usage(ctx context.Context, playlistIDs []string) (map[string]Usage, error)

	Like(ctx context.Context, username, playlistID string) error
	Unlike(ctx context.Context, username, playlistID string) error
	LikedIDs(ctx context.Context, username string) ([]string, error)
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*DBStore)(nil)
)

// MemoryStore keeps counters and likes in memory (for development/testing).
type MemoryStore struct {
	mu    sync.Mutex
	usage map[string]Usage
	likes map[string][]string // username -> playlist ids, oldest first
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		usage: make(map[string]Usage),
		likes: make(map[string][]string),
	}
}

func (s *MemoryStore) IncrementUsed(_ context.Context, playlistID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.usage[playlistID]
	u.UsedCount++
	s.usage[playlistID] = u
	return nil
}

// IncrementCompleted never lets the completed count pass the used count.
func (s *MemoryStore) IncrementCompleted(_ context.Context, playlistID string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.usage[playlistID]
	u.CompletedCount = min(u.CompletedCount+int64(delta), u.UsedCount)
	s.usage[playlistID] = u
	return nil
}

func (s *MemoryStore) Usage(_ context.Context, playlistIDs []string) (map[string]Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Usage, len(playlistIDs))
	for _, id := range playlistIDs {
		if u, ok := s.usage[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

func (s *MemoryStore) Like(_ context.Context, username, playlistID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.Contains(s.likes[username], playlistID) {
		s.likes[username] = append(s.likes[username], playlistID)
	}
	return nil
}

func (s *MemoryStore) Unlike(_ context.Context, username, playlistID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.likes[username] = slices.DeleteFunc(s.likes[username], func(id string) bool {
		return id == playlistID
	})
	return nil
}

func (s *MemoryStore) LikedIDs(_ context.Context, username string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.likes[username]), nil
}

// DBStore keeps counters and likes in PostgreSQL.
type DBStore struct {
	database *db.DB
	timeout  time.Duration
}

// NewDBStore creates a database-backed store. Every call is bounded by timeout.
func NewDBStore(database *db.DB, timeout time.Duration) *DBStore {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &DBStore{database: database, timeout: timeout}
}

func (s *DBStore) IncrementUsed(ctx context.Context, playlistID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.database.Playlists().IncrementUsed(ctx, playlistID)
}

func (s *DBStore) IncrementCompleted(ctx context.Context, playlistID string, delta int) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.database.Playlists().IncrementCompleted(ctx, playlistID, delta)
}

func (s *DBStore) Usage(ctx context.Context, playlistIDs []string) (map[string]Usage, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.database.Playlists().Usage(ctx, playlistIDs)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Usage, len(rows))
	for id, row := range rows {
		out[id] = Usage{UsedCount: row.UsedCount, CompletedCount: row.CompletedCount}
	}
	return out, nil
}

func (s *DBStore) Like(ctx context.Context, username, playlistID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.database.Playlists().Like(ctx, username, playlistID)
}

func (s *DBStore) Unlike(ctx context.Context, username, playlistID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.database.Playlists().Unlike(ctx, username, playlistID)
}

func (s *DBStore) LikedIDs(ctx context.Context, username string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ids, err := s.database.Playlists().LikedIDs(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("listing liked playlists: %w", err)
	}
	return ids, nil
}
