package store

import (
	"context"
	"time"

	"github.com/aispeak/progressd/internal/progress"
)

// ActivityEntry is one append-only activity log row, written alongside
// every successful progress update.
type ActivityEntry struct {
	ID        string
	UserID    string
	Tag       progress.ActivityTag
	CreatedAt time.Time
}

// Stats holds aggregate store statistics for the health endpoint.
type Stats struct {
	UserCount     int64
	ActivityCount int64
}

// Store defines the interface contract for progress persistence.
type Store interface {
	// CreateProgress inserts a fresh record for userID.
	// Returns ErrAlreadyExists when one is present.
	CreateProgress(ctx context.Context, userID string) (*progress.UserProgress, error)

	// GetProgress fetches the record for userID, ErrNotFound if absent.
	GetProgress(ctx context.Context, userID string) (*progress.UserProgress, error)

	// ReplaceProgress writes next, guarded by a compare-and-swap on the
	// record's updated_at: when the stored value no longer equals
	// expectedUpdatedAt the write is rejected with ErrVersionConflict.
	ReplaceProgress(ctx context.Context, next progress.UserProgress, expectedUpdatedAt time.Time) (*progress.UserProgress, error)

	// Leaderboard returns the requested page ordered by total_xp
	// descending with user_id ascending on ties, plus the total
	// number of records.
	Leaderboard(ctx context.Context, page, limit int) ([]progress.LeaderboardEntry, int, error)

	// FindSimilar returns up to k users ordered by ascending L2
	// distance from userID's activity embedding, excluding userID
	// itself and any candidate beyond maxDistance. Returns ErrNotFound
	// when the subject is absent, ErrNoEmbedding when it has no
	// embedding yet.
	FindSimilar(ctx context.Context, userID string, k int, maxDistance float64) ([]progress.SimilarUser, error)

	// AppendActivity appends one activity log entry. An empty ID is
	// assigned by the store.
	AppendActivity(ctx context.Context, entry ActivityEntry) error

	Stats(ctx context.Context) (*Stats, error)
	Close() error
}
