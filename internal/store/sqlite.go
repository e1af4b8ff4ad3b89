package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aispeak/progressd/internal/progress"
	"github.com/aispeak/progressd/pkg/vector"
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// SQLiteStore is the SQLite-backed progress database. One instance is
// created at startup and shared by all requests.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore instance.
// It initializes the database with WAL mode, applies pragmas, and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// enablePragmas sets SQLite pragmas for optimal performance and safety.
func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const progressColumns = `user_id, current_level, level_xp, total_xp, streak_days,
	       lessons_completed_today, last_activity_at, activity_embedding, created_at, updated_at`

// scanProgress scans a row into a UserProgress, unpacking the
// embedding BLOB and parsing timestamps.
func scanProgress(scanner interface{ Scan(...any) error }) (*progress.UserProgress, error) {
	var p progress.UserProgress
	var embeddingBlob []byte
	var lastActivityAt, createdAt, updatedAt string

	err := scanner.Scan(
		&p.UserID,
		&p.CurrentLevel,
		&p.LevelXP,
		&p.TotalXP,
		&p.StreakDays,
		&p.LessonsCompletedToday,
		&lastActivityAt,
		&embeddingBlob,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(embeddingBlob) > 0 {
		p.ActivityEmbedding = vector.Unpack(embeddingBlob)
	}

	if p.LastActivityAt, err = time.Parse(time.RFC3339Nano, lastActivityAt); err != nil {
		return nil, fmt.Errorf("parse last_activity_at: %w", err)
	}
	if p.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if p.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &p, nil
}

// nullableEmbedding converts an embedding to a sql-friendly value.
// A record with no classified activity stores NULL, not an empty BLOB.
func nullableEmbedding(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	return vector.Pack(v)
}

// CreateProgress inserts a fresh record for userID with zeroed
// counters. The store owns created_at/updated_at.
func (s *SQLiteStore) CreateProgress(ctx context.Context, userID string) (*progress.UserProgress, error) {
	now := time.Now().UTC()
	nowStr := now.Format(time.RFC3339Nano)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_progress (
			user_id, current_level, level_xp, total_xp, streak_days,
			lessons_completed_today, last_activity_at, activity_embedding,
			created_at, updated_at
		) VALUES (?, 1, 0, 0, 0, 0, ?, NULL, ?, ?)
	`, userID, nowStr, nowStr, nowStr)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("insert progress: %w", err)
	}

	return s.GetProgress(ctx, userID)
}

// GetProgress retrieves the progress record for userID.
func (s *SQLiteStore) GetProgress(ctx context.Context, userID string) (*progress.UserProgress, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+progressColumns+`
		FROM user_progress
		WHERE user_id = ?
	`, userID)

	p, err := scanProgress(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan row: %w", err)
	}

	return p, nil
}

// ReplaceProgress persists next, guarded on updated_at still holding
// expectedUpdatedAt. Concurrent writers lose with ErrVersionConflict
// instead of silently clobbering each other.
func (s *SQLiteStore) ReplaceProgress(ctx context.Context, next progress.UserProgress, expectedUpdatedAt time.Time) (*progress.UserProgress, error) {
	now := time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE user_progress
		SET current_level = ?, level_xp = ?, total_xp = ?, streak_days = ?,
		    lessons_completed_today = ?, last_activity_at = ?,
		    activity_embedding = ?, updated_at = ?
		WHERE user_id = ? AND updated_at = ?
	`,
		next.CurrentLevel, next.LevelXP, next.TotalXP, next.StreakDays,
		next.LessonsCompletedToday, next.LastActivityAt.UTC().Format(time.RFC3339Nano),
		nullableEmbedding(next.ActivityEmbedding), now.Format(time.RFC3339Nano),
		next.UserID, expectedUpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("update progress: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		// Distinguish a vanished record from a concurrent write.
		if _, err := s.GetProgress(ctx, next.UserID); err != nil {
			return nil, err
		}
		return nil, ErrVersionConflict
	}

	return s.GetProgress(ctx, next.UserID)
}

// Leaderboard returns one page of users ranked by total_xp descending,
// with user_id ascending as the tie-break so pagination stays stable.
func (s *SQLiteStore) Leaderboard(ctx context.Context, page, limit int) ([]progress.LeaderboardEntry, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM user_progress").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count progress records: %w", err)
	}

	offset := (page - 1) * limit
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, current_level, total_xp
		FROM user_progress
		ORDER BY total_xp DESC, user_id ASC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query leaderboard: %w", err)
	}
	defer rows.Close()

	entries := make([]progress.LeaderboardEntry, 0, limit)
	for rows.Next() {
		var e progress.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.CurrentLevel, &e.TotalXP); err != nil {
			return nil, 0, fmt.Errorf("scan leaderboard row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate rows: %w", err)
	}

	return entries, total, nil
}

// FindSimilar runs the nearest-neighbor query for userID's activity
// embedding: every other embedded user is ranked by L2 distance
// ascending, candidates beyond maxDistance are discarded, and at most
// k matches are returned.
func (s *SQLiteStore) FindSimilar(ctx context.Context, userID string, k int, maxDistance float64) ([]progress.SimilarUser, error) {
	var subjectBlob []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT activity_embedding FROM user_progress WHERE user_id = ?
	`, userID).Scan(&subjectBlob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch subject embedding: %w", err)
	}
	if len(subjectBlob) == 0 {
		return nil, ErrNoEmbedding
	}
	subject := vector.Unpack(subjectBlob)

	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, activity_embedding
		FROM user_progress
		WHERE user_id != ? AND activity_embedding IS NOT NULL
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	defer rows.Close()

	matches := make([]progress.SimilarUser, 0, k)
	for rows.Next() {
		var candidateID string
		var blob []byte
		if err := rows.Scan(&candidateID, &blob); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}

		d := vector.L2Distance(subject, vector.Unpack(blob))
		if d > maxDistance {
			continue
		}
		matches = append(matches, progress.SimilarUser{UserID: candidateID, Distance: d})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].UserID < matches[j].UserID
	})
	if len(matches) > k {
		matches = matches[:k]
	}

	return matches, nil
}

// AppendActivity appends one activity log entry.
func (s *SQLiteStore) AppendActivity(ctx context.Context, entry ActivityEntry) error {
	if entry.ID == "" {
		entry.ID = ulid.Make().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_log (id, user_id, tag, created_at)
		VALUES (?, ?, ?, ?)
	`, entry.ID, entry.UserID, string(entry.Tag), entry.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	return nil
}

// Stats returns aggregate store statistics.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM user_progress").Scan(&st.UserCount); err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM activity_log").Scan(&st.ActivityCount); err != nil {
		return nil, fmt.Errorf("count activity: %w", err)
	}
	return &st, nil
}

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint
// failure. modernc.org/sqlite surfaces these as plain errors, so the
// message is the only portable signal.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
