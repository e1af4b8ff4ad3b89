// Package progress holds the learning-progress domain model and the
// pure update engine that reconciles streaks, daily lesson counters,
// and activity classification.
package progress

import "time"

// EmbeddingDims is the fixed length of activity embeddings.
// Must match the packed BLOB width in the user_progress table.
const EmbeddingDims = 3

// UserProgress is one user's progress record. Exactly one exists per
// user; it is created once and only ever mutated through Apply.
type UserProgress struct {
	UserID                string    `json:"user_id"`
	CurrentLevel          int       `json:"current_level"`
	LevelXP               int       `json:"level_xp"`
	TotalXP               int       `json:"total_xp"`
	StreakDays            int       `json:"streak_days"`
	LessonsCompletedToday int       `json:"lessons_completed_today"`
	LastActivityAt        time.Time `json:"last_activity_at"`
	// ActivityEmbedding is nil until the first classified update.
	ActivityEmbedding []float32 `json:"activity_embedding"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// UpdateRequest is the sparse update payload for PUT /progress/{userID}.
// Nil means the field was absent from the request body.
// StreakDays and LastActivityAt are server-managed and not settable.
type UpdateRequest struct {
	CurrentLevel          *int `json:"current_level"`
	LevelXP               *int `json:"level_xp"`
	TotalXP               *int `json:"total_xp"`
	LessonsCompletedToday *int `json:"lessons_completed_today"`
}

// IsEmpty reports whether no updatable field was supplied.
func (r UpdateRequest) IsEmpty() bool {
	return r.CurrentLevel == nil &&
		r.LevelXP == nil &&
		r.TotalXP == nil &&
		r.LessonsCompletedToday == nil
}

// LeaderboardEntry is one row of the ranked leaderboard read.
type LeaderboardEntry struct {
	UserID       string `json:"user_id"`
	CurrentLevel int    `json:"current_level"`
	TotalXP      int    `json:"total_xp"`
}

// SimilarUser is one nearest-neighbor match, distance ascending.
type SimilarUser struct {
	UserID   string  `json:"user_id"`
	Distance float64 `json:"distance"`
}

// ActivityTag classifies the most recent activity. The vectors are
// placeholder heuristics standing in for a real embedding model; the
// tag precedence and thresholds live in Apply.
type ActivityTag string

const (
	TagLessonCompletion ActivityTag = "lesson_completion"
	TagXPGain           ActivityTag = "xp_gain"
	TagGeneralActivity  ActivityTag = "general_activity"
)

// Vector returns a fresh copy of the tag's classification vector.
func (t ActivityTag) Vector() []float32 {
	switch t {
	case TagLessonCompletion:
		return []float32{0.8, 0.1, 0.1}
	case TagXPGain:
		return []float32{0.1, 0.8, 0.1}
	case TagGeneralActivity:
		return []float32{0.3, 0.3, 0.3}
	default:
		return nil
	}
}
