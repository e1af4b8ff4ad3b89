package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/aispeak/progressd/internal/progress"
	"github.com/aispeak/progressd/internal/store"
	"github.com/aispeak/progressd/internal/validation"
	"github.com/go-chi/chi/v5"
)

// maxUpdateAttempts bounds the fetch-compute-persist retry loop when
// the compare-and-swap on updated_at loses to a concurrent writer.
const maxUpdateAttempts = 3

// Handler implements the API handlers.
type Handler struct {
	store       store.Store
	matchCount  int
	maxDistance float64
	version     string
}

// NewHandler creates a new Handler around the progress store.
func NewHandler(s store.Store, matchCount int, maxDistance float64, version string) *Handler {
	return &Handler{
		store:       s,
		matchCount:  matchCount,
		maxDistance: maxDistance,
		version:     version,
	}
}

// Root answers the unauthenticated liveness probe.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("Aispeak Progress API is running"))
}

// Health returns the health status plus store statistics.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "healthy",
		"version":    h.version,
		"user_count": stats.UserCount,
	})
}

type createProgressRequest struct {
	UserID string `json:"userId"`
}

// CreateProgress handles POST /progress. Callers may only create the
// record matching their own verified identity.
func (h *Handler) CreateProgress(w http.ResponseWriter, r *http.Request) {
	callerID, ok := UserIDFromContext(r.Context())
	if !ok {
		WriteProblem(w, r, http.StatusUnauthorized, "No verified identity")
		return
	}

	var req createProgressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if err := validation.ValidateRequired("userId", req.UserID); err != nil {
		WriteProblemWithErrors(w, r, "userId is required", []validation.ValidationError{*err})
		return
	}
	if req.UserID != callerID {
		WriteProblem(w, r, http.StatusForbidden, "You can only create a progress record for yourself")
		return
	}

	created, err := h.store.CreateProgress(r.Context(), req.UserID)
	if err != nil {
		if !errors.Is(err, store.ErrAlreadyExists) {
			slog.Error("create progress failed", "error", err, "user_id", req.UserID)
		}
		MapStoreError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, created)
}

// GetProgress handles GET /progress/{userID}.
func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request) {
	callerID, ok := UserIDFromContext(r.Context())
	if !ok {
		WriteProblem(w, r, http.StatusUnauthorized, "No verified identity")
		return
	}

	userID := chi.URLParam(r, "userID")
	if userID != callerID {
		WriteProblem(w, r, http.StatusForbidden, "You can only view your own progress")
		return
	}

	p, err := h.store.GetProgress(r.Context(), userID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Error("get progress failed", "error", err, "user_id", userID)
		}
		MapStoreError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, p)
}

// UpdateProgress handles PUT /progress/{userID}: fetch the current
// record, run the pure update engine, and persist the result under a
// compare-and-swap guard. The loop retries a bounded number of times
// when a concurrent writer got there first.
func (h *Handler) UpdateProgress(w http.ResponseWriter, r *http.Request) {
	callerID, ok := UserIDFromContext(r.Context())
	if !ok {
		WriteProblem(w, r, http.StatusUnauthorized, "No verified identity")
		return
	}

	userID := chi.URLParam(r, "userID")
	if userID != callerID {
		WriteProblem(w, r, http.StatusForbidden, "You can only update your own progress")
		return
	}

	var patch progress.UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if patch.IsEmpty() {
		WriteProblem(w, r, http.StatusBadRequest, "Request body must contain fields to update")
		return
	}

	var c validation.Collector
	c.Add(validation.ValidateNonNegative("current_level", patch.CurrentLevel))
	c.Add(validation.ValidateNonNegative("level_xp", patch.LevelXP))
	c.Add(validation.ValidateNonNegative("total_xp", patch.TotalXP))
	c.Add(validation.ValidateNonNegative("lessons_completed_today", patch.LessonsCompletedToday))
	if c.HasErrors() {
		WriteProblemWithErrors(w, r, "Request contains invalid fields", c.Errors())
		return
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		current, err := h.store.GetProgress(r.Context(), userID)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				slog.Error("fetch progress for update failed", "error", err, "user_id", userID)
			}
			MapStoreError(w, r, err)
			return
		}

		next, tag := progress.Apply(*current, patch, time.Now())

		updated, err := h.store.ReplaceProgress(r.Context(), next, current.UpdatedAt)
		if errors.Is(err, store.ErrVersionConflict) {
			continue
		}
		if err != nil {
			slog.Error("replace progress failed", "error", err, "user_id", userID)
			MapStoreError(w, r, err)
			return
		}

		if tag != "" {
			entry := store.ActivityEntry{UserID: userID, Tag: tag}
			if err := h.store.AppendActivity(r.Context(), entry); err != nil {
				// The update itself succeeded; the log is best-effort.
				slog.Warn("append activity failed", "error", err, "user_id", userID)
			}
		}

		respondJSON(w, http.StatusOK, updated)
		return
	}

	WriteProblem(w, r, http.StatusConflict, "Progress record was updated concurrently")
}

type leaderboardResponse struct {
	Data  []progress.LeaderboardEntry `json:"data"`
	Total int                         `json:"total"`
	Page  int                         `json:"page"`
	Limit int                         `json:"limit"`
}

// Leaderboard handles GET /progress/leaderboard.
func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	var c validation.Collector
	page, err := validation.ParseIntInRange("page", r.URL.Query().Get("page"), 1, 1, math.MaxInt32)
	c.Add(err)
	limit, err := validation.ParseIntInRange("limit", r.URL.Query().Get("limit"), 10, 1, 100)
	c.Add(err)
	if c.HasErrors() {
		WriteProblemWithErrors(w, r, "Invalid pagination parameters", c.Errors())
		return
	}

	entries, total, qerr := h.store.Leaderboard(r.Context(), page, limit)
	if qerr != nil {
		slog.Error("leaderboard query failed", "error", qerr)
		MapStoreError(w, r, qerr)
		return
	}

	respondJSON(w, http.StatusOK, leaderboardResponse{
		Data:  entries,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

type similarUsersResponse struct {
	SimilarUsers []progress.SimilarUser `json:"similar_users"`
}

// FindSimilar handles GET /progress/similar/{userID}. Any
// authenticated caller may query; results never include the subject.
func (h *Handler) FindSimilar(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	matches, err := h.store.FindSimilar(r.Context(), userID, h.matchCount, h.maxDistance)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) && !errors.Is(err, store.ErrNoEmbedding) {
			slog.Error("similarity query failed", "error", err, "user_id", userID)
		}
		MapStoreError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, similarUsersResponse{SimilarUsers: matches})
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
