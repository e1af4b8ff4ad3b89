package e2e

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/aispeak/progressd/internal/progress"
)

func TestHealthAndRootAreUnauthenticated(t *testing.T) {
	srv := newTestServer(t)

	resp := srv.do(t, http.MethodGet, "/", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET / status = %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "running") {
		t.Errorf("root body = %q", body)
	}

	resp = srv.do(t, http.MethodGet, "/health", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /health status = %d", resp.StatusCode)
	}
	var health map[string]any
	decodeBody(t, resp, &health)
	if health["status"] != "healthy" {
		t.Errorf("health = %v", health)
	}
}

func TestProgressRequiresToken(t *testing.T) {
	srv := newTestServer(t)
	userID, _ := newUser(t)

	paths := []struct {
		method, path string
	}{
		{http.MethodPost, "/progress"},
		{http.MethodGet, "/progress/" + userID},
		{http.MethodPut, "/progress/" + userID},
		{http.MethodGet, "/progress/leaderboard"},
		{http.MethodGet, "/progress/similar/" + userID},
	}
	for _, p := range paths {
		resp := srv.do(t, p.method, p.path, "", nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s %s without token: status = %d, want 401",
				p.method, p.path, resp.StatusCode)
		}
		if ct := resp.Header.Get("Content-Type"); ct != "application/problem+json" {
			t.Errorf("%s %s: content type = %q", p.method, p.path, ct)
		}
	}
}

func TestCreateGetLifecycle(t *testing.T) {
	srv := newTestServer(t)
	userID, token := newUser(t)

	resp := srv.do(t, http.MethodPost, "/progress", token, map[string]string{"userId": userID})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: status = %d", resp.StatusCode)
	}
	var created map[string]any
	decodeBody(t, resp, &created)
	if created["user_id"] != userID {
		t.Errorf("user_id = %v", created["user_id"])
	}
	if created["current_level"] != float64(1) {
		t.Errorf("current_level = %v, want 1", created["current_level"])
	}
	if created["total_xp"] != float64(0) || created["streak_days"] != float64(0) {
		t.Errorf("fresh record not zeroed: %v", created)
	}
	if created["activity_embedding"] != nil {
		t.Errorf("fresh record has embedding: %v", created["activity_embedding"])
	}

	// Creating again conflicts.
	resp = srv.do(t, http.MethodPost, "/progress", token, map[string]string{"userId": userID})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate create: status = %d, want 409", resp.StatusCode)
	}

	// Read it back.
	resp = srv.do(t, http.MethodGet, "/progress/"+userID, token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get: status = %d", resp.StatusCode)
	}
	var fetched map[string]any
	decodeBody(t, resp, &fetched)
	if fetched["user_id"] != userID {
		t.Errorf("fetched user_id = %v", fetched["user_id"])
	}

	// Creating or reading someone else's record is forbidden.
	otherID, _ := newUser(t)
	resp = srv.do(t, http.MethodPost, "/progress", token, map[string]string{"userId": otherID})
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("create for other user: status = %d, want 403", resp.StatusCode)
	}
	resp = srv.do(t, http.MethodGet, "/progress/"+otherID, token, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("get other user: status = %d, want 403", resp.StatusCode)
	}
}

func TestGetMissingRecord(t *testing.T) {
	srv := newTestServer(t)
	userID, token := newUser(t)

	resp := srv.do(t, http.MethodGet, "/progress/"+userID, token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestUpdateSameDayKeepsStreak(t *testing.T) {
	srv := newTestServer(t)
	userID, token := newUser(t)
	srv.createUser(t, userID, token)

	body := srv.updateUser(t, userID, token, map[string]int{
		"lessons_completed_today": 2,
		"total_xp":                50,
	})

	if body["lessons_completed_today"] != float64(2) {
		t.Errorf("lessons = %v", body["lessons_completed_today"])
	}
	if body["total_xp"] != float64(50) {
		t.Errorf("total_xp = %v", body["total_xp"])
	}
	// Same calendar day as creation: streak untouched.
	if body["streak_days"] != float64(0) {
		t.Errorf("streak_days = %v, want 0", body["streak_days"])
	}
	// Lessons present in the payload classify as lesson completion.
	wantEmbedding(t, body, progress.TagLessonCompletion)
}

func TestUpdateNewDayExtendsStreak(t *testing.T) {
	srv := newTestServer(t)
	userID, token := newUser(t)
	srv.createUser(t, userID, token)

	// Pretend the last activity and a running 4-day streak happened
	// yesterday, then report a lesson today.
	backdate(t, srv, userID, func(p *progress.UserProgress) {
		p.LastActivityAt = time.Now().AddDate(0, 0, -1)
		p.StreakDays = 4
		p.LessonsCompletedToday = 3
	})

	body := srv.updateUser(t, userID, token, map[string]int{
		"lessons_completed_today": 4,
	})

	if body["streak_days"] != float64(5) {
		t.Errorf("streak_days = %v, want 5", body["streak_days"])
	}
	if body["lessons_completed_today"] != float64(4) {
		t.Errorf("lessons = %v, want 4", body["lessons_completed_today"])
	}
	wantEmbedding(t, body, progress.TagLessonCompletion)
}

func TestUpdateAfterGapResetsStreak(t *testing.T) {
	srv := newTestServer(t)
	userID, token := newUser(t)
	srv.createUser(t, userID, token)

	backdate(t, srv, userID, func(p *progress.UserProgress) {
		p.LastActivityAt = time.Now().AddDate(0, 0, -3)
		p.StreakDays = 9
		p.LessonsCompletedToday = 2
		p.TotalXP = 100
	})

	// Passive XP gain after a three-day gap: streak collapses to zero,
	// the stale daily counter resets, and the jump past the threshold
	// classifies as xp_gain.
	body := srv.updateUser(t, userID, token, map[string]int{"total_xp": 130})

	if body["streak_days"] != float64(0) {
		t.Errorf("streak_days = %v, want 0", body["streak_days"])
	}
	if body["lessons_completed_today"] != float64(0) {
		t.Errorf("lessons = %v, want 0", body["lessons_completed_today"])
	}
	wantEmbedding(t, body, progress.TagXPGain)
}

func TestUpdateRejectsBadPayloads(t *testing.T) {
	srv := newTestServer(t)
	userID, token := newUser(t)
	srv.createUser(t, userID, token)

	resp := srv.do(t, http.MethodPut, "/progress/"+userID, token, map[string]int{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty payload: status = %d, want 400", resp.StatusCode)
	}

	resp = srv.do(t, http.MethodPut, "/progress/"+userID, token, map[string]int{"total_xp": -5})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("negative total_xp: status = %d, want 400", resp.StatusCode)
	}

	otherID, _ := newUser(t)
	resp = srv.do(t, http.MethodPut, "/progress/"+otherID, token, map[string]int{"total_xp": 5})
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("update other user: status = %d, want 403", resp.StatusCode)
	}
}

func TestLeaderboardOrderingAndPagination(t *testing.T) {
	srv := newTestServer(t)

	// Users with descending XP; two share a score to exercise the
	// user_id tiebreak.
	scores := map[string]int{
		"11111111-0000-0000-0000-000000000001": 300,
		"11111111-0000-0000-0000-000000000002": 100,
		"11111111-0000-0000-0000-000000000003": 100,
		"11111111-0000-0000-0000-000000000004": 50,
	}
	var anyToken string
	for id, xp := range scores {
		token := seedUser(t, srv, id, func(p *progress.UserProgress) {
			p.TotalXP = xp
		})
		anyToken = token
	}

	resp := srv.do(t, http.MethodGet, "/progress/leaderboard?page=1&limit=3", anyToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("leaderboard: status = %d", resp.StatusCode)
	}
	var page struct {
		Data []struct {
			UserID  string `json:"user_id"`
			TotalXP int    `json:"total_xp"`
		} `json:"data"`
		Total int `json:"total"`
		Page  int `json:"page"`
		Limit int `json:"limit"`
	}
	decodeBody(t, resp, &page)

	if page.Total != 4 || page.Page != 1 || page.Limit != 3 {
		t.Errorf("envelope = %+v", page)
	}
	if len(page.Data) != 3 {
		t.Fatalf("got %d entries, want 3", len(page.Data))
	}
	wantOrder := []string{
		"11111111-0000-0000-0000-000000000001",
		"11111111-0000-0000-0000-000000000002",
		"11111111-0000-0000-0000-000000000003",
	}
	for i, want := range wantOrder {
		if page.Data[i].UserID != want {
			t.Errorf("rank %d = %s, want %s", i, page.Data[i].UserID, want)
		}
	}

	// Second page holds the remaining user.
	resp = srv.do(t, http.MethodGet, "/progress/leaderboard?page=2&limit=3", anyToken, nil)
	decodeBody(t, resp, &page)
	if len(page.Data) != 1 || page.Data[0].TotalXP != 50 {
		t.Errorf("page 2 = %+v", page.Data)
	}

	// Out-of-range parameters are rejected.
	for _, q := range []string{"page=0", "limit=0", "limit=101", "page=abc"} {
		resp = srv.do(t, http.MethodGet, "/progress/leaderboard?"+q, anyToken, nil)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, resp.StatusCode)
		}
	}
}

func TestSimilarUsers(t *testing.T) {
	srv := newTestServer(t)

	subjectID := "22222222-0000-0000-0000-000000000000"
	subjectToken := seedUser(t, srv, subjectID, func(p *progress.UserProgress) {
		p.ActivityEmbedding = progress.TagLessonCompletion.Vector()
	})

	// close: another lesson-completion user, distance 0.
	seedUser(t, srv, "22222222-0000-0000-0000-000000000001", func(p *progress.UserProgress) {
		p.ActivityEmbedding = progress.TagLessonCompletion.Vector()
	})
	// near: general activity, inside the distance cutoff.
	seedUser(t, srv, "22222222-0000-0000-0000-000000000002", func(p *progress.UserProgress) {
		p.ActivityEmbedding = progress.TagGeneralActivity.Vector()
	})
	// far: beyond the cutoff of 1.0.
	seedUser(t, srv, "22222222-0000-0000-0000-000000000003", func(p *progress.UserProgress) {
		p.ActivityEmbedding = []float32{9, 9, 9}
	})
	// bare: no embedding at all.
	bareID := "22222222-0000-0000-0000-000000000004"
	bareToken := seedUser(t, srv, bareID, nil)

	resp := srv.do(t, http.MethodGet, "/progress/similar/"+subjectID, subjectToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("similar: status = %d", resp.StatusCode)
	}
	var body struct {
		SimilarUsers []struct {
			UserID   string  `json:"user_id"`
			Distance float64 `json:"distance"`
		} `json:"similar_users"`
	}
	decodeBody(t, resp, &body)

	if len(body.SimilarUsers) != 2 {
		t.Fatalf("got %d matches, want 2: %+v", len(body.SimilarUsers), body.SimilarUsers)
	}
	if body.SimilarUsers[0].UserID != "22222222-0000-0000-0000-000000000001" {
		t.Errorf("nearest = %s", body.SimilarUsers[0].UserID)
	}
	if body.SimilarUsers[0].Distance != 0 {
		t.Errorf("nearest distance = %v, want 0", body.SimilarUsers[0].Distance)
	}
	if body.SimilarUsers[1].UserID != "22222222-0000-0000-0000-000000000002" {
		t.Errorf("second = %s", body.SimilarUsers[1].UserID)
	}
	for _, m := range body.SimilarUsers {
		if m.UserID == subjectID {
			t.Error("subject included in its own matches")
		}
	}

	// A subject with no embedding yet is a 404.
	resp = srv.do(t, http.MethodGet, "/progress/similar/"+bareID, bareToken, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("bare subject: status = %d, want 404", resp.StatusCode)
	}

	// An unknown subject is a 404 too.
	resp = srv.do(t, http.MethodGet, "/progress/similar/22222222-0000-0000-0000-0000000000ff",
		subjectToken, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown subject: status = %d, want 404", resp.StatusCode)
	}
}

func TestHealthReflectsUserCount(t *testing.T) {
	srv := newTestServer(t)
	for i := 0; i < 3; i++ {
		seedUser(t, srv, fmt.Sprintf("33333333-0000-0000-0000-00000000000%d", i), nil)
	}

	resp := srv.do(t, http.MethodGet, "/health", "", nil)
	var health map[string]any
	decodeBody(t, resp, &health)
	if health["user_count"] != float64(3) {
		t.Errorf("user_count = %v, want 3", health["user_count"])
	}
}

// wantEmbedding asserts the response carries the tag's classification
// vector.
func wantEmbedding(t *testing.T, body map[string]any, tag progress.ActivityTag) {
	t.Helper()
	raw, ok := body["activity_embedding"].([]any)
	if !ok {
		t.Fatalf("activity_embedding = %v", body["activity_embedding"])
	}
	want := tag.Vector()
	if len(raw) != len(want) {
		t.Fatalf("embedding length = %d, want %d", len(raw), len(want))
	}
	for i, v := range raw {
		got, ok := v.(float64)
		if !ok || float32(got) != want[i] {
			t.Errorf("embedding[%d] = %v, want %v", i, v, want[i])
		}
	}
}

// backdate mutates a stored record directly, bypassing the API, so
// tests can simulate activity on earlier days.
func backdate(t *testing.T, srv *testServer, userID string, mutate func(*progress.UserProgress)) {
	t.Helper()
	ctx := context.Background()
	current, err := srv.store.GetProgress(ctx, userID)
	if err != nil {
		t.Fatal(err)
	}
	next := *current
	mutate(&next)
	if _, err := srv.store.ReplaceProgress(ctx, next, current.UpdatedAt); err != nil {
		t.Fatal(err)
	}
}

// seedUser creates a record through the API and optionally mutates it
// through the store. Returns the user's bearer token.
func seedUser(t *testing.T, srv *testServer, userID string, mutate func(*progress.UserProgress)) string {
	t.Helper()
	token, err := issueToken(userID)
	if err != nil {
		t.Fatal(err)
	}
	srv.createUser(t, userID, token)
	if mutate != nil {
		backdate(t, srv, userID, mutate)
	}
	return token
}
