package e2e

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/aispeak/progressd/internal/api"
	"github.com/aispeak/progressd/internal/auth"
	"github.com/aispeak/progressd/internal/store"
	"github.com/google/uuid"
)

const testSecret = "e2e-signing-secret"

// testServer wires the real store, verifier, and router the same way
// cmd/progressd does, backed by a SQLite file in a temp dir.
type testServer struct {
	*httptest.Server
	store *store.SQLiteStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "progress.db")
	st, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	handler := api.NewHandler(st, 5, 1.0, "e2e")
	router := api.NewRouter(handler, auth.NewHS256Verifier(testSecret))

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testServer{Server: srv, store: st}
}

// newUser returns a fresh user ID and a valid bearer token for it.
func newUser(t *testing.T) (string, string) {
	t.Helper()
	userID := uuid.NewString()
	token, err := issueToken(userID)
	if err != nil {
		t.Fatal(err)
	}
	return userID, token
}

func issueToken(userID string) (string, error) {
	return auth.Issue(testSecret, userID, time.Hour)
}

// do issues a request with an optional bearer token and JSON body.
func (s *testServer) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, s.URL+path, reader)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, into any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

// createUser registers a progress record through the API.
func (s *testServer) createUser(t *testing.T, userID, token string) {
	t.Helper()
	resp := s.do(t, http.MethodPost, "/progress", token, map[string]string{"userId": userID})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create progress: status %d", resp.StatusCode)
	}
}

// updateUser applies a partial update through the API.
func (s *testServer) updateUser(t *testing.T, userID, token string, patch map[string]int) map[string]any {
	t.Helper()
	resp := s.do(t, http.MethodPut, "/progress/"+userID, token, patch)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update progress: status %d", resp.StatusCode)
	}
	var body map[string]any
	decodeBody(t, resp, &body)
	return body
}
