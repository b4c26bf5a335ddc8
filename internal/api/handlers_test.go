package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/radiomesh/radiomesh/internal/auth"
	"github.com/radiomesh/radiomesh/internal/config"
	"github.com/radiomesh/radiomesh/internal/models"
	"github.com/radiomesh/radiomesh/pkg/mesh"
)

// fakeHub is a minimal InclusionController standing in for *device.Device
// in handler tests, so they don't need a live radio/key store to exercise
// the inclusion-mode endpoints.
type fakeHub struct {
	mode atomic.Bool
}

func newFakeHub(initial bool) *fakeHub {
	f := &fakeHub{}
	f.mode.Store(initial)
	return f
}

func (f *fakeHub) InclusionMode() bool      { return f.mode.Load() }
func (f *fakeHub) SetInclusionMode(on bool) { f.mode.Store(on) }

func testServer(t *testing.T) (*Server, *fakeStore) {
	t.Helper()
	return testServerWithHub(t, nil)
}

func testServerWithHub(t *testing.T, hub InclusionController) (*Server, *fakeStore) {
	t.Helper()
	cfg := &config.Config{JWT: config.JWTConfig{Secret: "test-secret", AccessTokenTTL: time.Hour}}
	store := newFakeStore()
	authMgr := auth.NewManager(&cfg.JWT)
	return NewServer(cfg, store, authMgr, hub), store
}

func bearerToken(t *testing.T, s *Server, op *models.Operator) string {
	t.Helper()
	tok, err := s.auth.GenerateToken(op)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func TestHealthIsPublic(t *testing.T) {
	s, _ := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestProtectedRouteRejectsMissingToken(t *testing.T) {
	s, _ := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/nodes/", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestProtectedRouteAcceptsValidToken(t *testing.T) {
	s, store := testServer(t)
	op := &models.Operator{ID: uuid.New(), Email: "ops@example.com"}
	store.nodes[mesh.DeviceID{1, 2, 3, 4}] = &models.Node{DeviceID: mesh.DeviceID{1, 2, 3, 4}, Label: "node-a"}

	req := httptest.NewRequest(http.MethodGet, "/v1/nodes/", nil)
	req.Header.Set("Authorization", "Bearer "+bearerToken(t, s, op))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}

	var nodes []*models.Node
	if err := json.Unmarshal(rec.Body.Bytes(), &nodes); err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 1 || nodes[0].Label != "node-a" {
		t.Fatalf("nodes = %+v, want one node-a", nodes)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	s, store := testServer(t)
	hash, err := auth.HashPassword("correct-password")
	if err != nil {
		t.Fatal(err)
	}
	store.operators["ops@example.com"] = &models.Operator{ID: uuid.New(), Email: "ops@example.com", PasswordHash: hash}

	body, _ := json.Marshal(map[string]string{"email": "ops@example.com", "password": "wrong"})
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestLoginSucceedsAndReturnsUsableToken(t *testing.T) {
	s, store := testServer(t)
	hash, err := auth.HashPassword("correct-password")
	if err != nil {
		t.Fatal(err)
	}
	store.operators["ops@example.com"] = &models.Operator{ID: uuid.New(), Email: "ops@example.com", PasswordHash: hash}

	body, _ := json.Marshal(map[string]string{"email": "ops@example.com", "password": "correct-password"})
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}

	var resp struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.AccessToken == "" {
		t.Fatal("expected a non-empty access token")
	}
	if _, err := s.auth.ValidateToken(resp.AccessToken); err != nil {
		t.Fatalf("returned token does not validate: %v", err)
	}
}

func TestGetNodeNotFoundReturns404(t *testing.T) {
	s, _ := testServer(t)
	op := &models.Operator{ID: uuid.New(), Email: "ops@example.com"}

	req := httptest.NewRequest(http.MethodGet, "/v1/nodes/deadbeef", nil)
	req.Header.Set("Authorization", "Bearer "+bearerToken(t, s, op))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestGetNodeRejectsMalformedDeviceID(t *testing.T) {
	s, _ := testServer(t)
	op := &models.Operator{ID: uuid.New(), Email: "ops@example.com"}

	req := httptest.NewRequest(http.MethodGet, "/v1/nodes/not-hex", nil)
	req.Header.Set("Authorization", "Bearer "+bearerToken(t, s, op))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestMeReturnsTokenClaims(t *testing.T) {
	s, _ := testServer(t)
	op := &models.Operator{ID: uuid.New(), Email: "ops@example.com", IsAdmin: true}

	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+bearerToken(t, s, op))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Email   string `json:"email"`
		IsAdmin bool   `json:"isAdmin"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Email != op.Email || !body.IsAdmin {
		t.Fatalf("body = %+v, want email=%s isAdmin=true", body, op.Email)
	}
}

func TestInclusionModeGetWithoutHubReturns404(t *testing.T) {
	s, _ := testServer(t)
	op := &models.Operator{ID: uuid.New(), Email: "ops@example.com"}

	req := httptest.NewRequest(http.MethodGet, "/v1/inclusion-mode/", nil)
	req.Header.Set("Authorization", "Bearer "+bearerToken(t, s, op))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestInclusionModeGetReturnsCurrentState(t *testing.T) {
	hub := newFakeHub(true)
	s, _ := testServerWithHub(t, hub)
	op := &models.Operator{ID: uuid.New(), Email: "ops@example.com"}

	req := httptest.NewRequest(http.MethodGet, "/v1/inclusion-mode/", nil)
	req.Header.Set("Authorization", "Bearer "+bearerToken(t, s, op))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	var body struct {
		InclusionMode bool `json:"inclusionMode"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if !body.InclusionMode {
		t.Fatal("expected inclusionMode=true to round-trip")
	}
}

func TestInclusionModeSetRejectsNonAdmin(t *testing.T) {
	hub := newFakeHub(true)
	s, _ := testServerWithHub(t, hub)
	op := &models.Operator{ID: uuid.New(), Email: "ops@example.com", IsAdmin: false}

	body, _ := json.Marshal(map[string]bool{"inclusionMode": false})
	req := httptest.NewRequest(http.MethodPut, "/v1/inclusion-mode/", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+bearerToken(t, s, op))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if !hub.InclusionMode() {
		t.Fatal("a rejected request must not change hub state")
	}
}

func TestInclusionModeSetByAdminTogglesHub(t *testing.T) {
	hub := newFakeHub(true)
	s, _ := testServerWithHub(t, hub)
	op := &models.Operator{ID: uuid.New(), Email: "ops@example.com", IsAdmin: true}

	body, _ := json.Marshal(map[string]bool{"inclusionMode": false})
	req := httptest.NewRequest(http.MethodPut, "/v1/inclusion-mode/", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+bearerToken(t, s, op))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	if hub.InclusionMode() {
		t.Fatal("expected the admin's PUT to turn inclusion mode off")
	}
}

var _ = context.Background
