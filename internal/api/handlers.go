package api

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/radiomesh/radiomesh/internal/auth"
	"github.com/radiomesh/radiomesh/internal/coordstore"
	"github.com/radiomesh/radiomesh/pkg/mesh"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	op, err := s.store.GetOperatorByEmail(r.Context(), req.Email)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if !auth.VerifyPassword(req.Password, op.PasswordHash) {
		s.respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := s.auth.GenerateToken(op)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   int(s.cfg.JWT.AccessTokenTTL.Seconds()),
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		s.respondError(w, http.StatusUnauthorized, "missing claims")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"operatorId": claims.OperatorID,
		"email":      claims.Email,
		"isAdmin":    claims.IsAdmin,
	})
}

// handleGetInclusionMode reports whether the coordinator's embedded hub
// currently accepts inclusion-class traffic (spec.md §4.13).
func (s *Server) handleGetInclusionMode(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		s.respondError(w, http.StatusNotFound, "this coordinator has no embedded hub device")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]bool{"inclusionMode": s.hub.InclusionMode()})
}

// handleSetInclusionMode toggles the embedded hub's inclusion_mode flag.
// Turning it off cancels every in-flight inclusion session (spec.md §4.13
// cancellation rule (b)). Restricted to operator accounts flagged admin,
// since it changes what the physical mesh will accept over the air.
func (s *Server) handleSetInclusionMode(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		s.respondError(w, http.StatusNotFound, "this coordinator has no embedded hub device")
		return
	}
	claims, ok := claimsFromContext(r.Context())
	if !ok || !claims.IsAdmin {
		s.respondError(w, http.StatusForbidden, "admin privileges required")
		return
	}
	var req struct {
		InclusionMode bool `json:"inclusionMode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.hub.SetInclusionMode(req.InclusionMode)
	s.respondJSON(w, http.StatusOK, map[string]bool{"inclusionMode": s.hub.InclusionMode()})
}

func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.store.ListNodes(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, nodes)
}

func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	id, ok := s.parseDeviceID(w, r)
	if !ok {
		return
	}
	node, err := s.store.GetNode(r.Context(), id)
	if err == coordstore.ErrNotFound {
		s.respondError(w, http.StatusNotFound, "node not found")
		return
	}
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, node)
}

func (s *Server) handleListNodeEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := s.parseDeviceID(w, r)
	if !ok {
		return
	}
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 50
	}
	events, err := s.store.ListEventsForNode(r.Context(), id, limit)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, events)
}

func (s *Server) handleGetRoutingSnapshot(w http.ResponseWriter, r *http.Request) {
	id, ok := s.parseDeviceID(w, r)
	if !ok {
		return
	}
	rows, err := s.store.LatestRoutingSnapshot(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, rows)
}

func (s *Server) handleListInclusionAudit(w http.ResponseWriter, r *http.Request) {
	id, ok := s.parseDeviceID(w, r)
	if !ok {
		return
	}
	entries, err := s.store.ListInclusionAudit(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, entries)
}

func (s *Server) parseDeviceID(w http.ResponseWriter, r *http.Request) (mesh.DeviceID, bool) {
	raw := chi.URLParam(r, "deviceID")
	b, err := hex.DecodeString(raw)
	if err != nil || len(b) != 4 {
		s.respondError(w, http.StatusBadRequest, "deviceID must be 8 hex characters")
		return mesh.DeviceID{}, false
	}
	var id mesh.DeviceID
	copy(id[:], b)
	return id, true
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
