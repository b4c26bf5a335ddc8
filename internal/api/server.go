// Package api is the coordinator's HTTP surface: operator authentication,
// read-only views of the node registry/event log/inclusion audit trail,
// and a websocket feed of live events — grounded on the teacher's
// internal/api package (chi router, cors middleware, bearer-token
// middleware, uniform JSON envelope), scoped to RadioMesh's flat
// single-network model (no tenants, applications, or gateways).
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/radiomesh/radiomesh/internal/auth"
	"github.com/radiomesh/radiomesh/internal/config"
	"github.com/radiomesh/radiomesh/internal/coordstore"
	"github.com/radiomesh/radiomesh/internal/events"
)

type claimsContextKey struct{}

// InclusionController is the subset of *device.Device the API needs to
// read and toggle a hub's runtime inclusion_mode flag (spec.md §4.13).
// Declared here, rather than importing internal/device directly, so
// handler tests can exercise the toggle against a fake.
type InclusionController interface {
	InclusionMode() bool
	SetInclusionMode(on bool)
}

// Server is the coordinator's REST + websocket API.
type Server struct {
	cfg   *config.Config
	store coordstore.Store
	auth  *auth.Manager
	feed  *eventFeed
	hub   InclusionController

	router chi.Router
	server *http.Server
}

// NewServer wires a Server against an already-open coordstore. It does not
// touch any events.Subscriber; the caller registers EventHandler on one to
// bridge published events onto connected websocket clients. hub is the coordinator's own embedded hub Device, if any; nil
// disables the inclusion-mode endpoints (coordinator running API-only,
// observing an externally-run hub).
func NewServer(cfg *config.Config, store coordstore.Store, authMgr *auth.Manager, hub InclusionController) *Server {
	s := &Server{
		cfg:    cfg,
		store:  store,
		auth:   authMgr,
		feed:   newEventFeed(),
		hub:    hub,
		router: chi.NewRouter(),
	}
	s.setupRoutes()
	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// EventHandler returns the handler to register on an events.Subscriber so
// published events reach connected websocket clients.
func (s *Server) EventHandler() events.Handler { return s.feed.handle }

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.router.Route("/v1", s.setupAPIRoutes)
}

// ListenAndServe starts the HTTP server on addr.
func (s *Server) ListenAndServe(addr string) error {
	s.server.Addr = addr
	log.Info().Str("addr", addr).Msg("starting coordinator API")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server and disconnects websocket
// clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.feed.closeAll()
	return s.server.Shutdown(ctx)
}

// authMiddleware requires a valid Bearer token and stashes its claims on
// the request context for handlers that need the caller's identity.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			s.respondError(w, http.StatusUnauthorized, "missing authorization header")
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			s.respondError(w, http.StatusUnauthorized, "invalid authorization header")
			return
		}
		claims, err := s.auth.ValidateToken(parts[1])
		if err != nil {
			s.respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func claimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*auth.Claims)
	return claims, ok
}
