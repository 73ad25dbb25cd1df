// Package api implements the JSON HTTP API.
//
// Identity is forwarded by the gateway in front of the service:
//
//	X-User-ID    opaque user id, required on user routes
//	X-User-Role  ADMIN for /api/admin routes
//
// Routes:
//
//	GET    /api/health
//	GET    /api/opportunities                 eligible feed for the caller
//	GET    /api/opportunities/{id}
//	POST   /api/opportunities/{id}/save       toggle saved state
//	POST   /api/opportunities/{id}/action     track VIEWED|APPLIED|PLANNING
//	DELETE /api/opportunities/{id}/action
//	GET    /api/profile
//	PUT    /api/profile
//	POST   /api/growth/events
//	GET    /api/admin/growth
//	POST   /api/admin/opportunities
//	PUT    /api/admin/opportunities/{id}
//	DELETE /api/admin/opportunities/{id}
//	GET    /api/admin/audit
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"fresherjobs/internal/funnel"
	"fresherjobs/internal/storage"
)

// Identity headers set by the gateway.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
	RoleAdmin      = "ADMIN"
)

// FunnelTracker records and reports growth funnel events.
type FunnelTracker interface {
	Record(ctx context.Context, source, event string)
	Metrics(ctx context.Context) (funnel.Metrics, error)
}

// Server holds shared handler dependencies.
type Server struct {
	store  storage.Storage
	funnel FunnelTracker
	log    *slog.Logger
	now    func() time.Time
}

// New returns a configured Server.
func New(store storage.Storage, tracker FunnelTracker, log *slog.Logger) *Server {
	return &Server{store: store, funnel: tracker, log: log, now: time.Now}
}

// RegisterRoutes mounts all API routes on mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", s.health)

	mux.HandleFunc("GET /api/opportunities", s.requireUser(s.listOpportunities))
	mux.HandleFunc("GET /api/opportunities/{id}", s.requireUser(s.getOpportunity))
	mux.HandleFunc("POST /api/opportunities/{id}/save", s.requireUser(s.toggleSave))
	mux.HandleFunc("POST /api/opportunities/{id}/action", s.requireUser(s.trackAction))
	mux.HandleFunc("DELETE /api/opportunities/{id}/action", s.requireUser(s.removeAction))

	mux.HandleFunc("GET /api/profile", s.requireUser(s.getProfile))
	mux.HandleFunc("PUT /api/profile", s.requireUser(s.putProfile))

	mux.HandleFunc("POST /api/growth/events", s.recordGrowthEvent)

	mux.HandleFunc("GET /api/admin/growth", s.requireAdmin(s.growthMetrics))
	mux.HandleFunc("POST /api/admin/opportunities", s.requireAdmin(s.createOpportunity))
	mux.HandleFunc("PUT /api/admin/opportunities/{id}", s.requireAdmin(s.updateOpportunity))
	mux.HandleFunc("DELETE /api/admin/opportunities/{id}", s.requireAdmin(s.deleteOpportunity))
	mux.HandleFunc("GET /api/admin/audit", s.requireAdmin(s.listAudit))
}

// Handler returns a ServeMux with every API route mounted.
func (s *Server) Handler() *http.ServeMux {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

type userHandler func(w http.ResponseWriter, r *http.Request, userID string)

func (s *Server) requireUser(h userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(HeaderUserID)
		if userID == "" {
			jsonError(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		h(w, r, userID)
	}
}

func (s *Server) requireAdmin(h userHandler) http.HandlerFunc {
	return s.requireUser(func(w http.ResponseWriter, r *http.Request, userID string) {
		if r.Header.Get(HeaderUserRole) != RoleAdmin {
			jsonError(w, "forbidden", http.StatusForbidden)
			return
		}
		h(w, r, userID)
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v)
}
