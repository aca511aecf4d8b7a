package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tablekit/tablekit/collab"
	"github.com/tablekit/tablekit/internal/config"
	"github.com/tablekit/tablekit/internal/logging"
)

// Server exposes the hub over HTTP: the polling endpoints of the wire
// protocol plus the websocket upgrade.
type Server struct {
	hub    *Hub
	cfg    config.Config
	router *chi.Mux
	server *http.Server
}

// NewServer wires routes and middleware around a hub.
func NewServer(h *Hub, cfg config.Config) *Server {
	s := &Server{
		hub:    h,
		cfg:    cfg,
		router: chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/changes", s.handleGetChanges)
	s.router.Post("/changes", s.handlePostChanges)
	s.router.Get("/ws", s.handleWebSocket)
}

// Start begins listening for HTTP requests.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"clients": s.hub.ClientCount(),
	})
}

// handleGetChanges serves GET /changes?since=<unix ms>&tableId=...
func (s *Server) handleGetChanges(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid since parameter", http.StatusBadRequest)
			return
		}
		since = time.UnixMilli(ms)
	}

	changes := s.hub.ChangesSince(since, r.URL.Query().Get("tableId"))
	if changes == nil {
		changes = []collab.Message{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string][]collab.Message{"changes": changes})
}

// handlePostChanges accepts a published batch:
// {"changes": [...], "user": {...}, "tableId": "..."}.
func (s *Server) handlePostChanges(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var payload struct {
		Changes []collab.Message `json:"changes"`
		User    collab.User      `json:"user"`
		TableID string           `json:"tableId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	// Fill identity the sender left implicit on individual changes.
	for i := range payload.Changes {
		if payload.Changes[i].User.ID == "" {
			payload.Changes[i].User = payload.User
		}
		if payload.Changes[i].TableID == "" {
			payload.Changes[i].TableID = payload.TableID
		}
	}

	s.hub.Publish(payload.Changes, nil)
	log.Debug("changes published", "count", len(payload.Changes), "table", payload.TableID)
	w.WriteHeader(http.StatusNoContent)
}
