package daemon

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ecomstore/chatsync/internal/cache"
	"github.com/ecomstore/chatsync/internal/sync"
)

// Server is the local introspection HTTP server of a session daemon. It is
// read-only: state queries and Prometheus metrics, no mutations.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	engine     *sync.Engine
	db         *cache.DB
	session    string
	logger     *zap.Logger
}

// NewServer creates the server bound to the configured loopback address.
func NewServer(p Params, listenAddr string, logger *zap.Logger, engine *sync.Engine, db *cache.DB) (*Server, error) {
	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, err
	}

	s := &Server{
		listener: listener,
		engine:   engine,
		db:       db,
		session:  p.SessionName,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/status", s.handleStatus)
	r.Get("/conversations", s.handleConversations)
	r.Get("/unread", s.handleUnread)
	r.Handle("/metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

// Addr returns the bound address, useful when listening on port 0.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Start begins serving requests. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("introspection server starting", zap.String("addr", s.Addr()))
	err := s.httpServer.Serve(s.listener)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop performs a graceful shutdown.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("introspection server stopping")
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_ = s.httpServer.Shutdown(shutdownCtx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	var pendingOutbox int64
	if s.db != nil {
		pendingOutbox, _ = s.db.PendingOutboxCount()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session":            s.session,
		"state":              string(s.engine.State()),
		"connected":          s.engine.Connected(),
		"reconnectAttempts":  s.engine.Attempts(),
		"activeConversation": s.engine.ActiveConversation(),
		"totalUnread":        s.engine.Conversations().TotalUnread(),
		"pendingOutbox":      pendingOutbox,
	})
}

func (s *Server) handleConversations(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Conversations().Snapshot())
}

func (s *Server) handleUnread(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{
		"totalUnread": s.engine.Conversations().TotalUnread(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
