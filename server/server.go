// Package server exposes the chat engine over WebSocket and memory reads over
// HTTP.
//
// Routes:
//   - GET /ws?user_id=&thread_id=: one memory manager per connection
//   - GET /healthz
//   - GET /metrics
//   - GET /v1/users/{user}/facts
//   - GET /v1/users/{user}/threads/{thread}/history?page=&page_size=
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/engine"
	"github.com/becomeliminal/nim-memory/memory"
)

// DefaultThreadID is used when a client does not name a thread.
const DefaultThreadID = "default"

// Config holds Server dependencies.
type Config struct {
	Engine   *engine.Engine
	Managers memory.Factory

	// Gatherer backs /metrics. Default: prometheus.DefaultGatherer
	Gatherer prometheus.Gatherer
	Metrics  *Metrics
	Logger   *zap.Logger

	// AllowAnyOrigin disables the same-origin check for browser clients.
	AllowAnyOrigin bool
}

// Server serves the nimmem API.
type Server struct {
	engine   *engine.Engine
	managers memory.Factory
	gatherer prometheus.Gatherer
	metrics  *Metrics
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// New creates a server.
func New(cfg Config) *Server {
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Server{
		engine:   cfg.Engine,
		managers: cfg.Managers,
		gatherer: cfg.Gatherer,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger.Named("server"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	r.Get("/ws", s.handleWS)
	r.Get("/v1/users/{user}/facts", s.handleFacts)
	r.Get("/v1/users/{user}/threads/{thread}/history", s.handleHistory)
	return r
}

// ListenAndServe serves on addr until ctx is done, then shuts down within
// shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleFacts(w http.ResponseWriter, r *http.Request) {
	ns := core.Namespace{UserID: chi.URLParam(r, "user"), ThreadID: DefaultThreadID}
	if !ns.Valid() {
		respondError(w, http.StatusBadRequest, "invalid_user", "user is required")
		return
	}
	mgr := s.managers(r.Context(), ns)
	respondJSON(w, http.StatusOK, mgr.GetUserFacts(r.Context()))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	ns := core.Namespace{UserID: chi.URLParam(r, "user"), ThreadID: chi.URLParam(r, "thread")}
	if !ns.Valid() {
		respondError(w, http.StatusBadRequest, "invalid_namespace", "user and thread are required")
		return
	}
	page, err := intQuery(r, "page", 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_page", err.Error())
		return
	}
	pageSize, err := intQuery(r, "page_size", memory.DefaultPageSize)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_page_size", err.Error())
		return
	}
	if page < 0 {
		page = 0
	}
	if pageSize <= 0 {
		pageSize = memory.DefaultPageSize
	}
	if pageSize > memory.MaxPageSize {
		pageSize = memory.MaxPageSize
	}

	mgr := s.managers(r.Context(), ns)
	respondJSON(w, http.StatusOK, HistoryResponse{
		UserID:   ns.UserID,
		ThreadID: ns.ThreadID,
		Page:     page,
		PageSize: pageSize,
		Turns:    mgr.FetchHistory(r.Context(), page, pageSize),
	})
}

func intQuery(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
