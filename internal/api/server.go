// Package api serves the operator HTTP surface: health, plugin and handler
// introspection, recent dispatch traces (also streamed over a websocket),
// plugin reloads and, when enabled, the Telegram webhook.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"plugbot/internal/dispatch"
	"plugbot/internal/loader"
	"plugbot/internal/trace"
	"plugbot/pkg/plugin"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait    = 10 * time.Second
	streamBuffer = 64
)

// Server provides the HTTP API endpoints of the bot.
type Server struct {
	manager  plugin.Manager
	registry *dispatch.Registry
	trace    *trace.Recorder
	token    string
	webhook  http.Handler
	upgrader websocket.Upgrader
	logger   *zap.Logger
	server   *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithToken requires "Authorization: Bearer <token>" on mutating endpoints.
func WithToken(token string) Option {
	return func(s *Server) { s.token = token }
}

// WithWebhook mounts h at POST /webhook.
func WithWebhook(h http.Handler) Option {
	return func(s *Server) { s.webhook = h }
}

// NewServer creates a new API server listening on addr.
func NewServer(addr string, manager plugin.Manager, registry *dispatch.Registry, rec *trace.Recorder, logger *zap.Logger, opts ...Option) *Server {
	s := &Server{
		manager:  manager,
		registry: registry,
		trace:    rec,
		logger:   logger.Named("api"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // websocket streams are long-lived
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Endpoint represents an API endpoint with its documentation
type Endpoint struct {
	Path        string `json:"path"`
	Method      string `json:"method"`
	Description string `json:"description"`
}

var endpoints = []Endpoint{
	{Path: "/", Method: "GET", Description: "This sitemap"},
	{Path: "/health", Method: "GET", Description: "Health check"},
	{Path: "/api/plugins", Method: "GET", Description: "Active plugins"},
	{Path: "/api/handlers", Method: "GET", Description: "Handler groups in dispatch order"},
	{Path: "/api/dispatches", Method: "GET", Description: "Recent dispatch traces, newest first"},
	{Path: "/api/plugins/{name}/reload", Method: "POST", Description: "Reload a plugin"},
	{Path: "/ws/dispatches", Method: "GET", Description: "Live dispatch trace stream (websocket)"},
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleSitemap)
	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/plugins", s.handlePlugins)
		r.Get("/handlers", s.handleHandlers)
		r.Get("/dispatches", s.handleDispatches)
		r.With(s.requireToken).Post("/plugins/{name}/reload", s.handleReload)
	})
	r.Get("/ws/dispatches", s.handleStream)
	if s.webhook != nil {
		r.Method(http.MethodPost, "/webhook", s.webhook)
	}
	return r
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" {
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) handleSitemap(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "plugbot API\n===========\n\nAvailable endpoints:\n\n")
	for _, ep := range endpoints {
		fmt.Fprintf(w, "  %-6s %-28s %s\n", ep.Method, ep.Path, ep.Description)
	}
}

// handleHealth returns a simple health check response
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"plugins": len(s.manager.Active()),
	})
}

func (s *Server) handlePlugins(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.manager.Active())
}

func (s *Server) handleHandlers(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.registry.Groups())
}

func (s *Server) handleDispatches(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.trace.Recent())
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	err := s.manager.ReloadPlugin(r.Context(), name)
	var loadErr *loader.LoadError
	switch {
	case err == nil:
		s.logger.Info("Plugin reloaded via API", zap.String("plugin", name))
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded", "plugin": name})
	case errors.Is(err, loader.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &loadErr):
		s.logger.Error("Plugin reload via API failed", zap.String("plugin", name), zap.Error(err))
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// handleStream pushes every new dispatch trace to the websocket client
// until it disconnects.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	entries, cancel := s.trace.Subscribe(streamBuffer)
	defer cancel()

	// The client never sends; reading detects the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	s.logger.Debug("Dispatch stream opened", zap.String("remote_addr", r.RemoteAddr))
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case e, ok := <-entries:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(e); err != nil {
				s.logger.Debug("Dispatch stream closed", zap.Error(err))
				return
			}
		}
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("Starting HTTP API server", zap.String("addr", s.server.Addr))

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Stopping HTTP API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}
