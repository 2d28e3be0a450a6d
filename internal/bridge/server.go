// Package bridge carries the autofill message protocol over HTTP and WebSocket.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/cvfill/api/schemas"
	"github.com/xkilldash9x/cvfill/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	maxBodySize     = 1 << 20
	shutdownTimeout = 10 * time.Second
)

// Dispatcher answers protocol requests. *controller.Controller satisfies it.
type Dispatcher interface {
	Handle(ctx context.Context, req *schemas.Request) *schemas.Response
}

// Server exposes a Dispatcher to extension-side clients.
type Server struct {
	logger     *zap.Logger
	cfg        config.BridgeConfig
	dispatcher Dispatcher
	upgrader   websocket.Upgrader

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

// New creates a bridge server. Call Broadcast to push rescans to connected sockets.
func New(dispatcher Dispatcher, cfg config.BridgeConfig, logger *zap.Logger) *Server {
	s := &Server{
		logger:     logger.Named("bridge"),
		cfg:        cfg,
		dispatcher: dispatcher,
		clients:    make(map[*wsClient]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.originAllowed,
	}
	return s
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.corsMiddleware)

	// WebSocket connections are long lived, so they skip the request logger.
	r.Get("/ws", s.handleWebSocket)

	r.Group(func(r chi.Router) {
		r.Use(s.requestLogger)
		r.Get("/api/health", s.handleHealth)
		r.Post("/api/message", s.handleMessage)
		r.Post("/api/generate-mappings", s.handleGenerateMappings)
	})
	return r
}

// ListenAndServe serves on the configured address until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.ListenAddr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info("Bridge listening.", zap.String("address", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("bridge server failed: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down bridge...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Shutdown does not touch hijacked connections.
	s.Close()
	err := srv.Shutdown(shutdownCtx)
	<-errCh
	if err != nil {
		return fmt.Errorf("bridge shutdown error: %w", err)
	}
	return nil
}

// Close disconnects every WebSocket client.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		_ = c.conn.Close()
	}
}

// Broadcast queues update for every connected socket.
func (s *Server) Broadcast(update schemas.FormsUpdate) {
	payload, err := json.Marshal(update)
	if err != nil {
		s.logger.Error("Failed to encode forms update.", zap.Error(err))
		return
	}

	s.mu.Lock()
	clients := make([]*wsClient, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.enqueue(payload)
	}
	s.logger.Debug("Broadcast forms update.", zap.String("scan_id", update.ScanID), zap.Int("clients", len(clients)))
}

func (s *Server) clientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// -- HTTP Handlers --

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respond(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"clients": s.clientCount(),
	})
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}
	s.respond(w, http.StatusOK, s.dispatcher.Handle(r.Context(), req))
}

func (s *Server) handleGenerateMappings(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}
	req.Action = schemas.ActionGenerateMappings
	resp := s.dispatcher.Handle(r.Context(), req)

	status := http.StatusOK
	if !resp.Success {
		status = http.StatusBadRequest
	}
	s.respond(w, status, resp)
}

func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request) (*schemas.Request, bool) {
	var req schemas.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
		s.respond(w, http.StatusBadRequest, schemas.Fail(schemas.ErrCodeInvalidParameters, fmt.Sprintf("Invalid request body: %v", err)))
		return nil, false
	}
	if req.RequestID == "" {
		req.RequestID = middleware.GetReqID(r.Context())
	}
	return &req, true
}

// respond sends a JSON body with the given status.
func (s *Server) respond(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// -- Middleware --

func (s *Server) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// corsMiddleware answers preflights and echoes allowed origins.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(r) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			if origin != "" && !s.originAllowed(r) {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("Handled request.",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
