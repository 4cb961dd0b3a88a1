package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"TokenRegistry/internal/envelope"
	"TokenRegistry/internal/host"
	"TokenRegistry/internal/logger"
	"TokenRegistry/internal/registry"
)

const (
	// maxTriggerSize is the maximum envelope size in bytes.
	maxTriggerSize = 64 << 10
)

// Registry executes triggers and answers state queries.
type Registry interface {
	Submit(ctx context.Context, data []byte) (*registry.Response, error)
	Response(unit string) (*registry.Response, error)
	Vars(prefix string) (map[string]any, error)
	Symbol(symbol string) (*host.Lookup, error)
	Asset(asset string) (*host.Lookup, error)
	Snapshot() ([]byte, error)
	Stats() host.Stats
}

// Server is the HTTP API server.
type Server struct {
	addr     string       // addr is the HTTP listen address
	registry Registry     // registry executes and queries triggers
	server   *http.Server // server is the underlying HTTP server
}

// New creates a new HTTP API server.
func New(addr string, reg Registry) *Server {
	return &Server{
		addr:     addr,
		registry: reg,
	}
}

// Handler returns the request router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /trigger", s.handleSubmit)
	mux.HandleFunc("GET /response/{unit}", s.handleResponse)
	mux.HandleFunc("GET /vars", s.handleVars)
	mux.HandleFunc("GET /symbol/{symbol}", s.handleSymbol)
	mux.HandleFunc("GET /asset/{asset}", s.handleAsset)
	mux.HandleFunc("GET /snapshot", s.handleSnapshot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)

	return mux
}

// Start starts the HTTP server in a goroutine.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("http api started", "addr", s.addr)

		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// handleSubmit handles POST /trigger requests.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxTriggerSize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "empty trigger")
		return
	}

	resp, err := s.registry.Submit(r.Context(), body)
	if errors.Is(err, envelope.ErrMalformed) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid trigger: %v", err))
		return
	}
	if err != nil {
		logger.Error("submit failed", "error", err)
		writeError(w, http.StatusInternalServerError, "trigger not executed")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleResponse handles GET /response/{unit} requests.
func (s *Server) handleResponse(w http.ResponseWriter, r *http.Request) {
	resp, err := s.registry.Response(r.PathValue("unit"))
	if errors.Is(err, host.ErrUnknownUnit) {
		writeError(w, http.StatusNotFound, "unknown unit")
		return
	}
	if err != nil {
		writeInternal(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleVars handles GET /vars?prefix= requests.
func (s *Server) handleVars(w http.ResponseWriter, r *http.Request) {
	vars, err := s.registry.Vars(r.URL.Query().Get("prefix"))
	if err != nil {
		writeInternal(w, err)
		return
	}

	writeJSON(w, http.StatusOK, vars)
}

// handleSymbol handles GET /symbol/{symbol} requests.
func (s *Server) handleSymbol(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")
	if !registry.ValidSymbol(symbol) {
		writeError(w, http.StatusBadRequest, "invalid symbol")
		return
	}

	lookup, err := s.registry.Symbol(symbol)
	if err != nil {
		writeInternal(w, err)
		return
	}

	writeJSON(w, http.StatusOK, lookup)
}

// handleAsset handles GET /asset/{asset} requests. The asset must be path
// escaped since it may contain '/'.
func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	asset := r.PathValue("asset")
	if !registry.ValidAsset(asset) {
		writeError(w, http.StatusBadRequest, "invalid asset")
		return
	}

	lookup, err := s.registry.Asset(asset)
	if err != nil {
		writeInternal(w, err)
		return
	}

	writeJSON(w, http.StatusOK, lookup)
}

// handleSnapshot handles GET /snapshot requests.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	data, err := s.registry.Snapshot()
	if err != nil {
		writeInternal(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// handleHealth handles GET /health requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// handleStatus handles GET /status requests.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Stats())
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// writeInternal logs err and writes a generic 500.
func writeInternal(w http.ResponseWriter, err error) {
	logger.Error("request failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}
