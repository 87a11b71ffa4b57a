package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/kktechsolution/mcp-postgress/internal/domain"
	"github.com/kktechsolution/mcp-postgress/internal/infrastructure/logging"
	"github.com/kktechsolution/mcp-postgress/internal/infrastructure/metrics"
)

// SessionHeader carries the session identifier on the multiplexed binding.
const SessionHeader = "Mcp-Session-Id"

const mcpEndpoint = "/mcp"

// StreamableServer is the multiplexed transport binding: a single /mcp
// endpoint where POST exchanges one message (creating the session on an
// initialization request without an identifier header), GET opens a push
// stream for an existing session, and DELETE terminates one explicitly.
type StreamableServer struct {
	registry *Registry
	logger   *logging.Logger
	metrics  *metrics.Metrics
	srv      *http.Server
}

// NewStreamableServer creates the multiplexed binding over the given
// registry.
func NewStreamableServer(registry *Registry, logger *logging.Logger, m *metrics.Metrics) *StreamableServer {
	return &StreamableServer{registry: registry, logger: logger, metrics: m}
}

// ServeHTTP implements the http.Handler interface.
func (s *StreamableServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case mcpEndpoint:
		s.handleMCP(w, r)
	case "/metrics":
		s.metrics.Handler().ServeHTTP(w, r)
	case "/":
		writeLiveness(w)
	default:
		http.NotFound(w, r)
	}
}

func (s *StreamableServer) handleMCP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handlePost(w, r)
	case http.MethodGet:
		s.handleGet(w, r)
	case http.MethodDelete:
		s.handleDelete(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handlePost exchanges one message. A request without an identifier header
// must be an initialization message; it mints the session and returns the
// identifier in the response header. Anything else without a known
// identifier is rejected.
func (s *StreamableServer) handlePost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeBadRequest(w, "Bad Request: unreadable body")
		return
	}

	sessionID := r.Header.Get(SessionHeader)

	var session *Session
	if sessionID == "" {
		var req domain.Request
		if err := json.Unmarshal(body, &req); err != nil || req.Method != "initialize" {
			s.writeBadRequest(w, "Bad Request: no valid session ID provided")
			return
		}
		session = s.registry.Create(nil)
		w.Header().Set(SessionHeader, session.ID())
	} else {
		var ok bool
		session, ok = s.registry.Get(sessionID)
		if !ok {
			s.writeBadRequest(w, "Bad Request: unknown session")
			return
		}
	}

	// A client disconnect must not abort an in-flight query; only response
	// delivery becomes a no-op.
	response := session.Handle(context.WithoutCancel(r.Context()), body)
	if response == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

// handleGet opens a push stream for an already-active session. Dropping the
// stream detaches the channel but keeps the session alive; the client may
// resume with a new GET.
func (s *StreamableServer) handleGet(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(SessionHeader)
	if sessionID == "" {
		s.writeBadRequest(w, "Bad Request: missing session ID")
		return
	}

	session, ok := s.registry.Get(sessionID)
	if !ok {
		s.writeBadRequest(w, "Bad Request: unknown session")
		return
	}

	stream, err := newEventStream(w)
	if err != nil {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	session.AttachChannel(stream)
	defer session.AttachChannel(nil)

	stream.run(r.Context().Done())
}

// handleDelete terminates an active session. Removal is idempotent in the
// registry, but an unknown identifier is still a client error here.
func (s *StreamableServer) handleDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(SessionHeader)
	if sessionID == "" {
		s.writeBadRequest(w, "Bad Request: missing session ID")
		return
	}

	if _, ok := s.registry.Get(sessionID); !ok {
		s.writeBadRequest(w, "Bad Request: unknown session")
		return
	}

	s.registry.Remove(sessionID)
	w.WriteHeader(http.StatusNoContent)
}

// writeBadRequest writes the 400 JSON error envelope of the multiplexed
// binding.
func (s *StreamableServer) writeBadRequest(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(domain.NewErrorResponse(nil, domain.ServerError, message))
}

// Start begins serving on the specified address.
func (s *StreamableServer) Start(addr string) error {
	s.srv = &http.Server{Addr: addr, Handler: s}
	s.logger.Info("streamable transport listening", logging.Fields{
		"addr":     addr,
		"endpoint": fmt.Sprintf("%s%s", addr, mcpEndpoint),
	})
	return s.srv.ListenAndServe()
}

// Shutdown closes all active sessions and stops the HTTP server.
func (s *StreamableServer) Shutdown(ctx context.Context) error {
	s.registry.CloseAll()
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
