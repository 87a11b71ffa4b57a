package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/kktechsolution/mcp-postgress/internal/domain"
	"github.com/kktechsolution/mcp-postgress/internal/infrastructure/logging"
	"github.com/kktechsolution/mcp-postgress/internal/infrastructure/metrics"
)

// SSEServer is the push-channel transport binding. GET /sse opens the
// server-to-client stream and creates a session unconditionally; POST
// /messages?sessionId=<id> submits client-to-server messages for it.
type SSEServer struct {
	registry *Registry
	logger   *logging.Logger
	metrics  *metrics.Metrics
	srv      *http.Server
}

// NewSSEServer creates the push-channel binding over the given registry.
func NewSSEServer(registry *Registry, logger *logging.Logger, m *metrics.Metrics) *SSEServer {
	return &SSEServer{registry: registry, logger: logger, metrics: m}
}

// ServeHTTP implements the http.Handler interface.
func (s *SSEServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/sse":
		s.handleSSE(w, r)
	case "/messages":
		s.handleMessage(w, r)
	case "/sessions":
		s.handleSessions(w, r)
	case "/metrics":
		s.metrics.Handler().ServeHTTP(w, r)
	case "/":
		writeLiveness(w)
	default:
		http.NotFound(w, r)
	}
}

// handleSSE accepts a new push-stream connection. The session exists for
// exactly as long as the stream: it is created before the handshake events
// are sent and removed once the connection ends, whichever side closes it.
func (s *SSEServer) handleSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stream, err := newEventStream(w)
	if err != nil {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	session := s.registry.Create(stream)
	defer s.registry.Remove(session.ID())

	// Handshake: the client learns its identifier and the companion
	// endpoint from the stream itself.
	fmt.Fprintf(w, "event: connected\ndata: {\"sessionId\": %q}\n\n", session.ID())
	fmt.Fprintf(w, "event: endpoint\ndata: /messages?sessionId=%s\n\n", session.ID())
	stream.flusher.Flush()

	stream.run(r.Context().Done())
}

// handleMessage processes one client-to-server message. The session
// identifier arrives as a query parameter; a missing or unknown identifier
// is rejected and never creates a session.
func (s *SSEServer) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		writeJSONRPCError(w, domain.InvalidParams, "Missing sessionId")
		return
	}

	session, ok := s.registry.Get(sessionID)
	if !ok {
		writeJSONRPCError(w, domain.InvalidParams, "Invalid session ID")
		return
	}

	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeJSONRPCError(w, domain.ParseError, "Parse error")
		return
	}

	// A client disconnect must not abort an in-flight query; only response
	// delivery becomes a no-op. The handler context is therefore detached
	// from request cancellation.
	response := session.Handle(context.WithoutCancel(r.Context()), raw)
	if response == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	// The response travels on the push stream; the POST body carries a copy
	// for clients that read it.
	if err := session.Send(response); err != nil {
		s.logger.Warn("failed to queue response", logging.Fields{
			"sessionId": sessionID,
			"error":     err.Error(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(response)
}

// handleSessions lists the identifiers of all active sessions.
func (s *SSEServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"sessions": s.registry.IDs()})
}

// Start begins serving on the specified address.
func (s *SSEServer) Start(addr string) error {
	s.srv = &http.Server{Addr: addr, Handler: s}
	s.logger.Info("sse transport listening", logging.Fields{"addr": addr})
	return s.srv.ListenAndServe()
}

// Shutdown closes all active sessions and stops the HTTP server.
func (s *SSEServer) Shutdown(ctx context.Context) error {
	s.registry.CloseAll()
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// writeLiveness answers the diagnostics liveness probe.
func writeLiveness(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}` + "\n"))
}

// writeJSONRPCError writes a 400 response carrying a JSON-RPC error
// envelope with a null id.
func writeJSONRPCError(w http.ResponseWriter, code domain.ErrorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(domain.NewErrorResponse(nil, code, message))
}
