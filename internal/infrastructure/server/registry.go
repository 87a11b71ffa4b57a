// Package server implements the session-transport layer: the session
// registry and the two HTTP transport bindings that feed the method
// dispatcher.
package server

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"github.com/kktechsolution/mcp-postgress/internal/domain"
	"github.com/kktechsolution/mcp-postgress/internal/infrastructure/logging"
	"github.com/kktechsolution/mcp-postgress/internal/infrastructure/metrics"
)

// Channel is the write half of a transport bound to a session. Send queues
// one message toward the client; Close must be idempotent.
type Channel interface {
	Send(msg any) error
	Close()
}

// Handler is the per-session protocol handler context. One Handler instance
// services every message of its session for the session's whole lifetime.
type Handler interface {
	Handle(ctx context.Context, raw json.RawMessage) *domain.Response
}

// Session binds an identifier to its handler context and, when one is
// attached, a transport channel. Message handling is serialized per session
// so messages are dispatched in arrival order.
type Session struct {
	id string

	mu      sync.Mutex
	handler Handler
	channel Channel
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Handle dispatches one raw message through the session's handler context.
// Calls for the same session never interleave.
func (s *Session) Handle(ctx context.Context, raw json.RawMessage) *domain.Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handler.Handle(ctx, raw)
}

// AttachChannel binds a transport channel to the session, replacing any
// previous one.
func (s *Session) AttachChannel(ch Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channel = ch
}

// Send delivers a message through the session's channel. Without an
// attached channel delivery is a no-op.
func (s *Session) Send(msg any) error {
	s.mu.Lock()
	ch := s.channel
	s.mu.Unlock()
	if ch == nil {
		return nil
	}
	return ch.Send(msg)
}

func (s *Session) closeChannel() {
	s.mu.Lock()
	ch := s.channel
	s.channel = nil
	s.mu.Unlock()
	if ch != nil {
		ch.Close()
	}
}

// Registry owns the identifier-to-session mapping. It is the only shared
// mutable structure of the transport layer; creation and removal for one
// identifier are mutually exclusive.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session

	newHandler func() Handler
	logger     *logging.Logger
	metrics    *metrics.Metrics
}

// NewRegistry creates a registry. newHandler constructs the 1:1 handler
// context for each new session.
func NewRegistry(newHandler func() Handler, logger *logging.Logger, m *metrics.Metrics) *Registry {
	return &Registry{
		sessions:   make(map[string]*Session),
		newHandler: newHandler,
		logger:     logger,
		metrics:    m,
	}
}

// Create mints a fresh unguessable identifier, constructs the handler
// context, and inserts the mapping before returning, so a racing message
// for the new identifier cannot observe a missing entry.
func (r *Registry) Create(ch Channel) *Session {
	session := &Session{
		id:      uuid.NewString(),
		handler: r.newHandler(),
		channel: ch,
	}

	r.mu.Lock()
	r.sessions[session.id] = session
	r.mu.Unlock()

	r.metrics.SessionsCreated.Inc()
	r.metrics.ActiveSessions.Inc()
	r.logger.Info("session created", logging.Fields{"sessionId": session.id})

	return session
}

// Get looks up an active session.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	return session, ok
}

// Remove deletes the session and closes its channel. Removal is idempotent:
// every closure path may call it, the entry is removed exactly once.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	session, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	session.closeChannel()
	r.metrics.ActiveSessions.Dec()
	r.logger.Info("session closed", logging.Fields{"sessionId": id})
}

// IDs returns the identifiers of all active sessions.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of active sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// CloseAll removes every session. Used on server shutdown.
func (r *Registry) CloseAll() {
	for _, id := range r.IDs() {
		r.Remove(id)
	}
}
