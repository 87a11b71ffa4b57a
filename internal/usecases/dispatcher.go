// Package usecases implements the protocol method handlers for the MCP
// server.
package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/kktechsolution/mcp-postgress/internal/domain"
	"github.com/kktechsolution/mcp-postgress/internal/infrastructure/logging"
)

// Method names in the fixed dispatch set.
const (
	MethodInitialize    = "initialize"
	MethodPing          = "ping"
	MethodListResources = "resources/list"
	MethodReadResource  = "resources/read"
	MethodListTools     = "tools/list"
	MethodCallTool      = "tools/call"
)

// Dispatcher routes decoded protocol messages to the method handlers. One
// Dispatcher is constructed per session and holds that session's
// conversation state; it is never shared across sessions.
type Dispatcher struct {
	info   domain.ServerInfo
	store  domain.DataStore
	logger *logging.Logger

	mu          sync.Mutex
	initialized bool
	clientName  string
}

// NewDispatcher creates a per-session dispatcher over the given data store.
func NewDispatcher(info domain.ServerInfo, store domain.DataStore, logger *logging.Logger) *Dispatcher {
	return &Dispatcher{info: info, store: store, logger: logger}
}

// Handle processes one raw protocol message and returns the response for
// it, or nil for notifications. Every request produces exactly one
// well-formed response; no handler failure escapes into the transport.
func (d *Dispatcher) Handle(ctx context.Context, raw json.RawMessage) *domain.Response {
	var req domain.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return domain.NewErrorResponse(nil, domain.ParseError, "Parse error")
	}

	if req.IsNotification() {
		d.logger.Debug("notification received", logging.Fields{"method": req.Method})
		return nil
	}

	switch req.Method {
	case MethodInitialize:
		return d.handleInitialize(req)
	case MethodPing:
		return domain.NewResponse(req.ID, struct{}{})
	case MethodListResources:
		return d.handleListResources(ctx, req)
	case MethodReadResource:
		return d.handleReadResource(ctx, req)
	case MethodListTools:
		return d.handleListTools(req)
	case MethodCallTool:
		return d.handleCallTool(ctx, req)
	default:
		return domain.NewErrorResponse(req.ID, domain.MethodNotFound,
			fmt.Sprintf("Method not found: %s", req.Method))
	}
}

// handleInitialize records the client handshake and advertises the server's
// capabilities.
func (d *Dispatcher) handleInitialize(req domain.Request) *domain.Response {
	var params struct {
		ClientInfo struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"clientInfo"`
	}
	// Client info is optional; a missing or malformed params block does not
	// fail the handshake.
	_ = json.Unmarshal(req.Params, &params)

	d.mu.Lock()
	d.initialized = true
	d.clientName = params.ClientInfo.Name
	d.mu.Unlock()

	result := domain.InitializeResult{
		ProtocolVersion: domain.ProtocolVersion,
		Capabilities: domain.Capabilities{
			Resources: &struct{}{},
			Tools:     &struct{}{},
		},
		ServerInfo: d.info,
	}

	return domain.NewResponse(req.ID, result)
}

// errorResponse maps a handler error to the JSON-RPC error code for its
// kind.
func errorResponse(id any, err error) *domain.Response {
	var code domain.ErrorCode
	switch domain.KindOf(err) {
	case domain.KindResource, domain.KindProtocol:
		code = domain.InvalidParams
	case domain.KindSession:
		code = domain.ServerError
	default:
		code = domain.InternalError
	}
	return domain.NewErrorResponse(id, code, err.Error())
}

// unmarshalParams decodes request parameters into target.
func unmarshalParams(params json.RawMessage, target any) error {
	if len(params) == 0 {
		return domain.NewProtocolError("missing params")
	}
	if err := json.Unmarshal(params, target); err != nil {
		return domain.NewProtocolError("invalid params")
	}
	return nil
}
