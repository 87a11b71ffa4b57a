package usecases

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/kktechsolution/mcp-postgress/internal/domain"
	"github.com/kktechsolution/mcp-postgress/internal/infrastructure/logging"
)

const queryToolName = "query"

// queryArgs are the arguments of the query tool. The advertised input
// schema is reflected from this struct.
type queryArgs struct {
	SQL string `json:"sql" jsonschema:"description=Read-only SQL statement to execute"`
}

// queryToolSchema is the JSON Schema for the query tool input, generated
// once at startup.
var queryToolSchema = func() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	return reflector.Reflect(&queryArgs{})
}()

// queryTool is the single entry of the tool catalog.
func queryTool() domain.Tool {
	return domain.Tool{
		Name:        queryToolName,
		Description: "Run a read-only SQL query against the database",
		InputSchema: queryToolSchema,
	}
}

// handleListTools returns the fixed tool catalog.
func (d *Dispatcher) handleListTools(req domain.Request) *domain.Response {
	return domain.NewResponse(req.ID, domain.ListToolsResult{
		Tools: []domain.Tool{queryTool()},
	})
}

// handleCallTool executes the query tool. Execution failures become a tool
// result with isError set; the session itself is never terminated by a
// failed query.
func (d *Dispatcher) handleCallTool(ctx context.Context, req domain.Request) *domain.Response {
	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := unmarshalParams(req.Params, &params); err != nil {
		return errorResponse(req.ID, err)
	}

	if params.Name != queryToolName {
		return errorResponse(req.ID,
			domain.NewProtocolError(fmt.Sprintf("unknown tool: %s", params.Name)))
	}

	var args queryArgs
	if err := json.Unmarshal(params.Arguments, &args); err != nil {
		return errorResponse(req.ID, domain.NewProtocolError("invalid tool arguments"))
	}

	rows, err := d.store.QueryReadOnly(ctx, args.SQL)
	if err != nil {
		d.logger.Debug("query tool failed", logging.Fields{"error": err.Error()})
		return domain.NewResponse(req.ID, domain.ToolResult{
			Content: []domain.TextContent{{Type: "text", Text: err.Error()}},
			IsError: true,
		})
	}

	text, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return errorResponse(req.ID, domain.NewInfrastructureError("failed to encode rows", err))
	}

	return domain.NewResponse(req.ID, domain.ToolResult{
		Content: []domain.TextContent{{Type: "text", Text: string(text)}},
		IsError: false,
	})
}
