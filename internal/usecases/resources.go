package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/kktechsolution/mcp-postgress/internal/domain"
)

const (
	resourceScheme = "postgres"
	schemaSegment  = "schema"
	schemaMIMEType = "application/json"
)

const (
	listTablesSQL  = "SELECT table_name FROM information_schema.tables WHERE table_schema = 'public'"
	listColumnsSQL = "SELECT column_name, data_type FROM information_schema.columns WHERE table_name = $1"
)

// handleListResources re-queries the catalog on every call so descriptors
// reflect the current schema. Ordering follows catalog return order.
func (d *Dispatcher) handleListResources(ctx context.Context, req domain.Request) *domain.Response {
	rows, err := d.store.Query(ctx, listTablesSQL)
	if err != nil {
		return errorResponse(req.ID, err)
	}

	resources := make([]domain.Resource, 0, len(rows))
	for _, row := range rows {
		table, ok := row["table_name"].(string)
		if !ok {
			continue
		}
		resources = append(resources, domain.Resource{
			URI:      fmt.Sprintf("%s://%s/%s", resourceScheme, table, schemaSegment),
			Name:     fmt.Sprintf("%q database schema", table),
			MIMEType: schemaMIMEType,
		})
	}

	return domain.NewResponse(req.ID, domain.ListResourcesResult{Resources: resources})
}

// handleReadResource returns the column shape of the table named by the
// URI. A URI whose trailing segment is not the schema suffix fails before
// any query is issued.
func (d *Dispatcher) handleReadResource(ctx context.Context, req domain.Request) *domain.Response {
	var params struct {
		URI string `json:"uri"`
	}
	if err := unmarshalParams(req.Params, &params); err != nil {
		return errorResponse(req.ID, err)
	}

	table, err := parseResourceURI(params.URI)
	if err != nil {
		return errorResponse(req.ID, err)
	}

	rows, err := d.store.Query(ctx, listColumnsSQL, table)
	if err != nil {
		return errorResponse(req.ID, err)
	}

	text, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return errorResponse(req.ID, domain.NewInfrastructureError("failed to encode schema", err))
	}

	result := domain.ReadResourceResult{
		Contents: []domain.ResourceContents{{
			URI:      params.URI,
			MIMEType: schemaMIMEType,
			Text:     string(text),
		}},
	}

	return domain.NewResponse(req.ID, result)
}

// parseResourceURI extracts the table name from a resource URI of the form
// <scheme>://<table>/schema.
func parseResourceURI(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil || u.Host == "" {
		return "", domain.NewResourceError(fmt.Sprintf("invalid resource URI: %s", uri))
	}
	if strings.Trim(u.Path, "/") != schemaSegment {
		return "", domain.NewResourceError(fmt.Sprintf("invalid resource URI: %s", uri))
	}
	return u.Host, nil
}
