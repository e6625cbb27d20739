package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/orgmcp/internal/store"
)

// URI scheme for indexed documents.
const documentURIPrefix = "orgmcp://document/"

// RegisterDocumentResources registers every indexed document as an MCP
// resource. Call after the service is hydrated and before serving; documents
// indexed later are not listed until the next restart, though reads always
// return current content.
func (s *Server) RegisterDocumentResources() {
	docs := s.svc.Documents()
	for _, d := range docs {
		s.registerDocumentResource(d)
	}
	s.logger.Info("registered document resources", slog.Int("count", len(docs)))
}

// registerDocumentResource registers a single document as an MCP resource.
func (s *Server) registerDocumentResource(d *store.Document) {
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        d.Title,
			URI:         documentURIPrefix + d.ID,
			Description: fmt.Sprintf("%s: %s", d.ContentType, d.Title),
			MIMEType:    "text/markdown",
		},
		s.makeDocumentHandler(d.ID),
	)
}

// makeDocumentHandler creates a read handler for a specific document id.
func (s *Server) makeDocumentHandler(id string) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return s.handleReadDocument(ctx, id)
	}
}

// handleReadDocument renders an indexed document as markdown.
func (s *Server) handleReadDocument(_ context.Context, id string) (*mcp.ReadResourceResult, error) {
	doc, ok := s.svc.Document(id)
	if !ok {
		return nil, NewResourceNotFoundError(documentURIPrefix + id)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", doc.Title)
	fmt.Fprintf(&sb, "*%s*\n\n", doc.ContentType)
	if meta := formatMetadata(doc.Metadata); meta != "" {
		sb.WriteString(meta)
		sb.WriteString("\n")
	}
	if doc.BodyText != "" {
		sb.WriteString(doc.BodyText)
		sb.WriteString("\n")
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      documentURIPrefix + id,
				MIMEType: "text/markdown",
				Text:     sb.String(),
			},
		},
	}, nil
}

// registerResources registers the fixed (non-document) resources.
func (s *Server) registerResources() {
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "query_metrics",
			URI:         "orgmcp://query_metrics",
			Description: "Query pattern telemetry: mode and kind counts, top terms, zero-result queries, latency buckets",
			MIMEType:    "application/json",
		},
		s.makeQueryMetricsHandler(),
	)
}

// makeQueryMetricsHandler creates a handler for the query_metrics resource.
func (s *Server) makeQueryMetricsHandler() mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		stats, err := s.svc.Statistics(ctx)
		if err != nil {
			return nil, MapError(err)
		}
		if stats.Telemetry == nil {
			return nil, NewInvalidParamsError("query metrics not available")
		}

		content, err := json.MarshalIndent(stats.Telemetry, "", "  ")
		if err != nil {
			return nil, MapError(err)
		}

		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{
					URI:      "orgmcp://query_metrics",
					MIMEType: "application/json",
					Text:     string(content),
				},
			},
		}, nil
	}
}
