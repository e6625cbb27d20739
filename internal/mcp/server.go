package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/orgmcp/internal/index"
	"github.com/Aman-CERP/orgmcp/internal/search"
	"github.com/Aman-CERP/orgmcp/internal/service"
	"github.com/Aman-CERP/orgmcp/internal/store"
	"github.com/Aman-CERP/orgmcp/pkg/version"
)

// Result limits for the search tools.
const (
	defaultToolLimit = 10
	minToolLimit     = 1
	maxToolLimit     = 50
)

// Service is the slice of the knowledge service the MCP server consumes.
type Service interface {
	Search(ctx context.Context, query string, opts search.Options) ([]*search.Result, error)
	Status() index.LifecycleStatus
	Statistics(ctx context.Context) (*service.Statistics, error)
	Document(id string) (*store.Document, bool)
	Documents() []*store.Document
}

// Server is the MCP server for OrgMCP. It bridges AI clients with the
// hybrid retrieval engine over stdio.
type Server struct {
	mcp    *mcp.Server
	svc    Service
	logger *slog.Logger
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

// toolDescriptions is the single source for tool registration and ListTools.
var toolDescriptions = []ToolInfo{
	{
		Name:        "search",
		Description: "Search the organizational knowledge base. Combines semantic similarity with keyword relevance, so it finds people and policies by meaning, not just exact words. Use this for most lookups.",
	},
	{
		Name:        "search_people",
		Description: "Find people by name, role, department, or expertise. Returns profile results only, with role and contact context.",
	},
	{
		Name:        "search_knowledge",
		Description: "Find policies, how-tos, and FAQ entries. Returns knowledge results only.",
	},
	{
		Name:        "index_status",
		Description: "Check index health: document counts, mutation counter, rebuild state. Use when search results look stale or incomplete.",
	},
}

// NewServer creates an MCP server over the knowledge service.
func NewServer(svc Service) (*Server, error) {
	if svc == nil {
		return nil, errors.New("knowledge service is required")
	}

	s := &Server{
		svc:    svc,
		logger: slog.Default(),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "OrgMCP",
			Version: version.Version,
		},
		nil, // capabilities are inferred from registered tools/resources
	)

	s.registerTools()
	s.registerResources()
	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return "OrgMCP", version.Version
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	tools := make([]ToolInfo, len(toolDescriptions))
	copy(tools, toolDescriptions)
	return tools
}

// CallTool invokes a tool by name with the given arguments. This mirrors the
// wire dispatch for tests and daemonless callers.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case "search":
		return s.handleSearch(ctx, searchInputFromArgs(args))
	case "search_people":
		in := SearchPeopleInput{Query: stringArg(args, "query"), Limit: intArg(args, "limit")}
		return s.handleSearchPeople(ctx, in)
	case "search_knowledge":
		in := SearchKnowledgeInput{Query: stringArg(args, "query"), Limit: intArg(args, "limit")}
		return s.handleSearchKnowledge(ctx, in)
	case "index_status":
		return s.handleIndexStatus(ctx)
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

// handleSearch executes the generic search tool and formats the hits as
// markdown.
func (s *Server) handleSearch(ctx context.Context, input SearchInput) (string, error) {
	start := time.Now()
	requestID := generateRequestID()

	if strings.TrimSpace(input.Query) == "" {
		return "", NewInvalidParamsError("query parameter is required and must be a non-empty string")
	}
	mode, err := search.ParseMode(input.Mode)
	if err != nil {
		return "", NewInvalidParamsError(err.Error())
	}
	limit := clampLimit(input.Limit, defaultToolLimit, minToolLimit, maxToolLimit)

	s.logger.Info("search started",
		slog.String("request_id", requestID),
		slog.String("query", input.Query),
		slog.String("mode", string(mode)),
		slog.Int("limit", limit))

	results, err := s.svc.Search(ctx, input.Query, search.Options{
		Mode:     mode,
		TopK:     limit,
		MinScore: input.MinScore,
	})
	duration := time.Since(start)

	if err != nil {
		s.logger.Error("search failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return "", MapError(err)
	}

	s.logger.Info("search completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.Int("result_count", len(results)))

	out := FormatSearchResults(input.Query, results)
	return s.withRebuildNotice(out), nil
}

// handleSearchPeople executes the profile-scoped search tool.
func (s *Server) handleSearchPeople(ctx context.Context, input SearchPeopleInput) (string, error) {
	start := time.Now()
	requestID := generateRequestID()

	if strings.TrimSpace(input.Query) == "" {
		return "", NewInvalidParamsError("query parameter is required and must be a non-empty string")
	}
	limit := clampLimit(input.Limit, defaultToolLimit, minToolLimit, maxToolLimit)

	s.logger.Info("search_people started",
		slog.String("request_id", requestID),
		slog.String("query", input.Query),
		slog.Int("limit", limit))

	results, err := s.svc.Search(ctx, input.Query, search.Options{
		TopK:         limit,
		ContentTypes: []store.ContentType{store.ContentTypeProfile},
	})
	duration := time.Since(start)

	if err != nil {
		s.logger.Error("search_people failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return "", MapError(err)
	}

	s.logger.Info("search_people completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.Int("result_count", len(results)))

	return s.withRebuildNotice(FormatPeopleResults(input.Query, results)), nil
}

// handleSearchKnowledge executes the knowledge-scoped search tool.
func (s *Server) handleSearchKnowledge(ctx context.Context, input SearchKnowledgeInput) (string, error) {
	start := time.Now()
	requestID := generateRequestID()

	if strings.TrimSpace(input.Query) == "" {
		return "", NewInvalidParamsError("query parameter is required and must be a non-empty string")
	}
	limit := clampLimit(input.Limit, defaultToolLimit, minToolLimit, maxToolLimit)

	s.logger.Info("search_knowledge started",
		slog.String("request_id", requestID),
		slog.String("query", input.Query),
		slog.Int("limit", limit))

	results, err := s.svc.Search(ctx, input.Query, search.Options{
		TopK:         limit,
		ContentTypes: []store.ContentType{store.ContentTypeKnowledge, store.ContentTypeOther},
	})
	duration := time.Since(start)

	if err != nil {
		s.logger.Error("search_knowledge failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return "", MapError(err)
	}

	s.logger.Info("search_knowledge completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.Int("result_count", len(results)))

	return s.withRebuildNotice(FormatSearchResults(input.Query, results)), nil
}

// handleIndexStatus reports lifecycle and engine state.
func (s *Server) handleIndexStatus(ctx context.Context) (*IndexStatusOutput, error) {
	requestID := generateRequestID()
	s.logger.Info("index_status started", slog.String("request_id", requestID))

	stats, err := s.svc.Statistics(ctx)
	if err != nil {
		return nil, MapError(err)
	}

	out := &IndexStatusOutput{
		State:            string(stats.Lifecycle.State),
		Documents:        stats.Lifecycle.Documents,
		Profiles:         stats.Profiles,
		Knowledge:        stats.Knowledge,
		Mutations:        stats.Lifecycle.Mutations,
		RebuildThreshold: stats.Lifecycle.RebuildThreshold,
		RebuildCount:     stats.Lifecycle.RebuildCount,
		Engine:           stats.Engine,
		Rebuild:          stats.Lifecycle.Rebuild,
	}
	if !stats.Lifecycle.LastRebuildAt.IsZero() {
		out.LastRebuildAt = stats.Lifecycle.LastRebuildAt.Format(time.RFC3339)
	}

	s.logger.Info("index_status completed",
		slog.String("request_id", requestID),
		slog.String("state", out.State),
		slog.Int("documents", out.Documents))
	return out, nil
}

// withRebuildNotice appends a footer when a rebuild is running, so clients
// know results reflect the previous index generation.
func (s *Server) withRebuildNotice(formatted string) string {
	if s.svc.Status().State != index.StateIndexing {
		return formatted
	}
	return formatted + "\n\n_Index rebuild in progress; results reflect the previous index._"
}

// registerTools registers all tools with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        toolDescriptions[0].Name,
		Description: toolDescriptions[0].Description,
	}, s.mcpSearchHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        toolDescriptions[1].Name,
		Description: toolDescriptions[1].Description,
	}, s.mcpSearchPeopleHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        toolDescriptions[2].Name,
		Description: toolDescriptions[2].Description,
	}, s.mcpSearchKnowledgeHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        toolDescriptions[3].Name,
		Description: toolDescriptions[3].Description,
	}, s.mcpIndexStatusHandler)

	s.logger.Debug("MCP tools registered", slog.Int("count", len(toolDescriptions)))
}

// mcpSearchHandler is the MCP SDK handler for the search tool.
func (s *Server) mcpSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query parameter is required")
	}
	mode, err := search.ParseMode(input.Mode)
	if err != nil {
		return nil, SearchOutput{}, NewInvalidParamsError(err.Error())
	}

	results, err := s.svc.Search(ctx, input.Query, search.Options{
		Mode:     mode,
		TopK:     clampLimit(input.Limit, defaultToolLimit, minToolLimit, maxToolLimit),
		MinScore: input.MinScore,
	})
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}
	return nil, toSearchOutput(results), nil
}

// mcpSearchPeopleHandler is the MCP SDK handler for the search_people tool.
func (s *Server) mcpSearchPeopleHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchPeopleInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query parameter is required")
	}

	results, err := s.svc.Search(ctx, input.Query, search.Options{
		TopK:         clampLimit(input.Limit, defaultToolLimit, minToolLimit, maxToolLimit),
		ContentTypes: []store.ContentType{store.ContentTypeProfile},
	})
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}
	return nil, toSearchOutput(results), nil
}

// mcpSearchKnowledgeHandler is the MCP SDK handler for the search_knowledge tool.
func (s *Server) mcpSearchKnowledgeHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchKnowledgeInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query parameter is required")
	}

	results, err := s.svc.Search(ctx, input.Query, search.Options{
		TopK:         clampLimit(input.Limit, defaultToolLimit, minToolLimit, maxToolLimit),
		ContentTypes: []store.ContentType{store.ContentTypeKnowledge, store.ContentTypeOther},
	})
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}
	return nil, toSearchOutput(results), nil
}

// mcpIndexStatusHandler is the MCP SDK handler for the index_status tool.
func (s *Server) mcpIndexStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	*IndexStatusOutput,
	error,
) {
	output, err := s.handleIndexStatus(ctx)
	if err != nil {
		return nil, nil, err
	}
	return nil, output, nil
}

// Serve runs the server over stdio until ctx is canceled.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("Starting MCP server", slog.String("transport", "stdio"))

	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("MCP server stopped gracefully")
	return nil
}

// toSearchOutput converts engine results to the tool output schema.
func toSearchOutput(results []*search.Result) SearchOutput {
	out := SearchOutput{Results: make([]SearchResultOutput, 0, len(results))}
	for _, r := range results {
		out.Results = append(out.Results, ToSearchResultOutput(r))
	}
	return out
}

// searchInputFromArgs decodes the loose CallTool argument map.
func searchInputFromArgs(args map[string]any) SearchInput {
	in := SearchInput{
		Query: stringArg(args, "query"),
		Mode:  stringArg(args, "mode"),
		Limit: intArg(args, "limit"),
	}
	if v, ok := args["min_score"].(float64); ok {
		in.MinScore = v
	}
	return in
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

// intArg reads an integer argument. JSON numbers decode as float64.
func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
