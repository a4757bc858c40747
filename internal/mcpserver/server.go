// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the robotdb catalog to LLM clients via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/robotdb/internal/apperr"
	"github.com/starford/robotdb/internal/catalog"
)

// RecordFormatURI is the resource holding the record format description.
const RecordFormatURI = "robotdb://record-format"

const defaultSearchLimit = 20

// Server wraps the MCP server with robotdb tools.
type Server struct {
	mcp *server.MCPServer
	svc *catalog.Service
}

// New creates a new MCP server with all robotdb tools registered.
func New(svc *catalog.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"robotdb",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_keywords",
		mcp.WithDescription("Search Robot Framework keywords by name, documentation and tags "+
			"across every scanned suite, resource, library and variable file."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of hits (default 20)")),
	), s.searchKeywords)

	s.mcp.AddTool(mcp.NewTool("get_record",
		mcp.WithDescription("Return the stored record of one asset: keywords with arguments, "+
			"variables and imports. See the get_record_format tool for the layout."),
		mcp.WithString("identity", mcp.Required(),
			mcp.Description("Absolute file path of a suite, resource or variable file, or a library name such as BuiltIn")),
	), s.getRecord)

	s.mcp.AddTool(mcp.NewTool("list_assets",
		mcp.WithDescription("List scanned assets, optionally of one kind."),
		mcp.WithString("kind", mcp.Description("Optional kind filter"),
			mcp.Enum("suite", "resource", "library", "variable")),
		mcp.WithNumber("limit", mcp.Description("Page size (default 50)")),
		mcp.WithNumber("offset", mcp.Description("Page offset")),
	), s.listAssets)

	s.mcp.AddTool(mcp.NewTool("get_dependents",
		mcp.WithDescription("Find every asset that imports the given asset."),
		mcp.WithString("identity", mcp.Required(), mcp.Description("Identity of the imported asset")),
	), s.getDependents)

	s.mcp.AddTool(mcp.NewTool("rescan",
		mcp.WithDescription("Crawl the workspace again and refresh the keyword index. "+
			"Returns the scan summary."),
	), s.rescan)

	s.mcp.AddTool(mcp.NewTool("get_record_format",
		mcp.WithDescription("Returns the layout of stored records. "+
			"Call this before interpreting get_record output."),
	), s.getRecordFormat)

	// Resource: record format.
	s.mcp.AddResource(
		mcp.NewResource(RecordFormatURI, "Record Format",
			mcp.WithResourceDescription("Layout of the JSON record stored per asset."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readRecordFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) searchKeywords(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("query must not be empty"), nil
	}
	hits, err := s.svc.SearchKeywords(ctx, query, req.GetInt("limit", defaultSearchLimit))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(hits) == 0 {
		return mcp.NewToolResultText("no keywords found"), nil
	}
	return jsonResult(hits)
}

func (s *Server) getRecord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	identity, err := req.RequireString("identity")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	detail, err := s.svc.GetRecord(ctx, identity)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("not found: %s", identity)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(detail)
}

func (s *Server) listAssets(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kind := req.GetString("kind", "")
	items, total, err := s.svc.ListAssets(ctx, kind, req.GetInt("limit", 0), req.GetInt("offset", 0))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{
		"assets": items,
		"total":  total,
	})
}

func (s *Server) getDependents(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	identity, err := req.RequireString("identity")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	deps, err := s.svc.Dependents(ctx, identity)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(deps) == 0 {
		return mcp.NewToolResultText("no dependents found"), nil
	}
	lines := make([]string, len(deps))
	for i, d := range deps {
		lines[i] = fmt.Sprintf("%s\t%s\t%s", d.Identity, d.Kind, d.Via)
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) rescan(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.svc.Rescan(ctx)
	if err != nil {
		if errors.Is(err, apperr.ErrBusy) {
			return mcp.NewToolResultError("a scan is already running, try again later"), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func (s *Server) getRecordFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(RecordFormat), nil
}

func (s *Server) readRecordFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      RecordFormatURI,
			MIMEType: "text/markdown",
			Text:     RecordFormat,
		},
	}, nil
}
