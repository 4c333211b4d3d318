// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the fennec catalog for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/fennec/internal/apperr"
	"github.com/starford/fennec/internal/noteservice"
)

const recordFormatURI = "fennec://record-format"

// Server wraps the MCP server with fennec tools.
type Server struct {
	mcp *server.MCPServer
	svc *noteservice.Service
}

// New creates a new MCP server with all fennec tools registered.
func New(svc *noteservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Fennec",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_categories",
		mcp.WithDescription("List all categories sorted by name."),
	), s.listCategories)

	s.mcp.AddTool(mcp.NewTool("list_category_notes",
		mcp.WithDescription("List note metadata for a category in display order."),
		mcp.WithString("category_id", mcp.Required(), mcp.Description("Category id from list_categories")),
	), s.listCategoryNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read a note with its rendered HTML and tags."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("get_note_tags",
		mcp.WithDescription("List the tags linked to a note."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
	), s.getNoteTags)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Search notes by title, description and body."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("get_record_contract",
		mcp.WithDescription("Returns the record format accepted by batch ingestion. "+
			"Call this before producing upsert or delete batches."),
	), s.getRecordContract)

	s.mcp.AddResource(
		mcp.NewResource(recordFormatURI, "Record Format Contract",
			mcp.WithResourceDescription("Record format accepted by batch ingestion."),
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

func (s *Server) listCategories(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cats, err := s.svc.ListCategories(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(cats)
}

func (s *Server) listCategoryNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("category_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	notes, err := s.svc.CategoryNotes(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(notes)
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.svc.GetNote(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(note)
}

func (s *Server) getNoteTags(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tags, err := s.svc.NoteTags(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(tags)
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results)
}

func (s *Server) getRecordContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(RecordFormatContract), nil
}

func (s *Server) readRecordFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      recordFormatURI,
			MIMEType: "text/markdown",
			Text:     RecordFormatContract,
		},
	}, nil
}
