// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the note session as tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/chainpad/internal/models"
	"github.com/starford/chainpad/internal/session"
)

const (
	rulesURI   = "chainpad://note-rules"
	sessionURI = "chainpad://session"
)

// Server wraps the MCP server with note session tools.
type Server struct {
	mcp  *server.MCPServer
	sess *session.Session
}

// New creates a new MCP server with all note tools registered.
// version is reported to clients during initialization.
func New(sess *session.Session, version string) *Server {
	s := &Server{sess: sess}

	s.mcp = server.NewMCPServer(
		"Chainpad",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("Reload and list every note of the connected account with its index."),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Search notes by keyword in content and tag. "+
			"An empty keyword clears the search. Results keep their list index."),
		mcp.WithString("keyword", mcp.Description("Keyword to search for (empty clears the search)")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a note and wait until the ledger confirms it."),
		mcp.WithString("content", mcp.Required(), mcp.Description("Note text, must not be empty")),
		mcp.WithString("tag", mcp.Description("Optional label")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("update_note",
		mcp.WithDescription("Replace the content of the note at index. "+
			"Use an index from the latest list_notes or search_notes result. "+
			"Read the rules via the chainpad://note-rules resource first."),
		mcp.WithNumber("index", mcp.Required(), mcp.Description("Index of the note to update")),
		mcp.WithString("content", mcp.Required(), mcp.Description("New note text, must not be empty")),
		mcp.WithString("tag", mcp.Description("Optional label")),
	), s.updateNote)

	s.mcp.AddTool(mcp.NewTool("delete_note",
		mcp.WithDescription("Delete the note at index. Every note above it moves down by one."),
		mcp.WithNumber("index", mcp.Required(), mcp.Description("Index of the note to delete")),
	), s.deleteNote)

	s.mcp.AddTool(mcp.NewTool("refresh",
		mcp.WithDescription("Reload the note list and the active search. Clears a stale list."),
	), s.refresh)

	s.mcp.AddResource(
		mcp.NewResource(rulesURI, "Note Rules",
			mcp.WithResourceDescription("How notes are addressed and validated."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readRulesResource,
	)

	s.mcp.AddResource(
		mcp.NewResource(sessionURI, "Session",
			mcp.WithResourceDescription("Current session view as JSON."),
			mcp.WithMIMEType("application/json"),
		),
		s.readSessionResource,
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

// notesResult renders the notes the session currently shows.
func (s *Server) notesResult() (*mcp.CallToolResult, error) {
	v := s.sess.Snapshot()
	out := struct {
		Notes   []models.Note `json:"notes"`
		Total   int           `json:"total"`
		Keyword string        `json:"keyword,omitempty"`
		Stale   bool          `json:"stale,omitempty"`
	}{Notes: v.Notes, Total: v.Total, Keyword: v.Keyword, Stale: v.Stale}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}

func requireIndex(req mcp.CallToolRequest) (int, error) {
	f, err := req.RequireFloat("index")
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || f < 0 {
		return 0, fmt.Errorf("index must be a non-negative integer, got %v", f)
	}
	return int(f), nil
}

func optionalTag(req mcp.CallToolRequest) string {
	if tag, err := req.RequireString("tag"); err == nil {
		return tag
	}
	return ""
}

func (s *Server) listNotes(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.sess.Refresh(ctx); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.notesResult()
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	keyword := ""
	if k, err := req.RequireString("keyword"); err == nil {
		keyword = k
	}
	if err := s.sess.SetKeyword(ctx, keyword); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.notesResult()
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.sess.SubmitCreate(ctx, content, optionalTag(req)); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created (%d notes)", s.sess.Snapshot().Total)), nil
}

// updateNote opens a draft of index and saves it in one step.
func (s *Server) updateNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	index, err := requireIndex(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.sess.BeginEdit(index); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.sess.SubmitUpdate(ctx, index, content, optionalTag(req)); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("updated: %d", index)), nil
}

func (s *Server) deleteNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	index, err := requireIndex(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.sess.SubmitDelete(ctx, index); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %d", index)), nil
}

func (s *Server) refresh(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.sess.Refresh(ctx); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.notesResult()
}

func (s *Server) readRulesResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      rulesURI,
			MIMEType: "text/markdown",
			Text:     NoteRules,
		},
	}, nil
}

func (s *Server) readSessionResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	data, err := json.Marshal(s.sess.Snapshot())
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      sessionURI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
