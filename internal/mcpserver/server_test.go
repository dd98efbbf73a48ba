package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/chainpad/internal/models"
	"github.com/starford/chainpad/internal/testutil"
)

func testServer(t *testing.T) (*Server, *testutil.Stack) {
	t.Helper()
	stack := testutil.NewStack(t, models.FullCapabilities())
	stack.Connect(t)
	return New(stack.Session, "test"), stack
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so handlers are called
	// directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "list_notes":
		result, err = srv.listNotes(ctx, req)
	case "search_notes":
		result, err = srv.searchNotes(ctx, req)
	case "create_note":
		result, err = srv.createNote(ctx, req)
	case "update_note":
		result, err = srv.updateNote(ctx, req)
	case "delete_note":
		result, err = srv.deleteNote(ctx, req)
	case "refresh":
		result, err = srv.refresh(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

type notesPayload struct {
	Notes   []models.Note `json:"notes"`
	Total   int           `json:"total"`
	Keyword string        `json:"keyword"`
}

func decodeNotes(t *testing.T, r *mcp.CallToolResult) notesPayload {
	t.Helper()
	if r.IsError {
		t.Fatalf("tool error: %s", resultText(r))
	}
	var p notesPayload
	if err := json.Unmarshal([]byte(resultText(r)), &p); err != nil {
		t.Fatalf("decode: %v (%s)", err, resultText(r))
	}
	return p
}

func TestCreateAndListNotes(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "create_note", map[string]interface{}{
		"content": "buy milk",
		"tag":     "shop",
	})
	if text := resultText(r); text != "created (1 notes)" {
		t.Errorf("create result = %q", text)
	}

	p := decodeNotes(t, callTool(t, srv, "list_notes", map[string]interface{}{}))
	if len(p.Notes) != 1 || p.Notes[0].Content != "buy milk" || p.Notes[0].Tag != "shop" {
		t.Errorf("notes = %+v", p.Notes)
	}
}

func TestListPicksUpExternalWrites(t *testing.T) {
	srv, stack := testServer(t)
	stack.Seed(t, "a", "b")

	p := decodeNotes(t, callTool(t, srv, "list_notes", map[string]interface{}{}))
	if p.Total != 2 {
		t.Errorf("total = %d, want 2", p.Total)
	}
}

func TestCreateEmptyContent(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "create_note", map[string]interface{}{"content": ""})
	if !r.IsError {
		t.Error("expected error for empty content")
	}
}

func TestUpdateNote(t *testing.T) {
	srv, stack := testServer(t)
	stack.Seed(t, "a", "b")
	callTool(t, srv, "refresh", map[string]interface{}{})

	r := callTool(t, srv, "update_note", map[string]interface{}{
		"index":   float64(1),
		"content": "b2",
	})
	if r.IsError {
		t.Fatalf("update: %s", resultText(r))
	}
	p := decodeNotes(t, callTool(t, srv, "list_notes", map[string]interface{}{}))
	if p.Notes[1].Content != "b2" {
		t.Errorf("notes = %+v", p.Notes)
	}
	if stack.Session.Snapshot().Editing {
		t.Error("draft should be closed after a confirmed update")
	}
}

func TestUpdateNoteBadIndex(t *testing.T) {
	srv, _ := testServer(t)
	for _, idx := range []interface{}{float64(1.5), float64(-1), "x"} {
		r := callTool(t, srv, "update_note", map[string]interface{}{"index": idx, "content": "x"})
		if !r.IsError {
			t.Errorf("index %v: expected error", idx)
		}
	}
	r := callTool(t, srv, "update_note", map[string]interface{}{"index": float64(0), "content": "x"})
	if !r.IsError || !strings.Contains(resultText(r), "not found") {
		t.Errorf("missing note: %q", resultText(r))
	}
}

func TestDeleteNote(t *testing.T) {
	srv, stack := testServer(t)
	stack.Seed(t, "a", "b")
	callTool(t, srv, "refresh", map[string]interface{}{})

	r := callTool(t, srv, "delete_note", map[string]interface{}{"index": float64(0)})
	if text := resultText(r); text != "deleted: 0" {
		t.Fatalf("delete result = %q", text)
	}
	p := decodeNotes(t, callTool(t, srv, "list_notes", map[string]interface{}{}))
	if len(p.Notes) != 1 || p.Notes[0].Content != "b" || p.Notes[0].Index != 0 {
		t.Errorf("notes = %+v", p.Notes)
	}

	r = callTool(t, srv, "delete_note", map[string]interface{}{"index": float64(5)})
	if !r.IsError {
		t.Error("expected error for index outside the list")
	}
}

func TestSearchNotes(t *testing.T) {
	srv, stack := testServer(t)
	stack.Seed(t, "buy milk", "walk dog")

	p := decodeNotes(t, callTool(t, srv, "search_notes", map[string]interface{}{"keyword": "milk"}))
	if len(p.Notes) != 1 || p.Keyword != "milk" {
		t.Errorf("search = %+v", p)
	}

	p = decodeNotes(t, callTool(t, srv, "search_notes", map[string]interface{}{}))
	if p.Keyword != "" {
		t.Errorf("keyword should be cleared, got %q", p.Keyword)
	}
}

func TestResources(t *testing.T) {
	srv, _ := testServer(t)

	contents, err := srv.readRulesResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil || len(contents) != 1 {
		t.Fatalf("rules: %v", err)
	}
	if tc, ok := contents[0].(mcp.TextResourceContents); !ok || !strings.Contains(tc.Text, "Deleting shifts indices") {
		t.Errorf("rules = %+v", contents[0])
	}

	contents, err = srv.readSessionResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil || len(contents) != 1 {
		t.Fatalf("session: %v", err)
	}
	if tc, ok := contents[0].(mcp.TextResourceContents); !ok || !strings.Contains(tc.Text, `"state":"idle"`) {
		t.Errorf("session = %+v", contents[0])
	}
}
