// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Nocel sessions for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/nocel/internal/apperr"
	"github.com/starford/nocel/internal/models"
	"github.com/starford/nocel/internal/sessionservice"
)

// Server wraps the MCP server with Nocel tools.
type Server struct {
	mcp *server.MCPServer
	svc *sessionservice.Service
}

// New creates a new MCP server with all Nocel tools registered.
func New(svc *sessionservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Nocel",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_sessions",
		mcp.WithDescription("List public session names. Private sessions are never listed."),
		mcp.WithString("search", mcp.Description("Optional search text; case, spaces and punctuation are ignored")),
	), s.listSessions)

	s.mcp.AddTool(mcp.NewTool("read_session",
		mcp.WithDescription("Read the notes and files of a session, oldest first."),
		mcp.WithString("name", mcp.Description("Session name (public sessions)")),
		mcp.WithString("code", mcp.Description("Combined private code, e.g. Diary4821 (private sessions)")),
	), s.readSession)

	s.mcp.AddTool(mcp.NewTool("add_note",
		mcp.WithDescription("Append a text note to a session. Blank notes are ignored."),
		mcp.WithString("name", mcp.Description("Session name (public sessions)")),
		mcp.WithString("code", mcp.Description("Combined private code (private sessions)")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Note text")),
	), s.addNote)

	s.mcp.AddTool(mcp.NewTool("storage_usage",
		mcp.WithDescription("Report how much of the per-session storage cap a session uses."),
		mcp.WithString("name", mcp.Description("Session name (public sessions)")),
		mcp.WithString("code", mcp.Description("Combined private code (private sessions)")),
	), s.storageUsage)

	s.mcp.AddTool(mcp.NewTool("verify_private_code",
		mcp.WithDescription("Check a combined private code (session name followed by 4 digits)."),
		mcp.WithString("code", mcp.Required(), mcp.Description("Combined private code, e.g. Diary4821")),
	), s.verifyPrivateCode)

	s.mcp.AddTool(mcp.NewTool("upload_file",
		mcp.WithDescription("Store a file in a session from an http(s) URL or a base64 data URI. "+
			"The per-session storage cap applies."),
		mcp.WithString("name", mcp.Description("Session name (public sessions)")),
		mcp.WithString("code", mcp.Description("Combined private code (private sessions)")),
		mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or data:<mime>;base64,<data> URI")),
		mcp.WithString("filename", mcp.Description("Optional file name; derived from the URL or content when empty")),
	), s.uploadFile)

	s.mcp.AddResource(
		mcp.NewResource(guideURI, "Nocel Guide",
			mcp.WithResourceDescription("How sessions, private codes and storage limits work."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readGuideResource,
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

// toolError turns a service error into a tool error result.
func toolError(err error) *mcp.CallToolResult {
	var qe *apperr.QuotaError
	switch {
	case errors.As(err, &qe):
		return mcp.NewToolResultError(qe.Error())
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError("not found")
	default:
		return mcp.NewToolResultError(err.Error())
	}
}

// optionalString returns the string argument key or "" when it is absent.
func optionalString(req mcp.CallToolRequest, key string) string {
	if v, err := req.RequireString(key); err == nil {
		return v
	}
	return ""
}

func jsonResult(v any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out))
}

// session resolves the target session: a private code when given, else a
// public session name.
func (s *Server) session(ctx context.Context, req mcp.CallToolRequest) (*models.Session, error) {
	if code := strings.TrimSpace(optionalString(req, "code")); code != "" {
		return s.svc.VerifyPrivateAccess(ctx, code)
	}
	name := strings.TrimSpace(optionalString(req, "name"))
	if name == "" {
		return nil, apperr.Invalid("either name or code is required")
	}
	return s.svc.Lookup(ctx, name, models.SessionPublic)
}

func (s *Server) listSessions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	names, err := s.svc.ListPublic(ctx, optionalString(req, "search"))
	if err != nil {
		return toolError(err), nil
	}
	if len(names) == 0 {
		return mcp.NewToolResultText("no sessions found"), nil
	}
	return mcp.NewToolResultText(strings.Join(names, "\n")), nil
}

type sessionView struct {
	Name  string        `json:"name"`
	Type  string        `json:"type"`
	Items []models.Item `json:"items"`
	Usage models.Usage  `json:"usage"`
}

func (s *Server) readSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(ctx, req)
	if err != nil {
		return toolError(err), nil
	}
	items, err := s.svc.Timeline(ctx, sess)
	if err != nil {
		return toolError(err), nil
	}
	usage, err := s.svc.Usage(ctx, sess)
	if err != nil {
		return toolError(err), nil
	}
	if items == nil {
		items = []models.Item{}
	}
	return jsonResult(sessionView{Name: sess.Name, Type: string(sess.Type), Items: items, Usage: usage}), nil
}

func (s *Server) addNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sess, err := s.session(ctx, req)
	if err != nil {
		return toolError(err), nil
	}
	note, err := s.svc.AddNote(ctx, sess, content)
	if err != nil {
		return toolError(err), nil
	}
	if note == nil {
		return mcp.NewToolResultText("ignored: empty note"), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("added note %d to %s", note.ID, sess.Name)), nil
}

func (s *Server) storageUsage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(ctx, req)
	if err != nil {
		return toolError(err), nil
	}
	usage, err := s.svc.Usage(ctx, sess)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(usage), nil
}

func (s *Server) verifyPrivateCode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, err := req.RequireString("code")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sess, err := s.svc.VerifyPrivateAccess(ctx, code)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText("valid: " + sess.Name), nil
}

func (s *Server) readGuideResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      guideURI,
			MIMEType: "text/markdown",
			Text:     Guide(s.svc.Quota()),
		},
	}, nil
}
