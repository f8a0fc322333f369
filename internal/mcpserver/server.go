// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Lectern review tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/lectern/internal/extraction"
	"github.com/starford/lectern/internal/models"
	"github.com/starford/lectern/internal/readerservice"
)

const guideURI = "lectern://review-guide"

// Server wraps the MCP server with Lectern tools.
type Server struct {
	mcp *server.MCPServer
	svc *readerservice.Service
}

// New creates a new MCP server with all Lectern tools registered.
func New(svc *readerservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Lectern",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_libraries",
		mcp.WithDescription("List registered libraries, most recently opened first."),
	), s.listLibraries)

	s.mcp.AddTool(mcp.NewTool("due_today",
		mcp.WithDescription("List the notes due for review by the end of today. "+
			"Omit library to collect due notes from every registered library."),
		mcp.WithString("library", mcp.Description("Library ID (empty for all)")),
	), s.dueToday)

	s.mcp.AddTool(mcp.NewTool("record_feedback",
		mcp.WithDescription("Record the outcome of reviewing a note. "+
			"Accepted feedback depends on the note's queue; read the review guide first via "+
			"the get_review_guide tool or the "+guideURI+" resource."),
		mcp.WithString("library", mcp.Required(), mcp.Description("Library ID")),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path of the note")),
		mcp.WithString("feedback", mcp.Required(), mcp.Description("Feedback token, e.g. good")),
	), s.recordFeedback)

	s.mcp.AddTool(mcp.NewTool("move_to_queue",
		mcp.WithDescription("Move a note to another queue."),
		mcp.WithString("library", mcp.Required(), mcp.Description("Library ID")),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path of the note")),
		mcp.WithString("queue", mcp.Required(), mcp.Description("Target queue"),
			mcp.Enum(queueNames()...)),
	), s.moveToQueue)

	s.mcp.AddTool(mcp.NewTool("extract",
		mcp.WithDescription("Copy a range of a parent note into a new child note and queue it."),
		mcp.WithString("library", mcp.Required(), mcp.Description("Library ID")),
		mcp.WithString("parent_path", mcp.Required(), mcp.Description("Relative path of the parent note")),
		mcp.WithString("extract_type", mcp.Required(), mcp.Description("How the range is addressed"),
			mcp.Enum("text-lines", "pdf-page", "pdf-text", "video-clip", "flashcard")),
		mcp.WithNumber("start", mcp.Required(), mcp.Description("First line, character, page or second (1-based)")),
		mcp.WithNumber("end", mcp.Required(), mcp.Description("Last line, character, page or second (inclusive)")),
		mcp.WithNumber("start_page", mcp.Description("Page of start (pdf-text only)")),
		mcp.WithNumber("end_page", mcp.Description("Page of end (pdf-text only)")),
		mcp.WithString("answer", mcp.Description("Answer text (flashcard only)")),
	), s.extract)

	s.mcp.AddTool(mcp.NewTool("validate_range",
		mcp.WithDescription("Check that an excerpt still matches its parent and re-anchor it if the text moved."),
		mcp.WithString("library", mcp.Required(), mcp.Description("Library ID")),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path of the excerpt")),
	), s.validateRange)

	s.mcp.AddTool(mcp.NewTool("expand_content",
		mcp.WithDescription("Return a note with the current text of its excerpts spliced back in."),
		mcp.WithString("library", mcp.Required(), mcp.Description("Library ID")),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path of the note")),
	), s.expandContent)

	s.mcp.AddTool(mcp.NewTool("find_notes",
		mcp.WithDescription("Fuzzy-match note paths in a library."),
		mcp.WithString("library", mcp.Required(), mcp.Description("Library ID")),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.findNotes)

	s.mcp.AddTool(mcp.NewTool("get_review_guide",
		mcp.WithDescription("Returns the queue catalog and the feedback each queue accepts."),
	), s.getReviewGuide)

	s.mcp.AddResource(
		mcp.NewResource(guideURI, "Review Guide",
			mcp.WithResourceDescription("Queues, feedback tokens and excerpt ranges."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readReviewGuideResource,
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

func queueNames() []string {
	out := make([]string, 0, len(models.Queues))
	for _, q := range models.Queues {
		out = append(out, string(q))
	}
	return out
}

// jsonResult renders v as indented JSON text.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// requireStrings fetches every named argument or reports the first missing one.
func requireStrings(req mcp.CallToolRequest, names ...string) ([]string, error) {
	out := make([]string, len(names))
	for i, n := range names {
		v, err := req.RequireString(n)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (s *Server) listLibraries(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	libs, err := s.svc.Libraries(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(libs)
}

func (s *Server) dueToday(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var (
		notes []models.Note
		err   error
	)
	if lib := req.GetString("library", ""); lib != "" {
		notes, err = s.svc.DueToday(ctx, lib)
	} else {
		notes, err = s.svc.DueAcrossLibraries(ctx)
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(notes) == 0 {
		return mcp.NewToolResultText("nothing due today"), nil
	}
	return jsonResult(notes)
}

func (s *Server) recordFeedback(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := requireStrings(req, "library", "path", "feedback")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.RecordFeedback(ctx, args[0], args[1], args[2])
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func (s *Server) moveToQueue(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := requireStrings(req, "library", "path", "queue")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.svc.MoveToQueue(ctx, args[0], args[1], args[2])
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("moved: %s -> %s", note.Path, note.Queue)), nil
}

func (s *Server) extract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := requireStrings(req, "library", "parent_path", "extract_type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	start, err := req.RequireInt("start")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	end, err := req.RequireInt("end")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	t, err := models.ParseExtractType(args[2])
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	r := models.Range{Start: models.Line(start), End: models.Line(end)}
	if t.PositionKind() == models.PositionPDF {
		r = models.Range{
			Start: models.PDF(req.GetInt("start_page", 1), start),
			End:   models.PDF(req.GetInt("end_page", req.GetInt("start_page", 1)), end),
		}
	}

	res, err := s.svc.Extract(ctx, args[0], extraction.Request{
		ParentPath: args[1],
		Type:       t,
		Range:      r,
		Answer:     req.GetString("answer", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", res.ChildPath)), nil
}

func (s *Server) validateRange(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := requireStrings(req, "library", "path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.ValidateRange(ctx, args[0], args[1])
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func (s *Server) expandContent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := requireStrings(req, "library", "path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.ExpandContent(ctx, args[0], args[1])
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(res.Content), nil
}

func (s *Server) findNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := requireStrings(req, "library", "query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	paths, err := s.svc.FindNotes(ctx, args[0], args[1])
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(paths) == 0 {
		return mcp.NewToolResultText("no matches"), nil
	}
	return mcp.NewToolResultText(strings.Join(paths, "\n")), nil
}

func (s *Server) getReviewGuide(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ReviewGuide), nil
}

func (s *Server) readReviewGuideResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      guideURI,
			MIMEType: "text/markdown",
			Text:     ReviewGuide,
		},
	}, nil
}
