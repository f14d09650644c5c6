// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Glide notes and sync controls for LLM integration via
// stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/glide/internal/apperr"
	"github.com/starford/glide/internal/noteservice"
	"github.com/starford/glide/internal/repo"
	"github.com/starford/glide/internal/storage"
	"github.com/starford/glide/internal/syncengine"
)

// Syncer is the part of the sync engine the tools use.
type Syncer interface {
	Status(ctx context.Context) syncengine.Status
	Trigger(reason syncengine.Reason)
}

// Server wraps the MCP server with Glide tools.
type Server struct {
	mcp     *server.MCPServer
	notes   *noteservice.Service
	sync    Syncer
	files   storage.Provider
	uploads Uploads
}

// New creates a new MCP server with all tools registered. The
// add_recording tool is only offered when files and uploads are non-nil.
func New(notes *noteservice.Service, sync Syncer, files storage.Provider, uploads Uploads) *Server {
	s := &Server{notes: notes, sync: sync, files: files, uploads: uploads}

	s.mcp = server.NewMCPServer(
		"Glide",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Full-text search through note titles, transcripts and summaries."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default 20)")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read a note with its transcript, summary and tags."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a new note. Title and tags are derived from the "+
			"transcript when omitted; read get_note_contract for the rules."),
		mcp.WithString("transcript", mcp.Required(), mcp.Description("Markdown note body")),
		mcp.WithString("title", mcp.Description("Optional explicit title")),
		mcp.WithString("folder_id", mcp.Description("Optional folder id")),
		mcp.WithArray("tags", mcp.WithStringItems(), mcp.Description("Optional tags")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("get_note_contract",
		mcp.WithDescription("Returns how note text is turned into titles and tags."),
	), s.getNoteContract)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List notes, pinned first then newest, optionally in one folder."),
		mcp.WithString("folder_id", mcp.Description("Optional folder id (empty for all)")),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default 50)")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("folder_tree",
		mcp.WithDescription("Return the folder hierarchy with ids."),
	), s.folderTree)

	s.mcp.AddTool(mcp.NewTool("sync_status",
		mcp.WithDescription("Report sync state, pending changes and the last error."),
	), s.syncStatus)

	s.mcp.AddTool(mcp.NewTool("trigger_sync",
		mcp.WithDescription("Request a sync cycle with the server."),
	), s.triggerSync)

	if files != nil && uploads != nil {
		s.mcp.AddTool(mcp.NewTool("add_recording",
			mcp.WithDescription("Add a voice recording for transcription. A placeholder note "+
				"is created at once and filled in when the server has processed the audio."),
			mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or base64 data URI of an m4a, mp3, wav or mp4 file")),
			mcp.WithString("title", mcp.Description("Optional placeholder title")),
		), s.addRecording)
	}

	s.mcp.AddResource(
		mcp.NewResource("glide://note-format", "Note Format",
			mcp.WithResourceDescription("How note text is turned into titles and tags."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteFormatResource,
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

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.notes.SearchNotes(ctx, query, req.GetInt("limit", 20))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results)
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.notes.GetNote(ctx, id)
	if err != nil || n.Deleted {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	return jsonResult(n)
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	transcript, err := req.RequireString("transcript")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.notes.CreateNote(ctx, noteservice.NoteInput{
		Title:    req.GetString("title", ""),
		Content:  transcript,
		FolderID: req.GetString("folder_id", ""),
		Tags:     req.GetStringSlice("tags", nil),
	})
	if err != nil {
		if errors.Is(err, apperr.ErrValidation) || errors.Is(err, apperr.ErrSystemFolder) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return nil, err
	}
	return jsonResult(n)
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, total, err := s.notes.ListNotes(ctx, repo.NoteFilter{
		FolderID: req.GetString("folder_id", ""),
		Limit:    req.GetInt("limit", 50),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"notes": items, "total": total})
}

func (s *Server) folderTree(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tree, err := s.notes.FolderTree(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(tree)
}

func (s *Server) syncStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.sync.Status(ctx))
}

func (s *Server) triggerSync(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.sync.Trigger(syncengine.ReasonManual)
	return mcp.NewToolResultText("sync requested"), nil
}

func (s *Server) getNoteContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(NoteFormatContract), nil
}

func (s *Server) readNoteFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "glide://note-format",
			MIMEType: "text/markdown",
			Text:     NoteFormatContract,
		},
	}, nil
}
