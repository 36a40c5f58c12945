// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Driftmark journal tools for LLM integration via stdio
// transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kallestad/driftmark/internal/journal"
	"github.com/kallestad/driftmark/internal/models"
)

// Server wraps the MCP server with Driftmark tools.
type Server struct {
	mcp *server.MCPServer
	svc *journal.Service
}

// New creates a new MCP server with all Driftmark tools registered.
func New(svc *journal.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Driftmark",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_entries",
		mcp.WithDescription("List all journal entries with their names and timestamps."),
	), s.listEntries)

	s.mcp.AddTool(mcp.NewTool("read_entry",
		mcp.WithDescription("Read the full Markdown content of a journal entry."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Entry file name (e.g. 2026-08-31-morning.md)")),
	), s.readEntry)

	s.mcp.AddTool(mcp.NewTool("write_entry",
		mcp.WithDescription("Create or overwrite a journal entry. "+
			"Entries are plain Markdown files; read the format contract first via "+
			"the get_entry_contract tool or the driftmark://entry-format resource."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Entry file name (must end with .md; a YYYY-MM-DD prefix sets the creation date)")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Markdown content of the entry")),
	), s.writeEntry)

	s.mcp.AddTool(mcp.NewTool("delete_entry",
		mcp.WithDescription("Delete a journal entry from the authoritative store."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Entry file name to delete")),
	), s.deleteEntry)

	s.mcp.AddTool(mcp.NewTool("sync_now",
		mcp.WithDescription("Run a full sync with the connected repository. "+
			"Reports conflicts instead of overwriting either side."),
	), s.syncNow)

	s.mcp.AddTool(mcp.NewTool("export_journal",
		mcp.WithDescription("Export all journal entries as a portable JSON document."),
	), s.exportJournal)

	s.mcp.AddTool(mcp.NewTool("get_entry_contract",
		mcp.WithDescription("Returns the canonical Driftmark entry format contract. "+
			"Call this before creating or updating entries."),
	), s.getEntryContract)

	// Resource: entry format contract.
	s.mcp.AddResource(
		mcp.NewResource("driftmark://entry-format", "Entry Format Contract",
			mcp.WithResourceDescription("Canonical Markdown entry format for journal files."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readEntryFormatResource,
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

// entryByName finds a non-draft entry by its file name.
func (s *Server) entryByName(name string) *models.JournalFile {
	name = models.EnsureMarkdownName(name)
	for _, f := range s.svc.ListFiles() {
		if !f.IsDraft() && f.Name == name {
			out := f
			return &out
		}
	}
	return nil
}

func (s *Server) listEntries(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	type item struct {
		Name      string `json:"name"`
		CreatedAt string `json:"createdAt"`
		UpdatedAt string `json:"updatedAt"`
	}
	var items []item
	for _, f := range s.svc.ListFiles() {
		if f.IsDraft() {
			continue
		}
		items = append(items, item{
			Name:      f.Name,
			CreatedAt: f.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
			UpdatedAt: f.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	out, _ := json.MarshalIndent(items, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readEntry(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	f := s.entryByName(name)
	if f == nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", name)), nil
	}
	return mcp.NewToolResultText(f.Content), nil
}

func (s *Server) writeEntry(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if existing := s.entryByName(name); existing != nil {
		if _, err := s.svc.SaveFile(ctx, existing.ID, content); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("updated: %s", existing.Name)), nil
	}

	created, err := s.svc.CreateFile(ctx, name, content)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", created.Name)), nil
}

func (s *Server) deleteEntry(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	f := s.entryByName(name)
	if f == nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", name)), nil
	}
	if err := s.svc.DeleteFile(ctx, f.ID); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %s", f.Name)), nil
}

func (s *Server) syncNow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.svc.ManualSync(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(res.Conflicts) > 0 {
		var names []string
		for _, c := range res.Conflicts {
			names = append(names, c.Name)
		}
		return mcp.NewToolResultText("sync found conflicts, nothing was written:\n" + strings.Join(names, "\n")), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("synced %d entries", len(res.Merged))), nil
}

func (s *Server) exportJournal(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(s.svc.ExportAll(), "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getEntryContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(EntryFormatContract), nil
}

func (s *Server) readEntryFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "driftmark://entry-format",
			MIMEType: "text/markdown",
			Text:     EntryFormatContract,
		},
	}, nil
}
