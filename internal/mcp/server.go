package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/mfenderov/wikibot/internal/corpus"
)

const defaultLimit = 5

// Config holds MCP server configuration.
type Config struct {
	Name    string
	Version string
}

// Source supplies the corpus the tools answer from.
type Source interface {
	Current() *corpus.Corpus
}

// Server exposes the wiki snapshot as MCP tools.
type Server struct {
	mcpServer *server.MCPServer
	source    Source
}

// Page is the tool result shape for a single wiki page.
type Page struct {
	Title           string   `json:"title"`
	URL             string   `json:"url"`
	Content         string   `json:"content"`
	SectionHeadings []string `json:"section_headings"`
}

// NewServer creates a new MCP server with search tools.
func NewServer(config Config, source Source) (*Server, error) {
	if source == nil {
		return nil, fmt.Errorf("corpus source is required")
	}
	if config.Name == "" {
		config.Name = "wikibot"
	}

	mcpServer := server.NewMCPServer(
		config.Name,
		config.Version,
		server.WithToolCapabilities(true),
	)

	s := &Server{
		mcpServer: mcpServer,
		source:    source,
	}

	searchTool := mcp.NewTool("search_wiki",
		mcp.WithDescription("Find the wiki pages most relevant to a question. Returns page text with markup stripped."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Question or keywords"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of pages to return (default: 5)"),
		),
	)
	mcpServer.AddTool(searchTool, s.searchHandler)

	pageTool := mcp.NewTool("get_page",
		mcp.WithDescription("Get a wiki page by title (case-insensitive)"),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("Page title"),
		),
	)
	mcpServer.AddTool(pageTool, s.getPageHandler)

	return s, nil
}

func (s *Server) searchHandler(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query parameter is required"), nil
	}

	limit := req.GetInt("limit", defaultLimit)
	if limit <= 0 {
		limit = defaultLimit
	}

	found := s.source.Current().Select(query, limit)
	pages := make([]Page, 0, len(found))
	for _, p := range found {
		pages = append(pages, Page{Title: p.Title, URL: p.URL, Content: p.Content, SectionHeadings: p.SectionHeadings})
	}

	result, err := json.Marshal(pages)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
	}

	return mcp.NewToolResultText(string(result)), nil
}

func (s *Server) getPageHandler(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError("title parameter is required"), nil
	}

	p, ok := s.source.Current().Snapshot.Page(title)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("page not found: %s", title)), nil
	}

	result, err := json.Marshal(Page{Title: p.Title, URL: p.URL, Content: p.Content, SectionHeadings: p.SectionHeadings})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal page: %v", err)), nil
	}

	return mcp.NewToolResultText(string(result)), nil
}

// ServeStdio starts the MCP server using stdio transport.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
