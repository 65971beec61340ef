package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/server"

	"github.com/ziadkadry99/chaxai/internal/library"
	"github.com/ziadkadry99/chaxai/internal/rag"
)

// Version is set via ldflags at build time.
var Version = "dev"

// Answerer answers and searches the knowledge base.
type Answerer interface {
	Answer(ctx context.Context, question string) (*rag.Answer, error)
	Search(ctx context.Context, query string, limit int) ([]rag.Hit, error)
}

// Lister lists committed documents.
type Lister interface {
	List() []library.Document
}

// Server wraps an MCP server that exposes the knowledge base to agents.
type Server struct {
	answers Answerer
	docs    Lister
	mcp     *server.MCPServer
}

// NewServer creates a new MCP server with the given dependencies.
func NewServer(answers Answerer, docs Lister) *Server {
	s := &Server{
		answers: answers,
		docs:    docs,
	}

	s.mcp = server.NewMCPServer(
		"chaxai",
		Version,
		server.WithToolCapabilities(false),
	)

	s.registerTools()

	return s
}

// registerTools adds all tool definitions and their handlers to the MCP server.
func (s *Server) registerTools() {
	s.mcp.AddTool(askQuestionTool, s.handleAskQuestion)
	s.mcp.AddTool(searchDocumentsTool, s.handleSearchDocuments)
	s.mcp.AddTool(listDocumentsTool, s.handleListDocuments)
}

// Serve starts the MCP server on stdio. Stdout is used for MCP protocol
// messages; all logging must go to stderr.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}
