package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ziadkadry99/chaxai/internal/apperr"
	"github.com/ziadkadry99/chaxai/internal/library"
	"github.com/ziadkadry99/chaxai/internal/rag"
)

// handleAskQuestion answers a question through the answering service.
func (s *Server) handleAskQuestion(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := request.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: question"), nil
	}

	ans, err := s.answers.Answer(ctx, question)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("question failed: %s", apperr.Detail(err))), nil
	}

	return mcp.NewToolResultText(formatAnswer(ans)), nil
}

// handleSearchDocuments returns the passages most relevant to a query.
func (s *Server) handleSearchDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: query"), nil
	}

	limit := request.GetInt("limit", 5)
	if limit <= 0 {
		limit = 5
	}

	hits, err := s.answers.Search(ctx, query, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %s", apperr.Detail(err))), nil
	}

	if len(hits) == 0 {
		return mcp.NewToolResultText("No results found. Upload documents or run `chaxai ingest` to populate the knowledge base."), nil
	}

	return mcp.NewToolResultText(formatHits(hits)), nil
}

// handleListDocuments lists the committed documents.
func (s *Server) handleListDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docs := s.docs.List()
	if len(docs) == 0 {
		return mcp.NewToolResultText("The knowledge base is empty."), nil
	}
	return mcp.NewToolResultText(formatDocuments(docs)), nil
}

func formatAnswer(ans *rag.Answer) string {
	var sb strings.Builder
	sb.WriteString(ans.Answer)
	if len(ans.Sources) > 0 {
		sb.WriteString("\n\nSources: ")
		sb.WriteString(strings.Join(ans.Sources, ", "))
		sb.WriteString(fmt.Sprintf("\nConfidence: %.1f%%", ans.Confidence))
	}
	return sb.String()
}

// formatHits renders passages in a layout suited to agent consumption.
func formatHits(hits []rag.Hit) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d passage(s):\n", len(hits)))

	for i, h := range hits {
		sb.WriteString(fmt.Sprintf("\n--- Result %d ---\n", i+1))
		sb.WriteString(fmt.Sprintf("Source: %s (chunk %d)\n", h.Source, h.Chunk))
		sb.WriteString(fmt.Sprintf("Score: %.1f%%\n", h.Score*100))
		sb.WriteString("\n")
		sb.WriteString(h.Text)
		sb.WriteString("\n")
	}

	return sb.String()
}

func formatDocuments(docs []library.Document) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d document(s):\n", len(docs)))
	for _, d := range docs {
		sb.WriteString(fmt.Sprintf("- %s (%d bytes, %d chunks, indexed %s)\n",
			d.Name, d.Size, d.Chunks, d.IndexedAt.UTC().Format("2006-01-02 15:04")))
	}
	return sb.String()
}
