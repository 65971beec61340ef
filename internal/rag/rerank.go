package rag

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ziadkadry99/chaxai/internal/llm"
	"github.com/ziadkadry99/chaxai/internal/logging"
)

const rerankPrompt = `You are a search result reranker. Given a query and numbered passages, rank the passages by relevance to the query.
Return only the passage numbers in order of relevance, most relevant first, separated by commas.`

const (
	rerankPassageLen  = 500
	rerankMaxTokens   = 50
	rerankTemperature = 0.1
)

var passageNumber = regexp.MustCompile(`\d+`)

// rerank asks the completion provider to order hits by relevance to q.
// Passages the model leaves out keep their relative order after the ranked
// ones. Any failure leaves hits as they are.
func (s *Service) rerank(ctx context.Context, q string, hits []Hit) []Hit {
	ctx, cancel := context.WithTimeout(ctx, s.opts.CompletionTimeout)
	defer cancel()

	resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
		Model:       s.opts.Model,
		Messages:    rerankMessages(q, hits),
		MaxTokens:   rerankMaxTokens,
		Temperature: rerankTemperature,
	})
	if err != nil {
		logging.L().Warnw("rerank failed, keeping hybrid order", "provider", s.provider.Name(), "error", err)
		return hits
	}

	order := parseRanking(resp.Content, len(hits))
	if len(order) == 0 {
		logging.L().Warnw("rerank reply had no passage numbers, keeping hybrid order", "reply", resp.Content)
		return hits
	}
	out := make([]Hit, 0, len(hits))
	used := make([]bool, len(hits))
	for _, i := range order {
		out = append(out, hits[i])
		used[i] = true
	}
	for i, h := range hits {
		if !used[i] {
			out = append(out, h)
		}
	}
	return out
}

func rerankMessages(q string, hits []Hit) []llm.Message {
	var sb strings.Builder
	sb.WriteString("Query: ")
	sb.WriteString(q)
	for i, h := range hits {
		text := h.Text
		if utf8.RuneCountInString(text) > rerankPassageLen {
			text = string([]rune(text)[:rerankPassageLen]) + "..."
		}
		fmt.Fprintf(&sb, "\n\nPassage %d: %s", i+1, text)
	}
	sb.WriteString("\n\nRank the passages by relevance (most relevant first):")
	return []llm.Message{
		{Role: llm.RoleSystem, Content: rerankPrompt},
		{Role: llm.RoleUser, Content: sb.String()},
	}
}

// parseRanking reads 1-based passage numbers from reply and returns the
// distinct, in-range ones as 0-based indexes.
func parseRanking(reply string, n int) []int {
	var order []int
	seen := make(map[int]bool, n)
	for _, m := range passageNumber.FindAllString(reply, -1) {
		v, err := strconv.Atoi(m)
		if err != nil || v < 1 || v > n || seen[v-1] {
			continue
		}
		seen[v-1] = true
		order = append(order, v-1)
	}
	return order
}
