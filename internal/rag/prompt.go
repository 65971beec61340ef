package rag

import (
	"strings"

	"github.com/ziadkadry99/chaxai/internal/llm"
)

const systemPrompt = `You are ChaxAI, an assistant that answers questions about a private document collection.
Answer using only the provided context. Mention the source names you relied on.
If the context does not contain the answer, say that you don't know rather than guessing.`

// buildMessages labels each chunk with its source so the model can cite it.
func buildMessages(question string, hits []Hit) []llm.Message {
	parts := make([]string, len(hits))
	for i, h := range hits {
		parts[i] = "[Source: " + h.Source + "]\n" + h.Text
	}
	var sb strings.Builder
	sb.WriteString("Context:\n")
	sb.WriteString(strings.Join(parts, "\n\n---\n\n"))
	sb.WriteString("\n\nQuestion: ")
	sb.WriteString(question)

	return []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: sb.String()},
	}
}
