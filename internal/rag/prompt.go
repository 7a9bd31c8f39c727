package rag

import (
	"fmt"
	"strings"

	"github.com/xxxsen/docqa/internal/ai"
	"github.com/xxxsen/docqa/internal/model"
)

const DefaultHistoryMessages = 6

const systemPrompt = `You are a document analysis assistant. Answer the user's question using ONLY the context sources provided below.

Rules:
- If the context does not contain enough information to answer, say clearly that the documents do not contain the answer. Do not guess.
- Cite the sources you used inline as [Source n], matching the numbers in the context.
- Use the same language as the question.
- When the answer contains numeric data that is easier to read as a chart, append ONE fenced block:
` + "```chart" + `
{"type": "bar|line|pie", "title": "...", "data": [{"name": "label", "value": 1}]}
` + "```" + `
  Only emit a chart when the numbers come from the context.`

// BuildPrompt assembles the grounded completion request: labelled evidence,
// the most recent history messages, then the question.
func BuildPrompt(query string, evidence []model.EvidenceItem, history []model.Message, historyLimit int) *ai.CompletionRequest {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryMessages
	}
	var sb strings.Builder
	sb.WriteString(systemPrompt)
	sb.WriteString("\n\nCONTEXT:\n")
	for i, e := range evidence {
		sb.WriteString(SourceLabel(i+1, e))
		sb.WriteString("\n")
		sb.WriteString(strings.TrimSpace(e.Text))
		sb.WriteString("\n\n")
	}

	if len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}
	msgs := make([]ai.ChatMessage, 0, len(history)+1)
	for _, m := range history {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		role := ai.RoleUser
		if m.Role == model.RoleAssistant {
			role = ai.RoleAssistant
		}
		msgs = append(msgs, ai.ChatMessage{Role: role, Content: content})
	}
	msgs = append(msgs, ai.ChatMessage{Role: ai.RoleUser, Content: strings.TrimSpace(query)})
	return &ai.CompletionRequest{
		System:   strings.TrimRight(sb.String(), "\n"),
		Messages: msgs,
	}
}

func SourceLabel(n int, e model.EvidenceItem) string {
	if e.Page > 0 {
		return fmt.Sprintf("[Source %d: %s, chunk %d, page %d]", n, e.Filename, e.ChunkIndex, e.Page)
	}
	return fmt.Sprintf("[Source %d: %s, chunk %d]", n, e.Filename, e.ChunkIndex)
}
