package retrieval

import (
	"strings"
)

const answerPreamble = "You are an assistant answering questions about a chat history. " +
	"You will be given excerpts of that history as context. " +
	"Attribute statements only to the display names shown in the context, never to raw user ids. " +
	"If the context does not contain enough information to answer, say so plainly instead of guessing. " +
	"Prefer short quoted snippets from the context over paraphrasing."

// buildMessage assembles the chat prompt: a context block of the top hits
// (authors, time range, text) followed by the question.
func buildMessage(question string, hits []rankedHit) string {
	var b strings.Builder
	b.WriteString("Context from the chat history:\n\n")
	for i, h := range hits {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("[")
		if len(h.Authors) > 0 {
			b.WriteString(strings.Join(h.Authors, ", "))
		} else {
			b.WriteString("unknown")
		}
		b.WriteString(" | ")
		b.WriteString(h.TimeFrom)
		if h.TimeTo != "" && h.TimeTo != h.TimeFrom {
			b.WriteString(" to ")
			b.WriteString(h.TimeTo)
		}
		b.WriteString("]\n")
		b.WriteString(strings.TrimSpace(h.Text))
		b.WriteString("\n")
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(question)
	return b.String()
}
