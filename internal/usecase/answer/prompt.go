package answer

import (
	"strings"

	"github.com/kailas-cloud/ragstream/internal/domain/chat"
	"github.com/kailas-cloud/ragstream/internal/domain/document"
	"github.com/kailas-cloud/ragstream/internal/tokenizer"
)

// DefaultPersona is the system instruction for both strategies.
const DefaultPersona = "You are ArchGPT, an AI assistance for architects and engineers " +
	"looking for answers about Switzerland norms and regulations"

// DefaultGroundedTemplate is the prompt for answers built from retrieved context.
const DefaultGroundedTemplate = `Use the following pieces of context to answer the question at the end.
If you don't know the answer, just say that you don't know, don't try to make up an answer.
If the question is not related to the context, politely say that you can only answer
questions about the indexed norms and regulations.

Context:
{context}

Chat history:
{history}

Question: {question}
Helpful answer in markdown:`

// Template placeholders.
const (
	PlaceholderContext  = "{context}"
	PlaceholderHistory  = "{history}"
	PlaceholderQuestion = "{question}"
)

// Template renders the grounded prompt.
type Template struct {
	text string
}

// NewTemplate wraps text; an empty text selects DefaultGroundedTemplate.
func NewTemplate(text string) Template {
	if strings.TrimSpace(text) == "" {
		text = DefaultGroundedTemplate
	}
	return Template{text: text}
}

// Render substitutes every placeholder in a single pass, so placeholder-like
// text inside documents or questions is left alone.
func (t Template) Render(context string, history chat.History, question string) string {
	r := strings.NewReplacer(
		PlaceholderContext, context,
		PlaceholderHistory, RenderHistory(history),
		PlaceholderQuestion, question,
	)
	return r.Replace(t.text)
}

// RenderHistory formats past turns oldest first as Human/Assistant lines.
func RenderHistory(h chat.History) string {
	if len(h) == 0 {
		return ""
	}
	var b strings.Builder
	for i, turn := range h {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("Human: ")
		b.WriteString(turn.Question)
		b.WriteString("\nAssistant: ")
		b.WriteString(turn.Answer)
	}
	return b.String()
}

const docSeparator = "\n\n"

// DefaultContextTokenBudget leaves room for the answer in a 4k-token model.
const DefaultContextTokenBudget = 3000

// ContextWindow concatenates document contents under a token budget.
type ContextWindow struct {
	counter tokenizer.Counter
	budget  int
}

// NewContextWindow creates a window of at most budget tokens.
func NewContextWindow(counter tokenizer.Counter, budget int) ContextWindow {
	return ContextWindow{counter: counter, budget: budget}
}

// Build joins contents in the given order, separated by blank lines. The
// document that crosses the budget is cut to fit and later ones are dropped.
// It returns the text and how many documents contributed to it.
func (w ContextWindow) Build(docs []document.Document) (string, int) {
	var b strings.Builder
	remaining := w.budget
	used := 0

	for _, d := range docs {
		content := strings.TrimSpace(d.Content())
		if content == "" {
			continue
		}
		if remaining <= 0 {
			break
		}

		piece := content
		if used > 0 {
			piece = docSeparator + content
		}

		n := w.counter.Count(piece)
		if n > remaining {
			piece = w.counter.Truncate(piece, remaining)
			if strings.TrimSpace(piece) == "" {
				break
			}
			b.WriteString(piece)
			used++
			break
		}

		b.WriteString(piece)
		remaining -= n
		used++
	}

	return b.String(), used
}
