// Package prompt builds the messages sent to the language model for query
// generation, query correction and result explanation.
package prompt

import (
	"fmt"
	"strings"

	"github.com/kalambet/sqlrag/internal/retrieval"
)

const defaultMaxContextTokens = 4000

// Example is a previously answered question shown to the model as a style hint.
type Example struct {
	Question string
	Query    string
}

// Composer assembles the context block from retrieved schema documents and
// an optional history example, keeping it under a token budget.
type Composer struct {
	MaxContextTokens int
}

// New creates a Composer with the given token budget for assembled context.
// If maxContextTokens <= 0, the default (4000) is used.
func New(maxContextTokens int) *Composer {
	if maxContextTokens <= 0 {
		maxContextTokens = defaultMaxContextTokens
	}
	return &Composer{MaxContextTokens: maxContextTokens}
}

// Context returns the assembled context: the schema documents nearest first,
// followed by the example if one is given. Documents that would exceed the
// budget are dropped starting from the farthest; the example is dropped
// before any schema document.
func (c *Composer) Context(matches []retrieval.Match, example *Example) string {
	var sb strings.Builder

	const schemaHeader = "Relevant schema:\n"
	remaining := c.MaxContextTokens - EstimateTokens(schemaHeader)

	var selected []string
	for _, m := range matches {
		tokens := EstimateTokens(m.Content) + 1
		if tokens > remaining {
			continue
		}
		selected = append(selected, m.Content)
		remaining -= tokens
	}

	if len(selected) > 0 {
		sb.WriteString(schemaHeader)
		sb.WriteString(strings.Join(selected, "\n\n"))
	}

	if example != nil {
		block := formatExample(*example)
		if EstimateTokens(block) <= remaining {
			if sb.Len() > 0 {
				sb.WriteString("\n\n")
			}
			sb.WriteString(block)
		}
	}

	return sb.String()
}

func formatExample(e Example) string {
	return fmt.Sprintf("Recent question/query example (style reference only):\nQuestion: %s\nQuery: %s", e.Question, e.Query)
}

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
