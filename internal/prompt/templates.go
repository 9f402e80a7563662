package prompt

import (
	"fmt"
	"strings"

	"github.com/kalambet/sqlrag/internal/engine"
)

// Payload and glossary caps for the explanation prompt, in characters.
const (
	MaxPayloadChars  = 1500
	MaxGlossaryChars = 1000
)

// Generation returns the messages asking for exactly one query answering
// question, using only the tables and columns in schemaContext.
func Generation(dialect, question, schemaContext string) []engine.Message {
	system := fmt.Sprintf(`You are an expert at writing %s queries.
Write exactly ONE valid read-only query that answers the user's question using the schema context.

Rules:
1. Use ONLY the tables and columns described in the context.
2. Follow the documented relationships when joining tables.
3. Map localized or informal terms in the question to the canonical values stored in the data (for example a country name in another language to the stored English name).
4. Answer with the query only, no explanation and no markdown fences.`, dialect)

	user := fmt.Sprintf(`<schema_context>
%s
</schema_context>

<question>
%s
</question>

Query:`, orNone(schemaContext), question)

	return []engine.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}
}

// Correction returns the messages asking the model to repair failedQuery
// given the database error it produced.
func Correction(dialect, question, schemaContext, failedQuery, dbError string) []engine.Message {
	system := fmt.Sprintf(`You are an expert at fixing %s queries.
The previous query failed. Diagnose the database error using the schema context; it is usually a misnamed table or column.
Answer with the single corrected query only, no explanation and no markdown fences.`, dialect)

	user := fmt.Sprintf(`<schema_context>
%s
</schema_context>

<failed_query>
%s
</failed_query>

<database_error>
%s
</database_error>

<original_question>
%s
</original_question>

Corrected query:`, orNone(schemaContext), failedQuery, dbError, question)

	return []engine.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}
}

// Explanation returns the messages asking for a natural-language answer to
// question from the result payload, using glossary for terminology. Payload
// and glossary are truncated with explicit markers.
func Explanation(question, payload, glossary string) []engine.Message {
	system := `Answer the user's question from the JSON data.
Use the glossary to understand column meanings and explain terms correctly.

Instructions:
- Be clear and concise.
- Use the glossary to explain technical terms (for example "the gross monthly median (gross_monthly_median) was ...").
- If the data contains an error message, explain the problem kindly.
- Do not mention JSON or SQL.`

	user := fmt.Sprintf(`<glossary>
%s
</glossary>

<data>
%s
</data>

<question>
%s
</question>

Answer:`, Truncate(glossary, MaxGlossaryChars, "glossary truncated"), Truncate(payload, MaxPayloadChars, "data truncated"), question)

	return []engine.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}
}

// Truncate cuts s to at most max runes and appends a marker naming what was cut.
func Truncate(s string, max int, marker string) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "\n... (" + marker + ")"
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(no schema context available)"
	}
	return s
}
