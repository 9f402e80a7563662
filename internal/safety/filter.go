// Package safety applies the static policy every candidate query passes
// before execution: mutating statements are replaced by a fixed rejection
// query and unbounded reads get a row cap.
package safety

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// DefaultRowCap is the maximum number of rows a capped query may return.
const DefaultRowCap = 1000

// RejectionQuery is executed in place of a rejected candidate. It is valid
// in every supported dialect and has no side effects.
const RejectionQuery = "SELECT 'Command not allowed.' AS SecurityError"

// DeniedKeywords are matched as substrings of the upper-cased query.
var DeniedKeywords = []string{
	"DROP", "DELETE", "UPDATE", "INSERT", "TRUNCATE", "ALTER",
	"CREATE", "EXEC", "MERGE", "GRANT", "REVOKE",
}

// ErrSecurityRejection is matched by every *RejectionError.
var ErrSecurityRejection = errors.New("query rejected by safety filter")

// RejectionError names the deny-listed keyword that triggered a rejection.
type RejectionError struct {
	Keyword string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("query rejected by safety filter: contains %s", e.Keyword)
}

func (e *RejectionError) Is(target error) bool {
	return target == ErrSecurityRejection
}

// Filter is deterministic and side-effect free; one instance is safe for
// concurrent use.
type Filter struct {
	dialect Dialect
	rowCap  int
}

// NewFilter creates a Filter for the dialect. rowCap <= 0 uses DefaultRowCap.
func NewFilter(d Dialect, rowCap int) *Filter {
	if rowCap <= 0 {
		rowCap = DefaultRowCap
	}
	return &Filter{dialect: d, rowCap: rowCap}
}

// RowCap returns the configured maximum row count.
func (f *Filter) RowCap() int {
	return f.rowCap
}

// Sanitize returns the query to execute. A query containing a denied keyword
// yields RejectionQuery and a *RejectionError. A read query without a
// row-limiting clause gets the row cap injected exactly once.
func (f *Filter) Sanitize(raw string) (string, error) {
	upper := strings.ToUpper(raw)
	for _, kw := range DeniedKeywords {
		if strings.Contains(upper, kw) {
			return RejectionQuery, &RejectionError{Keyword: kw}
		}
	}

	query := strings.TrimSpace(raw)
	code := mask(query)
	if !isReadQuery(code) || hasTopLevelLimit(code) {
		return query, nil
	}

	if f.dialect.usesTop() {
		return injectTop(query, code, f.rowCap), nil
	}
	return appendLimit(query, f.rowCap), nil
}

// mask returns query with string literals, quoted identifiers and comments
// blanked out byte for byte, so offsets in the result match query.
func mask(query string) string {
	b := []byte(query)
	blank := func(from, to int) {
		for k := from; k < to && k < len(b); k++ {
			if b[k] != '\n' {
				b[k] = ' '
			}
		}
	}
	for i := 0; i < len(b); i++ {
		var end int
		switch {
		case b[i] == '\'' || b[i] == '"':
			end = closing(query, i+1, string(b[i]))
		case b[i] == '[':
			end = closing(query, i+1, "]")
		case strings.HasPrefix(query[i:], "--"):
			end = closing(query, i+2, "\n")
		case strings.HasPrefix(query[i:], "/*"):
			end = closing(query, i+2, "*/")
		default:
			continue
		}
		blank(i, end)
		i = end - 1
	}
	return string(b)
}

// closing returns the offset just past the first delim at or after i, or
// len(s) when the construct is unterminated.
func closing(s string, i int, delim string) int {
	if i > len(s) {
		return len(s)
	}
	if j := strings.Index(s[i:], delim); j >= 0 {
		return i + j + len(delim)
	}
	return len(s)
}

// isReadQuery reports whether the first keyword of the masked query is
// SELECT or WITH.
func isReadQuery(code string) bool {
	s := strings.TrimLeft(code, " \t\r\n(")
	return keywordAt(s, 0, "SELECT") || keywordAt(s, 0, "WITH")
}

// hasTopLevelLimit reports whether the masked query limits its own rows with
// TOP, LIMIT or FETCH FIRST|NEXT outside any parentheses. Limits inside
// subqueries or CTE bodies do not bound the outer result.
func hasTopLevelLimit(code string) bool {
	depth := 0
	for i := 0; i < len(code); i++ {
		switch code[i] {
		case '(':
			depth++
			continue
		case ')':
			depth--
			continue
		}
		if depth != 0 {
			continue
		}
		if keywordAt(code, i, "TOP") || keywordAt(code, i, "LIMIT") {
			return true
		}
		if keywordAt(code, i, "FETCH") {
			next := skipSpace(code, i+len("FETCH"))
			if keywordAt(code, next, "FIRST") || keywordAt(code, next, "NEXT") {
				return true
			}
		}
	}
	return false
}

// injectTop inserts "TOP n" after the first top-level SELECT of query,
// skipping a DISTINCT or ALL quantifier. code is the masked query. For WITH
// queries the first top-level SELECT is the main statement, not a CTE body.
func injectTop(query, code string, n int) string {
	pos := projectionEnd(code, true)
	if pos < 0 {
		pos = projectionEnd(code, false)
	}
	if pos < 0 {
		return query
	}
	return query[:pos] + " TOP " + strconv.Itoa(n) + query[pos:]
}

// projectionEnd returns the byte offset just past the projection keyword
// (SELECT, SELECT DISTINCT or SELECT ALL) of the first SELECT in the masked
// query, or -1. With topLevel set, SELECTs inside parentheses are skipped.
func projectionEnd(code string, topLevel bool) int {
	depth := 0
	for i := 0; i < len(code); i++ {
		switch code[i] {
		case '(':
			depth++
			continue
		case ')':
			depth--
			continue
		}
		if (topLevel && depth != 0) || !keywordAt(code, i, "SELECT") {
			continue
		}

		end := i + len("SELECT")
		next := skipSpace(code, end)
		for _, q := range []string{"DISTINCT", "ALL"} {
			if keywordAt(code, next, q) {
				return next + len(q)
			}
		}
		return end
	}
	return -1
}

// keywordAt reports whether kw appears at offset i as a whole word.
func keywordAt(s string, i int, kw string) bool {
	if i < 0 || i+len(kw) > len(s) || !strings.EqualFold(s[i:i+len(kw)], kw) {
		return false
	}
	if i > 0 && isIdentRune(rune(s[i-1])) {
		return false
	}
	end := i + len(kw)
	return end == len(s) || !isIdentRune(rune(s[end]))
}

func skipSpace(s string, i int) int {
	for i < len(s) && unicode.IsSpace(rune(s[i])) {
		i++
	}
	return i
}

func isIdentRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// appendLimit appends "LIMIT n" on its own line, after any trailing
// semicolons, so a trailing line comment cannot swallow it.
func appendLimit(query string, n int) string {
	q := strings.TrimRight(query, "; \t\r\n")
	return q + "\nLIMIT " + strconv.Itoa(n)
}
