package execution

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"
)

// DefaultDisplayCap is the number of rows kept in a result payload.
const DefaultDisplayCap = 50

// Result is a successful query result, cut to the display cap. TotalRows
// counts every row the engine returned.
type Result struct {
	Columns     []string
	Rows        [][]any
	TotalRows   int
	Truncated   bool
	OmittedRows int
}

// Truncation describes rows left out of a payload. It is reported next to
// the rows, never inside them.
type Truncation struct {
	Shown   int    `json:"shown"`
	Total   int    `json:"total"`
	Omitted int    `json:"omitted"`
	Note    string `json:"note"`
}

// payloadJSON is the transport-neutral form of a Result.
type payloadJSON struct {
	Columns    []string     `json:"columns"`
	Rows       []orderedRow `json:"rows"`
	RowCount   int          `json:"row_count"`
	Truncation *Truncation  `json:"truncation,omitempty"`
}

// Payload returns the result as indented JSON: column names, one object per
// row with keys in column order, and a truncation object when rows were cut.
func (r Result) Payload() string {
	p := payloadJSON{
		Columns:  r.Columns,
		Rows:     make([]orderedRow, len(r.Rows)),
		RowCount: len(r.Rows),
	}
	if p.Columns == nil {
		p.Columns = []string{}
	}
	keys := uniqueKeys(r.Columns)
	for i, row := range r.Rows {
		p.Rows[i] = orderedRow{keys: keys, values: row}
	}
	if r.Truncated {
		p.Truncation = &Truncation{
			Shown:   len(r.Rows),
			Total:   r.TotalRows,
			Omitted: r.OmittedRows,
			Note:    fmt.Sprintf("results truncated: showing %d of %d rows, %d omitted", len(r.Rows), r.TotalRows, r.OmittedRows),
		}
	}

	b, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, "encoding result: "+err.Error())
	}
	return string(b)
}

// orderedRow marshals as a JSON object whose keys follow column order.
type orderedRow struct {
	keys   []string
	values []any
}

func (o orderedRow) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		var v any
		if i < len(o.values) {
			v = o.values[i]
		}
		vb, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// uniqueKeys suffixes repeated column names (id, id_2, ...) so every row
// object has distinct keys.
func uniqueKeys(cols []string) []string {
	keys := make([]string, len(cols))
	seen := make(map[string]int, len(cols))
	for i, c := range cols {
		seen[c]++
		if n := seen[c]; n > 1 {
			keys[i] = fmt.Sprintf("%s_%d", c, n)
			continue
		}
		keys[i] = c
	}
	return keys
}

// normalize converts driver values into JSON-friendly ones.
func normalize(v any) any {
	switch x := v.(type) {
	case []byte:
		if utf8.Valid(x) {
			return string(x)
		}
		return x
	case time.Time:
		return x.Format(time.RFC3339Nano)
	default:
		return x
	}
}
