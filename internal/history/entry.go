package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Entry is one previously successful (question, query) pair.
type Entry struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Query     string    `json:"query"`
	CreatedAt time.Time `json:"created_at"`
}

// payload is the structured form stored alongside the embedded question.
type payload struct {
	Question string `json:"question"`
	Query    string `json:"query"`
}

func encodePayload(question, query string) (string, error) {
	b, err := json.Marshal(payload{Question: question, Query: query})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

var errMalformedPayload = errors.New("malformed history payload")

func decodePayload(raw string) (payload, error) {
	var p payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return payload{}, fmt.Errorf("%w: %w", errMalformedPayload, err)
	}
	if p.Question == "" || p.Query == "" {
		return payload{}, fmt.Errorf("%w: empty question or query", errMalformedPayload)
	}
	return p, nil
}

// Lookup is the result of a similarity lookup against the cache.
type Lookup struct {
	Entry    Entry
	Distance float64
	Found    bool
}

// Hit reports whether the nearest entry is close enough to reuse its query.
// An empty cache never hits.
func (l Lookup) Hit(threshold float64) bool {
	return l.Found && l.Distance < threshold
}
