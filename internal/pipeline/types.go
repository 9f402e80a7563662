package pipeline

import (
	"encoding/json"
	"time"
)

// Attempt modes.
const (
	ModeCache    = "cache"
	ModeGenerate = "generate"
	ModeCorrect  = "correct"
)

// Attempt is one execution attempt. Position is 1 or 2; attempt 2 exists
// only when attempt 1 failed.
type Attempt struct {
	Position  int    `json:"position"`
	Mode      string `json:"mode"`
	Candidate string `json:"candidate,omitempty"`
	Query     string `json:"query"`
	Error     string `json:"error,omitempty"`
	Payload   string `json:"payload,omitempty"`
	Rejected  bool   `json:"rejected,omitempty"`
	Fallback  bool   `json:"fallback,omitempty"`
	Timeout   bool   `json:"timeout,omitempty"`
}

// Failed reports whether the attempt produced no usable result.
func (a Attempt) Failed() bool {
	return a.Error != ""
}

// Outcome is the single result of answering a question.
type Outcome struct {
	RunID         string        `json:"run_id"`
	Question      string        `json:"question"`
	Answer        string        `json:"answer"`
	Explained     bool          `json:"explained"`
	Query         string        `json:"query"`
	Payload       string        `json:"payload"`
	FromCache     bool          `json:"from_cache"`
	CacheDistance *float64      `json:"cache_distance,omitempty"`
	Attempts      []Attempt     `json:"attempts"`
	Status        string        `json:"status"`
	HistoryID     string        `json:"history_id,omitempty"`
	Duration      time.Duration `json:"duration_ns"`
}

// CacheDecision is the outcome of comparing the nearest history entry with
// the reuse threshold. On a hit Query is the cached query; on a miss Context
// is the assembled generation context.
type CacheDecision struct {
	Hit      bool
	Query    string
	Distance float64
	Context  string
}

// failurePayload is the result payload of a question whose attempts all failed.
func failurePayload(msg, query string) string {
	b, err := json.MarshalIndent(struct {
		Error          string `json:"error"`
		AttemptedQuery string `json:"attempted_query"`
	}{msg, query}, "", "  ")
	if err != nil {
		return msg
	}
	return string(b)
}
