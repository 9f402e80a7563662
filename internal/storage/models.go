package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Run statuses.
const (
	RunDone     = "done"
	RunFailed   = "failed"
	RunRejected = "rejected"
)

// Run is the audit record of one answered question. Attempts holds the
// JSON-encoded attempt list as produced by the pipeline.
type Run struct {
	ID            string
	CreatedAt     time.Time
	Question      string
	FinalQuery    string
	FromCache     bool
	CacheDistance *float64
	Attempts      string
	Answer        string
	Status        string
	HistoryID     string
	Duration      time.Duration
}
