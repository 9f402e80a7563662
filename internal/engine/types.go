package engine

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Status tags the outcome of a completion call.
type Status int

const (
	// StatusOK means the model produced usable text.
	StatusOK Status = iota
	// StatusBlocked means the model stopped on a length or safety cutoff,
	// or returned nothing usable. Callers must take their fallback path.
	StatusBlocked
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// Completion is the tagged result of a generation call: either OK with text
// or Blocked with a reason.
type Completion struct {
	Status Status
	Text   string
	Reason string
}

// OK returns a usable completion carrying text.
func OK(text string) Completion {
	return Completion{Status: StatusOK, Text: text}
}

// Blocked returns a completion that carries no usable content.
func Blocked(reason string) Completion {
	return Completion{Status: StatusBlocked, Reason: reason}
}

// IsOK reports whether the completion carries usable text.
func (c Completion) IsOK() bool {
	return c.Status == StatusOK
}

// GenerationOptions are sampling parameters applied to every completion an
// engine produces.
type GenerationOptions struct {
	Temperature     float32
	MaxOutputTokens int
}

// PullProgress reports download progress for a model pull operation.
type PullProgress struct {
	Status    string `json:"status"`
	Total     int64  `json:"total,omitempty"`
	Completed int64  `json:"completed,omitempty"`
}
