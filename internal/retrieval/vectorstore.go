package retrieval

import (
	"context"
	"math"
	"time"
)

// VectorStore is the interface for vector storage and similarity search
// backends. Records are partitioned into named collections; each collection
// is searched independently.
type VectorStore interface {
	// Insert adds records to the collection. Inserting an id that already
	// exists in the collection is an error; existing rows are never replaced.
	Insert(ctx context.Context, collection string, records []Record) error

	// Search returns up to topK records ordered by ascending cosine distance.
	Search(ctx context.Context, collection string, vector []float32, topK int) ([]ScoredRecord, error)

	// ExistingIDs reports which of ids are already stored in the collection.
	ExistingIDs(ctx context.Context, collection string, ids []string) (map[string]bool, error)

	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, collection string, limit int) ([]Record, error)

	// Count returns the number of records in the collection.
	Count(ctx context.Context, collection string) (int, error)
}

// Record represents a row in the vector store. Payload carries the
// structured fields of the owning collection as JSON.
type Record struct {
	ID         string
	Collection string
	Content    string
	Payload    string
	Embedding  []float32
	CreatedAt  time.Time
}

// ScoredRecord is a Record with its cosine distance to the query vector.
type ScoredRecord struct {
	Record
	Distance float64
}

// distanceEpsilon is the floor below which distances are reported as exactly 0,
// so an identical text reads back as distance 0 despite float rounding.
const distanceEpsilon = 1e-6

// CosineDistance returns 1 - cosine similarity of a and b, clamped to [0, 2].
// Vectors of different length or zero norm are at distance 1.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot, aSq, bSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		aSq += float64(a[i]) * float64(a[i])
		bSq += float64(b[i]) * float64(b[i])
	}
	if aSq == 0 || bSq == 0 {
		return 1
	}
	return similarityToDistance(dot / (math.Sqrt(aSq) * math.Sqrt(bSq)))
}

func similarityToDistance(sim float64) float64 {
	d := 1 - sim
	switch {
	case d < distanceEpsilon:
		return 0
	case d > 2:
		return 2
	}
	return d
}
