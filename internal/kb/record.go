package kb

import "time"

// Record types for catalog items held in the knowledge base.
const (
	TypeCourse       = "course"
	TypeTutorial     = "tutorial"
	TypeLearningPath = "learning_path"
)

// Record is one catalog item with its precomputed embedding. Records are
// immutable once loaded; the store is read-only at request time and replaced
// wholesale on rebuild.
type Record struct {
	ID        string
	Title     string
	BodyText  string
	Type      string
	Keywords  []string
	Embedding []float32
	CreatedAt time.Time

	// Seq is the catalog insertion order (SQLite rowid), used by callers
	// as a stable tie-break when ranking.
	Seq int64
}

// Neighbor is a Record with its distance from a query vector. Distance is the
// negated inner product over normalized embeddings: smaller (more negative)
// means more similar, monotonic with dissimilarity.
type Neighbor struct {
	Record
	Distance float32
}
