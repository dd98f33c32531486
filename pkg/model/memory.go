package model

import (
	"time"

	"github.com/google/uuid"
)

type MemoryID string

// NewMemoryID generates a new unique MemoryID
func NewMemoryID() MemoryID {
	return MemoryID(uuid.New().String())
}

// Memory is a finalized query/response pair embedded for later recall.
// Embedding is computed from Response, not Query.
type Memory struct {
	ID        MemoryID
	Query     string
	Response  string
	Embedding []float32
	CreatedAt time.Time
}

// ScoredMemory is a memory returned by similarity search
type ScoredMemory struct {
	ID        MemoryID  `json:"id"`
	Score     float64   `json:"score"`
	Query     string    `json:"query,omitempty"`
	Response  string    `json:"response"`
	CreatedAt time.Time `json:"created_at"`
}

// RecallResult is the outcome of a memory lookup. Message explains an empty
// or failed lookup; it is empty when Memories holds results.
type RecallResult struct {
	Query    string          `json:"query"`
	Memories []*ScoredMemory `json:"memories"`
	Message  string          `json:"message,omitempty"`
}
