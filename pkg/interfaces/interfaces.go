package interfaces

import (
	"context"

	"github.com/m-mizutani/wandersync/pkg/model"
)

// ReasonInput is what a reasoning step sees
type ReasonInput struct {
	Conversation *model.Conversation
	Capabilities []*model.CapabilitySpec

	// ForceAnswer asks the model for a terminal answer without capability requests
	ForceAnswer bool
}

// Reasoner is the language-model invocation that either emits capability
// requests or a terminal answer
type Reasoner interface {
	Reason(ctx context.Context, input *ReasonInput) (*model.Message, error)
}

// Embedder turns text into a fixed-length vector. The same Embedder must be
// used for both writing and searching a collection.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// Transcriber converts recorded audio into a text query
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// VectorIndex is the backing store of semantic memory. Implementations must be
// safe for concurrent use.
type VectorIndex interface {
	// Describe returns nil without error when the collection does not exist.
	// It runs on every commit, so it must not scan points; backends that
	// cannot count cheaply report model.CountUnknown.
	Describe(ctx context.Context, collection string) (*model.CollectionInfo, error)

	// Create creates a cosine-similarity collection with the given dimension
	Create(ctx context.Context, collection string, dimension int) error

	// Drop removes the collection and all its points
	Drop(ctx context.Context, collection string) error

	// Upsert inserts or replaces a point by ID
	Upsert(ctx context.Context, collection string, point *model.VectorPoint) error

	// Search returns up to limit points ordered by descending similarity
	Search(ctx context.Context, collection string, vector []float32, limit int) ([]*model.VectorHit, error)
}

// HistoryRepository stores raw chat logs
type HistoryRepository interface {
	// PutHistory appends a history record
	PutHistory(ctx context.Context, history *model.History) error

	// GetHistory retrieves a history record by ID
	GetHistory(ctx context.Context, id model.HistoryID) (*model.History, error)

	// ListHistory returns the most recent records of the user, newest first
	ListHistory(ctx context.Context, userID string, limit int) ([]*model.History, error)

	// DeleteHistory removes a history record by ID
	DeleteHistory(ctx context.Context, id model.HistoryID) error
}
