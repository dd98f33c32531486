package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/wandersync/pkg/interfaces"
	"github.com/m-mizutani/wandersync/pkg/memory/embedder"
	"github.com/m-mizutani/wandersync/pkg/model"
	"github.com/m-mizutani/wandersync/pkg/utils/logging"
	"github.com/m-mizutani/wandersync/pkg/vectorindex"
)

const (
	// DefaultCollection is the name of the memory collection
	DefaultCollection = "travel_memories"

	// DefaultLimit is the number of memories returned when k is not given
	DefaultLimit = 3

	payloadQuery     = "query"
	payloadResponse  = "response"
	payloadTimestamp = "timestamp"
)

// Store is the semantic long-term memory of finalized query/response pairs.
// Stored vectors embed the response; lookups embed the query.
type Store struct {
	index      interfaces.VectorIndex
	embedder   interfaces.Embedder
	collection string
	dimension  int
	now        func() time.Time

	// serializes schema checks so that concurrent writers never double-create
	schemaMu sync.Mutex
}

// Option configures Store
type Option func(*Store)

// WithCollection sets the collection name
func WithCollection(name string) Option {
	return func(s *Store) {
		s.collection = name
	}
}

// WithDimension sets the expected vector dimension D
func WithDimension(dim int) Option {
	return func(s *Store) {
		s.dimension = dim
	}
}

// WithClock replaces time.Now, mainly for tests
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a memory store. The dimension defaults to the embedder's.
func New(index interfaces.VectorIndex, emb interfaces.Embedder, opts ...Option) *Store {
	s := &Store{
		index:      index,
		embedder:   emb,
		collection: DefaultCollection,
		dimension:  emb.Dimension(),
		now:        time.Now,
	}
	if s.dimension <= 0 {
		s.dimension = embedder.DefaultDimension
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Collection returns the collection name
func (s *Store) Collection() string {
	return s.collection
}

// Dimension returns D
func (s *Store) Dimension() int {
	return s.dimension
}

// EnsureSchema creates the collection if it is absent and rebuilds it when its
// dimension differs from D. It is cheap when the collection is healthy.
func (s *Store) EnsureSchema(ctx context.Context) error {
	s.schemaMu.Lock()
	defer s.schemaMu.Unlock()

	info, err := s.index.Describe(ctx, s.collection)
	if err != nil {
		return goerr.Wrap(err, "failed to describe memory collection", goerr.V("collection", s.collection))
	}

	if info != nil && info.Dimension == s.dimension {
		return nil
	}

	if info != nil {
		attrs := []any{
			"collection", s.collection,
			"expected", s.dimension,
			"actual", info.Dimension,
		}
		if info.Count != model.CountUnknown {
			attrs = append(attrs, "dropped_points", info.Count)
		}
		logging.From(ctx).Warn("memory collection dimension mismatch, rebuilding", attrs...)
		if err := s.index.Drop(ctx, s.collection); err != nil {
			return goerr.Wrap(err, "failed to drop memory collection", goerr.V("collection", s.collection))
		}
	}

	if err := s.index.Create(ctx, s.collection, s.dimension); err != nil {
		return goerr.Wrap(err, "failed to create memory collection",
			goerr.V("collection", s.collection),
			goerr.V("dimension", s.dimension))
	}

	logging.From(ctx).Info("memory collection created", "collection", s.collection, "dimension", s.dimension)
	return nil
}

// Commit embeds the response and stores it with the query under a fresh ID.
// Callers should run EnsureSchema first.
func (s *Store) Commit(ctx context.Context, query, response string) (*model.Memory, error) {
	if response == "" {
		return nil, goerr.New("response is empty", goerr.V("query", query))
	}

	vec, err := s.embedder.Embed(ctx, response)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed response")
	}
	if len(vec) != s.dimension {
		return nil, goerr.Wrap(vectorindex.ErrDimensionMismatch, "embedder returned unexpected dimension",
			goerr.V("expected", s.dimension),
			goerr.V("actual", len(vec)))
	}

	mem := &model.Memory{
		ID:        model.NewMemoryID(),
		Query:     query,
		Response:  response,
		Embedding: vec,
		CreatedAt: s.now(),
	}

	point := &model.VectorPoint{
		ID:     string(mem.ID),
		Vector: vec,
		Payload: map[string]string{
			payloadQuery:     query,
			payloadResponse:  response,
			payloadTimestamp: mem.CreatedAt.Format(time.RFC3339Nano),
		},
	}
	if err := s.index.Upsert(ctx, s.collection, point); err != nil {
		return nil, goerr.Wrap(err, "failed to upsert memory",
			goerr.V("collection", s.collection),
			goerr.V("id", mem.ID))
	}

	logging.From(ctx).Debug("memory committed", "id", mem.ID, "collection", s.collection)
	return mem, nil
}

// Retrieve returns up to k memories whose response is similar to query,
// ordered by descending score. It never fails: problems with the index or the
// embedder are reported in RecallResult.Message with an empty list.
func (s *Store) Retrieve(ctx context.Context, query string, k int) *model.RecallResult {
	if k <= 0 {
		k = DefaultLimit
	}
	result := &model.RecallResult{
		Query:    query,
		Memories: []*model.ScoredMemory{},
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		logging.From(ctx).Warn("failed to embed recall query", "error", err)
		result.Message = "memory lookup failed: " + err.Error()
		return result
	}

	hits, err := s.index.Search(ctx, s.collection, vec, k)
	if err != nil {
		if errors.Is(err, vectorindex.ErrCollectionNotFound) {
			result.Message = "no memories stored yet"
			return result
		}
		logging.From(ctx).Warn("failed to search memory", "error", err, "collection", s.collection)
		result.Message = "memory lookup failed: " + err.Error()
		return result
	}

	for _, hit := range hits {
		resp := hit.Payload[payloadResponse]
		if resp == "" {
			continue
		}

		mem := &model.ScoredMemory{
			ID:       model.MemoryID(hit.ID),
			Score:    hit.Score,
			Query:    hit.Payload[payloadQuery],
			Response: resp,
		}
		if ts, err := time.Parse(time.RFC3339Nano, hit.Payload[payloadTimestamp]); err == nil {
			mem.CreatedAt = ts
		}
		result.Memories = append(result.Memories, mem)
	}

	sort.SliceStable(result.Memories, func(i, j int) bool {
		return result.Memories[i].Score > result.Memories[j].Score
	})
	if len(result.Memories) > k {
		result.Memories = result.Memories[:k]
	}

	if len(result.Memories) == 0 {
		result.Message = "no relevant memories found"
	}
	return result
}
