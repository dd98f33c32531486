package vectorindex

import (
	"context"
	"strconv"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/wandersync/pkg/model"
	chromem "github.com/philippgille/chromem-go"
)

// schemaCollection keeps one document per collection whose metadata holds
// its dimension and distance, so that they survive a persistent DB reload.
const schemaCollection = "__schema"

// Chromem is an embedded VectorIndex backed by chromem-go
type Chromem struct {
	db *chromem.DB
	mu sync.Mutex
}

// NewChromem creates an in-memory index
func NewChromem() *Chromem {
	return &Chromem{db: chromem.NewDB()}
}

// NewPersistentChromem creates an index persisted under dir
func NewPersistentChromem(dir string) (*Chromem, error) {
	db, err := chromem.NewPersistentDB(dir, true)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open chromem db", goerr.V("dir", dir))
	}
	return &Chromem{db: db}, nil
}

// noEmbedding is set on every collection. Vectors are always computed by the
// memory store, so chromem must never embed text on its own.
func noEmbedding(_ context.Context, _ string) ([]float32, error) {
	return nil, goerr.New("chromem collection does not embed text")
}

func (x *Chromem) schema() (*chromem.Collection, error) {
	if col := x.db.GetCollection(schemaCollection, noEmbedding); col != nil {
		return col, nil
	}
	col, err := x.db.CreateCollection(schemaCollection, nil, noEmbedding)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create schema collection")
	}
	return col, nil
}

func (x *Chromem) describe(ctx context.Context, name string) (*model.CollectionInfo, *chromem.Collection, error) {
	col := x.db.GetCollection(name, noEmbedding)
	if col == nil {
		return nil, nil, nil
	}

	schema, err := x.schema()
	if err != nil {
		return nil, nil, err
	}
	doc, err := schema.GetByID(ctx, name)
	if err != nil {
		// no schema record: report dimension 0 so that the memory store recreates it
		return &model.CollectionInfo{Name: name, Distance: model.DistanceCosine, Count: col.Count()}, col, nil
	}

	dim, err := strconv.Atoi(doc.Metadata["dimension"])
	if err != nil {
		return nil, nil, goerr.Wrap(err, "invalid dimension in schema", goerr.V("collection", name))
	}

	return &model.CollectionInfo{
		Name:      name,
		Dimension: dim,
		Distance:  doc.Metadata["distance"],
		Count:     col.Count(),
	}, col, nil
}

func (x *Chromem) Describe(ctx context.Context, collection string) (*model.CollectionInfo, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	info, _, err := x.describe(ctx, collection)
	return info, err
}

func (x *Chromem) Create(ctx context.Context, collection string, dimension int) error {
	if dimension <= 0 {
		return goerr.New("dimension must be positive", goerr.V("dimension", dimension))
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	// CreateCollection silently replaces an existing collection
	if col := x.db.GetCollection(collection, noEmbedding); col != nil {
		return goerr.New("collection already exists", goerr.V("collection", collection))
	}

	if _, err := x.db.CreateCollection(collection, nil, noEmbedding); err != nil {
		return goerr.Wrap(err, "failed to create collection", goerr.V("collection", collection))
	}

	schema, err := x.schema()
	if err != nil {
		return err
	}
	if err := schema.AddDocument(ctx, chromem.Document{
		ID:        collection,
		Embedding: []float32{1},
		Metadata: map[string]string{
			"dimension": strconv.Itoa(dimension),
			"distance":  model.DistanceCosine,
		},
	}); err != nil {
		return goerr.Wrap(err, "failed to record collection schema", goerr.V("collection", collection))
	}

	return nil
}

func (x *Chromem) Drop(ctx context.Context, collection string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if err := x.db.DeleteCollection(collection); err != nil {
		return goerr.Wrap(err, "failed to delete collection", goerr.V("collection", collection))
	}

	if schema := x.db.GetCollection(schemaCollection, noEmbedding); schema != nil {
		if err := schema.Delete(ctx, nil, nil, collection); err != nil {
			return goerr.Wrap(err, "failed to delete collection schema", goerr.V("collection", collection))
		}
	}
	return nil
}

func (x *Chromem) Upsert(ctx context.Context, collection string, point *model.VectorPoint) error {
	x.mu.Lock()
	info, col, err := x.describe(ctx, collection)
	x.mu.Unlock()
	if err != nil {
		return err
	}
	if info == nil {
		return goerr.Wrap(ErrCollectionNotFound, "cannot upsert", goerr.V("collection", collection))
	}
	if info.Dimension > 0 && len(point.Vector) != info.Dimension {
		return goerr.Wrap(ErrDimensionMismatch, "cannot upsert",
			goerr.V("collection", collection),
			goerr.V("expected", info.Dimension),
			goerr.V("actual", len(point.Vector)))
	}

	// AddDocument replaces a document with the same ID
	if err := col.AddDocument(ctx, chromem.Document{
		ID:        point.ID,
		Embedding: point.Vector,
		Metadata:  point.Payload,
	}); err != nil {
		return goerr.Wrap(err, "failed to add document", goerr.V("collection", collection), goerr.V("id", point.ID))
	}
	return nil
}

func (x *Chromem) Search(ctx context.Context, collection string, vector []float32, limit int) ([]*model.VectorHit, error) {
	x.mu.Lock()
	info, col, err := x.describe(ctx, collection)
	x.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, goerr.Wrap(ErrCollectionNotFound, "cannot search", goerr.V("collection", collection))
	}
	if info.Dimension > 0 && len(vector) != info.Dimension {
		return nil, goerr.Wrap(ErrDimensionMismatch, "cannot search",
			goerr.V("collection", collection),
			goerr.V("expected", info.Dimension),
			goerr.V("actual", len(vector)))
	}

	// chromem rejects nResults larger than the number of documents
	n := min(limit, col.Count())
	if n <= 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query collection", goerr.V("collection", collection))
	}

	hits := make([]*model.VectorHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, &model.VectorHit{
			ID:      r.ID,
			Score:   float64(r.Similarity),
			Payload: r.Metadata,
		})
	}
	return hits, nil
}
