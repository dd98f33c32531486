package vectorindex

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/wandersync/pkg/model"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultSchemaCollection = "vector_collections"
	vectorField             = "vector"
	distanceField           = "distance"
)

// Firestore is a VectorIndex on Cloud Firestore vector search. A vector index
// on the "vector" field of each collection must be created in advance, e.g.
//
//	gcloud firestore indexes composite create --collection-group=<name> \
//	  --query-scope=COLLECTION --field-config=field-path=vector,vector-config='{"dimension":"384","flat":"{}"}'
type Firestore struct {
	client *firestore.Client
	schema string
}

type firestoreSchema struct {
	Dimension int       `firestore:"dimension"`
	Distance  string    `firestore:"distance"`
	CreatedAt time.Time `firestore:"created_at"`
}

type firestorePoint struct {
	Vector    firestore.Vector32 `firestore:"vector"`
	Payload   map[string]string  `firestore:"payload"`
	UpdatedAt time.Time          `firestore:"updated_at"`
}

// NewFirestore creates a vector index on an existing Firestore client
func NewFirestore(client *firestore.Client) *Firestore {
	return &Firestore{
		client: client,
		schema: defaultSchemaCollection,
	}
}

func (x *Firestore) getSchema(ctx context.Context, collection string) (*firestoreSchema, error) {
	doc, err := x.client.Collection(x.schema).Doc(collection).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, goerr.Wrap(err, "failed to get collection schema", goerr.V("collection", collection))
	}

	var schema firestoreSchema
	if err := doc.DataTo(&schema); err != nil {
		return nil, goerr.Wrap(err, "failed to decode collection schema", goerr.V("collection", collection))
	}
	return &schema, nil
}

// Describe reads only the schema document. Counting points needs an
// aggregation query billed per index entry, so Count is reported as unknown.
func (x *Firestore) Describe(ctx context.Context, collection string) (*model.CollectionInfo, error) {
	schema, err := x.getSchema(ctx, collection)
	if err != nil {
		return nil, err
	}
	if schema == nil {
		return nil, nil
	}

	return &model.CollectionInfo{
		Name:      collection,
		Dimension: schema.Dimension,
		Distance:  schema.Distance,
		Count:     model.CountUnknown,
	}, nil
}

func (x *Firestore) Create(ctx context.Context, collection string, dimension int) error {
	if dimension <= 0 {
		return goerr.New("dimension must be positive", goerr.V("dimension", dimension))
	}

	schema := &firestoreSchema{
		Dimension: dimension,
		Distance:  model.DistanceCosine,
		CreatedAt: time.Now(),
	}
	if _, err := x.client.Collection(x.schema).Doc(collection).Create(ctx, schema); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return goerr.New("collection already exists", goerr.V("collection", collection))
		}
		return goerr.Wrap(err, "failed to create collection schema", goerr.V("collection", collection))
	}
	return nil
}

func (x *Firestore) Drop(ctx context.Context, collection string) error {
	bw := x.client.BulkWriter(ctx)

	iter := x.client.Collection(collection).Select().Documents(ctx)
	defer iter.Stop()
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			bw.End()
			return goerr.Wrap(err, "failed to iterate points", goerr.V("collection", collection))
		}
		if _, err := bw.Delete(doc.Ref); err != nil {
			bw.End()
			return goerr.Wrap(err, "failed to enqueue delete", goerr.V("collection", collection), goerr.V("id", doc.Ref.ID))
		}
	}
	bw.End()

	if _, err := x.client.Collection(x.schema).Doc(collection).Delete(ctx); err != nil {
		return goerr.Wrap(err, "failed to delete collection schema", goerr.V("collection", collection))
	}
	return nil
}

func (x *Firestore) Upsert(ctx context.Context, collection string, point *model.VectorPoint) error {
	schema, err := x.getSchema(ctx, collection)
	if err != nil {
		return err
	}
	if schema == nil {
		return goerr.Wrap(ErrCollectionNotFound, "cannot upsert", goerr.V("collection", collection))
	}
	if len(point.Vector) != schema.Dimension {
		return goerr.Wrap(ErrDimensionMismatch, "cannot upsert",
			goerr.V("collection", collection),
			goerr.V("expected", schema.Dimension),
			goerr.V("actual", len(point.Vector)))
	}

	doc := &firestorePoint{
		Vector:    firestore.Vector32(point.Vector),
		Payload:   point.Payload,
		UpdatedAt: time.Now(),
	}
	if _, err := x.client.Collection(collection).Doc(point.ID).Set(ctx, doc); err != nil {
		return goerr.Wrap(err, "failed to set point", goerr.V("collection", collection), goerr.V("id", point.ID))
	}
	return nil
}

func (x *Firestore) Search(ctx context.Context, collection string, vector []float32, limit int) ([]*model.VectorHit, error) {
	schema, err := x.getSchema(ctx, collection)
	if err != nil {
		return nil, err
	}
	if schema == nil {
		return nil, goerr.Wrap(ErrCollectionNotFound, "cannot search", goerr.V("collection", collection))
	}
	if len(vector) != schema.Dimension {
		return nil, goerr.Wrap(ErrDimensionMismatch, "cannot search",
			goerr.V("collection", collection),
			goerr.V("expected", schema.Dimension),
			goerr.V("actual", len(vector)))
	}
	if limit <= 0 {
		return nil, nil
	}

	iter := x.client.Collection(collection).
		FindNearest(vectorField, firestore.Vector32(vector), limit, firestore.DistanceMeasureCosine,
			&firestore.FindNearestOptions{DistanceResultField: distanceField}).
		Documents(ctx)
	defer iter.Stop()

	var hits []*model.VectorHit
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to search points", goerr.V("collection", collection))
		}

		var point firestorePoint
		if err := doc.DataTo(&point); err != nil {
			return nil, goerr.Wrap(err, "failed to decode point", goerr.V("id", doc.Ref.ID))
		}

		// cosine distance is 1 - similarity
		distance, _ := doc.Data()[distanceField].(float64)
		hits = append(hits, &model.VectorHit{
			ID:      doc.Ref.ID,
			Score:   1 - distance,
			Payload: point.Payload,
		})
	}

	return hits, nil
}
