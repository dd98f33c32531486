package repository

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/wandersync/pkg/model"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const historyCollection = "histories"

// Firestore implements HistoryRepository using Cloud Firestore
type Firestore struct {
	client     *firestore.Client
	collection string
}

// FirestoreOption configures Firestore
type FirestoreOption func(*Firestore)

// WithHistoryCollection overrides the collection name of history records
func WithHistoryCollection(name string) FirestoreOption {
	return func(r *Firestore) {
		r.collection = name
	}
}

// NewFirestore creates a new Firestore repository
func NewFirestore(ctx context.Context, projectID, databaseID string, opts ...FirestoreOption) (*Firestore, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project", projectID),
			goerr.V("database", databaseID))
	}

	return NewFirestoreWithClient(client, opts...), nil
}

// NewFirestoreWithClient creates a repository on an existing client so that it can be shared
func NewFirestoreWithClient(client *firestore.Client, opts ...FirestoreOption) *Firestore {
	r := &Firestore{
		client:     client,
		collection: historyCollection,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Client returns the underlying Firestore client
func (r *Firestore) Client() *firestore.Client {
	return r.client
}

// Close closes the underlying client
func (r *Firestore) Close() error {
	return r.client.Close()
}

func (r *Firestore) PutHistory(ctx context.Context, history *model.History) error {
	if history.ID == "" {
		return goerr.New("history ID is empty")
	}

	if _, err := r.client.Collection(r.collection).Doc(string(history.ID)).Set(ctx, history); err != nil {
		return goerr.Wrap(err, "failed to put history", goerr.V("id", history.ID))
	}
	return nil
}

func (r *Firestore) GetHistory(ctx context.Context, id model.HistoryID) (*model.History, error) {
	doc, err := r.client.Collection(r.collection).Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "no such history", goerr.V("id", id))
		}
		return nil, goerr.Wrap(err, "failed to get history", goerr.V("id", id))
	}

	var history model.History
	if err := doc.DataTo(&history); err != nil {
		return nil, goerr.Wrap(err, "failed to decode history", goerr.V("id", id))
	}
	return &history, nil
}

func (r *Firestore) ListHistory(ctx context.Context, userID string, limit int) ([]*model.History, error) {
	iter := r.client.Collection(r.collection).
		Where("user_id", "==", userID).
		OrderBy("created_at", firestore.Desc).
		Limit(normalizeLimit(limit)).
		Documents(ctx)
	defer iter.Stop()

	var histories []*model.History
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate histories", goerr.V("user_id", userID))
		}

		var history model.History
		if err := doc.DataTo(&history); err != nil {
			return nil, goerr.Wrap(err, "failed to decode history", goerr.V("doc_id", doc.Ref.ID))
		}
		histories = append(histories, &history)
	}

	return histories, nil
}

func (r *Firestore) DeleteHistory(ctx context.Context, id model.HistoryID) error {
	_, err := r.client.Collection(r.collection).Doc(string(id)).Delete(ctx, firestore.Exists)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return goerr.Wrap(ErrNotFound, "no such history", goerr.V("id", id))
		}
		return goerr.Wrap(err, "failed to delete history", goerr.V("id", id))
	}
	return nil
}
