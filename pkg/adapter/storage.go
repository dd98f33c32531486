package adapter

import (
	"context"
	"encoding/json"
	"io"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
)

// Storage keeps conversation transcripts as JSON objects
type Storage interface {
	// Put returns a writer to save an object
	Put(ctx context.Context, key string) (io.WriteCloser, error)
	// Get loads an object
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// storageClient implements Storage interface using Cloud Storage
type storageClient struct {
	bucketName string
	prefix     string
	client     *storage.Client
}

// NewStorage creates a new Cloud Storage client. prefix is prepended to every key.
func NewStorage(ctx context.Context, bucketName, prefix string) (Storage, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage client")
	}

	return &storageClient{
		bucketName: bucketName,
		prefix:     prefix,
		client:     client,
	}, nil
}

func (s *storageClient) Put(ctx context.Context, key string) (io.WriteCloser, error) {
	obj := s.client.Bucket(s.bucketName).Object(s.prefix + key)
	writer := obj.NewWriter(ctx)
	writer.ContentType = "application/json"
	return writer, nil
}

func (s *storageClient) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj := s.client.Bucket(s.bucketName).Object(s.prefix + key)
	reader, err := obj.NewReader(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read from storage",
			goerr.V("bucket", s.bucketName),
			goerr.V("key", s.prefix+key))
	}

	return reader, nil
}

// PutJSON encodes v into the object at key
func PutJSON(ctx context.Context, s Storage, key string, v any) error {
	w, err := s.Put(ctx, key)
	if err != nil {
		return goerr.Wrap(err, "failed to open object", goerr.V("key", key))
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		w.Close()
		return goerr.Wrap(err, "failed to encode object", goerr.V("key", key))
	}

	if err := w.Close(); err != nil {
		return goerr.Wrap(err, "failed to close object writer", goerr.V("key", key))
	}
	return nil
}
