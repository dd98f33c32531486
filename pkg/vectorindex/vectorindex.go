package vectorindex

import (
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/wandersync/pkg/interfaces"
)

var (
	// ErrCollectionNotFound is returned when writing to or searching a collection that does not exist
	ErrCollectionNotFound = goerr.New("collection not found")

	// ErrDimensionMismatch is returned when a vector length differs from the collection dimension
	ErrDimensionMismatch = goerr.New("vector dimension mismatch")
)

var (
	_ interfaces.VectorIndex = (*Chromem)(nil)
	_ interfaces.VectorIndex = (*Firestore)(nil)
)
