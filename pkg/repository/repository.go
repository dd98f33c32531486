package repository

import (
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/wandersync/pkg/interfaces"
)

var (
	// ErrNotFound is returned when a history record does not exist
	ErrNotFound = goerr.New("history not found")
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

var (
	_ interfaces.HistoryRepository = (*Firestore)(nil)
	_ interfaces.HistoryRepository = (*SQLite)(nil)
)

// normalizeLimit applies the default and the upper bound of list operations
func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
