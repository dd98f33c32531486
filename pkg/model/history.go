package model

import (
	"time"

	"github.com/google/uuid"
)

type HistoryID string

// NewHistoryID generates a new unique HistoryID
func NewHistoryID() HistoryID {
	return HistoryID(uuid.New().String())
}

// History is the raw chat log record of one finalized turn
type History struct {
	ID        HistoryID `json:"id" firestore:"id"`
	UserID    string    `json:"user_id" firestore:"user_id"`
	Query     string    `json:"query" firestore:"query"`
	Response  string    `json:"response" firestore:"response"`
	CreatedAt time.Time `json:"timestamp" firestore:"created_at"`
}
