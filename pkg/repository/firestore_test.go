package repository_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/wandersync/pkg/model"
	"github.com/m-mizutani/wandersync/pkg/repository"
)

func setupFirestore(t *testing.T) *repository.Firestore {
	projectID := os.Getenv("TEST_FIRESTORE_PROJECT_ID")
	databaseID := os.Getenv("TEST_FIRESTORE_DATABASE_ID")

	if projectID == "" || databaseID == "" {
		t.Skip("TEST_FIRESTORE_PROJECT_ID and TEST_FIRESTORE_DATABASE_ID must be set to run Firestore tests")
	}

	repo, err := repository.NewFirestore(context.Background(), projectID, databaseID)
	gt.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	return repo
}

func TestFirestoreHistoryLifecycle(t *testing.T) {
	repo := setupFirestore(t)
	ctx := context.Background()

	userID := "test-" + uuid.New().String()
	now := time.Now()
	histories := []*model.History{
		{ID: model.NewHistoryID(), UserID: userID, Query: "Q1", Response: "R1", CreatedAt: now.Add(-2 * time.Hour)},
		{ID: model.NewHistoryID(), UserID: userID, Query: "Q2", Response: "R2", CreatedAt: now.Add(-1 * time.Hour)},
		{ID: model.NewHistoryID(), UserID: userID, Query: "Q3", Response: "R3", CreatedAt: now},
	}
	for _, h := range histories {
		gt.NoError(t, repo.PutHistory(ctx, h))
	}

	got, err := repo.GetHistory(ctx, histories[0].ID)
	gt.NoError(t, err)
	gt.Equal(t, got.Query, "Q1")

	listed, err := repo.ListHistory(ctx, userID, 2)
	gt.NoError(t, err)
	gt.A(t, listed).Length(2)
	gt.Equal(t, listed[0].Query, "Q3")
	gt.Equal(t, listed[1].Query, "Q2")

	for _, h := range histories {
		gt.NoError(t, repo.DeleteHistory(ctx, h.ID))
	}

	_, err = repo.GetHistory(ctx, histories[0].ID)
	gt.True(t, errors.Is(err, repository.ErrNotFound))
}

func TestFirestoreDeleteHistoryNotFound(t *testing.T) {
	repo := setupFirestore(t)

	err := repo.DeleteHistory(context.Background(), model.HistoryID("non-existent-history"))
	gt.True(t, errors.Is(err, repository.ErrNotFound))
}
