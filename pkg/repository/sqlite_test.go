package repository_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/wandersync/pkg/model"
	"github.com/m-mizutani/wandersync/pkg/repository"
)

func newSQLite(t *testing.T) *repository.SQLite {
	t.Helper()
	repo, err := repository.NewSQLite(":memory:")
	gt.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLitePutAndGetHistory(t *testing.T) {
	repo := newSQLite(t)
	ctx := context.Background()

	history := &model.History{
		ID:        model.NewHistoryID(),
		UserID:    "user-1",
		Query:     "3 days in Dubai",
		Response:  "Day 1: Jumeirah beach",
		CreatedAt: time.Now(),
	}
	gt.NoError(t, repo.PutHistory(ctx, history))

	got, err := repo.GetHistory(ctx, history.ID)
	gt.NoError(t, err)
	gt.Equal(t, got.ID, history.ID)
	gt.Equal(t, got.UserID, "user-1")
	gt.Equal(t, got.Query, history.Query)
	gt.Equal(t, got.Response, history.Response)
	gt.True(t, got.CreatedAt.Equal(time.Unix(0, history.CreatedAt.UnixNano())))
}

func TestSQLiteGetHistoryNotFound(t *testing.T) {
	repo := newSQLite(t)

	_, err := repo.GetHistory(context.Background(), model.HistoryID("missing"))
	gt.Error(t, err)
	gt.True(t, errors.Is(err, repository.ErrNotFound))
}

func TestSQLiteListHistory(t *testing.T) {
	repo := newSQLite(t)
	ctx := context.Background()

	now := time.Now()
	for i := 0; i < 5; i++ {
		gt.NoError(t, repo.PutHistory(ctx, &model.History{
			ID:        model.NewHistoryID(),
			UserID:    "alice",
			Query:     "query",
			Response:  "response",
			CreatedAt: now.Add(time.Duration(i) * time.Minute),
		}))
	}
	gt.NoError(t, repo.PutHistory(ctx, &model.History{
		ID:        model.NewHistoryID(),
		UserID:    "bob",
		Query:     "other",
		Response:  "other",
		CreatedAt: now,
	}))

	t.Run("newest first and limited", func(t *testing.T) {
		histories, err := repo.ListHistory(ctx, "alice", 3)
		gt.NoError(t, err)
		gt.A(t, histories).Length(3)
		for i := 0; i < len(histories)-1; i++ {
			gt.True(t, histories[i].CreatedAt.After(histories[i+1].CreatedAt))
		}
		gt.True(t, histories[0].CreatedAt.Equal(time.Unix(0, now.Add(4*time.Minute).UnixNano())))
	})

	t.Run("only the given user", func(t *testing.T) {
		histories, err := repo.ListHistory(ctx, "bob", 10)
		gt.NoError(t, err)
		gt.A(t, histories).Length(1)
		gt.Equal(t, histories[0].UserID, "bob")
	})

	t.Run("unknown user", func(t *testing.T) {
		histories, err := repo.ListHistory(ctx, "carol", 10)
		gt.NoError(t, err)
		gt.A(t, histories).Length(0)
	})
}

func TestSQLiteDeleteHistory(t *testing.T) {
	repo := newSQLite(t)
	ctx := context.Background()

	history := &model.History{
		ID:        model.NewHistoryID(),
		UserID:    "user-1",
		Query:     "q",
		Response:  "r",
		CreatedAt: time.Now(),
	}
	gt.NoError(t, repo.PutHistory(ctx, history))
	gt.NoError(t, repo.DeleteHistory(ctx, history.ID))

	_, err := repo.GetHistory(ctx, history.ID)
	gt.True(t, errors.Is(err, repository.ErrNotFound))

	err = repo.DeleteHistory(ctx, history.ID)
	gt.True(t, errors.Is(err, repository.ErrNotFound))
}

func TestSQLiteReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "history.db")
	ctx := context.Background()

	repo, err := repository.NewSQLite(path)
	gt.NoError(t, err)
	history := &model.History{
		ID:        model.NewHistoryID(),
		UserID:    "user-1",
		Query:     "q",
		Response:  "r",
		CreatedAt: time.Now(),
	}
	gt.NoError(t, repo.PutHistory(ctx, history))
	gt.NoError(t, repo.Close())

	// migrations must be skipped on the second open
	repo, err = repository.NewSQLite(path)
	gt.NoError(t, err)
	defer repo.Close()

	got, err := repo.GetHistory(ctx, history.ID)
	gt.NoError(t, err)
	gt.Equal(t, got.Query, "q")
}
