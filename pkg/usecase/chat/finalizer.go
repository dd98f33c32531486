package chat

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/wandersync/pkg/adapter"
	"github.com/m-mizutani/wandersync/pkg/interfaces"
	"github.com/m-mizutani/wandersync/pkg/memory"
	"github.com/m-mizutani/wandersync/pkg/model"
	"github.com/m-mizutani/wandersync/pkg/utils/logging"
)

// ErrMemoryCommit means the turn was answered but the answer could not be
// stored for later recall
var ErrMemoryCommit = goerr.New("memory commit failed")

// Finalizer persists a completed turn: raw history first, then semantic memory
type Finalizer struct {
	memory  *memory.Store
	history interfaces.HistoryRepository
	storage adapter.Storage
	now     func() time.Time
}

// NewFinalizer creates a finalizer. history and storage may be nil.
func NewFinalizer(store *memory.Store, history interfaces.HistoryRepository, storage adapter.Storage) *Finalizer {
	return &Finalizer{
		memory:  store,
		history: history,
		storage: storage,
		now:     time.Now,
	}
}

// FinalizeInput is a completed turn
type FinalizeInput struct {
	UserID       string
	Query        string
	Conversation *model.Conversation
	Final        *model.Message
}

// FinalizeOutput identifies what was stored
type FinalizeOutput struct {
	HistoryID model.HistoryID
	Memory    *model.Memory
}

// Finalize stores the turn. History and transcript failures are logged and
// dropped. A memory failure returns ErrMemoryCommit together with the output,
// and the history record stays in place.
func (f *Finalizer) Finalize(ctx context.Context, input *FinalizeInput) (*FinalizeOutput, error) {
	if input.Final == nil || input.Final.Text == "" {
		return nil, goerr.New("final message is empty", goerr.V("query", input.Query))
	}

	logger := logging.From(ctx)
	out := &FinalizeOutput{HistoryID: model.NewHistoryID()}

	if f.history != nil {
		history := &model.History{
			ID:        out.HistoryID,
			UserID:    input.UserID,
			Query:     input.Query,
			Response:  input.Final.Text,
			CreatedAt: f.now(),
		}
		if err := f.history.PutHistory(ctx, history); err != nil {
			logger.Error("failed to save history", "error", err, "history_id", out.HistoryID)
		}
	}

	if f.storage != nil && input.Conversation != nil {
		key := "transcripts/" + string(out.HistoryID) + ".json"
		if err := adapter.PutJSON(ctx, f.storage, key, input.Conversation.Transcript()); err != nil {
			logger.Error("failed to save transcript", "error", err, "key", key)
		}
	}

	if err := f.memory.EnsureSchema(ctx); err != nil {
		logger.Error("failed to prepare memory collection", "error", err)
		return out, goerr.Wrap(ErrMemoryCommit, "failed to finalize turn",
			goerr.V("history_id", out.HistoryID),
			goerr.V("cause", err.Error()))
	}

	mem, err := f.memory.Commit(ctx, input.Query, input.Final.Text)
	if err != nil {
		logger.Error("failed to commit memory", "error", err)
		return out, goerr.Wrap(ErrMemoryCommit, "failed to finalize turn",
			goerr.V("history_id", out.HistoryID),
			goerr.V("cause", err.Error()))
	}
	out.Memory = mem

	logger.Info("turn finalized", "history_id", out.HistoryID, "memory_id", mem.ID)
	return out, nil
}
