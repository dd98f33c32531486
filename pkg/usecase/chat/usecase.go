package chat

import (
	"context"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/wandersync/pkg/adapter"
	"github.com/m-mizutani/wandersync/pkg/interfaces"
	"github.com/m-mizutani/wandersync/pkg/memory"
	"github.com/m-mizutani/wandersync/pkg/model"
	"github.com/m-mizutani/wandersync/pkg/tool"
	"github.com/m-mizutani/wandersync/pkg/utils/logging"
)

var (
	// ErrEmptyQuery is returned for a blank question
	ErrEmptyQuery = goerr.New("query is empty")

	// ErrHistoryDisabled is returned when no history repository is configured
	ErrHistoryDisabled = goerr.New("history is not configured")

	// ErrTranscriptionDisabled is returned when no transcriber is configured
	ErrTranscriptionDisabled = goerr.New("audio input is not configured")
)

// UseCase answers travel questions and manages their records
type UseCase struct {
	registry     *tool.Registry
	memory       *memory.Store
	orchestrator *Orchestrator
	finalizer    *Finalizer

	reasoner    interfaces.Reasoner
	history     interfaces.HistoryRepository
	storage     adapter.Storage
	transcriber interfaces.Transcriber
	maxCycles   int
	now         func() time.Time
}

// Option configures UseCase
type Option func(*UseCase)

// WithHistory stores raw chat logs in repo
func WithHistory(repo interfaces.HistoryRepository) Option {
	return func(u *UseCase) {
		u.history = repo
	}
}

// WithStorage saves a transcript of every turn
func WithStorage(s adapter.Storage) Option {
	return func(u *UseCase) {
		u.storage = s
	}
}

// WithTranscriber enables audio questions
func WithTranscriber(t interfaces.Transcriber) Option {
	return func(u *UseCase) {
		u.transcriber = t
	}
}

// WithMaxCycles sets the capability cycle limit per turn
func WithMaxCycles(n int) Option {
	return func(u *UseCase) {
		u.maxCycles = n
	}
}

// WithClock replaces time.Now, mainly for tests
func WithClock(now func() time.Time) Option {
	return func(u *UseCase) {
		u.now = now
	}
}

// New creates the chat use case. The registry should already be initialized.
func New(reasoner interfaces.Reasoner, registry *tool.Registry, store *memory.Store, opts ...Option) *UseCase {
	u := &UseCase{
		reasoner:  reasoner,
		registry:  registry,
		memory:    store,
		maxCycles: DefaultMaxCycles,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(u)
	}

	u.orchestrator = NewOrchestrator(reasoner, registry, u.maxCycles)
	u.finalizer = NewFinalizer(store, u.history, u.storage)
	u.finalizer.now = u.now
	return u
}

// AskInput is one question
type AskInput struct {
	UserID string
	Query  string
}

// AskOutput is the answer of one turn
type AskOutput struct {
	Query     string
	Response  string
	HistoryID model.HistoryID
	MemoryID  model.MemoryID
	Cycles    int
	Exhausted bool
}

// Ask runs one turn from a fresh conversation. When only the memory commit
// fails, the answer is returned together with an ErrMemoryCommit error.
func (u *UseCase) Ask(ctx context.Context, input AskInput) (*AskOutput, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, goerr.Wrap(ErrEmptyQuery, "invalid question", goerr.V("user_id", input.UserID))
	}

	prompt, err := buildSystemPrompt(u.now(), u.registry.Specs(), u.registry.Prompts(ctx))
	if err != nil {
		return nil, err
	}

	conv := model.NewConversation(prompt, query)
	ctx = logging.With(ctx, logging.From(ctx).With("turn_id", conv.ID, "user_id", input.UserID))
	logging.From(ctx).Info("turn started", "query", query)

	turn, err := u.orchestrator.Run(ctx, conv)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to process turn", goerr.V("turn_id", conv.ID))
	}

	out := &AskOutput{
		Query:     query,
		Response:  turn.Final.Text,
		Cycles:    turn.Cycles,
		Exhausted: turn.Exhausted,
	}

	stored, err := u.finalizer.Finalize(ctx, &FinalizeInput{
		UserID:       input.UserID,
		Query:        query,
		Conversation: conv,
		Final:        turn.Final,
	})
	if stored != nil {
		out.HistoryID = stored.HistoryID
		if stored.Memory != nil {
			out.MemoryID = stored.Memory.ID
		}
	}
	if err != nil {
		return out, err
	}
	return out, nil
}

// AskAudio transcribes recorded audio and answers it as a question
func (u *UseCase) AskAudio(ctx context.Context, userID string, audio []byte, mimeType string) (*AskOutput, error) {
	if u.transcriber == nil {
		return nil, ErrTranscriptionDisabled
	}
	if len(audio) == 0 {
		return nil, goerr.New("audio is empty")
	}

	query, err := u.transcriber.Transcribe(ctx, audio, mimeType)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to transcribe audio", goerr.V("mime_type", mimeType))
	}
	logging.From(ctx).Debug("audio transcribed", "query", query)

	return u.Ask(ctx, AskInput{UserID: userID, Query: query})
}

// SearchMemory looks up past answers similar to query
func (u *UseCase) SearchMemory(ctx context.Context, query string, k int) (*model.RecallResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	return u.memory.Retrieve(ctx, query, k), nil
}

// ListHistory returns the latest records of a user, newest first
func (u *UseCase) ListHistory(ctx context.Context, userID string, limit int) ([]*model.History, error) {
	if u.history == nil {
		return nil, ErrHistoryDisabled
	}
	histories, err := u.history.ListHistory(ctx, userID, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list history", goerr.V("user_id", userID))
	}
	if histories == nil {
		histories = []*model.History{}
	}
	return histories, nil
}

// DeleteHistory removes one record
func (u *UseCase) DeleteHistory(ctx context.Context, id model.HistoryID) error {
	if u.history == nil {
		return ErrHistoryDisabled
	}
	if err := u.history.DeleteHistory(ctx, id); err != nil {
		return goerr.Wrap(err, "failed to delete history", goerr.V("id", id))
	}
	return nil
}
