package recall_test

import (
	"context"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/wandersync/pkg/memory"
	"github.com/m-mizutani/wandersync/pkg/memory/embedder"
	"github.com/m-mizutani/wandersync/pkg/model"
	"github.com/m-mizutani/wandersync/pkg/tool"
	"github.com/m-mizutani/wandersync/pkg/tool/recall"
	"github.com/m-mizutani/wandersync/pkg/vectorindex"
)

func TestRecallMemory(t *testing.T) {
	ctx := context.Background()
	store := memory.New(vectorindex.NewChromem(), embedder.NewHash(64))
	gt.NoError(t, store.EnsureSchema(ctx))
	_, err := store.Commit(ctx, "Plan a beach trip to Dubai", "Day 1: relax on Jumeirah Beach. Day 2: shopping at Dubai Mall.")
	gt.NoError(t, err)

	reg := tool.New([]tool.Tool{recall.New()})
	gt.NoError(t, reg.Init(ctx, &tool.Client{Memory: store}))
	gt.Equal(t, reg.EnabledTools(), []string{"recall_memory"})

	res := reg.Invoke(ctx, &model.CapabilityRequest{
		ID:   "r1",
		Name: "recall_memory",
		Args: map[string]any{"query": "Jumeirah Beach"},
	})
	gt.False(t, res.Failed())

	recalled := res.Payload.(*model.RecallResult)
	gt.A(t, recalled.Memories).Length(1)
	gt.Equal(t, recalled.Memories[0].Query, "Plan a beach trip to Dubai")
}

func TestRecallMemoryEmpty(t *testing.T) {
	ctx := context.Background()
	store := memory.New(vectorindex.NewChromem(), embedder.NewHash(64))

	x := recall.New()
	enabled, err := x.Init(ctx, &tool.Client{Memory: store})
	gt.NoError(t, err)
	gt.True(t, enabled)

	out, err := x.Execute(ctx, "recall_memory", map[string]any{"query": "anything"})
	gt.NoError(t, err)
	recalled := out.(*model.RecallResult)
	gt.A(t, recalled.Memories).Length(0)
	gt.NotEqual(t, recalled.Message, "")
}

func TestRecallDisabledWithoutMemory(t *testing.T) {
	enabled, err := recall.New().Init(context.Background(), &tool.Client{})
	gt.NoError(t, err)
	gt.False(t, enabled)
}
