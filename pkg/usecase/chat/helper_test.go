package chat_test

import (
	"context"
	"errors"
	"sync"

	"github.com/m-mizutani/wandersync/pkg/interfaces"
	"github.com/m-mizutani/wandersync/pkg/model"
)

type step func(input *interfaces.ReasonInput) (*model.Message, error)

// scriptedReasoner replays steps in order and repeats the last one when
// repeat is set
type scriptedReasoner struct {
	mu     sync.Mutex
	steps  []step
	repeat bool
	inputs []*interfaces.ReasonInput
	// snapshots of the conversation as seen by each call
	seen [][]*model.Message
}

func newScriptedReasoner(steps ...step) *scriptedReasoner {
	return &scriptedReasoner{steps: steps}
}

func (r *scriptedReasoner) Reason(ctx context.Context, input *interfaces.ReasonInput) (*model.Message, error) {
	r.mu.Lock()
	i := len(r.inputs)
	r.inputs = append(r.inputs, input)
	r.seen = append(r.seen, input.Conversation.Messages())
	r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if i >= len(r.steps) {
		if !r.repeat || len(r.steps) == 0 {
			return nil, errors.New("script exhausted")
		}
		i = len(r.steps) - 1
	}
	return r.steps[i](input)
}

func (r *scriptedReasoner) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inputs)
}

func (r *scriptedReasoner) Forced(i int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inputs[i].ForceAnswer
}

func requestStep(reqs ...*model.CapabilityRequest) step {
	return func(input *interfaces.ReasonInput) (*model.Message, error) {
		// fresh ids per call so that repeated steps never share a correlation id
		out := make([]*model.CapabilityRequest, len(reqs))
		for i, req := range reqs {
			out[i] = &model.CapabilityRequest{ID: model.NewCorrelationID(), Name: req.Name, Args: req.Args}
		}
		return model.NewAssistantMessage("", out...), nil
	}
}

func answerStep(text string) step {
	return func(input *interfaces.ReasonInput) (*model.Message, error) {
		return model.NewAssistantMessage(text), nil
	}
}

func req(name string, args map[string]any) *model.CapabilityRequest {
	return &model.CapabilityRequest{Name: name, Args: args}
}

func resultsOf(msgs []*model.Message) []*model.CapabilityResult {
	var out []*model.CapabilityResult
	for _, m := range msgs {
		if m.Role == model.RoleCapabilityResult {
			out = append(out, m.Result)
		}
	}
	return out
}
