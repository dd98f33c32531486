package chat

import (
	"context"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/wandersync/pkg/interfaces"
	"github.com/m-mizutani/wandersync/pkg/model"
	"github.com/m-mizutani/wandersync/pkg/utils/logging"
)

// DefaultMaxCycles bounds REASONING/EXECUTING_CAPABILITIES round trips per turn
const DefaultMaxCycles = 8

// State is the orchestrator phase
type State string

const (
	StateReasoning State = "REASONING"
	StateExecuting State = "EXECUTING_CAPABILITIES"
)

const (
	budgetExhaustedError = "capability budget exhausted"
	fallbackAnswer       = "I'm sorry, I couldn't finish your travel plan this time. Please try again with a more specific request, for example a city and the number of days."
)

// CapabilityInvoker resolves capability requests. *tool.Registry implements it.
type CapabilityInvoker interface {
	Specs() []*model.CapabilitySpec
	InvokeBatch(ctx context.Context, reqs []*model.CapabilityRequest) []*model.CapabilityResult
}

// Orchestrator drives one turn: it alternates reasoning steps and capability
// batches until the assistant answers without requests. It never writes to
// memory or history.
type Orchestrator struct {
	reasoner     interfaces.Reasoner
	capabilities CapabilityInvoker
	maxCycles    int
}

// NewOrchestrator creates an orchestrator. maxCycles <= 0 means DefaultMaxCycles.
func NewOrchestrator(reasoner interfaces.Reasoner, capabilities CapabilityInvoker, maxCycles int) *Orchestrator {
	if maxCycles <= 0 {
		maxCycles = DefaultMaxCycles
	}
	return &Orchestrator{
		reasoner:     reasoner,
		capabilities: capabilities,
		maxCycles:    maxCycles,
	}
}

// TurnResult is the outcome of a completed turn
type TurnResult struct {
	Final        *model.Message
	Conversation *model.Conversation

	// Cycles is the number of capability batches executed
	Cycles int

	// Exhausted is true when the cycle limit forced the answer
	Exhausted bool
}

// Run processes the conversation until a terminal assistant message. Reasoner
// failures and cancellation abort the turn with an error.
func (o *Orchestrator) Run(ctx context.Context, conv *model.Conversation) (*TurnResult, error) {
	logger := logging.From(ctx)
	specs := o.capabilities.Specs()
	result := &TurnResult{Conversation: conv}

	for {
		if err := ctx.Err(); err != nil {
			return nil, goerr.Wrap(err, "turn cancelled", goerr.V("cycles", result.Cycles))
		}

		logger.Debug("orchestrator state", "state", StateReasoning, "cycle", result.Cycles)
		msg, err := o.reason(ctx, conv, specs, false)
		if err != nil {
			return nil, goerr.Wrap(err, "reasoning step failed", goerr.V("cycles", result.Cycles))
		}
		conv.Append(msg)

		if !msg.HasRequests() {
			result.Final = ensureAnswer(conv, msg)
			return result, nil
		}

		if result.Cycles >= o.maxCycles {
			logger.Warn("capability cycle limit reached, forcing an answer",
				"max_cycles", o.maxCycles,
				"pending", len(msg.Requests))
			return o.forceAnswer(ctx, conv, msg.Requests, specs, result)
		}

		result.Cycles++
		logger.Debug("orchestrator state", "state", StateExecuting, "cycle", result.Cycles, "requests", len(msg.Requests))
		started := time.Now()
		results := o.capabilities.InvokeBatch(ctx, msg.Requests)
		if err := ctx.Err(); err != nil {
			return nil, goerr.Wrap(err, "turn cancelled during capability execution", goerr.V("cycles", result.Cycles))
		}

		for _, r := range matchResults(msg.Requests, results) {
			conv.Append(model.NewResultMessage(r))
		}
		logger.Debug("capability batch done", "cycle", result.Cycles, "elapsed", time.Since(started))
	}
}

func (o *Orchestrator) reason(ctx context.Context, conv *model.Conversation, specs []*model.CapabilitySpec, force bool) (*model.Message, error) {
	msg, err := o.reasoner.Reason(ctx, &interfaces.ReasonInput{
		Conversation: conv,
		Capabilities: specs,
		ForceAnswer:  force,
	})
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, goerr.New("reasoner returned no message")
	}
	msg.Role = model.RoleAssistant
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	for _, req := range msg.Requests {
		if req.ID == "" {
			req.ID = model.NewCorrelationID()
		}
	}
	return msg, nil
}

// forceAnswer answers the pending requests with a budget error and asks once
// more for an answer without capabilities.
func (o *Orchestrator) forceAnswer(ctx context.Context, conv *model.Conversation, pending []*model.CapabilityRequest, specs []*model.CapabilitySpec, result *TurnResult) (*TurnResult, error) {
	result.Exhausted = true
	for _, req := range pending {
		conv.Append(model.NewResultMessage(model.NewCapabilityError(req, budgetExhaustedError)))
	}

	msg, err := o.reason(ctx, conv, specs, true)
	switch {
	case err != nil && ctx.Err() != nil:
		return nil, goerr.Wrap(err, "turn cancelled", goerr.V("cycles", result.Cycles))

	case err != nil:
		logging.From(ctx).Warn("forced reasoning step failed, synthesizing answer", "error", err)

	case msg.HasRequests():
		logging.From(ctx).Warn("reasoner kept requesting capabilities after the limit", "requests", len(msg.Requests))
		// requests are dropped so that the conversation never holds unanswered calls
		msg.Requests = nil
		conv.Append(msg)

	default:
		conv.Append(msg)
		result.Final = ensureAnswer(conv, msg)
		return result, nil
	}

	final := model.NewAssistantMessage(synthesizeAnswer(conv))
	conv.Append(final)
	result.Final = final
	return result, nil
}

// ensureAnswer returns msg when it has text and a synthesized message otherwise
func ensureAnswer(conv *model.Conversation, msg *model.Message) *model.Message {
	if strings.TrimSpace(msg.Text) != "" {
		return msg
	}
	final := model.NewAssistantMessage(synthesizeAnswer(conv))
	conv.Append(final)
	return final
}

// synthesizeAnswer builds a best-effort answer from the assistant text produced so far
func synthesizeAnswer(conv *model.Conversation) string {
	var parts []string
	for _, msg := range conv.Messages() {
		if msg.Role != model.RoleAssistant {
			continue
		}
		if text := strings.TrimSpace(msg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	if len(parts) == 0 {
		return fallbackAnswer
	}
	return strings.Join(parts, "\n\n")
}

// matchResults orders results by the correlation id of reqs. A request
// without a result gets an error result.
func matchResults(reqs []*model.CapabilityRequest, results []*model.CapabilityResult) []*model.CapabilityResult {
	byID := make(map[model.CorrelationID]*model.CapabilityResult, len(results))
	for _, r := range results {
		if r != nil {
			byID[r.ID] = r
		}
	}

	out := make([]*model.CapabilityResult, 0, len(reqs))
	for _, req := range reqs {
		if r, ok := byID[req.ID]; ok {
			out = append(out, r)
			continue
		}
		out = append(out, model.NewCapabilityError(req, "capability %s returned no result", req.Name))
	}
	return out
}
