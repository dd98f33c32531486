package chat_test

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/wandersync/pkg/interfaces"
	"github.com/m-mizutani/wandersync/pkg/model"
	"github.com/m-mizutani/wandersync/pkg/tool"
	"github.com/m-mizutani/wandersync/pkg/usecase/chat"
	"github.com/m-mizutani/wandersync/pkg/usecase/chat/testtools"
	"go.uber.org/goleak"
)

// verifyNoLeaks ignores the flush daemon that glog starts from init; glog is
// linked in through the ristretto result cache.
func verifyNoLeaks(t *testing.T) {
	goleak.VerifyNone(t, goleak.IgnoreAnyFunction("github.com/golang/glog.(*fileSink).flushDaemon"))
}

func newRegistry(t *testing.T, tools ...tool.Tool) *tool.Registry {
	reg := tool.New(tools)
	gt.NoError(t, reg.Init(context.Background(), &tool.Client{}))
	return reg
}

func TestOrchestratorDirectAnswer(t *testing.T) {
	defer verifyNoLeaks(t)

	r := newScriptedReasoner(answerStep("Rome is lovely in May."))
	o := chat.NewOrchestrator(r, newRegistry(t, testtools.NewTravelTool()), 0)

	conv := model.NewConversation("system", "When should I visit Rome?")
	result, err := o.Run(context.Background(), conv)
	gt.NoError(t, err)
	gt.Equal(t, result.Final.Text, "Rome is lovely in May.")
	gt.Equal(t, result.Cycles, 0)
	gt.False(t, result.Exhausted)
	gt.Equal(t, r.Calls(), 1)
	gt.Equal(t, conv.Len(), 3)
}

func TestOrchestratorTerminatesWhenReasonerNeverStops(t *testing.T) {
	defer verifyNoLeaks(t)

	travel := testtools.NewTravelTool()
	r := newScriptedReasoner(requestStep(req("get_weather", map[string]any{"city": "Dubai"})))
	r.repeat = true

	o := chat.NewOrchestrator(r, newRegistry(t, travel), 3)
	conv := model.NewConversation("system", "Weather in Dubai?")
	result, err := o.Run(context.Background(), conv)
	gt.NoError(t, err)

	gt.True(t, result.Exhausted)
	gt.Equal(t, result.Cycles, 3)
	gt.NotEqual(t, result.Final.Text, "")
	gt.False(t, result.Final.HasRequests())
	gt.A(t, travel.Calls("get_weather")).Length(3)

	// 3 executed cycles, the request past the limit, and one forced call
	gt.Equal(t, r.Calls(), 5)
	gt.False(t, r.Forced(3))
	gt.True(t, r.Forced(4))

	results := resultsOf(conv.Messages())
	gt.A(t, results).Length(4)
	gt.Equal(t, results[3].Error, "capability budget exhausted")

	// every request in the conversation has a matching result
	answered := map[model.CorrelationID]bool{}
	for _, res := range results {
		answered[res.ID] = true
	}
	for _, msg := range conv.Messages() {
		for _, rq := range msg.Requests {
			gt.True(t, answered[rq.ID])
		}
	}
}

func TestOrchestratorForcedAnswer(t *testing.T) {
	r := newScriptedReasoner(
		requestStep(req("get_weather", map[string]any{"city": "Rome"})),
		requestStep(req("get_weather", map[string]any{"city": "Rome"})),
		answerStep("Rome is partly cloudy at 24°C, pack a light jacket."),
	)
	o := chat.NewOrchestrator(r, newRegistry(t, testtools.NewTravelTool()), 1)

	result, err := o.Run(context.Background(), model.NewConversation("system", "Rome weather"))
	gt.NoError(t, err)
	gt.True(t, result.Exhausted)
	gt.Equal(t, result.Final.Text, "Rome is partly cloudy at 24°C, pack a light jacket.")
	gt.True(t, r.Forced(2))
}

func TestOrchestratorForcedFailureSynthesizesAnswer(t *testing.T) {
	r := newScriptedReasoner(
		func(input *interfaces.ReasonInput) (*model.Message, error) {
			return model.NewAssistantMessage("Let me check the weather first.",
				&model.CapabilityRequest{ID: "a", Name: "get_weather", Args: map[string]any{"city": "Dubai"}}), nil
		},
		requestStep(req("get_weather", map[string]any{"city": "Dubai"})),
		func(input *interfaces.ReasonInput) (*model.Message, error) {
			return nil, errors.New("model overloaded")
		},
	)
	o := chat.NewOrchestrator(r, newRegistry(t, testtools.NewTravelTool()), 1)

	result, err := o.Run(context.Background(), model.NewConversation("system", "Dubai"))
	gt.NoError(t, err)
	gt.True(t, result.Exhausted)
	gt.True(t, r.Forced(2))
	gt.Equal(t, result.Final.Text, "Let me check the weather first.")
}

func TestOrchestratorSynthesizesFromEarlierText(t *testing.T) {
	r := newScriptedReasoner(
		func(input *interfaces.ReasonInput) (*model.Message, error) {
			return model.NewAssistantMessage("Dubai is sunny and hot this week.",
				&model.CapabilityRequest{ID: model.NewCorrelationID(), Name: "get_weather", Args: map[string]any{"city": "Dubai"}}), nil
		},
	)
	r.repeat = true
	o := chat.NewOrchestrator(r, newRegistry(t, testtools.NewTravelTool()), 1)

	result, err := o.Run(context.Background(), model.NewConversation("system", "Dubai"))
	gt.NoError(t, err)
	gt.True(t, result.Exhausted)
	gt.S(t, result.Final.Text).Contains("Dubai is sunny and hot this week.")
	gt.False(t, result.Final.HasRequests())
}

func TestOrchestratorBatchIndependence(t *testing.T) {
	defer verifyNoLeaks(t)

	travel := testtools.NewTravelTool()
	broken := testtools.NewFailingTool("search_photos", "unsplash returned 503")

	r := newScriptedReasoner(
		requestStep(
			req("search_photos", map[string]any{"city": "Dubai"}),
			req("get_weather", map[string]any{"city": "Dubai"}),
		),
		answerStep("Dubai is sunny. Photos are unavailable right now."),
	)
	o := chat.NewOrchestrator(r, newRegistry(t, travel, broken), 0)

	result, err := o.Run(context.Background(), model.NewConversation("system", "Dubai"))
	gt.NoError(t, err)
	gt.Equal(t, result.Cycles, 1)

	// the second reasoning step sees both results, in request order
	gt.Equal(t, r.Calls(), 2)
	seen := r.seen[1]
	results := resultsOf(seen)
	gt.A(t, results).Length(2)

	requests := seen[len(seen)-3].Requests
	gt.A(t, requests).Length(2)
	gt.Equal(t, results[0].ID, requests[0].ID)
	gt.Equal(t, results[1].ID, requests[1].ID)

	gt.True(t, results[0].Failed())
	gt.Equal(t, results[0].Error, "unsplash returned 503")
	gt.False(t, results[1].Failed())
	gt.Equal(t, results[1].Payload.(string), "The weather in Dubai is Sunny +35°C.")
	gt.A(t, broken.Calls("search_photos")).Length(1)
}

func TestOrchestratorUnknownCapability(t *testing.T) {
	r := newScriptedReasoner(
		requestStep(req("book_flight", map[string]any{"to": "Dubai"})),
		answerStep("I can't book flights, but here is what I know."),
	)
	o := chat.NewOrchestrator(r, newRegistry(t, testtools.NewTravelTool()), 0)

	result, err := o.Run(context.Background(), model.NewConversation("system", "Book me a flight"))
	gt.NoError(t, err)
	results := resultsOf(result.Conversation.Messages())
	gt.A(t, results).Length(1)
	gt.Equal(t, results[0].Error, "unknown capability: book_flight")
}

func TestOrchestratorReasonerError(t *testing.T) {
	r := newScriptedReasoner(func(input *interfaces.ReasonInput) (*model.Message, error) {
		return nil, errors.New("quota exceeded")
	})
	o := chat.NewOrchestrator(r, newRegistry(t), 0)

	_, err := o.Run(context.Background(), model.NewConversation("system", "Dubai"))
	gt.Error(t, err)
}

func TestOrchestratorCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := newScriptedReasoner(func(input *interfaces.ReasonInput) (*model.Message, error) {
		cancel()
		return model.NewAssistantMessage("", &model.CapabilityRequest{ID: "x", Name: "get_weather", Args: map[string]any{"city": "Dubai"}}), nil
	})
	r.repeat = true
	o := chat.NewOrchestrator(r, newRegistry(t, testtools.NewTravelTool()), 0)

	_, err := o.Run(ctx, model.NewConversation("system", "Dubai"))
	gt.Error(t, err)
	gt.True(t, errors.Is(err, context.Canceled))
}

func TestOrchestratorEmptyAnswer(t *testing.T) {
	r := newScriptedReasoner(answerStep("   "))
	o := chat.NewOrchestrator(r, newRegistry(t), 0)

	result, err := o.Run(context.Background(), model.NewConversation("system", "Dubai"))
	gt.NoError(t, err)
	gt.NotEqual(t, result.Final.Text, "")
}
