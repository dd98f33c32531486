package adapter_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/wandersync/pkg/adapter"
	"github.com/m-mizutani/wandersync/pkg/interfaces"
	"github.com/m-mizutani/wandersync/pkg/model"
)

const claudeToolUseResponse = `{
  "id": "msg_01",
  "type": "message",
  "role": "assistant",
  "model": "claude-sonnet-4-5",
  "content": [
    {"type": "text", "text": "Checking the weather."},
    {"type": "tool_use", "id": "toolu_01", "name": "get_weather", "input": {"city": "Dubai"}}
  ],
  "stop_reason": "tool_use",
  "stop_sequence": null,
  "usage": {"input_tokens": 12, "output_tokens": 8}
}`

func TestClaudeReason(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gt.Equal(t, r.URL.Path, "/v1/messages")
		body, err := io.ReadAll(r.Body)
		gt.NoError(t, err)
		gt.NoError(t, json.Unmarshal(body, &captured))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(claudeToolUseResponse))
	}))
	defer srv.Close()

	client := adapter.NewClaude("test-key", adapter.WithClaudeBaseURL(srv.URL))

	conv := model.NewConversation("You are a travel planner", "3 days in Dubai")
	prev := &model.CapabilityRequest{ID: "toolu_00", Name: "search_attractions", Args: map[string]any{"city": "Dubai"}}
	conv.Append(
		model.NewAssistantMessage("", prev),
		model.NewResultMessage(model.NewCapabilityError(prev, "Tripadvisor request failed")),
	)

	msg, err := client.Reason(context.Background(), &interfaces.ReasonInput{
		Conversation: conv,
		Capabilities: []*model.CapabilitySpec{weatherSpec()},
	})
	gt.NoError(t, err)
	gt.Equal(t, msg.Text, "Checking the weather.")
	gt.A(t, msg.Requests).Length(1)
	gt.Equal(t, msg.Requests[0].ID, model.CorrelationID("toolu_01"))
	gt.Equal(t, msg.Requests[0].Name, "get_weather")
	gt.Equal(t, msg.Requests[0].Args["city"], any("Dubai"))

	system := captured["system"].([]any)
	gt.Equal(t, system[0].(map[string]any)["text"], any("You are a travel planner"))

	tools := captured["tools"].([]any)
	gt.A(t, tools).Length(1)
	tool := tools[0].(map[string]any)
	gt.Equal(t, tool["name"], any("get_weather"))
	schema := tool["input_schema"].(map[string]any)
	gt.Equal(t, schema["type"], any("object"))
	gt.Map(t, schema["properties"].(map[string]any)).HasKey("city")

	messages := captured["messages"].([]any)
	gt.A(t, messages).Length(3)
	last := messages[2].(map[string]any)
	gt.Equal(t, last["role"], any("user"))
	block := last["content"].([]any)[0].(map[string]any)
	gt.Equal(t, block["type"], any("tool_result"))
	gt.Equal(t, block["tool_use_id"], any("toolu_00"))
	gt.Equal(t, block["is_error"], any(true))

	_, hasChoice := captured["tool_choice"]
	gt.False(t, hasChoice)
}

func TestClaudeReasonForceAnswer(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gt.NoError(t, json.Unmarshal(body, &captured))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"msg_02","type":"message","role":"assistant","model":"claude-sonnet-4-5",
			"content":[{"type":"text","text":"Final plan"}],"stop_reason":"end_turn","stop_sequence":null,
			"usage":{"input_tokens":1,"output_tokens":1}}`))
	}))
	defer srv.Close()

	client := adapter.NewClaude("test-key", adapter.WithClaudeBaseURL(srv.URL))
	msg, err := client.Reason(context.Background(), &interfaces.ReasonInput{
		Conversation: model.NewConversation("", "3 days in Dubai"),
		Capabilities: []*model.CapabilitySpec{weatherSpec()},
		ForceAnswer:  true,
	})
	gt.NoError(t, err)
	gt.Equal(t, msg.Text, "Final plan")
	gt.False(t, msg.HasRequests())

	choice := captured["tool_choice"].(map[string]any)
	gt.Equal(t, choice["type"], any("none"))
}

func TestClaudeReasonAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`))
	}))
	defer srv.Close()

	client := adapter.NewClaude("test-key", adapter.WithClaudeBaseURL(srv.URL))
	_, err := client.Reason(context.Background(), &interfaces.ReasonInput{
		Conversation: model.NewConversation("", "hello"),
	})
	gt.Error(t, err)
}

func TestClaudeLive(t *testing.T) {
	apiKey := os.Getenv("TEST_ANTHROPIC_API_KEY")
	if apiKey == "" {
		t.Skip("TEST_ANTHROPIC_API_KEY is not set")
	}

	client := adapter.NewClaude(apiKey)
	msg, err := client.Reason(context.Background(), &interfaces.ReasonInput{
		Conversation: model.NewConversation("Answer briefly.", "What is the capital of France?"),
	})
	gt.NoError(t, err)
	gt.S(t, msg.Text).Contains("Paris")
}
