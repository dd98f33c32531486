package adapter

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/wandersync/pkg/interfaces"
	"github.com/m-mizutani/wandersync/pkg/model"
	"google.golang.org/genai"
)

const (
	defaultGeminiModel    = "gemini-2.5-flash"
	defaultEmbeddingModel = "gemini-embedding-001"
	defaultEmbeddingDim   = 384

	transcribePrompt = "Transcribe this audio recording verbatim. Reply with the transcript only."
)

// GeminiModels is the subset of genai.Models used by GeminiClient
type GeminiModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// GeminiClient implements Reasoner, Embedder and Transcriber on Gemini
type GeminiClient struct {
	models          GeminiModels
	generativeModel string
	embeddingModel  string
	dimension       int
	thinkingBudget  int32
}

var (
	_ interfaces.Reasoner    = (*GeminiClient)(nil)
	_ interfaces.Embedder    = (*GeminiClient)(nil)
	_ interfaces.Transcriber = (*GeminiClient)(nil)
)

type GeminiOption func(*GeminiClient)

func WithGenerativeModel(model string) GeminiOption {
	return func(g *GeminiClient) {
		g.generativeModel = model
	}
}

func WithEmbeddingModel(model string) GeminiOption {
	return func(g *GeminiClient) {
		g.embeddingModel = model
	}
}

// WithEmbeddingDimension sets the output dimensionality of embeddings
func WithEmbeddingDimension(dim int) GeminiOption {
	return func(g *GeminiClient) {
		g.dimension = dim
	}
}

// WithThinkingBudget sets the thinking token budget; 0 disables thinking
func WithThinkingBudget(budget int32) GeminiOption {
	return func(g *GeminiClient) {
		g.thinkingBudget = budget
	}
}

// NewGemini creates a client on Vertex AI
func NewGemini(ctx context.Context, projectID, location string, opts ...GeminiOption) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  projectID,
		Location: location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create genai client",
			goerr.V("project", projectID),
			goerr.V("location", location))
	}

	return NewGeminiWithModels(client.Models, opts...), nil
}

// NewGeminiWithAPIKey creates a client on the Gemini Developer API
func NewGeminiWithAPIKey(ctx context.Context, apiKey string, opts ...GeminiOption) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create genai client")
	}

	return NewGeminiWithModels(client.Models, opts...), nil
}

// NewGeminiWithModels creates a client on an existing models service
func NewGeminiWithModels(models GeminiModels, opts ...GeminiOption) *GeminiClient {
	g := &GeminiClient{
		models:          models,
		generativeModel: defaultGeminiModel,
		embeddingModel:  defaultEmbeddingModel,
		dimension:       defaultEmbeddingDim,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

func (g *GeminiClient) GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	resp, err := g.models.GenerateContent(ctx, g.generativeModel, contents, config)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate content", goerr.V("model", g.generativeModel))
	}
	return resp, nil
}

// Reason runs one function-calling step over the conversation
func (g *GeminiClient) Reason(ctx context.Context, input *interfaces.ReasonInput) (*model.Message, error) {
	contents := buildGenaiContents(input.Conversation)
	if len(contents) == 0 {
		return nil, goerr.New("conversation has no content")
	}

	config := &genai.GenerateContentConfig{
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  &g.thinkingBudget,
		},
	}
	if prompt := input.Conversation.SystemPrompt(); prompt != "" {
		config.SystemInstruction = genai.NewContentFromText(prompt, "")
	}

	if len(input.Capabilities) > 0 {
		tool, err := buildGenaiTool(input.Capabilities)
		if err != nil {
			return nil, err
		}
		config.Tools = []*genai.Tool{tool}

		if input.ForceAnswer {
			config.ToolConfig = &genai.ToolConfig{
				FunctionCallingConfig: &genai.FunctionCallingConfig{
					Mode: genai.FunctionCallingConfigModeNone,
				},
			}
		}
	}

	resp, err := g.GenerateContent(ctx, contents, config)
	if err != nil {
		return nil, err
	}

	return parseGenaiResponse(resp)
}

func buildGenaiTool(specs []*model.CapabilitySpec) (*genai.Tool, error) {
	tool := &genai.Tool{}
	for _, spec := range specs {
		params, err := convertSchemaToGenai(spec.Parameters)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to convert capability parameters", goerr.V("capability", spec.Name))
		}
		tool.FunctionDeclarations = append(tool.FunctionDeclarations, &genai.FunctionDeclaration{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  params,
		})
	}
	return tool, nil
}

// buildGenaiContents maps the conversation to genai contents. The system
// message goes to SystemInstruction instead. Consecutive capability results
// are grouped into a single user content.
func buildGenaiContents(conv *model.Conversation) []*genai.Content {
	var contents []*genai.Content
	var responses []*genai.Part

	flush := func() {
		if len(responses) > 0 {
			contents = append(contents, genai.NewContentFromParts(responses, genai.RoleUser))
			responses = nil
		}
	}

	for _, msg := range conv.Messages() {
		if msg.Role != model.RoleCapabilityResult {
			flush()
		}

		switch msg.Role {
		case model.RoleUser:
			contents = append(contents, genai.NewContentFromText(msg.Text, genai.RoleUser))

		case model.RoleAssistant:
			var parts []*genai.Part
			if msg.Text != "" {
				parts = append(parts, genai.NewPartFromText(msg.Text))
			}
			for _, req := range msg.Requests {
				parts = append(parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{
						ID:   string(req.ID),
						Name: req.Name,
						Args: req.Args,
					},
					ThoughtSignature: req.Signature,
				})
			}
			if len(parts) > 0 {
				contents = append(contents, genai.NewContentFromParts(parts, genai.RoleModel))
			}

		case model.RoleCapabilityResult:
			if msg.Result == nil {
				continue
			}
			response := map[string]any{"result": msg.Result.Payload}
			if msg.Result.Failed() {
				response = map[string]any{"error": msg.Result.Error}
			}
			responses = append(responses, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					ID:       string(msg.Result.ID),
					Name:     msg.Result.Name,
					Response: response,
				},
			})
		}
	}
	flush()

	return contents
}

func parseGenaiResponse(resp *genai.GenerateContentResponse) (*model.Message, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, goerr.New("no candidate in gemini response")
	}

	var text strings.Builder
	var requests []*model.CapabilityRequest
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Thought {
			continue
		}
		if part.Text != "" {
			text.WriteString(part.Text)
		}
		if part.FunctionCall != nil {
			id := model.CorrelationID(part.FunctionCall.ID)
			if id == "" {
				id = model.NewCorrelationID()
			}
			requests = append(requests, &model.CapabilityRequest{
				ID:        id,
				Name:      part.FunctionCall.Name,
				Args:      part.FunctionCall.Args,
				Signature: part.ThoughtSignature,
			})
		}
	}

	return model.NewAssistantMessage(text.String(), requests...), nil
}

// Embed returns the embedding of text with the configured dimensionality
func (g *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, goerr.New("text is empty")
	}

	resp, err := g.models.EmbedContent(ctx, g.embeddingModel, genai.Text(text), &genai.EmbedContentConfig{
		TaskType:             "SEMANTIC_SIMILARITY",
		OutputDimensionality: genai.Ptr(int32(g.dimension)),
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed content", goerr.V("model", g.embeddingModel))
	}

	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, goerr.New("no embedding in response", goerr.V("model", g.embeddingModel))
	}

	values := resp.Embeddings[0].Values
	if len(values) != g.dimension {
		return nil, goerr.New("unexpected embedding dimension",
			goerr.V("expected", g.dimension),
			goerr.V("actual", len(values)))
	}
	return values, nil
}

func (g *GeminiClient) Dimension() int {
	return g.dimension
}

// Transcribe converts an audio recording into text
func (g *GeminiClient) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", goerr.New("audio is empty")
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(audio, mimeType),
			genai.NewPartFromText(transcribePrompt),
		}, genai.RoleUser),
	}

	resp, err := g.GenerateContent(ctx, contents, nil)
	if err != nil {
		return "", goerr.Wrap(err, "failed to transcribe audio", goerr.V("mime_type", mimeType))
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", goerr.New("empty transcript", goerr.V("mime_type", mimeType))
	}
	return text, nil
}
