package llm

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIOptions configures NewOpenAIGenerator.
type OpenAIOptions struct {
	APIKey string
	// BaseURL selects an OpenAI-compatible provider such as Groq.
	BaseURL     string
	Model       string
	Temperature float32
	// MaxTokens caps the answer length; zero leaves it to the provider.
	MaxTokens int
}

// OpenAIGenerator answers through an OpenAI-compatible chat completions endpoint.
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

// NewOpenAIGenerator creates a generator for the configured endpoint and model.
func NewOpenAIGenerator(opts OpenAIOptions) (*OpenAIGenerator, error) {
	if opts.APIKey == "" {
		return nil, errors.New("generator: API key is not set")
	}
	if opts.Model == "" {
		return nil, errors.New("generator: model is required")
	}
	clientConfig := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		clientConfig.BaseURL = opts.BaseURL
	}
	return &OpenAIGenerator{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       opts.Model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
	}, nil
}

// Generate sends the instruction as the system message and the context with the
// question as the user message. The first choice is returned verbatim.
func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (*Response, error) {
	instruction := req.Instruction
	if instruction == "" {
		instruction = DefaultInstruction
	}
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: instruction},
			{Role: openai.ChatMessageRoleUser, Content: UserPrompt(req)},
		},
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion (%s): %w", g.model, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w (%s)", ErrEmptyResponse, g.model)
	}
	return &Response{
		Answer:           resp.Choices[0].Message.Content,
		Model:            resp.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}
