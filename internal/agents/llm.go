package agents

import (
	"context"
	"fmt"
	"math"
	"net/http"

	"github.com/sashabaranov/go-openai"

	"ohlcv-analyst/internal/resilience"
)

// Reasoner is the external language model. A call with tools may answer with
// tool calls; a call without tools answers with content only.
type Reasoner interface {
	Chat(ctx context.Context, messages []openai.ChatCompletionMessage, tools []openai.Tool) (openai.ChatCompletionMessage, error)
}

const advisorPrompt = "You are a financial advisor. Answer the question concisely from general financial knowledge."

// ClientConfig configures an OpenAI-compatible client.
type ClientConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	// Breaker, when set, guards every completion request.
	Breaker *resilience.CircuitBreaker
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// OpenAIClient implements Reasoner and Knowledge against any
// OpenAI-compatible chat completion endpoint.
type OpenAIClient struct {
	client  *openai.Client
	model   string
	breaker *resilience.CircuitBreaker
}

// NewOpenAIClient creates a new client.
func NewOpenAIClient(cfg ClientConfig) *OpenAIClient {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	}
	return &OpenAIClient{
		client:  openai.NewClientWithConfig(oc),
		model:   cfg.Model,
		breaker: cfg.Breaker,
	}
}

// Chat sends one completion request and returns the first choice's message.
func (c *OpenAIClient) Chat(ctx context.Context, messages []openai.ChatCompletionMessage, tools []openai.Tool) (openai.ChatCompletionMessage, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: math.SmallestNonzeroFloat32, // omitempty drops an explicit zero
	}
	if len(tools) > 0 {
		req.Tools = tools
		req.ToolChoice = "auto"
	}

	call := func(ctx context.Context) (openai.ChatCompletionMessage, error) {
		resp, err := c.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return openai.ChatCompletionMessage{}, fmt.Errorf("chat completion failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			return openai.ChatCompletionMessage{}, fmt.Errorf("no choices in chat completion response")
		}
		return resp.Choices[0].Message, nil
	}

	if c.breaker == nil {
		return call(ctx)
	}
	return resilience.ExecuteWithResult(ctx, c.breaker, call)
}

// Answer asks the model a free-text question without tools.
func (c *OpenAIClient) Answer(ctx context.Context, question string) (string, error) {
	msg, err := c.Chat(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: advisorPrompt},
		{Role: openai.ChatMessageRoleUser, Content: question},
	}, nil)
	if err != nil {
		return "", err
	}
	return msg.Content, nil
}

// Model returns the model name.
func (c *OpenAIClient) Model() string {
	return c.model
}

// Breaker returns the circuit breaker, or nil.
func (c *OpenAIClient) Breaker() *resilience.CircuitBreaker {
	return c.breaker
}
