// Package llm talks to the local OpenAI-compatible inference endpoint
// (LM Studio, Ollama's compatibility layer, and the like). The endpoint
// is a stateless external collaborator: chat completion, text completion,
// and model enumeration. Callers receive an explicit client handle; the
// package keeps no global state.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultBaseURL = "http://127.0.0.1:1234"
	DefaultModel   = "openai/gpt-oss-20b"
	DefaultTimeout = 120 * time.Second

	RoleSystem = "system"
	RoleUser   = "user"
)

// Message is one turn of a chat completion request.
type Message struct {
	Role    string
	Content string
}

// CallOptions tune a single completion request.
type CallOptions struct {
	Temperature float32
	MaxTokens   int
}

// Client is the inference-endpoint interface consumed by the pipeline.
type Client interface {
	ChatCompletion(ctx context.Context, messages []Message, opts CallOptions) (string, error)
	Completion(ctx context.Context, prompt string, opts CallOptions) (string, error)
	ListModels(ctx context.Context) ([]string, error)
}

// NetworkError marks a transient endpoint failure: connection refused,
// timeout, malformed response. Callers retry these with backoff.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("llm %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Config describes the endpoint connection.
type Config struct {
	BaseURL string
	Model   string
	// Timeout bounds each individual request.
	Timeout time.Duration
}

// LMStudioClient implements Client against any OpenAI-compatible HTTP
// endpoint.
type LMStudioClient struct {
	api     *openai.Client
	model   string
	timeout time.Duration
}

// New builds a client for the configured endpoint. Zero-value fields get
// the LM Studio defaults.
func New(cfg Config) *LMStudioClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	// Local endpoints ignore the API key but the SDK requires one.
	apiCfg := openai.DefaultConfig("lm-studio")
	apiCfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/") + "/v1"

	return &LMStudioClient{
		api:     openai.NewClientWithConfig(apiCfg),
		model:   cfg.Model,
		timeout: cfg.Timeout,
	}
}

// Model returns the configured model name.
func (c *LMStudioClient) Model() string {
	return c.model
}

// ChatCompletion sends an ordered list of role/content messages and
// returns the first choice's text.
func (c *LMStudioClient) ChatCompletion(ctx context.Context, messages []Message, opts CallOptions) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", &NetworkError{Op: "chat completion", Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &NetworkError{Op: "chat completion", Err: fmt.Errorf("response contains no choices")}
	}
	return resp.Choices[0].Message.Content, nil
}

// Completion sends a plain text-completion prompt.
func (c *LMStudioClient) Completion(ctx context.Context, prompt string, opts CallOptions) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.CreateCompletion(ctx, openai.CompletionRequest{
		Model:       c.model,
		Prompt:      prompt,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		return "", &NetworkError{Op: "completion", Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &NetworkError{Op: "completion", Err: fmt.Errorf("response contains no choices")}
	}
	return resp.Choices[0].Text, nil
}

// ListModels enumerates the models the endpoint exposes. An error here
// means the endpoint is unreachable, which aborts a run before any chunk
// work starts.
func (c *LMStudioClient) ListModels(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	list, err := c.api.ListModels(ctx)
	if err != nil {
		return nil, &NetworkError{Op: "list models", Err: err}
	}
	names := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		names = append(names, m.ID)
	}
	return names, nil
}
