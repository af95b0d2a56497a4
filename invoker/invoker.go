/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package invoker issues chat-completion calls against OpenAI-compatible
// endpoints. Candidate-model calls and judge-model calls use distinct
// base-URL/credential pairs taken from the environment; judging mode pins the
// sampling parameters every judge call must use. This layer performs no
// retries; retry discipline belongs to the caller.
package invoker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/sethvargo/go-envconfig"
)

// Message roles understood by Generate.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Judging-mode sampling parameters. Fixed so that judge scores are
// reproducible across runs.
const (
	judgingTemperature = 0.0
	judgingTopP        = 0.7
)

// Message is one role-tagged entry in a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request describes a single completion call.
type Request struct {
	// Messages is the conversation to send, in order.
	Messages []Message

	// Model is the model name or endpoint identifier.
	Model string

	// JudgingMode selects the judge endpoint/credentials and forces
	// temperature and top_p to the fixed judging values.
	JudgingMode bool

	// Sampling parameters; nil leaves the provider default. Ignored when
	// JudgingMode is set.
	Temperature *float64
	TopP        *float64

	// MaxTokens caps the generated length; 0 leaves the provider default.
	MaxTokens int64
}

// Interface is the contract the pipeline and runner depend on.
type Interface interface {
	// Generate returns the generated text for the request, or an error when
	// the call fails or yields no content.
	Generate(ctx context.Context, req Request) (string, error)
}

// Config holds the endpoint/credential pairs, read from the environment.
type Config struct {
	CandidateAPIBase string `env:"CANDIDATE_API_BASE,required"`
	CandidateAPIKey  string `env:"CANDIDATE_API_KEY,required"`
	JudgeAPIBase     string `env:"JUDGE_API_BASE,required"`
	JudgeAPIKey      string `env:"JUDGE_API_KEY,required"`
}

// Client implements Interface over two OpenAI-compatible endpoints.
type Client struct {
	candidate openai.Client
	judge     openai.Client
}

// NewClient reads endpoint configuration from the environment.
func NewClient(ctx context.Context) (*Client, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("processing invoker config: %w", err)
	}
	return NewClientFromConfig(cfg), nil
}

// NewClientFromConfig builds a client from explicit configuration.
func NewClientFromConfig(cfg Config) *Client {
	return &Client{
		// Retry discipline lives with the callers; disable the SDK's own
		// transport retries so a failed call surfaces immediately.
		candidate: openai.NewClient(
			option.WithBaseURL(cfg.CandidateAPIBase),
			option.WithAPIKey(cfg.CandidateAPIKey),
			option.WithMaxRetries(0),
		),
		judge: openai.NewClient(
			option.WithBaseURL(cfg.JudgeAPIBase),
			option.WithAPIKey(cfg.JudgeAPIKey),
			option.WithMaxRetries(0),
		),
	}
}

// Generate implements Interface.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			messages = append(messages, openai.SystemMessage(m.Content))
		case RoleUser:
			messages = append(messages, openai.UserMessage(m.Content))
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			return "", fmt.Errorf("unsupported message role %q", m.Role)
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: messages,
	}

	temperature, topP := req.Temperature, req.TopP
	client := &c.candidate
	if req.JudgingMode {
		t, p := judgingTemperature, judgingTopP
		temperature, topP = &t, &p
		client = &c.judge
	}
	if temperature != nil {
		params.Temperature = openai.Float(*temperature)
	}
	if topP != nil {
		params.TopP = openai.Float(*topP)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(req.MaxTokens)
	}

	completion, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("completion call for model %q: %w", req.Model, err)
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("completion returned no choices")
	}
	return completion.Choices[0].Message.Content, nil
}

// WithTimeout wraps an invoker so every call carries a deadline. A zero or
// negative timeout returns the invoker unchanged.
func WithTimeout(next Interface, timeout time.Duration) Interface {
	if timeout <= 0 {
		return next
	}
	return &timeoutInvoker{next: next, timeout: timeout}
}

type timeoutInvoker struct {
	next    Interface
	timeout time.Duration
}

func (t *timeoutInvoker) Generate(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Generate(ctx, req)
}
