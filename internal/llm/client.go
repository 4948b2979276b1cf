// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package llm is a thin client for an OpenAI-compatible chat completions
// endpoint, with per-call timeouts and a circuit breaker.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/sony/gobreaker"

	"github.com/bcem/supportdesk/internal/metrics"
)

var (
	// ErrNoAPIKey is returned by New when no API key is configured.
	ErrNoAPIKey = errors.New("llm: api key is required")
	// ErrEmptyResponse is returned when the model produced no content.
	ErrEmptyResponse = errors.New("llm: empty response")
)

const (
	defaultModel     = "gpt-4o-mini"
	defaultTimeout   = 60 * time.Second
	defaultMaxTokens = 1200
	tripAfter        = 5
)

// Config holds client settings.
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	Timeout   time.Duration
	MaxTokens int
}

// Client calls the chat completions API.
type Client struct {
	openai    openai.Client
	model     string
	timeout   time.Duration
	maxTokens int
	breaker   *gobreaker.CircuitBreaker
}

// New creates a Client. The SDK's own retries are disabled; callers decide
// with IsRetryable.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNoAPIKey
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	c := &Client{
		openai:    openai.NewClient(opts...),
		model:     cfg.Model,
		timeout:   cfg.Timeout,
		maxTokens: cfg.MaxTokens,
	}
	if c.model == "" {
		c.model = defaultModel
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.maxTokens <= 0 {
		c.maxTokens = defaultMaxTokens
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "llm",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= tripAfter
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
		// Client errors say nothing about service health.
		IsSuccessful: func(err error) bool {
			return err == nil || !IsRetryable(err)
		},
	})
	return c, nil
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// Complete sends a system and user prompt and returns the raw reply text.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	return c.chat(ctx, c.params(system, user))
}

// Classify requests a ModelOutput constrained by a strict JSON schema and
// decodes the reply.
func (c *Client) Classify(ctx context.Context, system, user string) (*ModelOutput, error) {
	params := c.params(system, user)
	params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
			JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
				Name:        "case_classification",
				Description: openai.String("Support case classification and drafted reply"),
				Schema:      classificationSchema,
				Strict:      openai.Bool(true),
			},
		},
	}

	text, err := c.chat(ctx, params)
	if err != nil {
		return nil, err
	}
	var out ModelOutput
	if err := json.Unmarshal([]byte(StripFences(text)), &out); err != nil {
		return nil, fmt.Errorf("decode model output: %w", err)
	}
	return &out, nil
}

func (c *Client) params(system, user string) openai.ChatCompletionNewParams {
	return openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		MaxTokens:   openai.Int(int64(c.maxTokens)),
		Temperature: openai.Float(0.2),
	}
}

func (c *Client) chat(ctx context.Context, params openai.ChatCompletionNewParams) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.openai.Chat.Completions.New(ctx, params)
	})
	metrics.ObserveModelCall(start, err)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	resp := res.(*openai.ChatCompletion)
	slog.DebugContext(ctx, "chat completion finished",
		"model", c.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// StripFences removes a surrounding markdown code fence, with or without a
// language tag.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// IsRetryable reports whether err is worth retrying later: rate limits,
// server errors and network failures. Cancellation and 4xx are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return true
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	if errors.Is(err, ErrEmptyResponse) {
		return false
	}
	return true
}

func generateSchema[T any]() any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}
