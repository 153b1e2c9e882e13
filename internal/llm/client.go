// Package llm provides an OpenAI-compatible LLM client.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"
)

// ErrNoChoices is returned when the completion carries no answer.
var ErrNoChoices = errors.New("no choices in response")

const (
	defaultTimeout    = 30 * time.Second
	defaultRetries    = 2
	defaultRetryDelay = 500 * time.Millisecond
)

// Client talks to any chat-completions endpoint: OpenAI, OpenRouter or a
// local server such as LM Studio.
type Client struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	timeout     time.Duration
	retries     uint64
	retryDelay  time.Duration
}

// Config holds the configuration for the LLM client.
type Config struct {
	BaseURL     string
	Model       string
	APIKey      string
	MaxTokens   int
	Temperature float32
	// Timeout bounds a single attempt.
	Timeout time.Duration
	// Retries is the number of extra attempts after a rate limit or server
	// error. Zero selects the default, negative disables retrying.
	Retries int
}

// NewClient creates a new LLM client with the provided configuration.
func NewClient(cfg Config) *Client {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	retries := cfg.Retries
	switch {
	case retries == 0:
		retries = defaultRetries
	case retries < 0:
		retries = 0
	}

	return &Client{
		client:      openai.NewClientWithConfig(config),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		retries:     uint64(retries),
		retryDelay:  defaultRetryDelay,
	}
}

// Complete sends one system/user exchange and returns the answer text.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}

	var answer string
	attempt := func() error {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		resp, err := c.client.CreateChatCompletion(callCtx, req)
		if err != nil {
			if retryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if len(resp.Choices) == 0 {
			return backoff.Permanent(ErrNoChoices)
		}
		answer = resp.Choices[0].Message.Content
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryDelay
	policy := backoff.WithContext(backoff.WithMaxRetries(b, c.retries), ctx)

	if err := backoff.Retry(attempt, policy); err != nil {
		if errors.Is(err, ErrNoChoices) {
			return "", err
		}
		return "", fmt.Errorf("llm completion: %w", err)
	}
	return answer, nil
}

// retryable reports whether err is a rate limit or a server-side failure.
func retryable(err error) bool {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	default:
		return false
	}
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}
