// Package openai implements the fix-suggestion provider on top of an
// OpenAI-compatible chat completion API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ethpandaops/reportoor/pkg/config"
	"github.com/ethpandaops/reportoor/pkg/provider"
	goopenai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

const (
	defaultModel   = "gpt-4o-mini"
	defaultTimeout = 2 * time.Minute

	defaultSystemPrompt = "You are a senior test automation engineer. Given a failing " +
		"test, its error and its source, explain the likely cause and reply with the " +
		"complete corrected file in a single fenced code block."
)

// Client generates completions with an OpenAI-compatible API.
type Client struct {
	log    logrus.FieldLogger
	client *goopenai.Client
	cfg    config.OpenAISettings
}

var _ provider.AIFixProvider = (*Client)(nil)

// New creates a Client from validated settings.
func New(log logrus.FieldLogger, cfg *config.OpenAISettings) *Client {
	settings := *cfg

	if settings.Model == "" {
		settings.Model = defaultModel
	}

	if settings.SystemPrompt == "" {
		settings.SystemPrompt = defaultSystemPrompt
	}

	if settings.Timeout <= 0 {
		settings.Timeout = defaultTimeout
	}

	clientCfg := goopenai.DefaultConfig(settings.APIKey)
	if settings.BaseURL != "" {
		clientCfg.BaseURL = settings.BaseURL
	}

	clientCfg.HTTPClient = &http.Client{Timeout: settings.Timeout}

	return &Client{
		log:    log.WithField("component", "openai"),
		client: goopenai.NewClientWithConfig(clientCfg),
		cfg:    settings,
	}
}

// GenerateCompletion sends prompt as the user message and returns the first
// choice's content.
func (c *Client) GenerateCompletion(ctx context.Context, prompt string) (string, error) {
	req := goopenai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: c.cfg.SystemPrompt},
			{Role: goopenai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: c.cfg.Temperature,
	}

	if c.cfg.MaxTokens > 0 {
		req.MaxCompletionTokens = c.cfg.MaxTokens
	}

	c.log.WithField("model", c.cfg.Model).Debug("Requesting completion")

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", provider.NewError(classify(err), "chat completion", err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", provider.NewError(
			provider.KindPermanent, "chat completion", errors.New("no choices returned"),
		)
	}

	c.log.WithFields(logrus.Fields{
		"finish_reason":     resp.Choices[0].FinishReason,
		"completion_tokens": resp.Usage.CompletionTokens,
	}).Debug("Received completion")

	return resp.Choices[0].Message.Content, nil
}

func classify(err error) provider.ErrorKind {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return provider.KindForStatus(apiErr.HTTPStatusCode)
	}

	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return provider.KindForStatus(reqErr.HTTPStatusCode)
	}

	// Connection failures and timeouts.
	return provider.KindTransient
}

// String identifies the provider in logs.
func (c *Client) String() string {
	return fmt.Sprintf("openai(%s)", c.cfg.Model)
}
