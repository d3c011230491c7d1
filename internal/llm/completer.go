// Package llm adapts chat models to the plain text-completion call used for
// SQL generation and result summaries.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"
)

// Options tunes a single completion call
type Options struct {
	Model       string
	Temperature float32
	MaxTokens   int
}

// Completer turns a prompt into text
type Completer interface {
	Complete(ctx context.Context, prompt string, opts Options) (string, error)
}

// Config holds the settings of an OpenAI-compatible endpoint
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// NewChatModel creates an OpenAI-compatible chat model
func NewChatModel(ctx context.Context, cfg Config) (model.ToolCallingChatModel, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("LLM_API_KEY is required to create a chat model")
	}
	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Timeout: cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %v", err)
	}
	return chatModel, nil
}

// EinoCompleter sends each prompt as a single user message
type EinoCompleter struct {
	Model     model.BaseChatModel
	MaxTokens int
	Logger    *logrus.Logger
}

// NewEinoCompleter creates a completer over a chat model
func NewEinoCompleter(chatModel model.BaseChatModel, maxTokens int, logger *logrus.Logger) *EinoCompleter {
	return &EinoCompleter{Model: chatModel, MaxTokens: maxTokens, Logger: logger}
}

// Complete implements Completer
func (c *EinoCompleter) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	if c.Model == nil {
		return "", fmt.Errorf("no chat model configured")
	}

	callOpts := []model.Option{model.WithTemperature(opts.Temperature)}
	if opts.Model != "" {
		callOpts = append(callOpts, model.WithModel(opts.Model))
	}
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.MaxTokens
	}
	if maxTokens > 0 {
		callOpts = append(callOpts, model.WithMaxTokens(maxTokens))
	}

	start := time.Now()
	resp, err := c.Model.Generate(ctx, []*schema.Message{
		{Role: schema.User, Content: prompt},
	}, callOpts...)
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", fmt.Errorf("chat model returned no message")
	}

	c.Logger.Debugf("Completion finished in %s (%d chars)", time.Since(start).Round(time.Millisecond), len(resp.Content))
	return resp.Content, nil
}

const fence = "```"

// StripCodeFences removes a surrounding markdown code block from model output
func StripCodeFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, fence) {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, fence)
	if nl := strings.IndexByte(trimmed, '\n'); nl >= 0 {
		trimmed = trimmed[nl+1:]
	} else {
		trimmed = strings.TrimPrefix(strings.TrimPrefix(trimmed, "sql"), "SQL")
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), fence)
	return strings.TrimSpace(trimmed)
}
