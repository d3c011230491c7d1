// Package agent runs conversational turns in which a chat model restyles the
// catchment map through tool calls and may query the database.
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	defaultMaxRounds   = 5
	defaultMaxAttempts = 4
	defaultBaseDelay   = 500 * time.Millisecond
)

const systemPrompt = `You are the assistant of a school catchment map.
Use the map tools to change how catchment polygons are drawn and where the map is centered.
Use queryDatabase to answer questions about schools, capacity and catchments.
Keep answers short and describe what you changed on the map.`

// TurnResult is the outcome of one chat turn
type TurnResult struct {
	SessionID string         `json:"sessionId"`
	FinalText string         `json:"finalText"`
	Flags     PendingUIFlags `json:"flags"`
	ToolCalls int            `json:"toolCalls"`
}

// ChatAgent drives the tool-calling loop
type ChatAgent struct {
	Model       model.BaseChatModel
	Dispatcher  *Dispatcher
	Flags       *FlagRegistry
	MaxRounds   int
	MaxAttempts int
	BaseDelay   time.Duration
	Logger      *logrus.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewChatAgent binds the declared tools to a copy of the model. The model
// passed in is left without tools so it can keep serving plain completions.
func NewChatAgent(chatModel model.ToolCallingChatModel, dispatcher *Dispatcher, flags *FlagRegistry, logger *logrus.Logger) (*ChatAgent, error) {
	withTools, err := chatModel.WithTools(ToolInfos())
	if err != nil {
		return nil, fmt.Errorf("failed to bind tools: %w", err)
	}
	return &ChatAgent{
		Model:       withTools,
		Dispatcher:  dispatcher,
		Flags:       flags,
		MaxRounds:   defaultMaxRounds,
		MaxAttempts: defaultMaxAttempts,
		BaseDelay:   defaultBaseDelay,
		Logger:      logger,
		sleep:       sleepContext,
	}, nil
}

// Turn answers the latest user message. Flags are reset at the start of the
// turn and returned at the end; the session's scope stays locked in between.
func (a *ChatAgent) Turn(ctx context.Context, sessionID string, history []*schema.Message) (*TurnResult, error) {
	if len(history) == 0 {
		return nil, fmt.Errorf("at least one message is required")
	}
	if sessionID == "" {
		// Anonymous turns cannot be resumed, so their scope goes with them
		sessionID = uuid.NewString()
		defer a.Flags.Forget(sessionID)
	}

	scope := a.Flags.Session(sessionID)
	scope.mu.Lock()
	defer scope.mu.Unlock()
	scope.flags.Reset()

	log := a.Logger.WithField("session", sessionID)
	conversation := append([]*schema.Message{{Role: schema.System, Content: systemPrompt}}, history...)

	result := &TurnResult{SessionID: sessionID}
	for round := 0; round < a.MaxRounds; round++ {
		reply, err := a.generate(ctx, conversation)
		if err != nil {
			log.Errorf("Chat turn failed: %v", err)
			return nil, err
		}
		result.FinalText = reply.Content

		if len(reply.ToolCalls) == 0 {
			result.Flags = scope.flags
			return result, nil
		}

		conversation = append(conversation, reply)
		for _, call := range reply.ToolCalls {
			log.Infof("Tool call %s", call.Function.Name)
			output := a.Dispatcher.Dispatch(ctx, &scope.flags, call)
			conversation = append(conversation, &schema.Message{
				Role:       schema.Tool,
				Content:    output,
				ToolCallID: call.ID,
			})
			result.ToolCalls++
		}
	}

	log.Warnf("Chat turn stopped after %d rounds", a.MaxRounds)
	if result.FinalText == "" {
		result.FinalText = "I applied the requested changes."
	}
	result.Flags = scope.flags
	return result, nil
}

// generate retries rate-limit and overload failures with exponential backoff
func (a *ChatAgent) generate(ctx context.Context, conversation []*schema.Message) (*schema.Message, error) {
	delay := a.BaseDelay
	var lastErr error
	for attempt := 1; attempt <= a.MaxAttempts; attempt++ {
		reply, err := a.Model.Generate(ctx, conversation)
		if err == nil {
			return reply, nil
		}
		lastErr = err
		if !IsRetryable(err) || attempt == a.MaxAttempts {
			break
		}

		a.Logger.Warnf("Chat model busy (attempt %d/%d), retrying in %s: %v", attempt, a.MaxAttempts, delay, err)
		if err := a.sleep(ctx, delay); err != nil {
			return nil, err
		}
		delay *= 2
	}
	return nil, lastErr
}

// IsRetryable reports whether a completion error is a rate limit or overload
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"429", "529", "rate limit", "overloaded", "too many requests"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Messages converts role/content pairs into chat messages. Unknown roles are
// treated as user messages.
func Messages(turns []Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(turns))
	for _, t := range turns {
		role := schema.User
		if strings.EqualFold(t.Role, string(schema.Assistant)) {
			role = schema.Assistant
		}
		out = append(out, &schema.Message{Role: role, Content: t.Content})
	}
	return out
}

// Message is a transport-neutral chat message
type Message struct {
	Role    string `json:"role" validate:"omitempty,oneof=user assistant"`
	Content string `json:"content" validate:"required"`
}
