package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/greenfield-labs/smartfarm/backend/internal/model/chat"
	"github.com/greenfield-labs/smartfarm/backend/internal/model/sensor"
)

const historyLimit = 10

var ErrStreamingDisabled = errors.New("streaming disabled in configuration")

// Request is one advisor turn.
type Request struct {
	SessionID string
	History   []chat.Message
	Query     string
	Readings  *sensor.Snapshot
	// Reference is the catalog reply for Query.
	Reference string
}

// Advisor answers farming questions with a chat model, grounded on sensor
// readings and the catalog reply.
type Advisor struct {
	chatModel model.ChatModel
	chain     compose.Runnable[map[string]any, *schema.Message]
	streaming bool
	logger    zerolog.Logger
}

// NewAdvisor compiles the prompt -> model chain.
func NewAdvisor(ctx context.Context, chatModel model.ChatModel, streaming bool, logger zerolog.Logger) (*Advisor, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile advisor chain: %w", err)
	}

	return &Advisor{
		chatModel: chatModel,
		chain:     runnable,
		streaming: streaming,
		logger:    logger,
	}, nil
}

// StreamingEnabled 指示是否开启 SSE 流式输出。
func (a *Advisor) StreamingEnabled() bool {
	return a.streaming
}

// Generate produces a complete reply.
func (a *Advisor) Generate(ctx context.Context, req Request) (*schema.Message, error) {
	response, err := a.chain.Invoke(ctx, buildChainInput(req))
	if err != nil {
		return nil, fmt.Errorf("failed to run advisor chain: %w", err)
	}

	a.logger.Info().Str("session", req.SessionID).Int("length", len(response.Content)).Msg("advisor reply generated")
	return response, nil
}

// Stream returns reply chunks as the model produces them.
func (a *Advisor) Stream(ctx context.Context, req Request) (*schema.StreamReader[*schema.Message], error) {
	if !a.streaming {
		return nil, ErrStreamingDisabled
	}

	stream, err := a.chain.Stream(ctx, buildChainInput(req))
	if err != nil {
		return nil, fmt.Errorf("failed to stream advisor output: %w", err)
	}
	return stream, nil
}

func buildChainInput(req Request) map[string]any {
	return map[string]any{
		"system":  buildSystemPrompt(req.Readings, req.Reference),
		"history": buildHistoryMessages(req.History),
		"query":   req.Query,
	}
}

func buildHistoryMessages(messages []chat.Message) []*schema.Message {
	if len(messages) == 0 {
		return nil
	}

	start := 0
	if len(messages) > historyLimit {
		start = len(messages) - historyLimit
	}

	history := make([]*schema.Message, 0, len(messages)-start)
	for _, msg := range messages[start:] {
		if msg.IsLoading {
			continue
		}
		switch msg.Sender {
		case chat.SenderUser:
			history = append(history, schema.UserMessage(msg.Content))
		case chat.SenderAssistant:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}
	return history
}
