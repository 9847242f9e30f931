package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/zhouzirui/private-chat/internal/config"
	"github.com/zhouzirui/private-chat/internal/model/chat"
	"github.com/zhouzirui/private-chat/internal/observability"
)

const historyLimit = 5

// Service answers through an Ark chat model.
type Service struct {
	chatModel model.ChatModel
	chain     compose.Runnable[map[string]any, *schema.Message]
	logger    *zap.Logger
}

// NewService creates the model-backed responder from cfg.
func NewService(ctx context.Context, cfg config.AIConfig, logger *zap.Logger) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return newService(ctx, chatModel, logger)
}

func newService(ctx context.Context, chatModel model.ChatModel, logger *zap.Logger) (*Service, error) {
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
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		chatModel: chatModel,
		chain:     runnable,
		logger:    observability.Named(logger, "ai"),
	}, nil
}

// Reply runs the chain for one user message.
func (s *Service) Reply(ctx context.Context, username string, history []chat.Message, text string) (string, error) {
	response, err := s.chain.Invoke(ctx, buildChainInput(username, history, text))
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}

	s.logger.Debug("generated response", zap.String("username", username), zap.Int("length", len(response.Content)))
	return response.Content, nil
}

func buildChainInput(username string, history []chat.Message, text string) map[string]any {
	return map[string]any{
		"system":  systemPrompt(username),
		"history": buildHistoryMessages(history),
		"query":   text,
	}
}

func systemPrompt(username string) string {
	return fmt.Sprintf("You are a helpful AI assistant in a private chat. The user '%s' just sent a message. "+
		"Respond in a friendly, conversational way. Keep your response concise (1-2 sentences max) and engaging. "+
		"Be helpful and natural.", username)
}

// buildHistoryMessages keeps the most recent turns, oldest first.
func buildHistoryMessages(messages []chat.Message) []*schema.Message {
	if len(messages) == 0 {
		return nil
	}

	startIdx := 0
	if len(messages) > historyLimit {
		startIdx = len(messages) - historyLimit
	}

	history := make([]*schema.Message, 0, len(messages)-startIdx)
	for _, msg := range messages[startIdx:] {
		if msg.IsAutomated {
			history = append(history, schema.AssistantMessage(msg.Body, nil))
			continue
		}
		history = append(history, schema.UserMessage(fmt.Sprintf("%s: %s", msg.Author, msg.Body)))
	}

	return history
}
