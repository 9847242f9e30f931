package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/zhouzirui/private-chat/internal/config"
	"github.com/zhouzirui/private-chat/internal/model/chat"
	"github.com/zhouzirui/private-chat/internal/observability"
)

// GeminiService answers through the Gemini API with a single text prompt.
type GeminiService struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

// NewGeminiService creates a Gemini-backed responder.
func NewGeminiService(ctx context.Context, cfg config.GeminiConfig, logger *zap.Logger) (*GeminiService, error) {
	if !cfg.Enabled() {
		return nil, errors.New("GEMINI_API_KEY is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiService{
		client: client,
		model:  cfg.Model,
		logger: observability.Named(logger, "gemini"),
	}, nil
}

// Reply asks the model for a response to text.
func (s *GeminiService) Reply(ctx context.Context, username string, history []chat.Message, text string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(buildPrompt(username, history, text), genai.RoleUser),
	}

	result, err := s.client.Models.GenerateContent(ctx, s.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("GenAI generate failed: %w", err)
	}

	reply := firstCandidateText(result)
	if reply == "" {
		return "", errors.New("no response content returned")
	}

	s.logger.Debug("generated response", zap.String("username", username), zap.Int("length", len(reply)))
	return reply, nil
}

// buildPrompt flattens the conversation into one prompt: instructions, the
// most recent turns oldest first, then the new message.
func buildPrompt(username string, history []chat.Message, text string) string {
	var b strings.Builder
	b.WriteString(systemPrompt(username))
	b.WriteString("\n\n")

	if len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}
	if len(history) > 0 {
		b.WriteString("Recent conversation:\n")
		for _, msg := range history {
			if msg.IsAutomated {
				fmt.Fprintf(&b, "AI: %s\n", msg.Body)
				continue
			}
			fmt.Fprintf(&b, "%s: %s\n", msg.Author, msg.Body)
		}
	}

	fmt.Fprintf(&b, "\nCurrent message from %s: %s\n\nPlease respond:", username, text)
	return b.String()
}

func firstCandidateText(result *genai.GenerateContentResponse) string {
	if result == nil || len(result.Candidates) == 0 {
		return ""
	}
	candidate := result.Candidates[0]
	if candidate == nil || candidate.Content == nil {
		return ""
	}

	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	return strings.TrimSpace(b.String())
}
