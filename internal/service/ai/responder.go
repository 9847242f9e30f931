package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/zhouzirui/private-chat/internal/model/chat"
)

// Responder produces the automated participant's reply to one user message.
type Responder interface {
	Reply(ctx context.Context, username string, history []chat.Message, text string) (string, error)
}

var triggers = []string{
	"ai", "bot", "assistant", "help", "hello", "hi", "hey",
	"what", "how", "why", "when", "where", "who", "can you",
	"please", "thanks", "thank you",
}

// ShouldRespond reports whether a user message warrants an automated reply:
// questions and messages containing a trigger word. Matching is substring
// based and case insensitive.
func ShouldRespond(text string) bool {
	if strings.Contains(text, "?") {
		return true
	}
	lower := strings.ToLower(text)
	for _, trigger := range triggers {
		if strings.Contains(lower, trigger) {
			return true
		}
	}
	return false
}

// CannedResponder answers without a language model.
type CannedResponder struct{}

// Reply returns a short acknowledgement addressed to username.
func (CannedResponder) Reply(_ context.Context, username string, _ []chat.Message, text string) (string, error) {
	text = strings.TrimSpace(text)
	switch {
	case strings.HasSuffix(text, "?"):
		return fmt.Sprintf("Good question, %s! I don't have a model attached right now, but I heard: %q", username, text), nil
	case strings.Contains(strings.ToLower(text), "thank"):
		return fmt.Sprintf("You're welcome, %s!", username), nil
	default:
		return fmt.Sprintf("Hi %s! How can I help you today?", username), nil
	}
}
