package ai

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/private-chat/internal/model/chat"
)

func TestShouldRespond(t *testing.T) {
	cases := map[string]bool{
		"is anyone there?":    true,
		"Hello there":         true,
		"CAN YOU do this":     true,
		"thanks a lot":        true,
		"ok":                  false,
		"see you tomorrow":    false,
		"":                    false,
		"the chair is broken": true,
	}

	for text, want := range cases {
		assert.Equal(t, want, ShouldRespond(text), "text %q", text)
	}
}

func TestCannedResponder(t *testing.T) {
	r := CannedResponder{}

	reply, err := r.Reply(context.Background(), "Ana", nil, "what time is it?")
	require.NoError(t, err)
	assert.Contains(t, reply, "Ana")
	assert.Contains(t, reply, "what time is it?")

	reply, err = r.Reply(context.Background(), "Ana", nil, "thank you")
	require.NoError(t, err)
	assert.Equal(t, "You're welcome, Ana!", reply)
}

func TestBuildHistoryMessagesKeepsRecentTurns(t *testing.T) {
	var transcript []chat.Message
	for i := 0; i < 7; i++ {
		transcript = append(transcript, chat.Message{Author: "Ana", Body: string(rune('a' + i))})
	}
	transcript = append(transcript, chat.Message{Author: "AI Assistant", Body: "reply", IsAutomated: true})

	history := buildHistoryMessages(transcript)
	require.Len(t, history, historyLimit)
	assert.Equal(t, schema.User, history[0].Role)
	assert.Equal(t, "Ana: d", history[0].Content)
	assert.Equal(t, schema.Assistant, history[len(history)-1].Role)
	assert.Equal(t, "reply", history[len(history)-1].Content)
	assert.Nil(t, buildHistoryMessages(nil))
}
