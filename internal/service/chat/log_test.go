package chat_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/private-chat/internal/model/chat"
	chatservice "github.com/zhouzirui/private-chat/internal/service/chat"
)

func TestLogKeepsArrivalOrder(t *testing.T) {
	l := chatservice.NewLog()
	l.Append(chat.Message{ID: "b", Body: "second", CreatedAt: 2000})
	l.Append(chat.Message{ID: "a", Body: "first", CreatedAt: 1000})

	got := l.All()
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID, "log must not sort by timestamp")
	assert.Equal(t, "a", got[1].ID)
}

func TestLogToleratesDuplicateIDs(t *testing.T) {
	l := chatservice.NewLog()
	l.Append(chat.Message{ID: "1", Body: "hi"})
	l.Append(chat.Message{ID: "1", Body: "hi"})

	assert.Equal(t, 2, l.Len())
}

func TestLogAllReturnsCopy(t *testing.T) {
	l := chatservice.NewLog()
	l.Append(chat.Message{ID: "1", Body: "hi"})

	snapshot := l.All()
	snapshot[0].Body = "changed"

	assert.Equal(t, "hi", l.All()[0].Body)
}

func TestLogSince(t *testing.T) {
	l := chatservice.NewLog()
	for _, id := range []string{"1", "2", "3"} {
		l.Append(chat.Message{ID: id, Body: "x"})
	}

	tail := l.Since(1)
	require.Len(t, tail, 2)
	assert.Equal(t, "2", tail[0].ID)
	assert.Nil(t, l.Since(3))
	assert.Len(t, l.Since(-1), 3)
}

func TestLogConcurrentAppend(t *testing.T) {
	l := chatservice.NewLog()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				l.Append(chat.Message{ID: "x", Body: "x"})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 400, l.Len())
}
