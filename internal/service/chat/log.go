package chat

import (
	"sync"

	"github.com/zhouzirui/private-chat/internal/model/chat"
)

// Log is the ordered, append-only record of chat entries rendered by the
// client. Entries are kept in arrival order and are never removed, mutated or
// de-duplicated.
type Log struct {
	mu       sync.RWMutex
	messages []chat.Message
}

// NewLog returns an empty log.
func NewLog() *Log {
	return &Log{messages: make([]chat.Message, 0, 32)}
}

// Append adds msg at the end of the log.
func (l *Log) Append(msg chat.Message) {
	l.mu.Lock()
	l.messages = append(l.messages, msg)
	l.mu.Unlock()
}

// All returns a copy of every entry in append order.
func (l *Log) All() []chat.Message {
	l.mu.RLock()
	defer l.mu.RUnlock()

	copied := make([]chat.Message, len(l.messages))
	copy(copied, l.messages)
	return copied
}

// Since returns a copy of the entries at index n and beyond.
func (l *Log) Since(n int) []chat.Message {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n < 0 {
		n = 0
	}
	if n >= len(l.messages) {
		return nil
	}
	copied := make([]chat.Message, len(l.messages)-n)
	copy(copied, l.messages[n:])
	return copied
}

// Len reports the number of entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}
