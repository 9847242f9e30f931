package chat

import (
	"strings"
	"time"
)

// Message is a single chat entry as exchanged over the realtime channel.
// Values are immutable once built; copy before changing any field.
type Message struct {
	ID          string `json:"id"`
	Author      string `json:"username"`
	Body        string `json:"message"`
	CreatedAt   int64  `json:"timestamp"`
	IsAutomated bool   `json:"is_ai"`
	// SessionID is assigned by the backend. Client-originated records always
	// carry it empty.
	SessionID string `json:"session_id"`
}

// Time converts CreatedAt (milliseconds since epoch) to a time.Time.
func (m Message) Time() time.Time {
	return time.UnixMilli(m.CreatedAt)
}

// HasBody reports whether the body is non-empty after trimming whitespace.
func (m Message) HasBody() bool {
	return strings.TrimSpace(m.Body) != ""
}
