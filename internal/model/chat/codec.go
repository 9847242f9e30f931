package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformedRecord is returned by Decode for payloads that are not a
	// well-formed chat record.
	ErrMalformedRecord = errors.New("malformed chat record")
)

// wireRecord mirrors Message with pointer fields so that absent keys can be
// told apart from zero values.
type wireRecord struct {
	ID        *string `json:"id"`
	Username  *string `json:"username"`
	Message   *string `json:"message"`
	Timestamp *int64  `json:"timestamp"`
	IsAI      *bool   `json:"is_ai"`
	SessionID *string `json:"session_id"`
}

// Encode serializes a message into a single self-contained JSON record.
func Encode(msg Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode chat record: %w", err)
	}
	return data, nil
}

// Decode parses one JSON record. id, username, message, timestamp and is_ai
// are required; session_id may be omitted.
func Decode(data []byte) (Message, error) {
	var rec wireRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}

	var missing []string
	if rec.ID == nil {
		missing = append(missing, "id")
	}
	if rec.Username == nil {
		missing = append(missing, "username")
	}
	if rec.Message == nil {
		missing = append(missing, "message")
	}
	if rec.Timestamp == nil {
		missing = append(missing, "timestamp")
	}
	if rec.IsAI == nil {
		missing = append(missing, "is_ai")
	}
	if len(missing) > 0 {
		return Message{}, fmt.Errorf("%w: missing %s", ErrMalformedRecord, strings.Join(missing, ", "))
	}

	msg := Message{
		ID:          *rec.ID,
		Author:      *rec.Username,
		Body:        *rec.Message,
		CreatedAt:   *rec.Timestamp,
		IsAutomated: *rec.IsAI,
	}
	if rec.SessionID != nil {
		msg.SessionID = *rec.SessionID
	}

	if msg.ID == "" {
		return Message{}, fmt.Errorf("%w: empty id", ErrMalformedRecord)
	}
	if !msg.HasBody() {
		return Message{}, fmt.Errorf("%w: empty message", ErrMalformedRecord)
	}
	return msg, nil
}
