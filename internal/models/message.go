package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidMessage = errors.New("invalid message payload")

// Message represents a single chat message exchanged with the realtime backend.
type Message struct {
	ID         string    `json:"messageId,omitempty"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp,omitempty"`
}

// Validate rejects payloads the backend should never have produced.
func (m Message) Validate() error {
	if strings.TrimSpace(m.SenderID) == "" {
		return fmt.Errorf("%w: missing senderId", ErrInvalidMessage)
	}
	if strings.TrimSpace(m.ReceiverID) == "" {
		return fmt.Errorf("%w: missing receiverId", ErrInvalidMessage)
	}
	if m.Text == "" {
		return fmt.Errorf("%w: empty text", ErrInvalidMessage)
	}
	return nil
}

// wireMessage tolerates the loose shapes the backend emits: timestamps arrive
// either as RFC3339 strings or as unix milliseconds.
type wireMessage struct {
	ID         string          `json:"messageId"`
	SenderID   string          `json:"senderId"`
	ReceiverID string          `json:"receiverId"`
	Text       string          `json:"text"`
	Timestamp  json.RawMessage `json:"timestamp"`
}

// DecodeMessage parses and validates a single inbound message payload.
func DecodeMessage(data []byte) (Message, error) {
	var wire wireMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	msg := Message{
		ID:         wire.ID,
		SenderID:   wire.SenderID,
		ReceiverID: wire.ReceiverID,
		Text:       wire.Text,
		Timestamp:  parseTimestamp(wire.Timestamp),
	}
	if err := msg.Validate(); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// DecodeHistory parses a full history replay, dropping malformed entries.
// The number of discarded entries is returned so callers can log it.
func DecodeHistory(data []byte) ([]Message, int, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	msgs := make([]Message, 0, len(raw))
	dropped := 0
	for _, entry := range raw {
		msg, err := DecodeMessage(entry)
		if err != nil {
			dropped++
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs, dropped, nil
}

func parseTimestamp(raw json.RawMessage) time.Time {
	if len(raw) == 0 {
		return time.Time{}
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		if ts, err := time.Parse(time.RFC3339, asString); err == nil {
			return ts
		}
		return time.Time{}
	}

	var asMillis int64
	if err := json.Unmarshal(raw, &asMillis); err == nil && asMillis > 0 {
		return time.UnixMilli(asMillis).UTC()
	}
	return time.Time{}
}
