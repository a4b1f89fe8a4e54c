package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientQuery    MessageType = "client_query"
	TypeProviderResult MessageType = "provider_result"
	TypeCycleSummary   MessageType = "cycle_summary"
	TypeErrorEvent     MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// ClientQuery asks for one fan-out cycle over the websocket. APIKeys may be
// omitted when the server holds default credentials or Simulate is set.
type ClientQuery struct {
	Type        MessageType       `json:"type"`
	SessionID   string            `json:"session_id,omitempty"`
	ProviderIDs []string          `json:"provider_ids"`
	Prompt      string            `json:"prompt"`
	APIKeys     map[string]string `json:"api_keys,omitempty"`
	Simulate    bool              `json:"simulate,omitempty"`
}

// ProviderResult streams one provider's settled answer, in completion order.
type ProviderResult struct {
	Type         MessageType `json:"type"`
	SessionID    string      `json:"session_id"`
	ProviderID   string      `json:"id"`
	ProviderName string      `json:"name"`
	Status       string      `json:"status"`
	Text         string      `json:"response"`
}

// CycleSummary closes a cycle with the full result list in requested
// provider order.
type CycleSummary struct {
	Type      MessageType      `json:"type"`
	SessionID string           `json:"session_id"`
	Results   []ProviderResult `json:"results"`
}

type ErrorEvent struct {
	Type   MessageType `json:"type"`
	Code   string      `json:"code"`
	Detail string      `json:"detail,omitempty"`
}

// ParseClientMessage decodes and validates an inbound websocket frame.
func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientQuery:
		var msg ClientQuery
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Prompt == "" || len(msg.ProviderIDs) == 0 {
			return nil, errors.New("invalid client_query")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
