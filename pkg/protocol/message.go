package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType discriminates messages on the live channel.
type MessageType string

const (
	// TypeChange reports a widget edit. Key names the parameter and Value
	// carries the widget's raw value.
	TypeChange MessageType = "change"

	// TypeExportAll toggles the session's export mode. Value is a boolean.
	TypeExportAll MessageType = "export_all"

	// TypeURLReplace tells the client to replace its query string.
	TypeURLReplace MessageType = "url_replace"

	// TypeError reports a rejected client message.
	TypeError MessageType = "error"
)

// ClientMessage is a message sent from the browser to the server.
type ClientMessage struct {
	Type  MessageType `json:"type"`
	Key   string      `json:"key,omitempty"`
	Value string      `json:"value"`
}

// URLReplace carries the full query string after an export.
type URLReplace struct {
	Type MessageType `json:"type"`

	// Query maps each exported key to its serialized value.
	Query map[string]string `json:"query"`

	// Encoded is Query in application/x-www-form-urlencoded form, sorted by key.
	Encoded string `json:"encoded"`
}

// NewURLReplace builds a url_replace message.
func NewURLReplace(query map[string]string, encoded string) *URLReplace {
	if query == nil {
		query = map[string]string{}
	}
	return &URLReplace{Type: TypeURLReplace, Query: query, Encoded: encoded}
}

// ErrMessageTooLarge is returned for client messages over MaxMessageSize.
var ErrMessageTooLarge = errors.New("protocol: message too large")

// DecodeClientMessage parses and validates a client message.
func DecodeClientMessage(data []byte) (*ClientMessage, error) {
	if len(data) > MaxMessageSize {
		return nil, ErrMessageTooLarge
	}
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("protocol: %w", err)
	}
	switch msg.Type {
	case TypeChange:
		if msg.Key == "" {
			return nil, errors.New("protocol: change message without key")
		}
		if len(msg.Key) > MaxKeyLength {
			return nil, fmt.Errorf("protocol: key longer than %d bytes", MaxKeyLength)
		}
	case TypeExportAll:
	default:
		return nil, fmt.Errorf("protocol: unknown message type %q", msg.Type)
	}
	return &msg, nil
}
