// Package server defines the wire envelope and event payloads exchanged with
// clients, plus small helpers shared by client and hub logic.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Tyrowin/gochat-relay/internal/presence"
)

// Event names used on the wire.
const (
	EventRegister    = "register"
	EventChatMessage = "chat message"
	EventBotQuery    = "bot query"
	EventUserList    = "user list"
)

// AnonymousName is the sender shown for connections that never registered.
const AnonymousName = "Anonymous"

var (
	// ErrInvalidEnvelope reports a frame that is not a JSON envelope with a
	// string payload.
	ErrInvalidEnvelope = errors.New("invalid event envelope")

	// ErrUnknownEvent reports an envelope whose event name is not handled.
	ErrUnknownEvent = errors.New("unknown event")
)

// eventAliases maps the socket.io event names older clients still send.
var eventAliases = map[string]string{
	"set username":     EventRegister,
	"gemini bot query": EventBotQuery,
}

// Envelope is the JSON frame format in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ChatMessage is the payload of an outbound chat message event.
type ChatMessage struct {
	Username string `json:"username"`
	Text     string `json:"text"`
}

// InboundEvent is a decoded client event queued for the hub loop.
type InboundEvent struct {
	Client *Client
	Name   string
	Data   string
}

// parseInbound decodes a raw frame into an event name and its string payload.
func parseInbound(raw []byte) (string, string, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrInvalidEnvelope, err)
	}

	name := strings.TrimSpace(env.Event)
	if alias, ok := eventAliases[name]; ok {
		name = alias
	}

	switch name {
	case EventRegister, EventChatMessage, EventBotQuery:
	default:
		return "", "", fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}

	var data string
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return "", "", fmt.Errorf("%w: %s payload must be a string", ErrInvalidEnvelope, name)
		}
	}
	return name, data, nil
}

// encodeEvent marshals an outbound envelope.
func encodeEvent(name string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: name, Data: data})
}

// userListPayload keeps the user list a JSON array even when empty.
func userListPayload(entries []presence.Entry) []presence.Entry {
	if entries == nil {
		return []presence.Entry{}
	}
	return entries
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
