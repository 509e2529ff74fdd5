package chat

import (
	"encoding/json"
	"fmt"

	"hichat/internal/app/user"
	"hichat/internal/pkg/errs"
)

// EventType names a websocket frame. Frames are {"type": ..., "payload": ...} in both directions.
type EventType string

// Client to server.
const (
	EventAuthenticate  EventType = "authenticate"
	EventChatMessage   EventType = "chatMessage"
	EventDeleteMessage EventType = "deleteMessage"
	EventTyping        EventType = "typing"
	EventSetName       EventType = "setName"
)

// Server to client. EventChatMessage and EventTyping are shared with the inbound set.
const (
	EventAuthenticated   EventType = "authenticated"
	EventAuthError       EventType = "authError"
	EventRecentMessages  EventType = "recentMessages"
	EventMessageDeleted  EventType = "messageDeleted"
	EventUsersOnline     EventType = "usersOnline"
	EventNameAccepted    EventType = "nameAccepted"
	EventUserNameChanged EventType = "userNameChanged"
	EventUserLeft        EventType = "userLeft"
	EventError           EventType = "error"
)

// InboundFrame is a frame read from a client. Payload is decoded per event type.
type InboundFrame struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// OutboundFrame is a frame written to a client.
type OutboundFrame struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

type AuthenticatePayload struct {
	Token string `json:"token"`
}

type AuthenticatedPayload struct {
	Username string `json:"username"`
}

type TypingPayload struct {
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// encodeFrame marshals an outbound frame once so it can be fanned out as raw bytes.
func encodeFrame(event EventType, payload any) ([]byte, error) {
	data, err := json.Marshal(OutboundFrame{Type: event, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", event, err)
	}
	return data, nil
}

func errorPayload(code int) ErrorPayload {
	e := errs.NewError(code)
	return ErrorPayload{Code: e.Code, Message: e.Message}
}

// presencePayload is the wire shape of a usersOnline snapshot.
func presencePayload(entries []PresenceEntry) []user.Identity {
	out := make([]user.Identity, len(entries))
	for i, e := range entries {
		out[i] = e.Identity
	}
	return out
}

// truthy mirrors loose boolean coercion for the typing flag: null, false, 0 and "" are false.
func truthy(raw json.RawMessage) bool {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	default:
		return true
	}
}
