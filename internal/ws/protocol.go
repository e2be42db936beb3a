package ws

import (
	"encoding/json"

	"github.com/cardio-live/cardiolive/internal/session"
)

type MessageType string

const (
	MsgSnapshot   MessageType = "snapshot"
	MsgSession    MessageType = "session"
	MsgSample     MessageType = "sample"
	MsgDisconnect MessageType = "disconnect"
	MsgError      MessageType = "error"
)

// WSMessage is the envelope for every websocket frame. Seq increases by one
// per message on a given stream.
type WSMessage struct {
	Type    MessageType `json:"type"`
	Seq     uint64      `json:"seq,omitempty"`
	Payload interface{} `json:"payload"`
}

// RawMessage is WSMessage with the payload left undecoded, for clients.
type RawMessage struct {
	Type    MessageType     `json:"type"`
	Seq     uint64          `json:"seq,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// SessionPayload carries a session lifecycle event.
type SessionPayload struct {
	Event   string          `json:"event"`
	Session session.Session `json:"session"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
