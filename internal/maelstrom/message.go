package maelstrom

import (
	"encoding/json"
	"fmt"
)

// Standard error codes defined by the harness protocol.
const (
	ErrTimeout                = 0
	ErrNotSupported           = 10
	ErrTemporarilyUnavailable = 11
	ErrMalformedRequest       = 12
	ErrCrash                  = 13
	ErrAbort                  = 14
)

// Message is a single envelope exchanged with the harness or a peer.
type Message struct {
	Src  string          `json:"src,omitempty"`
	Dest string          `json:"dest,omitempty"`
	Body json.RawMessage `json:"body,omitempty"`
}

// MessageBody holds the fields common to every message body. Concrete
// bodies embed it and add their type-specific fields.
type MessageBody struct {
	Type      string `json:"type,omitempty"`
	MsgID     int    `json:"msg_id,omitempty"`
	InReplyTo int    `json:"in_reply_to,omitempty"`
	Code      int    `json:"code,omitempty"`
	Text      string `json:"text,omitempty"`
}

// Type returns the body's message type, or "" if the body cannot be parsed.
func (m Message) Type() string {
	var body MessageBody
	if err := json.Unmarshal(m.Body, &body); err != nil {
		return ""
	}
	return body.Type
}

// RPCError is a protocol-level error. A handler that returns one gets it
// sent back to the requester as an "error" body with the given code.
type RPCError struct {
	Code int
	Text string
}

// NewRPCError creates a protocol error with the given code and text.
func NewRPCError(code int, text string) *RPCError {
	return &RPCError{Code: code, Text: text}
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error (code %d): %s", e.Code, e.Text)
}

func (e *RPCError) body() MessageBody {
	return MessageBody{Type: "error", Code: e.Code, Text: e.Text}
}
