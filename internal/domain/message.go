package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"unicode/utf8"
)

// Message is a structured payload addressed to a group. Payload is relayed
// without interpretation; Origin is uuid.Nil for server-originated messages.
type Message struct {
	Group   GroupID
	Origin  ConnectionID
	Payload json.RawMessage
}

// DecodeMessage validates that data is structured (JSON) and wraps it as a
// Message. The payload bytes are kept exactly as received, surrounding
// whitespace included.
func DecodeMessage(group GroupID, origin ConnectionID, data []byte) (Message, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Message{}, &DecodeError{Size: len(data), Cause: errors.New("empty payload")}
	}
	// json.Valid tolerates invalid UTF-8 inside strings; relaying that as a
	// text frame would make browsers fail every receiving connection.
	if !utf8.Valid(data) {
		return Message{}, &DecodeError{Size: len(data), Cause: errors.New("invalid UTF-8")}
	}
	if !json.Valid(data) {
		return Message{}, &DecodeError{Size: len(data)}
	}

	payload := make(json.RawMessage, len(data))
	copy(payload, data)

	return Message{Group: group, Origin: origin, Payload: payload}, nil
}
