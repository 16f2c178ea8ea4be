package proto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

// Subprotocol is the WebSocket sub-protocol token both ends negotiate.
const Subprotocol = "chat"

// TypeMessage is the only envelope type currently defined.
const TypeMessage = "message"

// Validation failures. Every one of them means "drop silently".
var (
	ErrInvalidUTF8  = errors.New("payload is not valid utf-8")
	ErrNotObject    = errors.New("payload is not a json object")
	ErrUnknownType  = errors.New("unknown or missing message type")
	ErrMissingData  = errors.New("data is missing or not an object")
	ErrInvalidField = errors.New("author and text must be non-empty strings")
)

// Envelope is the top-level wire frame.
type Envelope struct {
	Type string      `json:"type"`
	Data MessageData `json:"data"`
}

// MessageData is the body of a "message" envelope.
type MessageData struct {
	Author string `json:"author"`
	Text   string `json:"text"`
}

// Event is a validated chat message. Values are never mutated after construction.
type Event struct {
	Author string
	Text   string
}

// NewEvent builds an Event, rejecting empty fields.
func NewEvent(author, text string) (Event, error) {
	if author == "" || text == "" {
		return Event{}, ErrInvalidField
	}
	return Event{Author: author, Text: text}, nil
}

// Encode serializes an event into its wire representation.
func Encode(ev Event) ([]byte, error) {
	data, err := json.Marshal(Envelope{
		Type: TypeMessage,
		Data: MessageData{Author: ev.Author, Text: ev.Text},
	})
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return data, nil
}

// Decode runs the validation pipeline over a raw text frame and stops at the first failure.
func Decode(raw []byte) (Event, error) {
	if !utf8.Valid(raw) {
		return Event{}, ErrInvalidUTF8
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope == nil {
		return Event{}, ErrNotObject
	}

	typ, ok := stringField(envelope, "type")
	if !ok || typ != TypeMessage {
		return Event{}, ErrUnknownType
	}

	rawData, ok := envelope["data"]
	if !ok {
		return Event{}, ErrMissingData
	}
	var data map[string]json.RawMessage
	if err := json.Unmarshal(rawData, &data); err != nil || data == nil {
		return Event{}, ErrMissingData
	}

	author, ok := stringField(data, "author")
	if !ok {
		return Event{}, ErrInvalidField
	}
	text, ok := stringField(data, "text")
	if !ok {
		return Event{}, ErrInvalidField
	}

	return NewEvent(author, text)
}

// stringField reports whether key holds a JSON string. null does not count.
func stringField(obj map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := obj[key]
	if !ok {
		return "", false
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}
