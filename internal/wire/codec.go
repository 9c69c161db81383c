package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrMalformed       = errors.New("malformed message")
	ErrUnknownProperty = errors.New("unknown player property")
)

// Message is one decoded [tag, payload] frame. The payload is kept raw until a
// handler binds it to its own shape.
type Message struct {
	Tag     Tag
	Payload json.RawMessage
}

// Encode renders a [tag, payload] frame.
func Encode(tag Tag, payload any) ([]byte, error) {
	data, err := json.Marshal([2]any{tag, payload})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", tag, err)
	}
	return data, nil
}

// EncodeDirect wraps a frame in a relay envelope addressed to one identity.
func EncodeDirect(target string, tag Tag, payload any) ([]byte, error) {
	return Encode(TagDirect, map[string][2]any{target: {tag, payload}})
}

func Decode(data []byte) (Message, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(parts) == 0 || len(parts) > 2 {
		return Message{}, fmt.Errorf("%w: want [tag, payload], got %d elements", ErrMalformed, len(parts))
	}
	var tag string
	if err := json.Unmarshal(parts[0], &tag); err != nil {
		return Message{}, fmt.Errorf("%w: tag: %v", ErrMalformed, err)
	}
	m := Message{Tag: Tag(tag)}
	if len(parts) == 2 {
		m.Payload = parts[1]
	}
	return m, nil
}

// Bind decodes the payload into v. A missing payload binds as null.
func (m Message) Bind(v any) error {
	payload := m.Payload
	if len(bytes.TrimSpace(payload)) == 0 {
		payload = json.RawMessage("null")
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrMalformed, m.Tag, err)
	}
	return nil
}

// DecodeDirect splits a relay envelope into per-recipient raw frames.
func DecodeDirect(payload json.RawMessage) (map[string]json.RawMessage, error) {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: direct envelope: %v", ErrMalformed, err)
	}
	return env, nil
}
