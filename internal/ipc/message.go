// Package ipc implements the length-prefixed request/response/notification
// transport shared by the supervisor and all four service processes (§4.2).
//
// Wire format: a big-endian uint32 byte count followed by that many bytes of
// UTF-8 JSON. The decoder consumes exactly one message per call and reports
// how many bytes it read, so concatenated frames (as arrive on a stream
// socket) can be decoded one at a time without buffering a whole connection.
package ipc

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// MaxMessageBytes is the hard cap on a single frame's payload. A length
// header exceeding this is rejected before any buffer is allocated.
const MaxMessageBytes = 16 * 1024 * 1024

// MaxClientBufferBytes is the cap on unconsumed bytes buffered per
// connection on the server side (§4.2 "per-client read buffer capped").
const MaxClientBufferBytes = 64 * 1024 * 1024

// Kind distinguishes the four JSON-level message shapes.
type Kind string

const (
	KindRequest      Kind = "request"
	KindResponse     Kind = "response"
	KindError        Kind = "error"
	KindNotification Kind = "notification"
)

// Envelope is the superset of fields across all four message shapes; callers
// inspect Type to know which fields are meaningful.
type Envelope struct {
	Type   Kind            `json:"type"`
	ID     uint64          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *WireError      `json:"error,omitempty"`
}

// WireError is the {code, codeString, message} shape used by every error
// response regardless of which service produced it.
type WireError struct {
	Code       int    `json:"code"`
	CodeString string `json:"codeString"`
	Message    string `json:"message"`
}

// NewRequest builds a request envelope with the given id and parameters.
func NewRequest(id uint64, method string, params any) (Envelope, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: KindRequest, ID: id, Method: method, Params: raw}, nil
}

// NewNotification builds a notification envelope (no id).
func NewNotification(method string, params any) (Envelope, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: KindNotification, Method: method, Params: raw}, nil
}

// NewResponse builds a success response envelope for the given request id.
func NewResponse(id uint64, result any) (Envelope, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return Envelope{}, fmt.Errorf("ipc: marshal result: %w", err)
	}
	return Envelope{Type: KindResponse, ID: id, Result: raw}, nil
}

// NewError builds an error response envelope for the given request id.
func NewError(id uint64, code int, codeString, message string) Envelope {
	return Envelope{
		Type: KindError,
		ID:   id,
		Error: &WireError{
			Code:       code,
			CodeString: codeString,
			Message:    message,
		},
	}
}

func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("ipc: marshal params: %w", err)
	}
	return raw, nil
}

// Encode serializes an envelope as a length-prefixed frame.
func Encode(env Envelope) ([]byte, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("ipc: marshal envelope: %w", err)
	}
	if len(body) > MaxMessageBytes {
		return nil, fmt.Errorf("ipc: encoded message %d bytes exceeds max %d", len(body), MaxMessageBytes)
	}
	out := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(out[:4], uint32(len(body)))
	copy(out[4:], body)
	return out, nil
}

// Decode consumes exactly one frame from buf and returns the decoded
// envelope plus the number of bytes consumed. It returns (zero, 0, nil) when
// buf does not yet contain a complete frame (the caller should read more).
func Decode(buf []byte) (Envelope, int, error) {
	if len(buf) < 4 {
		return Envelope{}, 0, nil
	}
	length := binary.BigEndian.Uint32(buf[:4])
	if length > MaxMessageBytes {
		return Envelope{}, 0, fmt.Errorf("ipc: frame length %d exceeds max %d", length, MaxMessageBytes)
	}
	total := 4 + int(length)
	if len(buf) < total {
		return Envelope{}, 0, nil
	}
	var env Envelope
	if err := json.Unmarshal(buf[4:total], &env); err != nil {
		return Envelope{}, 0, fmt.Errorf("ipc: decode envelope: %w", err)
	}
	return env, total, nil
}
