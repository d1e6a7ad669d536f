package wire

import (
	"errors"
	"fmt"
)

// ErrEmptyHandle is returned when a frame carries no handle.
var ErrEmptyHandle = errors.New("frame has an empty handle")

// Message is the frame of both physical channels: the event channel carries
// it as-is, the call channel uses it as the request.
type Message struct {
	Handle string `json:"h" msgpack:"h"`
	Args   []byte `json:"a,omitempty" msgpack:"a,omitempty"`
}

// Status is the outcome carried by a Reply.
type Status string

const (
	StatusOK            Status = "ok"
	StatusUnknownHandle Status = "unknown_handle"
	StatusNoResponder   Status = "no_responder"
	StatusFailed        Status = "failed"
	StatusMalformed     Status = "malformed"
)

// Reply is the response frame of the call channel. Result is only set when
// Status is StatusOK.
type Reply struct {
	Status Status `json:"s" msgpack:"s"`
	Result []byte `json:"r,omitempty" msgpack:"r,omitempty"`
}

// EncodeMessage encodes a message frame.
func EncodeMessage(c Codec, handle string, args []byte) ([]byte, error) {
	if handle == "" {
		return nil, ErrEmptyHandle
	}
	frame, err := c.Marshal(&Message{Handle: handle, Args: args})
	if err != nil {
		return nil, fmt.Errorf("encode message %q: %w", handle, err)
	}
	return frame, nil
}

// DecodeMessage decodes a message frame and rejects frames without a handle.
func DecodeMessage(c Codec, frame []byte) (*Message, error) {
	msg := &Message{}
	if err := c.Unmarshal(frame, msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	if msg.Handle == "" {
		return nil, ErrEmptyHandle
	}
	return msg, nil
}

// EncodeReply encodes a reply frame.
func EncodeReply(c Codec, status Status, result []byte) ([]byte, error) {
	frame, err := c.Marshal(&Reply{Status: status, Result: result})
	if err != nil {
		return nil, fmt.Errorf("encode reply: %w", err)
	}
	return frame, nil
}

// DecodeReply decodes a reply frame.
func DecodeReply(c Codec, frame []byte) (*Reply, error) {
	reply := &Reply{}
	if err := c.Unmarshal(frame, reply); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	return reply, nil
}
