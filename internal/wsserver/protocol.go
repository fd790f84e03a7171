// Package wsserver streams live input activity to a local monitor client.
//
// # Frame protocol
//
// Every server frame is a JSON text message:
//
//	{"topic": "buttons", "seq": 12, "payload": {...}}
//
// Fields:
//
//   - topic: one of the Topic constants; clients only receive topics they
//     subscribed to.
//   - seq: per-hub sequence number, strictly increasing across topics.
//   - payload: topic-specific object (a button event, a trigger, a capture
//     result).
//
// Clients send {"action": "subscribe"|"unsubscribe", "topics": [...]}.
// EncodeFrame produces server frames; DecodeFrame parses them.
package wsserver

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Topic names a stream of monitor frames.
type Topic string

const (
	// TopicButtons carries every rising edge published on the input bus.
	TopicButtons Topic = "buttons"
	// TopicTriggers carries resolved hotkey triggers.
	TopicTriggers Topic = "triggers"
	// TopicCapture carries capture session start and end notifications.
	TopicCapture Topic = "capture"
)

var errEmptyTopic = errors.New("topic must not be empty")

// Valid reports whether t is a known topic.
func (t Topic) Valid() bool {
	switch t {
	case TopicButtons, TopicTriggers, TopicCapture:
		return true
	default:
		return false
	}
}

// Frame is one server-to-client message.
type Frame struct {
	Topic   Topic           `json:"topic"`
	Seq     uint64          `json:"seq"`
	Payload json.RawMessage `json:"payload"`
}

// EncodeFrame marshals payload and wraps it in a frame for topic.
func EncodeFrame(topic Topic, seq uint64, payload any) ([]byte, error) {
	if topic == "" {
		return nil, fmt.Errorf("wsserver: encode frame: %w", errEmptyTopic)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("wsserver: encode %s payload: %w", topic, err)
	}
	return json.Marshal(Frame{Topic: topic, Seq: seq, Payload: raw})
}

// DecodeFrame parses a frame produced by EncodeFrame.
// The returned payload is left raw for the caller to decode per topic.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("wsserver: decode frame: %w", err)
	}
	if f.Topic == "" {
		return Frame{}, fmt.Errorf("wsserver: decode frame: %w", errEmptyTopic)
	}
	return f, nil
}
