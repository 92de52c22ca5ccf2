// Package protocol defines the duplex message schema broadcast to operator
// clients over the websocket feed.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies a broadcast payload variant.
type MessageType string

const (
	TypeConnected            MessageType = "connected"
	TypeDisconnected         MessageType = "disconnected"
	TypeCallInitiated        MessageType = "call_initiated"
	TypeCallInProgress       MessageType = "call_in_progress"
	TypeCallStatus           MessageType = "call_status"
	TypeCallTranscriptUpdate MessageType = "call_transcript_update"
	TypePing                 MessageType = "ping"
)

var ErrUnsupportedType = errors.New("unsupported message type")

// Envelope is the minimal shape every broadcast message shares.
type Envelope struct {
	Type MessageType `json:"type"`
}

type Connected struct {
	Type         MessageType `json:"type"`
	SubscriberID string      `json:"subscriber_id"`
}

type Disconnected struct {
	Type         MessageType `json:"type"`
	SubscriberID string      `json:"subscriber_id"`
	Reason       string      `json:"reason,omitempty"`
}

type CallInitiated struct {
	Type     MessageType `json:"type"`
	CallID   string      `json:"call_id"`
	LeadID   string      `json:"lead_id"`
	ToNumber string      `json:"to_number"`
}

type CallInProgress struct {
	Type   MessageType `json:"type"`
	CallID string      `json:"call_id"`
	State  string      `json:"state"`
}

type CallStatus struct {
	Type   MessageType `json:"type"`
	CallID string      `json:"call_id"`
	Status string      `json:"status"`
	TSMs   int64       `json:"ts_ms,omitempty"`
}

type CallTranscriptUpdate struct {
	Type   MessageType `json:"type"`
	CallID string      `json:"call_id"`
	Role   string      `json:"role"`
	Delta  string      `json:"delta"`
	Final  bool        `json:"final"`
}

type Ping struct {
	Type MessageType `json:"type"`
	TSMs int64       `json:"ts_ms"`
}

// Marshal encodes any of the above message structs as a broadcast frame.
func Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

// ParseType inspects the raw frame's discriminator without decoding the
// whole payload, mirroring the teacher's dispatch-by-type idiom.
func ParseType(raw []byte) (MessageType, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", fmt.Errorf("parse envelope: %w", err)
	}
	switch env.Type {
	case TypeConnected, TypeDisconnected, TypeCallInitiated, TypeCallInProgress,
		TypeCallStatus, TypeCallTranscriptUpdate, TypePing:
		return env.Type, nil
	default:
		return "", ErrUnsupportedType
	}
}
