package domain

import "time"

// MessageKind is the transport-level payload kind of an inbound message.
type MessageKind string

const (
	KindText     MessageKind = "text"
	KindAudio    MessageKind = "audio"
	KindTemplate MessageKind = "template"
)

// InboundMessage is one webhook delivery, normalized from the transport payload.
type InboundMessage struct {
	SenderID      string // phone number (waId)
	TransportID   string // transport message id, may be empty for malformed payloads
	Text          string
	Kind          MessageKind
	ReceivedAt    time.Time
	AudioData     []byte // raw audio payload when Kind == KindAudio

	// Agent-takeover signature: set when the event was authored by a human
	// operator rather than the end user.
	AgentOwner    bool
	OperatorEmail string
	ConversationID string
}

// ConversationTurn is one logical user turn: one or more rapid-fire messages
// from the same sender coalesced by the batcher.
type ConversationTurn struct {
	SenderID    string
	Text        string // ordered concatenation of the batched messages
	TransportID string // id of the first message in the window
	OpenedAt    time.Time
	ClosedAt    time.Time
	Count       int // messages coalesced into this turn
}

// MessageType is the coarse classification assigned to a user turn.
type MessageType string

const (
	TypeGreeting       MessageType = "greeting"
	TypeSuggestion     MessageType = "suggestion"
	TypeComplaint      MessageType = "complaint"
	TypeInquiry        MessageType = "inquiry"
	TypeServiceRequest MessageType = "service_request"
	TypeOther          MessageType = "other"
)

// ValidMessageType reports whether t is one of the allowed classification values.
func ValidMessageType(t MessageType) bool {
	switch t {
	case TypeGreeting, TypeSuggestion, TypeComplaint, TypeInquiry, TypeServiceRequest, TypeOther:
		return true
	}
	return false
}

// ClassificationResult is the ephemeral output of the classifier.
type ClassificationResult struct {
	Type       MessageType
	Language   string // "ar" | "en"
	Confidence float64
}
