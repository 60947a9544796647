package message

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// TempIDPrefix marks locally generated ids so they can never collide with
// server-assigned ones.
const TempIDPrefix = "temp-"

// Status represents the delivery status of a message. Per message the
// status forms a monotonic lattice: Sending < Sent < Delivered < Read, with
// Failed reachable only from Sending or Sent.
type Status uint8

const (
	// StatusSending means the optimistic record awaits server confirmation.
	StatusSending Status = iota
	// StatusSent means the server confirmed the message.
	StatusSent
	// StatusDelivered means the counterparty's device acknowledged it.
	StatusDelivered
	// StatusRead means the counterparty read it.
	StatusRead
	// StatusFailed means the send timed out or errored. Retry is a
	// user-initiated action that starts a fresh send.
	StatusFailed
)

// String returns the lowercase status name.
func (s Status) String() string {
	switch s {
	case StatusSending:
		return "sending"
	case StatusSent:
		return "sent"
	case StatusDelivered:
		return "delivered"
	case StatusRead:
		return "read"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// CanTransition reports whether moving from s to next is a valid forward
// step in the lattice. Reapplying the same or an earlier status is not a
// valid transition; callers treat that as an idempotent no-op.
func (s Status) CanTransition(next Status) bool {
	if s == StatusFailed {
		return false
	}
	if next == StatusFailed {
		return s == StatusSending || s == StatusSent
	}
	return next > s
}

// Message is a single chat message owned by exactly one conversation.
type Message struct {
	ID          string
	ChatID      string
	SenderID    string
	Content     string
	Media       []string
	SentAt      time.Time
	DeliveredAt *time.Time
	ReadAt      *time.Time
	Status      Status
}

// IsTemp reports whether the message still carries a locally generated id.
func (m *Message) IsTemp() bool {
	return strings.HasPrefix(m.ID, TempIDPrefix)
}

// NewTempID generates a fresh unambiguous temporary message id.
func NewTempID() string {
	return TempIDPrefix + uuid.NewString()
}
