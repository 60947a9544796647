package transport

import (
	"context"
	"encoding/json"
)

// Frame is the unit of exchange with the chat server: an event name plus
// its JSON payload.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// FrameHandler receives every inbound frame in arrival order. The handler
// also receives the synthetic "connect", "connect_error" and "disconnect"
// frames describing the transport's own lifecycle.
type FrameHandler func(frame Frame)

// Transport defines the interface for the bidirectional connection used by
// the synchronization core. Implementations deliver frames to a single
// handler; the connection manager owns fan-out.
type Transport interface {
	// Dial establishes the connection. On success a "connect" frame is
	// delivered before Dial returns; on failure a "connect_error" frame
	// carries the reason.
	Dial(ctx context.Context) error

	// Emit sends an event with a JSON-encodable payload to the server.
	Emit(event string, payload any) error

	// Close tears the connection down and stops any automatic redialing.
	Close() error

	// SetFrameHandler registers the receiver for inbound frames. Must be
	// called before Dial.
	SetFrameHandler(handler FrameHandler)
}
