package transport

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/md-asharaf/campus-bazaar-sub000/event"
)

// MockTransport implements Transport for testing. Tests script dial results
// through DialFunc and inject server frames with Receive.
type MockTransport struct {
	// DialFunc, when set, decides the outcome of each Dial call. A nil
	// DialFunc means every dial succeeds.
	DialFunc func(ctx context.Context) error

	mu      sync.Mutex
	handler FrameHandler
	sent    []Frame
	dials   int
	closed  bool
}

// NewMockTransport creates a mock transport whose dials all succeed.
func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

// Dial implements Transport. It delivers the same synthetic frames the
// websocket transport would: "connect" on success, "connect_error" with the
// error message on failure.
func (m *MockTransport) Dial(ctx context.Context) error {
	m.mu.Lock()
	m.dials++
	fn := m.DialFunc
	m.mu.Unlock()

	if fn != nil {
		if err := fn(ctx); err != nil {
			m.Receive(event.TransportConnectError, &event.ConnectErrorPayload{Message: err.Error()})
			return err
		}
	}
	m.Receive(event.TransportConnect, nil)
	return nil
}

// Emit implements Transport, recording the frame for later inspection.
func (m *MockTransport) Emit(eventName string, payload any) error {
	frame := Frame{Event: eventName}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		frame.Data = data
	}

	m.mu.Lock()
	m.sent = append(m.sent, frame)
	m.mu.Unlock()
	return nil
}

// Close implements Transport.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// SetFrameHandler implements Transport.
func (m *MockTransport) SetFrameHandler(handler FrameHandler) {
	m.mu.Lock()
	m.handler = handler
	m.mu.Unlock()
}

// Receive simulates an inbound frame from the server.
func (m *MockTransport) Receive(eventName string, payload any) {
	frame := Frame{Event: eventName}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return
		}
		frame.Data = data
	}

	m.mu.Lock()
	handler := m.handler
	m.mu.Unlock()
	if handler != nil {
		handler(frame)
	}
}

// Sent returns every frame emitted through the transport.
func (m *MockTransport) Sent() []Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Frame, len(m.sent))
	copy(out, m.sent)
	return out
}

// SentNamed returns the emitted frames matching the given event name.
func (m *MockTransport) SentNamed(eventName string) []Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Frame
	for _, f := range m.sent {
		if f.Event == eventName {
			out = append(out, f)
		}
	}
	return out
}

// Dials returns how many times Dial was called.
func (m *MockTransport) Dials() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dials
}

// Closed reports whether Close has been called.
func (m *MockTransport) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
