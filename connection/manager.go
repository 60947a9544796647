package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/md-asharaf/campus-bazaar-sub000/event"
	"github.com/md-asharaf/campus-bazaar-sub000/transport"
)

const (
	// DefaultMaxAuthRetries bounds connection attempts before giving up.
	DefaultMaxAuthRetries = 3
	// DefaultAuthRetryDelay is the pause between attempts, long enough for
	// an out-of-band credential refresh to complete.
	DefaultAuthRetryDelay = 2 * time.Second
)

// ErrRetriesExhausted is returned by Connect when every attempt failed.
var ErrRetriesExhausted = errors.New("connection: retries exhausted")

// ErrDisconnected is returned to a pending Connect when Disconnect is
// called before the connection is established.
var ErrDisconnected = errors.New("connection: disconnected")

// StateCallback is invoked whenever the connection state changes.
type StateCallback func(state State)

// Config tunes the Manager's retry behavior.
type Config struct {
	MaxAuthRetries int
	AuthRetryDelay time.Duration
}

// Manager owns the transport socket and drives the connection state
// machine. Every inbound frame is republished verbatim onto the event bus
// before any internal processing, so external consumers and internal
// components observe events identically and in the same order.
type Manager struct {
	tr  transport.Transport
	bus *event.Bus

	maxRetries int
	retryDelay time.Duration

	mu         sync.Mutex
	state      State
	attempts   int
	pending    []chan error
	retryTimer *time.Timer
	dialCtx    context.Context
	dialCancel context.CancelFunc
	onState    StateCallback
}

// NewManager wires a Manager to the transport and bus. The Manager installs
// itself as the transport's frame handler.
func NewManager(tr transport.Transport, bus *event.Bus, cfg Config) *Manager {
	if cfg.MaxAuthRetries <= 0 {
		cfg.MaxAuthRetries = DefaultMaxAuthRetries
	}
	if cfg.AuthRetryDelay <= 0 {
		cfg.AuthRetryDelay = DefaultAuthRetryDelay
	}

	m := &Manager{
		tr:         tr,
		bus:        bus,
		maxRetries: cfg.MaxAuthRetries,
		retryDelay: cfg.AuthRetryDelay,
		state:      StateDisconnected,
	}
	tr.SetFrameHandler(m.handleFrame)
	return m
}

// OnStateChange registers a callback for state transitions. The callback is
// invoked outside the Manager's lock.
func (m *Manager) OnStateChange(cb StateCallback) {
	m.mu.Lock()
	m.onState = cb
	m.mu.Unlock()
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsConnected reports whether the connection is established.
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// Connect dials the server and blocks until the connection is established,
// the bounded retries exhaust, or ctx is done. Calling Connect while a
// connect is already in flight joins the pending attempt.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateConnected {
		m.mu.Unlock()
		return nil
	}

	waiter := make(chan error, 1)
	m.pending = append(m.pending, waiter)

	switch m.state {
	case StateConnecting, StateReconnecting:
		// A dial is already in flight: either ours or the transport's
		// redial loop. Joining it avoids racing two sockets.
	default:
		m.setStateLocked(StateConnecting)
		m.attempts = 0
		m.dialCtx, m.dialCancel = context.WithCancel(context.Background())
		go m.dial()
	}
	m.mu.Unlock()

	select {
	case err := <-waiter:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Disconnect tears the connection down, cancels any pending retries, and
// settles a pending Connect with ErrDisconnected. It is idempotent.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	if m.dialCancel != nil {
		m.dialCancel()
		m.dialCancel = nil
	}
	m.setStateLocked(StateDisconnected)
	m.failPendingLocked(ErrDisconnected)
	m.mu.Unlock()

	m.tr.Close()

	logrus.WithFields(logrus.Fields{
		"function": "Disconnect",
	}).Info("Connection closed by client")
}

// Emit sends an event to the server. While not connected it logs a warning
// and drops the event instead of queueing or failing, so opportunistic
// callers cannot crash the session.
func (m *Manager) Emit(eventName string, payload any) error {
	if !m.IsConnected() {
		logrus.WithFields(logrus.Fields{
			"function": "Emit",
			"event":    eventName,
			"state":    m.State().String(),
		}).Warn("Emit dropped: not connected")
		return nil
	}
	return m.tr.Emit(eventName, payload)
}

func (m *Manager) dial() {
	m.mu.Lock()
	ctx := m.dialCtx
	m.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	if err := m.tr.Dial(ctx); err != nil {
		// The transport already delivered a connect_error frame; the
		// retry decision happens in handleFrame.
		logrus.WithFields(logrus.Fields{
			"function": "dial",
			"error":    err,
		}).Debug("Dial attempt failed")
	}
}

// handleFrame receives every transport frame in arrival order.
func (m *Manager) handleFrame(frame transport.Frame) {
	payload, err := event.DecodePayload(frame.Event, frame.Data)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "handleFrame",
			"event":    frame.Event,
			"error":    err,
		}).Warn("Malformed event payload")
		payload = frame.Data
	}

	// Republish first so consumers see the raw stream untouched.
	m.bus.Publish(frame.Event, payload)

	switch frame.Event {
	case event.TransportConnect:
		m.onConnect()
	case event.TransportConnectError:
		msg := ""
		if p, ok := payload.(*event.ConnectErrorPayload); ok {
			msg = p.Message
		}
		m.onConnectError(msg)
	case event.TransportDisconnect:
		reason := ""
		if p, ok := payload.(*event.DisconnectPayload); ok {
			reason = p.Reason
		}
		m.onDisconnect(reason)
	}
}

func (m *Manager) onConnect() {
	m.mu.Lock()
	m.setStateLocked(StateConnected)
	m.attempts = 0
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	waiters := m.pending
	m.pending = nil
	m.mu.Unlock()

	for _, w := range waiters {
		w <- nil
	}

	logrus.WithFields(logrus.Fields{
		"function": "onConnect",
	}).Info("Connection established")
}

func (m *Manager) onConnectError(msg string) {
	m.mu.Lock()
	if m.state != StateConnecting {
		// Redial failures while Reconnecting belong to the transport's
		// own retry loop.
		m.mu.Unlock()
		return
	}

	m.attempts++
	logrus.WithFields(logrus.Fields{
		"function": "onConnectError",
		"message":  msg,
		"attempt":  m.attempts,
		"max":      m.maxRetries,
	}).Warn("Connection attempt failed")

	if m.attempts >= m.maxRetries {
		m.setStateLocked(StateError)
		m.failPendingLocked(fmt.Errorf("%w: %s", ErrRetriesExhausted, msg))
		m.mu.Unlock()
		return
	}

	// The fixed delay gives an out-of-band session refresh a chance to
	// complete before the next attempt picks up the new token.
	m.retryTimer = time.AfterFunc(m.retryDelay, func() {
		if m.State() == StateConnecting {
			m.dial()
		}
	})
	m.mu.Unlock()
}

func (m *Manager) onDisconnect(reason string) {
	m.mu.Lock()
	prev := m.state
	switch reason {
	case event.ReasonClientDisconnect, event.ReasonServerDisconnect:
		m.setStateLocked(StateDisconnected)
	default:
		if prev == StateConnected {
			// The transport redials on its own after a drop.
			m.setStateLocked(StateReconnecting)
		}
	}
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "onDisconnect",
		"reason":   reason,
		"state":    m.State().String(),
	}).Info("Connection dropped")
}

// setStateLocked updates the state and schedules the callback. Callers must
// hold m.mu.
func (m *Manager) setStateLocked(next State) {
	if m.state == next {
		return
	}
	prev := m.state
	m.state = next
	cb := m.onState

	logrus.WithFields(logrus.Fields{
		"function":  "setStateLocked",
		"old_state": prev.String(),
		"new_state": next.String(),
	}).Debug("Connection state changed")

	if cb != nil {
		go cb(next)
	}
}

// failPendingLocked settles every pending Connect waiter with err. Callers
// must hold m.mu.
func (m *Manager) failPendingLocked(err error) {
	for _, w := range m.pending {
		w <- err
	}
	m.pending = nil
}
