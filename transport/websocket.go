package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/md-asharaf/campus-bazaar-sub000/auth"
	"github.com/md-asharaf/campus-bazaar-sub000/event"
)

const (
	// writeWait is the time allowed to write a frame to the peer.
	writeWait = 10 * time.Second
	// pongWait is the time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second
	// pingPeriod is the keepalive interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// maxFrameSize bounds inbound frames.
	maxFrameSize = 64 * 1024
	// redialDelay is the pause between automatic reconnect attempts after
	// a transport-level drop.
	redialDelay = 2 * time.Second
)

// ErrNotDialed is returned by Emit when no connection is established.
var ErrNotDialed = errors.New("transport: not connected")

// WebSocketTransport implements Transport over a websocket connection.
// After a non-explicit drop it redials on its own until it succeeds or
// Close is called; the connection manager observes this as "disconnect"
// followed eventually by another "connect" frame.
type WebSocketTransport struct {
	url    string
	tokens auth.TokenProvider
	dialer *websocket.Dialer

	mu        sync.Mutex
	writeMu   sync.Mutex
	conn      *websocket.Conn
	handler   FrameHandler
	closed    bool
	redialing bool
}

// NewWebSocketTransport creates a transport that dials url and presents the
// provider's token as a bearer credential during the handshake.
func NewWebSocketTransport(url string, tokens auth.TokenProvider) *WebSocketTransport {
	return &WebSocketTransport{
		url:    url,
		tokens: tokens,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
	}
}

// SetFrameHandler implements Transport.
func (t *WebSocketTransport) SetFrameHandler(handler FrameHandler) {
	t.mu.Lock()
	t.handler = handler
	t.mu.Unlock()
}

// Dial implements Transport. Handshake rejections with an HTTP 401/403
// response surface as "Authentication failed" so the connection manager's
// bounded auth retry can recognize them.
func (t *WebSocketTransport) Dial(ctx context.Context) error {
	header := http.Header{}
	if t.tokens != nil {
		token, err := t.tokens.Token(ctx)
		if err != nil {
			t.deliver(event.TransportConnectError, &event.ConnectErrorPayload{Message: err.Error()})
			return err
		}
		if token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
	}

	conn, resp, err := t.dialer.DialContext(ctx, t.url, header)
	if err != nil {
		msg := err.Error()
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			msg = "Authentication failed"
		}
		logrus.WithFields(logrus.Fields{
			"function": "Dial",
			"url":      t.url,
			"error":    msg,
		}).Warn("Websocket handshake failed")
		t.deliver(event.TransportConnectError, &event.ConnectErrorPayload{Message: msg})
		return err
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		conn.Close()
		return errors.New("transport: closed")
	}
	t.conn = conn
	t.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Dial",
		"url":      t.url,
	}).Info("Websocket connected")

	t.deliver(event.TransportConnect, nil)

	go t.readPump(conn)
	go t.pingLoop(conn)
	return nil
}

// Emit implements Transport.
func (t *WebSocketTransport) Emit(eventName string, payload any) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return ErrNotDialed
	}

	frame := Frame{Event: eventName}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		frame.Data = data
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(frame)
}

// Close implements Transport.
func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// readPump reads frames until the connection drops, then reports the drop
// reason and, for transport-level errors, starts the redial loop.
func (t *WebSocketTransport) readPump(conn *websocket.Conn) {
	conn.SetReadLimit(maxFrameSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			t.handleDrop(conn, err)
			return
		}
		t.deliverFrame(frame)
	}
}

func (t *WebSocketTransport) handleDrop(conn *websocket.Conn, err error) {
	t.mu.Lock()
	closed := t.closed
	if t.conn == conn {
		t.conn = nil
	}
	t.mu.Unlock()
	conn.Close()

	reason := event.ReasonTransportError
	switch {
	case closed:
		reason = event.ReasonClientDisconnect
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.ClosePolicyViolation):
		reason = event.ReasonServerDisconnect
	}

	logrus.WithFields(logrus.Fields{
		"function": "handleDrop",
		"reason":   reason,
		"error":    err,
	}).Info("Websocket connection ended")

	t.deliver(event.TransportDisconnect, &event.DisconnectPayload{Reason: reason})

	if reason == event.ReasonTransportError {
		t.startRedial()
	}
}

func (t *WebSocketTransport) startRedial() {
	t.mu.Lock()
	if t.closed || t.redialing {
		t.mu.Unlock()
		return
	}
	t.redialing = true
	t.mu.Unlock()

	go func() {
		defer func() {
			t.mu.Lock()
			t.redialing = false
			t.mu.Unlock()
		}()

		for {
			time.Sleep(redialDelay)
			t.mu.Lock()
			closed := t.closed
			t.mu.Unlock()
			if closed {
				return
			}
			if err := t.Dial(context.Background()); err == nil {
				return
			}
		}
	}()
}

func (t *WebSocketTransport) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for range ticker.C {
		t.mu.Lock()
		current := t.conn
		t.mu.Unlock()
		if current != conn {
			return
		}
		t.writeMu.Lock()
		err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
		t.writeMu.Unlock()
		if err != nil {
			return
		}
	}
}

func (t *WebSocketTransport) deliverFrame(frame Frame) {
	t.mu.Lock()
	handler := t.handler
	t.mu.Unlock()
	if handler != nil {
		handler(frame)
	}
}

func (t *WebSocketTransport) deliver(eventName string, payload any) {
	frame := Frame{Event: eventName}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err == nil {
			frame.Data = data
		}
	}
	t.deliverFrame(frame)
}
