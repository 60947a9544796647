// Package transport provides the socket layer the synchronization core
// talks through.
//
// The Transport interface abstracts the wire so the connection manager can
// be exercised against a mock in tests and against the websocket
// implementation in production. Every server frame, plus the synthetic
// lifecycle events ("connect", "connect_error", "disconnect"), reaches the
// registered FrameHandler in arrival order.
package transport
