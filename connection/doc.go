// Package connection implements the connection lifecycle manager.
//
// The Manager exclusively owns the transport socket. It drives the state
// machine (disconnected, connecting, connected, reconnecting, error),
// applies a bounded retry with a fixed delay so an asynchronous credential
// refresh can complete between attempts, and republishes every raw
// transport frame onto the event bus before acting on it itself.
//
// Example:
//
//	bus := event.NewBus()
//	tr := transport.NewWebSocketTransport("wss://chat.example.com/ws", tokens)
//	mgr := connection.NewManager(tr, bus, connection.Config{})
//
//	if err := mgr.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer mgr.Disconnect()
package connection
