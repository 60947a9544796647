// Package event implements the typed publish/subscribe fabric that
// decouples transport callbacks from their consumers.
//
// The Bus dispatches each published event to its handlers in subscription
// order. A panicking handler is isolated and logged so that presence,
// typing, and message tracking cannot break one another while consuming
// the same transport events.
//
// Example:
//
//	bus := event.NewBus()
//	unsubscribe := bus.Subscribe(event.UserOnline, func(payload any) {
//	    p := payload.(*event.UserOnlinePayload)
//	    fmt.Printf("%s came online\n", p.UserID)
//	})
//	defer unsubscribe()
//
//	bus.Publish(event.UserOnline, &event.UserOnlinePayload{UserID: "u2"})
package event
