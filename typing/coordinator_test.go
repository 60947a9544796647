package typing

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/md-asharaf/campus-bazaar-sub000/event"
)

type recordingEmitter struct {
	mu    sync.Mutex
	emits []string
}

func (r *recordingEmitter) Emit(eventName string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emits = append(r.emits, eventName)
	return nil
}

func (r *recordingEmitter) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.emits))
	copy(out, r.emits)
	return out
}

type typingChange struct {
	chatID string
	userID string
	typing bool
}

func newTestCoordinator(t *testing.T) (*Coordinator, *event.Bus, *recordingEmitter) {
	t.Helper()
	bus := event.NewBus()
	em := &recordingEmitter{}
	c := NewCoordinator(bus, em, Config{
		Expiry:   40 * time.Millisecond,
		Debounce: 30 * time.Millisecond,
	})
	t.Cleanup(c.Close)
	return c, bus, em
}

func TestRemoteTypingSet(t *testing.T) {
	c, bus, _ := newTestCoordinator(t)

	bus.Publish(event.UserTyping, &event.UserTypingPayload{ChatID: "chat-1", UserID: "u2"})
	bus.Publish(event.UserTyping, &event.UserTypingPayload{ChatID: "chat-1", UserID: "u3"})
	bus.Publish(event.UserTyping, &event.UserTypingPayload{ChatID: "chat-2", UserID: "u4"})

	assert.Equal(t, []string{"u2", "u3"}, c.TypingUsers("chat-1"))
	assert.Equal(t, []string{"u4"}, c.TypingUsers("chat-2"))
	assert.Empty(t, c.TypingUsers("chat-9"))

	bus.Publish(event.UserStoppedTyping, &event.UserStoppedTypingPayload{ChatID: "chat-1", UserID: "u2"})
	assert.Equal(t, []string{"u3"}, c.TypingUsers("chat-1"))

	// Stopping a user who was never typing is a no-op.
	bus.Publish(event.UserStoppedTyping, &event.UserStoppedTypingPayload{ChatID: "chat-1", UserID: "u9"})
	assert.Equal(t, []string{"u3"}, c.TypingUsers("chat-1"))
}

func TestRemoteEntryExpires(t *testing.T) {
	c, bus, _ := newTestCoordinator(t)

	var (
		mu      sync.Mutex
		changes []typingChange
	)
	c.OnChange(func(chatID, userID string, typing bool) {
		mu.Lock()
		changes = append(changes, typingChange{chatID, userID, typing})
		mu.Unlock()
	})

	bus.Publish(event.UserTyping, &event.UserTypingPayload{ChatID: "chat-1", UserID: "u2"})
	require.Equal(t, []string{"u2"}, c.TypingUsers("chat-1"))

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, c.TypingUsers("chat-1"))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, changes, 2)
	assert.Equal(t, typingChange{"chat-1", "u2", true}, changes[0])
	assert.Equal(t, typingChange{"chat-1", "u2", false}, changes[1])
}

func TestRemoteRefreshExtendsExpiry(t *testing.T) {
	c, bus, _ := newTestCoordinator(t)

	var (
		mu     sync.Mutex
		starts int
	)
	c.OnChange(func(_, _ string, typing bool) {
		mu.Lock()
		if typing {
			starts++
		}
		mu.Unlock()
	})

	bus.Publish(event.UserTyping, &event.UserTypingPayload{ChatID: "chat-1", UserID: "u2"})
	time.Sleep(25 * time.Millisecond)
	bus.Publish(event.UserTyping, &event.UserTypingPayload{ChatID: "chat-1", UserID: "u2"})
	time.Sleep(25 * time.Millisecond)

	// Past the first window, inside the refreshed one.
	assert.Equal(t, []string{"u2"}, c.TypingUsers("chat-1"))
	mu.Lock()
	assert.Equal(t, 1, starts)
	mu.Unlock()
}

func TestLocalTypingDebounce(t *testing.T) {
	c, _, em := newTestCoordinator(t)

	c.NotifyTyping("chat-1")
	c.NotifyTyping("chat-1")
	c.NotifyTyping("chat-1")
	assert.Equal(t, []string{event.TypingStart}, em.names())

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, []string{event.TypingStart, event.TypingStop}, em.names())

	// A fresh keystroke after the stop opens a new window.
	c.NotifyTyping("chat-1")
	assert.Equal(t, []string{event.TypingStart, event.TypingStop, event.TypingStart}, em.names())
}

func TestStopTypingIsImmediateAndIdempotent(t *testing.T) {
	c, _, em := newTestCoordinator(t)

	c.StopTyping("chat-1")
	assert.Empty(t, em.names())

	c.NotifyTyping("chat-1")
	c.StopTyping("chat-1")
	c.StopTyping("chat-1")
	assert.Equal(t, []string{event.TypingStart, event.TypingStop}, em.names())

	// The cancelled debounce timer must not fire a second stop.
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, []string{event.TypingStart, event.TypingStop}, em.names())
}

func TestDetachChatDropsStateSilently(t *testing.T) {
	c, bus, em := newTestCoordinator(t)

	var changes int
	c.OnChange(func(_, _ string, typing bool) {
		if !typing {
			changes++
		}
	})

	bus.Publish(event.UserTyping, &event.UserTypingPayload{ChatID: "chat-1", UserID: "u2"})
	c.NotifyTyping("chat-1")

	c.DetachChat("chat-1")
	assert.Empty(t, c.TypingUsers("chat-1"))
	assert.Equal(t, 0, changes)

	// Neither the expiry nor the debounce timer survives the detach.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, changes)
	assert.Equal(t, []string{event.TypingStart}, em.names())
}

func TestDisconnectClearsTypingState(t *testing.T) {
	c, bus, em := newTestCoordinator(t)

	bus.Publish(event.UserTyping, &event.UserTypingPayload{ChatID: "chat-1", UserID: "u2"})
	c.NotifyTyping("chat-1")
	require.Equal(t, []string{"u2"}, c.TypingUsers("chat-1"))

	bus.Publish(event.TransportDisconnect, &event.DisconnectPayload{Reason: event.ReasonTransportError})

	assert.Empty(t, c.TypingUsers("chat-1"))

	// No typing_stop is sent for the local indicator; the connection is
	// gone.
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, []string{event.TypingStart}, em.names())
}

func TestIgnoresBlankIdentifiers(t *testing.T) {
	c, bus, _ := newTestCoordinator(t)

	bus.Publish(event.UserTyping, &event.UserTypingPayload{ChatID: "", UserID: "u2"})
	bus.Publish(event.UserTyping, &event.UserTypingPayload{ChatID: "chat-1", UserID: ""})

	assert.Empty(t, c.TypingUsers(""))
	assert.Empty(t, c.TypingUsers("chat-1"))
}
