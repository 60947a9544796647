// Package typing coordinates typing indicators in both directions.
//
// Remote tracking keeps a per-conversation set of users currently typing,
// each entry guarded by an expiry timer: the server's stopped-typing event
// can be lost on disconnect, so stale indicators self-heal within one
// expiry window. Local emission debounces typing_start and emits
// typing_stop after an inactivity window or, synchronously, right before a
// message is sent.
package typing

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/md-asharaf/campus-bazaar-sub000/event"
)

const (
	// DefaultExpiry removes a remote typing entry that was never
	// refreshed or explicitly stopped.
	DefaultExpiry = 3 * time.Second
	// DefaultDebounce is the local inactivity window after the last
	// keystroke before typing_stop is emitted.
	DefaultDebounce = 1 * time.Second
)

// Emitter sends client events to the server. Satisfied by
// connection.Manager.
type Emitter interface {
	Emit(eventName string, payload any) error
}

// ChangeCallback is invoked when a remote user's typing state changes,
// including the synthetic stop produced by expiry.
type ChangeCallback func(chatID, userID string, typing bool)

// Config tunes the Coordinator's timing windows.
type Config struct {
	Expiry   time.Duration
	Debounce time.Duration
}

type localState struct {
	active bool
	timer  *time.Timer
}

// Coordinator tracks remote typing sets and drives local typing emission.
type Coordinator struct {
	emitter  Emitter
	expiry   time.Duration
	debounce time.Duration

	mu       sync.Mutex
	remote   map[string]map[string]*time.Timer
	local    map[string]*localState
	onChange ChangeCallback
	unsubs   []func()
	closed   bool
}

// NewCoordinator creates a Coordinator subscribed to the bus's typing
// events.
func NewCoordinator(bus *event.Bus, emitter Emitter, cfg Config) *Coordinator {
	if cfg.Expiry <= 0 {
		cfg.Expiry = DefaultExpiry
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}

	c := &Coordinator{
		emitter:  emitter,
		expiry:   cfg.Expiry,
		debounce: cfg.Debounce,
		remote:   make(map[string]map[string]*time.Timer),
		local:    make(map[string]*localState),
	}

	c.unsubs = append(c.unsubs,
		bus.Subscribe(event.UserTyping, func(payload any) {
			if p, ok := payload.(*event.UserTypingPayload); ok {
				c.remoteTyping(p.ChatID, p.UserID)
			}
		}),
		bus.Subscribe(event.UserStoppedTyping, func(payload any) {
			if p, ok := payload.(*event.UserStoppedTypingPayload); ok {
				c.remoteStopped(p.ChatID, p.UserID)
			}
		}),
		bus.Subscribe(event.TransportDisconnect, func(any) {
			c.clearAll()
		}),
	)

	return c
}

// OnChange registers a callback for remote typing changes.
func (c *Coordinator) OnChange(cb ChangeCallback) {
	c.mu.Lock()
	c.onChange = cb
	c.mu.Unlock()
}

// NotifyTyping records local keyboard activity for a chat. typing_start is
// emitted at most once per active window; every call pushes the inactivity
// timer forward.
func (c *Coordinator) NotifyTyping(chatID string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	ls := c.local[chatID]
	if ls == nil {
		ls = &localState{}
		c.local[chatID] = ls
	}
	wasActive := ls.active
	ls.active = true
	if ls.timer != nil {
		ls.timer.Stop()
	}
	ls.timer = time.AfterFunc(c.debounce, func() {
		c.StopTyping(chatID)
	})
	c.mu.Unlock()

	if !wasActive {
		c.emitter.Emit(event.TypingStart, &event.TypingPayload{ChatID: chatID})
	}
}

// StopTyping cancels the local inactivity timer and emits typing_stop if an
// indicator is active. Called on explicit stop, on debounce expiry, and
// synchronously before a send so a stale indicator never outlives the
// message.
func (c *Coordinator) StopTyping(chatID string) {
	c.mu.Lock()
	ls := c.local[chatID]
	if ls == nil || !ls.active {
		c.mu.Unlock()
		return
	}
	ls.active = false
	if ls.timer != nil {
		ls.timer.Stop()
		ls.timer = nil
	}
	c.mu.Unlock()

	c.emitter.Emit(event.TypingStop, &event.TypingPayload{ChatID: chatID})
}

// TypingUsers returns the sorted ids of users currently typing in a chat.
func (c *Coordinator) TypingUsers(chatID string) []string {
	c.mu.Lock()
	users := make([]string, 0, len(c.remote[chatID]))
	for id := range c.remote[chatID] {
		users = append(users, id)
	}
	c.mu.Unlock()

	sort.Strings(users)
	return users
}

// DetachChat drops the chat's typing state and timers without emitting
// synthetic stops. Used when leaving a conversation.
func (c *Coordinator) DetachChat(chatID string) {
	c.mu.Lock()
	for _, timer := range c.remote[chatID] {
		timer.Stop()
	}
	delete(c.remote, chatID)
	if ls := c.local[chatID]; ls != nil {
		if ls.timer != nil {
			ls.timer.Stop()
		}
		delete(c.local, chatID)
	}
	c.mu.Unlock()
}

// Close cancels every outstanding timer and detaches from the bus.
func (c *Coordinator) Close() {
	for _, unsub := range c.unsubs {
		unsub()
	}
	c.unsubs = nil

	c.mu.Lock()
	c.closed = true
	for _, users := range c.remote {
		for _, timer := range users {
			timer.Stop()
		}
	}
	c.remote = make(map[string]map[string]*time.Timer)
	for _, ls := range c.local {
		if ls.timer != nil {
			ls.timer.Stop()
		}
	}
	c.local = make(map[string]*localState)
	c.mu.Unlock()
}

func (c *Coordinator) remoteTyping(chatID, userID string) {
	if chatID == "" || userID == "" {
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	users := c.remote[chatID]
	if users == nil {
		users = make(map[string]*time.Timer)
		c.remote[chatID] = users
	}
	timer, refreshing := users[userID]
	if refreshing {
		timer.Stop()
	}
	users[userID] = time.AfterFunc(c.expiry, func() {
		c.expire(chatID, userID)
	})
	cb := c.onChange
	c.mu.Unlock()

	if !refreshing {
		logrus.WithFields(logrus.Fields{
			"function": "remoteTyping",
			"chat_id":  chatID,
			"user_id":  userID,
		}).Debug("User started typing")
		if cb != nil {
			cb(chatID, userID, true)
		}
	}
}

func (c *Coordinator) remoteStopped(chatID, userID string) {
	c.removeRemote(chatID, userID, "stopped")
}

// expire fires when a typing entry was neither refreshed nor explicitly
// stopped within the expiry window. Treated identically to an explicit
// stop.
func (c *Coordinator) expire(chatID, userID string) {
	c.removeRemote(chatID, userID, "expired")
}

func (c *Coordinator) removeRemote(chatID, userID, cause string) {
	c.mu.Lock()
	users := c.remote[chatID]
	timer, present := users[userID]
	if present {
		timer.Stop()
		delete(users, userID)
		if len(users) == 0 {
			delete(c.remote, chatID)
		}
	}
	cb := c.onChange
	c.mu.Unlock()

	// Stopping a non-typing user is a no-op.
	if !present {
		return
	}

	logrus.WithFields(logrus.Fields{
		"function": "removeRemote",
		"chat_id":  chatID,
		"user_id":  userID,
		"cause":    cause,
	}).Debug("User stopped typing")

	if cb != nil {
		cb(chatID, userID, false)
	}
}

func (c *Coordinator) clearAll() {
	c.mu.Lock()
	for _, users := range c.remote {
		for _, timer := range users {
			timer.Stop()
		}
	}
	c.remote = make(map[string]map[string]*time.Timer)
	for _, ls := range c.local {
		ls.active = false
		if ls.timer != nil {
			ls.timer.Stop()
			ls.timer = nil
		}
	}
	c.mu.Unlock()
}
