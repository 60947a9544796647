// Package presence tracks which counterparties are currently online.
//
// Presence is best effort and last-write-wins per user id: the tracker
// consumes user_online/user_offline events from the bus and clears
// everything on disconnect, since presence cannot be trusted once the
// connection is gone.
package presence

import (
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/md-asharaf/campus-bazaar-sub000/event"
)

// ChangeCallback is invoked when a user's online state changes.
type ChangeCallback func(userID string, online bool)

// Tracker maintains the set of online user ids.
type Tracker struct {
	mu       sync.RWMutex
	online   map[string]struct{}
	onChange ChangeCallback
	unsubs   []func()
}

// NewTracker creates a Tracker subscribed to the bus's presence events.
func NewTracker(bus *event.Bus) *Tracker {
	t := &Tracker{
		online: make(map[string]struct{}),
	}

	t.unsubs = append(t.unsubs,
		bus.Subscribe(event.UserOnline, func(payload any) {
			if p, ok := payload.(*event.UserOnlinePayload); ok {
				t.setOnline(p.UserID, true)
			}
		}),
		bus.Subscribe(event.UserOffline, func(payload any) {
			if p, ok := payload.(*event.UserOfflinePayload); ok {
				t.setOnline(p.UserID, false)
			}
		}),
		bus.Subscribe(event.TransportDisconnect, func(any) {
			t.clear()
		}),
	)

	return t
}

// OnChange registers a callback for presence changes.
func (t *Tracker) OnChange(cb ChangeCallback) {
	t.mu.Lock()
	t.onChange = cb
	t.mu.Unlock()
}

// IsOnline reports whether the user is currently known to be online.
func (t *Tracker) IsOnline(userID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.online[userID]
	return ok
}

// OnlineUsers returns the sorted ids of everyone currently online.
func (t *Tracker) OnlineUsers() []string {
	t.mu.RLock()
	users := make([]string, 0, len(t.online))
	for id := range t.online {
		users = append(users, id)
	}
	t.mu.RUnlock()

	sort.Strings(users)
	return users
}

// OnlineAmong returns the sorted subset of userIDs currently online. UIs
// use it to filter the global set down to a conversation's participants.
func (t *Tracker) OnlineAmong(userIDs []string) []string {
	t.mu.RLock()
	online := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if _, ok := t.online[id]; ok {
			online = append(online, id)
		}
	}
	t.mu.RUnlock()

	sort.Strings(online)
	return online
}

// Close detaches the tracker from the bus.
func (t *Tracker) Close() {
	for _, unsub := range t.unsubs {
		unsub()
	}
	t.unsubs = nil
}

func (t *Tracker) setOnline(userID string, online bool) {
	if userID == "" {
		return
	}

	t.mu.Lock()
	_, was := t.online[userID]
	if online {
		t.online[userID] = struct{}{}
	} else {
		delete(t.online, userID)
	}
	cb := t.onChange
	t.mu.Unlock()

	if was == online {
		return
	}

	logrus.WithFields(logrus.Fields{
		"function": "setOnline",
		"user_id":  userID,
		"online":   online,
	}).Debug("Presence updated")

	if cb != nil {
		cb(userID, online)
	}
}

func (t *Tracker) clear() {
	t.mu.Lock()
	n := len(t.online)
	t.online = make(map[string]struct{})
	t.mu.Unlock()

	if n > 0 {
		logrus.WithFields(logrus.Fields{
			"function": "clear",
			"dropped":  n,
		}).Debug("Presence cleared on disconnect")
	}
}
