package message

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/md-asharaf/campus-bazaar-sub000/event"
)

// DefaultSendTimeout is how long an optimistic record waits for its server
// confirmation before being retired as failed.
const DefaultSendTimeout = 10 * time.Second

// ErrNotConnected is returned by Send while the connection is down. No
// optimistic record is created in that case.
var ErrNotConnected = errors.New("message: not connected")

// ErrEmptyMessage is returned by Send for a message with no content and no
// media.
var ErrEmptyMessage = errors.New("message: empty message")

// ErrMessageNotFound is returned when a message id is unknown.
var ErrMessageNotFound = errors.New("message: not found")

// ErrNotFailed is returned by Retry for a message that has not failed.
var ErrNotFailed = errors.New("message: only failed messages can be retried")

// Emitter is the slice of the connection manager the tracker needs.
type Emitter interface {
	Emit(eventName string, payload any) error
	IsConnected() bool
}

// Callback receives a message whose presence or status changed.
type Callback func(msg *Message)

// Config tunes the Tracker.
type Config struct {
	SendTimeout time.Duration
}

// pendingSend correlates a temporary id with the conversation its
// optimistic record lives in. Created at send time, deleted on server
// confirmation or timeout.
type pendingSend struct {
	tempID  string
	chatID  string
	content string
	timer   *time.Timer
}

// Tracker owns the optimistic message lifecycle: it creates optimistic
// records, correlates them with server confirmations, applies monotonic
// status transitions, and retires stale records as failures.
type Tracker struct {
	emitter     Emitter
	sendTimeout time.Duration

	mu           sync.Mutex
	selfID       string
	chats        map[string][]*Message
	byID         map[string]*Message
	pending      map[string]*pendingSend
	pendingOrder []string
	onMessage    Callback
	onStatus     Callback
	unsubs       []func()
}

// NewTracker creates a Tracker subscribed to the bus's message events.
func NewTracker(bus *event.Bus, emitter Emitter, cfg Config) *Tracker {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}

	t := &Tracker{
		emitter:     emitter,
		sendTimeout: cfg.SendTimeout,
		chats:       make(map[string][]*Message),
		byID:        make(map[string]*Message),
		pending:     make(map[string]*pendingSend),
	}

	t.unsubs = append(t.unsubs,
		bus.Subscribe(event.Connected, func(payload any) {
			if p, ok := payload.(*event.ConnectedPayload); ok {
				t.SetSelfID(p.UserID)
			}
		}),
		bus.Subscribe(event.NewMessage, func(payload any) {
			if p, ok := payload.(*event.NewMessagePayload); ok {
				t.handleNewMessage(p)
			}
		}),
		bus.Subscribe(event.MessageDelivered, func(payload any) {
			if p, ok := payload.(*event.MessageDeliveredPayload); ok {
				t.handleDelivered(p)
			}
		}),
		bus.Subscribe(event.MessageRead, func(payload any) {
			if p, ok := payload.(*event.MessageReadPayload); ok {
				t.handleRead(p)
			}
		}),
	)

	return t
}

// SetSelfID records the authenticated user id used to attribute
// confirmation echoes. Normally learned from the connected event.
func (t *Tracker) SetSelfID(userID string) {
	t.mu.Lock()
	t.selfID = userID
	t.mu.Unlock()
}

// OnMessage registers a callback for messages appearing in a conversation
// (optimistic records and incoming foreign messages).
func (t *Tracker) OnMessage(cb Callback) {
	t.mu.Lock()
	t.onMessage = cb
	t.mu.Unlock()
}

// OnStatus registers a callback for status changes on existing messages.
func (t *Tracker) OnStatus(cb Callback) {
	t.mu.Lock()
	t.onStatus = cb
	t.mu.Unlock()
}

// Send creates an optimistic record with a temporary id, registers its
// correlation, emits send_message, and arms the confirmation timeout. While
// disconnected it fails immediately without creating any record.
func (t *Tracker) Send(chatID, content string, media []string) (*Message, error) {
	if chatID == "" {
		return nil, errors.New("message: chat id required")
	}
	if content == "" && len(media) == 0 {
		return nil, ErrEmptyMessage
	}
	if !t.emitter.IsConnected() {
		return nil, ErrNotConnected
	}

	t.mu.Lock()
	msg := &Message{
		ID:       NewTempID(),
		ChatID:   chatID,
		SenderID: t.selfID,
		Content:  content,
		Media:    media,
		SentAt:   time.Now(),
		Status:   StatusSending,
	}
	t.insertLocked(msg)

	ps := &pendingSend{
		tempID:  msg.ID,
		chatID:  chatID,
		content: content,
	}
	ps.timer = time.AfterFunc(t.sendTimeout, func() {
		t.timeout(ps.tempID)
	})
	t.pending[msg.ID] = ps
	t.pendingOrder = append(t.pendingOrder, msg.ID)
	cb := t.onMessage
	t.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Send",
		"chat_id":  chatID,
		"temp_id":  msg.ID,
	}).Debug("Optimistic message created")

	if cb != nil {
		cb(msg)
	}

	t.emitter.Emit(event.SendMessage, &event.SendMessagePayload{
		ChatID:  chatID,
		Content: content,
		Media:   media,
	})
	return msg, nil
}

// Retry re-enters the send algorithm for a failed message with a fresh
// temporary id. The failed record is replaced only once the new send is
// accepted; a rejected retry (e.g. while disconnected) leaves it in place
// as the handle for the next attempt.
func (t *Tracker) Retry(messageID string) (*Message, error) {
	t.mu.Lock()
	msg, ok := t.byID[messageID]
	if !ok {
		t.mu.Unlock()
		return nil, ErrMessageNotFound
	}
	if msg.Status != StatusFailed {
		t.mu.Unlock()
		return nil, ErrNotFailed
	}
	t.removeLocked(msg)
	t.mu.Unlock()

	fresh, err := t.Send(msg.ChatID, msg.Content, msg.Media)
	if err != nil {
		t.mu.Lock()
		t.insertLocked(msg)
		t.mu.Unlock()
		return nil, err
	}
	return fresh, nil
}

// MarkRead acknowledges a message as read to the server.
func (t *Tracker) MarkRead(messageID string) {
	t.emitter.Emit(event.MarkRead, &event.MarkReadPayload{MessageID: messageID})
}

// Messages returns the conversation's messages ordered by sent-at
// ascending.
func (t *Tracker) Messages(chatID string) []*Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Message, len(t.chats[chatID]))
	copy(out, t.chats[chatID])
	return out
}

// Seed inserts history fetched over REST before the live stream takes over.
// Messages already known by id are skipped.
func (t *Tracker) Seed(chatID string, msgs []*Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, msg := range msgs {
		if msg == nil || msg.ID == "" {
			continue
		}
		if _, exists := t.byID[msg.ID]; exists {
			continue
		}
		msg.ChatID = chatID
		t.insertLocked(msg)
	}
}

// Forget drops a conversation's messages. Correlations for in-flight sends
// survive so they still resolve or time out independently; their records
// are discarded on resolution since the conversation is gone.
func (t *Tracker) Forget(chatID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, msg := range t.chats[chatID] {
		if _, inFlight := t.pending[msg.ID]; !inFlight {
			delete(t.byID, msg.ID)
		}
	}
	delete(t.chats, chatID)
}

// Close cancels outstanding timeouts and detaches from the bus.
func (t *Tracker) Close() {
	for _, unsub := range t.unsubs {
		unsub()
	}
	t.unsubs = nil

	t.mu.Lock()
	for _, ps := range t.pending {
		ps.timer.Stop()
	}
	t.pending = make(map[string]*pendingSend)
	t.pendingOrder = nil
	t.mu.Unlock()
}

// handleNewMessage correlates confirmation echoes with pending optimistic
// records and inserts foreign messages, deduplicating by id.
func (t *Tracker) handleNewMessage(p *event.NewMessagePayload) {
	if p.MessageID == "" || p.ChatID == "" {
		return
	}

	t.mu.Lock()
	if _, exists := t.byID[p.MessageID]; exists {
		// Already present: merge is status-upgrade only, never a second
		// append.
		t.mu.Unlock()
		return
	}

	if t.selfID != "" && p.SenderID == t.selfID {
		if ps := t.matchPendingLocked(p.ChatID, p.Content); ps != nil {
			t.confirmLocked(ps, p)
			return // confirmLocked unlocks
		}
	}

	msg := &Message{
		ID:       p.MessageID,
		ChatID:   p.ChatID,
		SenderID: p.SenderID,
		Content:  p.Content,
		Media:    p.Media,
		SentAt:   p.Timestamp,
		Status:   StatusSent,
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now()
	}
	t.insertLocked(msg)
	cb := t.onMessage
	foreign := p.SenderID != t.selfID
	t.mu.Unlock()

	if cb != nil {
		cb(msg)
	}
	if foreign {
		// Acknowledge receipt so the sender sees Delivered.
		t.emitter.Emit(event.MarkDelivered, &event.MarkDeliveredPayload{MessageID: p.MessageID})
	}
}

// matchPendingLocked finds the oldest pending send for the conversation
// with matching content. The transport does not echo the temporary id, so
// correlation is by conversation, sender, and content.
func (t *Tracker) matchPendingLocked(chatID, content string) *pendingSend {
	for _, tempID := range t.pendingOrder {
		ps := t.pending[tempID]
		if ps != nil && ps.chatID == chatID && ps.content == content {
			return ps
		}
	}
	return nil
}

// confirmLocked resolves a pending send: the temporary id is replaced with
// the server-assigned id everywhere and the status moves Sending -> Sent.
// Unlocks t.mu before invoking callbacks.
func (t *Tracker) confirmLocked(ps *pendingSend, p *event.NewMessagePayload) {
	ps.timer.Stop()
	delete(t.pending, ps.tempID)
	t.dropPendingOrderLocked(ps.tempID)

	msg := t.byID[ps.tempID]
	if msg == nil {
		// The conversation was left mid-flight; only the correlation
		// remained.
		t.mu.Unlock()
		return
	}

	delete(t.byID, ps.tempID)
	msg.ID = p.MessageID
	if !p.Timestamp.IsZero() {
		msg.SentAt = p.Timestamp
	}
	if msg.Status.CanTransition(StatusSent) {
		msg.Status = StatusSent
	}

	_, open := t.chats[msg.ChatID]
	if open {
		t.byID[msg.ID] = msg
	}
	cb := t.onStatus
	t.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":   "confirmLocked",
		"temp_id":    ps.tempID,
		"message_id": msg.ID,
		"chat_id":    msg.ChatID,
	}).Debug("Send confirmed")

	// No callback for a conversation that was left; the record was
	// discarded with it.
	if open && cb != nil {
		cb(msg)
	}
}

// timeout retires a pending send as failed. Removal of the correlation
// guarantees the failure fires exactly once even if the timer races a
// confirmation.
func (t *Tracker) timeout(tempID string) {
	t.mu.Lock()
	ps, ok := t.pending[tempID]
	if !ok {
		t.mu.Unlock()
		return
	}
	delete(t.pending, tempID)
	t.dropPendingOrderLocked(tempID)

	msg := t.byID[tempID]
	if msg != nil && msg.Status.CanTransition(StatusFailed) {
		msg.Status = StatusFailed
	}
	if msg != nil {
		if _, open := t.chats[msg.ChatID]; !open {
			delete(t.byID, tempID)
			msg = nil
		}
	}
	cb := t.onStatus
	t.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "timeout",
		"temp_id":  tempID,
		"chat_id":  ps.chatID,
	}).Warn("Send confirmation timed out")

	if msg != nil && cb != nil {
		cb(msg)
	}
}

// handleDelivered moves a message from Sent to Delivered. Any other current
// status makes this a no-op, preserving monotonicity.
func (t *Tracker) handleDelivered(p *event.MessageDeliveredPayload) {
	t.mu.Lock()
	msg := t.byID[p.MessageID]
	if msg == nil || msg.Status != StatusSent {
		t.mu.Unlock()
		return
	}
	now := time.Now()
	msg.Status = StatusDelivered
	msg.DeliveredAt = &now
	cb := t.onStatus
	t.mu.Unlock()

	if cb != nil {
		cb(msg)
	}
}

// handleRead moves a message from Sent or Delivered to Read, filling in the
// delivered timestamp if the delivery receipt was never observed.
func (t *Tracker) handleRead(p *event.MessageReadPayload) {
	t.mu.Lock()
	msg := t.byID[p.MessageID]
	if msg == nil || (msg.Status != StatusSent && msg.Status != StatusDelivered) {
		t.mu.Unlock()
		return
	}
	now := time.Now()
	msg.Status = StatusRead
	msg.ReadAt = &now
	if msg.DeliveredAt == nil {
		msg.DeliveredAt = &now
	}
	cb := t.onStatus
	t.mu.Unlock()

	if cb != nil {
		cb(msg)
	}
}

// insertLocked places msg into its conversation keeping sent-at ascending
// order. Callers must hold t.mu.
func (t *Tracker) insertLocked(msg *Message) {
	list := t.chats[msg.ChatID]
	i := len(list)
	for i > 0 && list[i-1].SentAt.After(msg.SentAt) {
		i--
	}
	list = append(list, nil)
	copy(list[i+1:], list[i:])
	list[i] = msg
	t.chats[msg.ChatID] = list
	t.byID[msg.ID] = msg
}

// removeLocked removes msg from its conversation and the id index. Callers
// must hold t.mu.
func (t *Tracker) removeLocked(msg *Message) {
	list := t.chats[msg.ChatID]
	for i, m := range list {
		if m == msg {
			t.chats[msg.ChatID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	delete(t.byID, msg.ID)
}

func (t *Tracker) dropPendingOrderLocked(tempID string) {
	for i, id := range t.pendingOrder {
		if id == tempID {
			t.pendingOrder = append(t.pendingOrder[:i], t.pendingOrder[i+1:]...)
			return
		}
	}
}
