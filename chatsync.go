// Package chatsync implements the real-time synchronization core of the
// marketplace's peer-to-peer chat.
//
// A Session owns one persistent bidirectional connection and reconciles
// optimistic local message state with server-confirmed state, tracks
// presence and typing indicators with automatic expiry, and survives
// network interruption without duplicating, losing, or reordering
// messages.
//
// Example:
//
//	options := chatsync.NewOptions()
//	options.ServerURL = "wss://chat.example.com/ws"
//	options.Tokens = auth.StaticToken(token)
//
//	session, err := chatsync.New(options)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer session.Close()
//
//	session.OnMessage(func(msg *message.Message) {
//	    fmt.Printf("[%s] %s: %s\n", msg.ChatID, msg.SenderID, msg.Content)
//	})
//
//	if err := session.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	if err := session.Join(ctx, "chat-1"); err != nil {
//	    log.Fatal(err)
//	}
//	session.Send("chat-1", "hi")
package chatsync

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/md-asharaf/campus-bazaar-sub000/connection"
	"github.com/md-asharaf/campus-bazaar-sub000/event"
	"github.com/md-asharaf/campus-bazaar-sub000/history"
	"github.com/md-asharaf/campus-bazaar-sub000/message"
	"github.com/md-asharaf/campus-bazaar-sub000/presence"
	"github.com/md-asharaf/campus-bazaar-sub000/transport"
	"github.com/md-asharaf/campus-bazaar-sub000/typing"
)

// ErrJoinTimeout is returned by Join when no joined_chat confirmation
// arrives within the configured window.
var ErrJoinTimeout = errors.New("chatsync: join confirmation timed out")

// ErrJoinCanceled is returned by Join when Leave is called while the join
// confirmation is still pending.
var ErrJoinCanceled = errors.New("chatsync: join canceled")

// ErrClosed is returned for operations on a closed session.
var ErrClosed = errors.New("chatsync: session closed")

// Upload names an image to attach to a media send.
type Upload struct {
	Name string
	Data io.Reader
}

// Session is the single entry point consumed by UI collaborators. One
// active Session per process is a caller-enforced invariant; create it
// explicitly and Close it when the chat feature unmounts.
type Session struct {
	opts     *Options
	bus      *event.Bus
	tr       transport.Transport
	conn     *connection.Manager
	presence *presence.Tracker
	typing   *typing.Coordinator
	messages *message.Tracker
	api      *history.Client

	mu                 sync.Mutex
	userID             string
	joins              map[string]chan error
	serverErr          string
	errTimer           *time.Timer
	onServerError      func(msg string)
	onServerDisconnect func(reason string)
	unsubs             []func()
	closed             bool
}

// New assembles a Session from options. The zero-value options of
// NewOptions plus a ServerURL (or an injected Transport) are sufficient.
func New(opts *Options) (*Session, error) {
	if opts == nil {
		opts = NewOptions()
	}

	tr := opts.Transport
	if tr == nil {
		if opts.ServerURL == "" {
			return nil, errors.New("chatsync: ServerURL or Transport required")
		}
		tr = transport.NewWebSocketTransport(opts.ServerURL, opts.Tokens)
	}

	bus := event.NewBus()
	s := &Session{
		opts:  opts,
		bus:   bus,
		tr:    tr,
		joins: make(map[string]chan error),
	}

	s.conn = connection.NewManager(tr, bus, connection.Config{
		MaxAuthRetries: opts.MaxAuthRetries,
		AuthRetryDelay: opts.AuthRetryDelay,
	})
	s.presence = presence.NewTracker(bus)
	s.typing = typing.NewCoordinator(bus, s.conn, typing.Config{
		Expiry:   opts.TypingExpiry,
		Debounce: opts.TypingDebounce,
	})
	s.messages = message.NewTracker(bus, s.conn, message.Config{
		SendTimeout: opts.SendTimeout,
	})
	if opts.APIURL != "" {
		s.api = history.NewClient(opts.APIURL, opts.Tokens)
	}

	s.unsubs = append(s.unsubs,
		bus.Subscribe(event.Connected, func(payload any) {
			if p, ok := payload.(*event.ConnectedPayload); ok {
				s.mu.Lock()
				s.userID = p.UserID
				s.mu.Unlock()
			}
		}),
		bus.Subscribe(event.JoinedChat, func(payload any) {
			if p, ok := payload.(*event.JoinedChatPayload); ok {
				s.settleJoin(p.ChatID, nil)
			}
		}),
		bus.Subscribe(event.ServerError, func(payload any) {
			if p, ok := payload.(*event.ServerErrorPayload); ok {
				s.surfaceServerError(p.Message)
			}
		}),
		bus.Subscribe(event.TransportDisconnect, func(payload any) {
			if p, ok := payload.(*event.DisconnectPayload); ok {
				s.handleDisconnect(p.Reason)
			}
		}),
	)

	return s, nil
}

// Bus exposes the event fabric so UI collaborators can observe the raw
// transport stream exactly as internal components do.
func (s *Session) Bus() *event.Bus {
	return s.bus
}

// Connect establishes the connection, blocking until it is up or the
// bounded retries exhaust.
func (s *Session) Connect(ctx context.Context) error {
	if s.isClosed() {
		return ErrClosed
	}
	return s.conn.Connect(ctx)
}

// Disconnect tears the connection down. Presence and typing state clear as
// a consequence; reconnecting starts from empty sets.
func (s *Session) Disconnect() {
	s.conn.Disconnect()
}

// Close disconnects and releases every timer and subscription the session
// owns. The session cannot be reused afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.errTimer != nil {
		s.errTimer.Stop()
		s.errTimer = nil
	}
	joins := s.joins
	s.joins = make(map[string]chan error)
	s.mu.Unlock()

	for _, waiter := range joins {
		waiter <- ErrClosed
	}

	s.conn.Disconnect()
	s.typing.Close()
	s.presence.Close()
	s.messages.Close()
	for _, unsub := range s.unsubs {
		unsub()
	}
	s.unsubs = nil

	logrus.WithFields(logrus.Fields{
		"function": "Close",
	}).Info("Chat session closed")
}

// Join seeds the conversation from REST history, requests membership, and
// waits for the joined_chat confirmation.
func (s *Session) Join(ctx context.Context, chatID string) error {
	if s.isClosed() {
		return ErrClosed
	}

	if s.api != nil {
		msgs, err := s.api.Messages(ctx, chatID, 1, s.opts.HistoryPageSize)
		if err != nil {
			// History is a seed, not a gate: the live stream still
			// carries everything from here on.
			logrus.WithFields(logrus.Fields{
				"function": "Join",
				"chat_id":  chatID,
				"error":    err,
			}).Warn("History seed failed")
		} else {
			s.messages.Seed(chatID, msgs)
		}
	}

	waiter := make(chan error, 1)
	s.mu.Lock()
	s.joins[chatID] = waiter
	s.mu.Unlock()

	s.conn.Emit(event.JoinChat, &event.JoinChatPayload{ChatID: chatID})

	timeout := s.opts.JoinTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-waiter:
		return err
	case <-timer.C:
		s.settleJoin(chatID, nil) // drop the waiter registration
		return ErrJoinTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Leave cancels a pending join wait, detaches the conversation's typing
// timers, and drops its messages. In-flight sends still resolve or time
// out independently.
func (s *Session) Leave(chatID string) {
	s.settleJoin(chatID, ErrJoinCanceled)
	s.conn.Emit(event.LeaveChat, &event.LeaveChatPayload{ChatID: chatID})
	s.typing.DetachChat(chatID)
	s.messages.Forget(chatID)
}

// Send force-stops the local typing indicator and sends a text message.
func (s *Session) Send(chatID, content string) (*message.Message, error) {
	s.typing.StopTyping(chatID)
	return s.messages.Send(chatID, content, nil)
}

// SendMedia uploads the images, then sends a message referencing them. An
// upload failure fails the whole send before any optimistic record exists.
func (s *Session) SendMedia(ctx context.Context, chatID, content string, uploads []Upload) (*message.Message, error) {
	if s.api == nil {
		return nil, errors.New("chatsync: media sends require APIURL")
	}

	media := make([]string, 0, len(uploads))
	for _, up := range uploads {
		url, err := s.api.UploadImage(ctx, up.Name, up.Data)
		if err != nil {
			return nil, err
		}
		media = append(media, url)
	}

	s.typing.StopTyping(chatID)
	return s.messages.Send(chatID, content, media)
}

// Retry re-sends a failed message under a fresh temporary id.
func (s *Session) Retry(messageID string) (*message.Message, error) {
	return s.messages.Retry(messageID)
}

// MarkRead acknowledges a message as read.
func (s *Session) MarkRead(messageID string) {
	s.messages.MarkRead(messageID)
}

// NotifyTyping records local keyboard activity for a chat.
func (s *Session) NotifyTyping(chatID string) {
	s.typing.NotifyTyping(chatID)
}

// StopTyping explicitly ends the local typing indicator for a chat.
func (s *Session) StopTyping(chatID string) {
	s.typing.StopTyping(chatID)
}

// State returns the current connection state.
func (s *Session) State() connection.State {
	return s.conn.State()
}

// IsConnected reports whether the connection is established.
func (s *Session) IsConnected() bool {
	return s.conn.IsConnected()
}

// UserID returns the authenticated user id, empty before the connected
// event arrives.
func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// Messages returns a conversation's messages ordered by sent-at ascending.
func (s *Session) Messages(chatID string) []*message.Message {
	return s.messages.Messages(chatID)
}

// OnlineUsers returns everyone currently known to be online.
func (s *Session) OnlineUsers() []string {
	return s.presence.OnlineUsers()
}

// IsOnline reports whether a user is currently online.
func (s *Session) IsOnline(userID string) bool {
	return s.presence.IsOnline(userID)
}

// OnlineAmong returns which of the given users are currently online,
// typically a conversation's participant list.
func (s *Session) OnlineAmong(userIDs []string) []string {
	return s.presence.OnlineAmong(userIDs)
}

// TypingUsers returns who is currently typing in a chat.
func (s *Session) TypingUsers(chatID string) []string {
	return s.typing.TypingUsers(chatID)
}

// LastServerError returns the most recent server-pushed error, or empty
// once it has auto-dismissed.
func (s *Session) LastServerError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serverErr
}

// OnMessage registers a callback for messages appearing in a conversation.
func (s *Session) OnMessage(cb func(msg *message.Message)) {
	s.messages.OnMessage(cb)
}

// OnMessageStatus registers a callback for message status changes.
func (s *Session) OnMessageStatus(cb func(msg *message.Message)) {
	s.messages.OnStatus(cb)
}

// OnPresence registers a callback for counterparty presence changes.
func (s *Session) OnPresence(cb func(userID string, online bool)) {
	s.presence.OnChange(cb)
}

// OnTyping registers a callback for remote typing changes.
func (s *Session) OnTyping(cb func(chatID, userID string, isTyping bool)) {
	s.typing.OnChange(cb)
}

// OnConnectionState registers a callback for connection state transitions.
func (s *Session) OnConnectionState(cb func(state connection.State)) {
	s.conn.OnStateChange(connection.StateCallback(cb))
}

// OnServerError registers a callback for server-pushed application errors.
// Each surfaced error auto-dismisses after the configured window.
func (s *Session) OnServerError(cb func(msg string)) {
	s.mu.Lock()
	s.onServerError = cb
	s.mu.Unlock()
}

// OnServerDisconnect registers a callback for server-initiated disconnects,
// which cannot be auto-recovered by the client.
func (s *Session) OnServerDisconnect(cb func(reason string)) {
	s.mu.Lock()
	s.onServerDisconnect = cb
	s.mu.Unlock()
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// settleJoin resolves the pending join waiter for a chat, if any.
func (s *Session) settleJoin(chatID string, err error) {
	s.mu.Lock()
	waiter, ok := s.joins[chatID]
	if ok {
		delete(s.joins, chatID)
	}
	s.mu.Unlock()

	if ok {
		waiter <- err
	}
}

// surfaceServerError stores the message for UI display and arms the
// auto-dismiss timer.
func (s *Session) surfaceServerError(msg string) {
	s.mu.Lock()
	s.serverErr = msg
	cb := s.onServerError
	if s.errTimer != nil {
		s.errTimer.Stop()
	}
	dismiss := s.opts.ErrorDismissAfter
	if dismiss <= 0 {
		dismiss = 5 * time.Second
	}
	s.errTimer = time.AfterFunc(dismiss, func() {
		s.mu.Lock()
		if s.serverErr == msg {
			s.serverErr = ""
		}
		s.mu.Unlock()
	})
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "surfaceServerError",
		"message":  msg,
	}).Warn("Server error")

	if cb != nil {
		cb(msg)
	}
}

func (s *Session) handleDisconnect(reason string) {
	if reason != event.ReasonServerDisconnect {
		return
	}

	s.mu.Lock()
	cb := s.onServerDisconnect
	s.mu.Unlock()

	if cb != nil {
		cb(reason)
	}
}
