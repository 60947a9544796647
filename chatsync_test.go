package chatsync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/md-asharaf/campus-bazaar-sub000/connection"
	"github.com/md-asharaf/campus-bazaar-sub000/event"
	"github.com/md-asharaf/campus-bazaar-sub000/message"
	"github.com/md-asharaf/campus-bazaar-sub000/transport"
)

// newTestSession assembles a connected session on a mock transport with
// short timing windows, authenticated as u1.
func newTestSession(t *testing.T) (*Session, *transport.MockTransport) {
	t.Helper()

	mock := transport.NewMockTransport()
	opts := NewOptions()
	opts.Transport = mock
	opts.MaxAuthRetries = 3
	opts.AuthRetryDelay = 10 * time.Millisecond
	opts.SendTimeout = 40 * time.Millisecond
	opts.TypingExpiry = 40 * time.Millisecond
	opts.TypingDebounce = 30 * time.Millisecond
	opts.JoinTimeout = 50 * time.Millisecond
	opts.ErrorDismissAfter = 30 * time.Millisecond

	s, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	require.NoError(t, s.Connect(context.Background()))
	mock.Receive(event.Connected, &event.ConnectedPayload{UserID: "u1"})
	require.Equal(t, "u1", s.UserID())
	return s, mock
}

// join requests membership and confirms it from the fake server side.
func join(t *testing.T, s *Session, mock *transport.MockTransport, chatID string) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		time.Sleep(5 * time.Millisecond)
		mock.Receive(event.JoinedChat, &event.JoinedChatPayload{ChatID: chatID})
	}()
	require.NoError(t, s.Join(context.Background(), chatID))
	<-done
}

func TestNewRequiresServerURLOrTransport(t *testing.T) {
	_, err := New(&Options{})
	assert.Error(t, err)
}

func TestConnectJoinSendConfirm(t *testing.T) {
	s, mock := newTestSession(t)
	join(t, s, mock, "chat-1")

	joins := mock.SentNamed(event.JoinChat)
	require.Len(t, joins, 1)

	msg, err := s.Send("chat-1", "hi")
	require.NoError(t, err)
	assert.True(t, msg.IsTemp())
	assert.Equal(t, message.StatusSending, msg.Status)

	sends := mock.SentNamed(event.SendMessage)
	require.Len(t, sends, 1)

	// The server confirms with an echo carrying the canonical id.
	mock.Receive(event.NewMessage, &event.NewMessagePayload{
		MessageID: "m1",
		ChatID:    "chat-1",
		SenderID:  "u1",
		Content:   "hi",
		Timestamp: time.Now(),
	})

	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, message.StatusSent, msg.Status)
	require.Len(t, s.Messages("chat-1"), 1)

	// Receipts drive the status forward.
	mock.Receive(event.MessageDelivered, &event.MessageDeliveredPayload{MessageID: "m1", DeliveredTo: "u2"})
	assert.Equal(t, message.StatusDelivered, msg.Status)
	mock.Receive(event.MessageRead, &event.MessageReadPayload{MessageID: "m1", ReadBy: "u2"})
	assert.Equal(t, message.StatusRead, msg.Status)
}

func TestSendWhileDisconnected(t *testing.T) {
	mock := transport.NewMockTransport()
	opts := NewOptions()
	opts.Transport = mock

	s, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	_, err = s.Send("chat-1", "hi")
	assert.ErrorIs(t, err, message.ErrNotConnected)
	assert.Empty(t, s.Messages("chat-1"))
}

func TestJoinTimeout(t *testing.T) {
	s, _ := newTestSession(t)

	err := s.Join(context.Background(), "chat-1")
	assert.ErrorIs(t, err, ErrJoinTimeout)
}

func TestJoinHonorsContext(t *testing.T) {
	s, _ := newTestSession(t)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Join(ctx, "chat-1")
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("join did not return after context cancellation")
	}
}

func TestLeaveCancelsPendingJoin(t *testing.T) {
	s, mock := newTestSession(t)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Join(context.Background(), "chat-1")
	}()
	time.Sleep(5 * time.Millisecond)
	s.Leave("chat-1")

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrJoinCanceled)
	case <-time.After(time.Second):
		t.Fatal("join did not return after leave")
	}

	assert.Len(t, mock.SentNamed(event.LeaveChat), 1)
}

func TestLeaveDropsConversationState(t *testing.T) {
	s, mock := newTestSession(t)
	join(t, s, mock, "chat-1")

	mock.Receive(event.NewMessage, &event.NewMessagePayload{
		MessageID: "m5", ChatID: "chat-1", SenderID: "u2", Content: "yo",
	})
	mock.Receive(event.UserTyping, &event.UserTypingPayload{ChatID: "chat-1", UserID: "u2"})
	require.Len(t, s.Messages("chat-1"), 1)
	require.Equal(t, []string{"u2"}, s.TypingUsers("chat-1"))

	s.Leave("chat-1")

	assert.Empty(t, s.Messages("chat-1"))
	assert.Empty(t, s.TypingUsers("chat-1"))
}

func TestForeignMessageIsAcknowledged(t *testing.T) {
	s, mock := newTestSession(t)
	join(t, s, mock, "chat-1")

	var received []*message.Message
	var mu sync.Mutex
	s.OnMessage(func(msg *message.Message) {
		mu.Lock()
		received = append(received, msg)
		mu.Unlock()
	})

	mock.Receive(event.NewMessage, &event.NewMessagePayload{
		MessageID: "m9", ChatID: "chat-1", SenderID: "u2", Content: "still available?",
	})

	mu.Lock()
	require.Len(t, received, 1)
	assert.Equal(t, "m9", received[0].ID)
	mu.Unlock()

	acks := mock.SentNamed(event.MarkDelivered)
	require.Len(t, acks, 1)
}

func TestTypingRoundTrip(t *testing.T) {
	s, mock := newTestSession(t)
	join(t, s, mock, "chat-1")

	// Local side: keystrokes debounce into a single start.
	s.NotifyTyping("chat-1")
	s.NotifyTyping("chat-1")
	assert.Len(t, mock.SentNamed(event.TypingStart), 1)

	// Sending force-stops the indicator before the message goes out.
	_, err := s.Send("chat-1", "hi")
	require.NoError(t, err)
	frames := mock.Sent()
	var order []string
	for _, f := range frames {
		if f.Event == event.TypingStop || f.Event == event.SendMessage {
			order = append(order, f.Event)
		}
	}
	assert.Equal(t, []string{event.TypingStop, event.SendMessage}, order)

	// Remote side: indicator appears and expires on its own.
	mock.Receive(event.UserTyping, &event.UserTypingPayload{ChatID: "chat-1", UserID: "u2"})
	assert.Equal(t, []string{"u2"}, s.TypingUsers("chat-1"))
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, s.TypingUsers("chat-1"))
}

func TestPresenceLifecycle(t *testing.T) {
	s, mock := newTestSession(t)

	var changes []string
	var mu sync.Mutex
	s.OnPresence(func(userID string, online bool) {
		mu.Lock()
		changes = append(changes, userID)
		mu.Unlock()
	})

	mock.Receive(event.UserOnline, &event.UserOnlinePayload{UserID: "u2"})
	assert.True(t, s.IsOnline("u2"))
	assert.Equal(t, []string{"u2"}, s.OnlineUsers())
	assert.Equal(t, []string{"u2"}, s.OnlineAmong([]string{"u2", "u3"}))

	mock.Receive(event.UserOffline, &event.UserOfflinePayload{UserID: "u2"})
	assert.False(t, s.IsOnline("u2"))

	mu.Lock()
	assert.Equal(t, []string{"u2", "u2"}, changes)
	mu.Unlock()
}

func TestDisconnectClearsEphemeralState(t *testing.T) {
	s, mock := newTestSession(t)
	join(t, s, mock, "chat-1")

	mock.Receive(event.UserOnline, &event.UserOnlinePayload{UserID: "u2"})
	mock.Receive(event.UserTyping, &event.UserTypingPayload{ChatID: "chat-1", UserID: "u2"})
	mock.Receive(event.NewMessage, &event.NewMessagePayload{
		MessageID: "m5", ChatID: "chat-1", SenderID: "u2", Content: "yo",
	})

	mock.Receive(event.TransportDisconnect, &event.DisconnectPayload{Reason: event.ReasonTransportError})

	// Presence and typing cannot be trusted across the gap; messages can.
	assert.Empty(t, s.OnlineUsers())
	assert.Empty(t, s.TypingUsers("chat-1"))
	assert.Len(t, s.Messages("chat-1"), 1)
	assert.Equal(t, connection.StateReconnecting, s.State())
	assert.False(t, s.IsConnected())
}

func TestServerDisconnectSurfaces(t *testing.T) {
	s, mock := newTestSession(t)

	var gotReason string
	var mu sync.Mutex
	s.OnServerDisconnect(func(reason string) {
		mu.Lock()
		gotReason = reason
		mu.Unlock()
	})

	mock.Receive(event.TransportDisconnect, &event.DisconnectPayload{Reason: event.ReasonServerDisconnect})

	mu.Lock()
	assert.Equal(t, event.ReasonServerDisconnect, gotReason)
	mu.Unlock()
	assert.Equal(t, connection.StateDisconnected, s.State())
}

func TestServerErrorAutoDismisses(t *testing.T) {
	s, mock := newTestSession(t)

	var got string
	var mu sync.Mutex
	s.OnServerError(func(msg string) {
		mu.Lock()
		got = msg
		mu.Unlock()
	})

	mock.Receive(event.ServerError, &event.ServerErrorPayload{Message: "Chat not found"})

	mu.Lock()
	assert.Equal(t, "Chat not found", got)
	mu.Unlock()
	assert.Equal(t, "Chat not found", s.LastServerError())

	time.Sleep(80 * time.Millisecond)
	assert.Empty(t, s.LastServerError())
}

func TestSendTimeoutThenRetry(t *testing.T) {
	s, mock := newTestSession(t)
	join(t, s, mock, "chat-1")

	msg, err := s.Send("chat-1", "hi")
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	require.Len(t, s.Messages("chat-1"), 1)
	require.Equal(t, message.StatusFailed, msg.Status)

	fresh, err := s.Retry(msg.ID)
	require.NoError(t, err)
	assert.NotEqual(t, msg.ID, fresh.ID)
	assert.Len(t, mock.SentNamed(event.SendMessage), 2)
}

func TestCustomEventsReachBusSubscribers(t *testing.T) {
	s, mock := newTestSession(t)

	var payloads []any
	var mu sync.Mutex
	s.Bus().Subscribe("listing_updated", func(payload any) {
		mu.Lock()
		payloads = append(payloads, payload)
		mu.Unlock()
	})

	mock.Receive("listing_updated", map[string]string{"listingId": "l-9"})

	mu.Lock()
	require.Len(t, payloads, 1)
	mu.Unlock()
}

func TestSendMediaRequiresAPIURL(t *testing.T) {
	s, _ := newTestSession(t)

	_, err := s.SendMedia(context.Background(), "chat-1", "look", []Upload{})
	assert.Error(t, err)
}

func TestCloseIsTerminalAndIdempotent(t *testing.T) {
	s, mock := newTestSession(t)

	s.Close()
	s.Close()

	assert.True(t, mock.Closed())
	assert.ErrorIs(t, s.Connect(context.Background()), ErrClosed)
	assert.ErrorIs(t, s.Join(context.Background(), "chat-1"), ErrClosed)
}

func TestClosedSessionSettlesPendingJoin(t *testing.T) {
	s, _ := newTestSession(t)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Join(context.Background(), "chat-1")
	}()
	time.Sleep(5 * time.Millisecond)
	s.Close()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("join did not return after close")
	}
}
