package event

import (
	"encoding/json"
	"time"
)

// Server-to-client wire events.
const (
	Connected         = "connected"
	JoinedChat        = "joined_chat"
	LeftChat          = "left_chat"
	NewMessage        = "new_message"
	MessageDelivered  = "message_delivered"
	MessageRead       = "message_read"
	UserTyping        = "user_typing"
	UserStoppedTyping = "user_stopped_typing"
	UserOnline        = "user_online"
	UserOffline       = "user_offline"
	ServerError       = "error"
)

// Transport-level events, synthesized by the transport itself.
const (
	TransportConnect      = "connect"
	TransportConnectError = "connect_error"
	TransportDisconnect   = "disconnect"
)

// Client-to-server wire events.
const (
	JoinChat      = "join_chat"
	LeaveChat     = "leave_chat"
	SendMessage   = "send_message"
	MarkDelivered = "mark_delivered"
	MarkRead      = "mark_read"
	TypingStart   = "typing_start"
	TypingStop    = "typing_stop"
)

// ConnectedPayload carries the authenticated user id.
type ConnectedPayload struct {
	UserID string `json:"userId"`
}

// JoinedChatPayload confirms a join_chat request.
type JoinedChatPayload struct {
	ChatID string `json:"chatId"`
}

// LeftChatPayload confirms a leave_chat request.
type LeftChatPayload struct {
	ChatID string `json:"chatId"`
}

// NewMessagePayload carries a server-confirmed message. For a message the
// local user sent, this is the confirmation echo; for anyone else it is a
// freshly received message.
type NewMessagePayload struct {
	MessageID string    `json:"messageId"`
	ChatID    string    `json:"chatId"`
	SenderID  string    `json:"senderId"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
	Media     []string  `json:"media,omitempty"`
}

// MessageDeliveredPayload reports a delivery receipt.
type MessageDeliveredPayload struct {
	MessageID   string `json:"messageId"`
	DeliveredTo string `json:"deliveredTo"`
}

// MessageReadPayload reports a read receipt.
type MessageReadPayload struct {
	MessageID string `json:"messageId"`
	ReadBy    string `json:"readBy"`
}

// UserTypingPayload reports that a user started typing in a chat.
type UserTypingPayload struct {
	UserID string `json:"userId"`
	ChatID string `json:"chatId"`
}

// UserStoppedTypingPayload reports that a user stopped typing in a chat.
type UserStoppedTypingPayload struct {
	UserID string `json:"userId"`
	ChatID string `json:"chatId"`
}

// UserOnlinePayload reports a user coming online.
type UserOnlinePayload struct {
	UserID string `json:"userId"`
}

// UserOfflinePayload reports a user going offline.
type UserOfflinePayload struct {
	UserID string `json:"userId"`
}

// ServerErrorPayload carries a server-pushed application error.
type ServerErrorPayload struct {
	Message string `json:"message"`
}

// ConnectErrorPayload carries a failed connection attempt's reason.
type ConnectErrorPayload struct {
	Message string `json:"message"`
}

// DisconnectPayload carries the reason a transport connection ended.
type DisconnectPayload struct {
	Reason string `json:"reason"`
}

// Disconnect reasons reported via DisconnectPayload.
const (
	ReasonClientDisconnect = "client disconnect"
	ReasonServerDisconnect = "server disconnect"
	ReasonTransportError   = "transport error"
)

// Outbound payloads.

// JoinChatPayload requests membership of a chat room.
type JoinChatPayload struct {
	ChatID string `json:"chatId"`
}

// LeaveChatPayload requests leaving a chat room.
type LeaveChatPayload struct {
	ChatID string `json:"chatId"`
}

// SendMessagePayload carries an outgoing message.
type SendMessagePayload struct {
	ChatID  string   `json:"chatId"`
	Content string   `json:"content"`
	Media   []string `json:"media,omitempty"`
}

// MarkDeliveredPayload acknowledges delivery of a message.
type MarkDeliveredPayload struct {
	MessageID string `json:"messageId"`
}

// MarkReadPayload acknowledges reading of a message.
type MarkReadPayload struct {
	MessageID string `json:"messageId"`
}

// TypingPayload signals local typing start/stop for a chat.
type TypingPayload struct {
	ChatID string `json:"chatId"`
}

// DecodePayload unmarshals raw wire data into the typed payload struct for
// the named event. Unknown events pass through as json.RawMessage so custom
// events still reach subscribers verbatim.
func DecodePayload(name string, data json.RawMessage) (any, error) {
	var payload any

	switch name {
	case Connected:
		payload = &ConnectedPayload{}
	case JoinedChat:
		payload = &JoinedChatPayload{}
	case LeftChat:
		payload = &LeftChatPayload{}
	case NewMessage:
		payload = &NewMessagePayload{}
	case MessageDelivered:
		payload = &MessageDeliveredPayload{}
	case MessageRead:
		payload = &MessageReadPayload{}
	case UserTyping:
		payload = &UserTypingPayload{}
	case UserStoppedTyping:
		payload = &UserStoppedTypingPayload{}
	case UserOnline:
		payload = &UserOnlinePayload{}
	case UserOffline:
		payload = &UserOfflinePayload{}
	case ServerError:
		payload = &ServerErrorPayload{}
	case TransportConnectError:
		payload = &ConnectErrorPayload{}
	case TransportDisconnect:
		payload = &DisconnectPayload{}
	case TransportConnect:
		return nil, nil
	default:
		return data, nil
	}

	if len(data) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(data, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
