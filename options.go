package chatsync

import (
	"time"

	"github.com/md-asharaf/campus-bazaar-sub000/auth"
	"github.com/md-asharaf/campus-bazaar-sub000/transport"
)

// Options contains configuration for creating a Session.
type Options struct {
	// ServerURL is the websocket endpoint of the chat server.
	ServerURL string
	// APIURL is the base URL of the REST API used for history seeding and
	// image uploads. Empty disables both.
	APIURL string
	// Tokens supplies the bearer credential for the handshake and REST
	// calls.
	Tokens auth.TokenProvider
	// Transport overrides the websocket transport. Used by tests.
	Transport transport.Transport

	// MaxAuthRetries bounds connection attempts before Connect fails.
	MaxAuthRetries int
	// AuthRetryDelay is the pause between connection attempts.
	AuthRetryDelay time.Duration
	// SendTimeout is how long a send waits for its confirmation echo.
	SendTimeout time.Duration
	// TypingExpiry removes a remote typing indicator that was never
	// refreshed.
	TypingExpiry time.Duration
	// TypingDebounce is the local inactivity window before typing_stop.
	TypingDebounce time.Duration
	// JoinTimeout bounds the wait for a joined_chat confirmation.
	JoinTimeout time.Duration
	// ErrorDismissAfter auto-clears a surfaced server error.
	ErrorDismissAfter time.Duration
	// HistoryPageSize is the number of messages seeded on join.
	HistoryPageSize int
}

// NewOptions creates Options with the default timing windows.
func NewOptions() *Options {
	return &Options{
		MaxAuthRetries:    3,
		AuthRetryDelay:    2 * time.Second,
		SendTimeout:       10 * time.Second,
		TypingExpiry:      3 * time.Second,
		TypingDebounce:    1 * time.Second,
		JoinTimeout:       5 * time.Second,
		ErrorDismissAfter: 5 * time.Second,
		HistoryPageSize:   50,
	}
}
