package message

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusLattice(t *testing.T) {
	cases := []struct {
		name string
		from Status
		to   Status
		ok   bool
	}{
		{"sending to sent", StatusSending, StatusSent, true},
		{"sending to delivered", StatusSending, StatusDelivered, true},
		{"sending to failed", StatusSending, StatusFailed, true},
		{"sent to delivered", StatusSent, StatusDelivered, true},
		{"sent to read", StatusSent, StatusRead, true},
		{"sent to failed", StatusSent, StatusFailed, true},
		{"delivered to read", StatusDelivered, StatusRead, true},
		{"delivered to failed", StatusDelivered, StatusFailed, false},
		{"read to failed", StatusRead, StatusFailed, false},
		{"read to sent regression", StatusRead, StatusSent, false},
		{"delivered to sent regression", StatusDelivered, StatusSent, false},
		{"sent to sent is rejected", StatusSent, StatusSent, false},
		{"failed is terminal", StatusFailed, StatusSent, false},
		{"failed to read", StatusFailed, StatusRead, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.ok, tc.from.CanTransition(tc.to))
		})
	}
}

func TestNewTempID(t *testing.T) {
	a := NewTempID()
	b := NewTempID()

	assert.True(t, strings.HasPrefix(a, TempIDPrefix))
	assert.NotEqual(t, a, b)

	msg := &Message{ID: a}
	assert.True(t, msg.IsTemp())
	msg.ID = "m1"
	assert.False(t, msg.IsTemp())
}

func TestStatusStrings(t *testing.T) {
	assert.Equal(t, "sending", StatusSending.String())
	assert.Equal(t, "sent", StatusSent.String())
	assert.Equal(t, "delivered", StatusDelivered.String())
	assert.Equal(t, "read", StatusRead.String())
	assert.Equal(t, "failed", StatusFailed.String())
	assert.Equal(t, "unknown", Status(42).String())
}
