package event

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePayloadNewMessage(t *testing.T) {
	raw := json.RawMessage(`{"messageId":"m1","chatId":"chat-1","senderId":"u2","content":"hi","media":["https://cdn/img.png"]}`)

	payload, err := DecodePayload(NewMessage, raw)
	require.NoError(t, err)

	p, ok := payload.(*NewMessagePayload)
	require.True(t, ok)
	assert.Equal(t, "m1", p.MessageID)
	assert.Equal(t, "chat-1", p.ChatID)
	assert.Equal(t, "u2", p.SenderID)
	assert.Equal(t, "hi", p.Content)
	assert.Equal(t, []string{"https://cdn/img.png"}, p.Media)
}

func TestDecodePayloadEmptyData(t *testing.T) {
	payload, err := DecodePayload(UserOnline, nil)
	require.NoError(t, err)

	_, ok := payload.(*UserOnlinePayload)
	assert.True(t, ok)
}

func TestDecodePayloadUnknownEventPassesThrough(t *testing.T) {
	raw := json.RawMessage(`{"custom":true}`)

	payload, err := DecodePayload("listing_updated", raw)
	require.NoError(t, err)
	assert.Equal(t, raw, payload)
}

func TestDecodePayloadMalformed(t *testing.T) {
	_, err := DecodePayload(NewMessage, json.RawMessage(`{"messageId":`))
	assert.Error(t, err)
}
