package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeMessageRFC3339Timestamp(t *testing.T) {
	data := []byte(`{"senderId":"c1","receiverId":"u1","text":"hello","timestamp":"2025-03-01T10:30:00Z"}`)

	msg, err := DecodeMessage(data)
	require.NoError(t, err)
	assert.Equal(t, "c1", msg.SenderID)
	assert.Equal(t, "u1", msg.ReceiverID)
	assert.Equal(t, "hello", msg.Text)
	assert.Equal(t, time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC), msg.Timestamp)
}

func TestDecodeMessageMillisTimestamp(t *testing.T) {
	data := []byte(`{"senderId":"c1","receiverId":"u1","text":"hi","timestamp":1740000000000}`)

	msg, err := DecodeMessage(data)
	require.NoError(t, err)
	assert.Equal(t, time.UnixMilli(1740000000000).UTC(), msg.Timestamp)
}

func TestDecodeMessageMissingFields(t *testing.T) {
	cases := map[string]string{
		"no sender":   `{"receiverId":"u1","text":"hi"}`,
		"no receiver": `{"senderId":"c1","text":"hi"}`,
		"no text":     `{"senderId":"c1","receiverId":"u1"}`,
		"not json":    `"hi"`,
	}

	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeMessage([]byte(payload))
			assert.ErrorIs(t, err, ErrInvalidMessage)
		})
	}
}

func TestDecodeHistoryDropsMalformedEntries(t *testing.T) {
	data := []byte(`[
		{"senderId":"c1","receiverId":"u1","text":"one"},
		{"receiverId":"u1","text":"no sender"},
		{"senderId":"c1","receiverId":"u1","text":"two"}
	]`)

	msgs, dropped, err := DecodeHistory(data)
	require.NoError(t, err)
	assert.Equal(t, 1, dropped)
	require.Len(t, msgs, 2)
	assert.Equal(t, "one", msgs[0].Text)
	assert.Equal(t, "two", msgs[1].Text)
}

func TestDecodeHistoryNotArray(t *testing.T) {
	_, _, err := DecodeHistory([]byte(`{"senderId":"c1"}`))
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestPeerFromClinic(t *testing.T) {
	peer := PeerFromClinic(ClinicRecord{ClinicID: "c9", ClinicName: "Happy Paws", ImageURL: "http://img"})

	assert.Equal(t, "c9", peer.ID)
	assert.Equal(t, "Happy Paws", peer.DisplayName)
	assert.Equal(t, "http://img", peer.AvatarURL)
	assert.Equal(t, DefaultPreview, peer.LastMessagePreview)
}
