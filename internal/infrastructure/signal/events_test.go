package signal

import (
	"testing"
	"time"

	"livecast/internal/core/domain"
	"livecast/internal/core/ports"
	apperrors "livecast/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeInbound(t *testing.T) {
	t.Run("join with payload", func(t *testing.T) {
		in, err := DecodeInbound([]byte(`{"type":"join","payload":{"room":"s1","userId":"u1","username":"alice"}}`))
		require.NoError(t, err)
		assert.Equal(t, EventJoin, in.Type)
		assert.Equal(t, domain.RoomID("s1"), in.Join.RoomID())
		assert.Equal(t, domain.Identity{UserID: "u1", Username: "alice"}, in.Join.Identity())
	})

	t.Run("flat frame with streamId", func(t *testing.T) {
		in, err := DecodeInbound([]byte(`{"type":"join","streamId":"s2"}`))
		require.NoError(t, err)
		assert.Equal(t, domain.RoomID("s2"), in.Join.RoomID())
	})

	t.Run("room wins over streamId", func(t *testing.T) {
		in, err := DecodeInbound([]byte(`{"type":"leave","payload":{"room":"a","streamId":"b"}}`))
		require.NoError(t, err)
		assert.Equal(t, domain.RoomID("a"), in.Leave.RoomID())
	})

	t.Run("send_message is chat_message", func(t *testing.T) {
		in, err := DecodeInbound([]byte(`{"type":"send_message","payload":{"room":"s1","content":"hi"}}`))
		require.NoError(t, err)
		assert.Equal(t, EventChatMessage, in.Type)
		assert.Equal(t, "hi", in.Chat.Content)
	})

	t.Run("like requires liked", func(t *testing.T) {
		_, err := DecodeInbound([]byte(`{"type":"like","payload":{"room":"s1"}}`))
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidInput))

		in, err := DecodeInbound([]byte(`{"type":"like","payload":{"room":"s1","liked":false}}`))
		require.NoError(t, err)
		assert.False(t, *in.Like.Liked)
	})

	t.Run("ping", func(t *testing.T) {
		in, err := DecodeInbound([]byte(`{"type":"ping"}`))
		require.NoError(t, err)
		assert.Equal(t, EventPing, in.Type)
	})

	errCases := []struct {
		name  string
		frame string
		code  apperrors.ErrorCode
	}{
		{"not json", `hello`, apperrors.ErrCodeInvalidInput},
		{"missing type", `{"payload":{}}`, apperrors.ErrCodeInvalidInput},
		{"unknown type", `{"type":"dance"}`, apperrors.ErrCodeUnknownEvent},
		{"wrong field type", `{"type":"chat_message","payload":{"content":42}}`, apperrors.ErrCodeInvalidInput},
	}
	for _, tc := range errCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeInbound([]byte(tc.frame))
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, tc.code), "got %v", err)
		})
	}
}

func fixedCodec() *Codec {
	c := NewCodec()
	c.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return c
}

func TestCodec_Frames(t *testing.T) {
	c := fixedCodec()

	frame, err := c.OnlineCount("s1", 3)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"online_count","payload":{"room":"s1","count":3}}`, string(frame))

	frame, err = c.LikeCount("s1", 7)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"like","payload":{"room":"s1","count":7}}`, string(frame))

	frame, err = c.ChatMessage(&domain.ChatMessage{
		ID:       "01HX",
		RoomID:   "s1",
		UserID:   "u1",
		Username: "alice",
		Content:  "hi",
		SentAt:   time.Date(2024, 5, 1, 14, 30, 0, 250e6, time.FixedZone("CEST", 2*3600)),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"chat_message","payload":{"id":"01HX","room":"s1","userId":"u1","username":"alice","message":"hi","timestamp":"2024-05-01T12:30:00.250Z"}}`, string(frame))

	frame, err = c.Joined(ports.JoinResult{Room: "s1", Count: 2}, "sess-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"joined","payload":{"room":"s1","sessionId":"sess-1","count":2}}`, string(frame))

	frame, err = c.Pong()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"pong","payload":{"timestamp":"2024-05-01T12:00:00.000Z"}}`, string(frame))

	frame, err = c.Error(apperrors.NewNotInRoomError("s1"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"error","payload":{"message":"not joined to room \"s1\"","code":"NOT_IN_ROOM","timestamp":"2024-05-01T12:00:00.000Z"}}`, string(frame))
}
