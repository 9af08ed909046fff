package signal

import (
	"fmt"
	"net/http"
	"time"

	"livecast/internal/core/domain"
	"livecast/internal/core/ports"
	apperrors "livecast/pkg/errors"

	"github.com/goccy/go-json"
)

const (
	EventJoin        = "join"
	EventJoined      = "joined"
	EventLeave       = "leave"
	EventChatMessage = "chat_message"
	EventSendMessage = "send_message"
	EventLike        = "like"
	EventOnlineCount = "online_count"
	EventPing        = "ping"
	EventPong        = "pong"
	EventError       = "error"
)

// TimestampFormat is ISO8601 in UTC with millisecond precision.
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

// Envelope is the frame shape in both directions. Inbound frames may also
// carry their fields next to "type" instead of under "payload".
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// RoomRef accepts either "room" or the older "streamId".
type RoomRef struct {
	Room     domain.RoomID `json:"room"`
	StreamID domain.RoomID `json:"streamId"`
}

func (r RoomRef) RoomID() domain.RoomID {
	if r.Room != "" {
		return r.Room
	}
	return r.StreamID
}

type JoinEvent struct {
	RoomRef
	UserID   domain.UserID `json:"userId"`
	Username string        `json:"username"`
}

func (e JoinEvent) Identity() domain.Identity {
	return domain.Identity{UserID: e.UserID, Username: e.Username}
}

type LeaveEvent struct {
	RoomRef
	UserID domain.UserID `json:"userId"`
}

type ChatEvent struct {
	RoomRef
	Content  string        `json:"content"`
	UserID   domain.UserID `json:"userId"`
	Username string        `json:"username"`
}

type LikeEvent struct {
	RoomRef
	UserID domain.UserID `json:"userId"`
	Liked  *bool         `json:"liked"`
}

// Inbound is a decoded client event. Exactly one of the pointers is set,
// except for ping which carries nothing.
type Inbound struct {
	Type  string
	Join  *JoinEvent
	Leave *LeaveEvent
	Chat  *ChatEvent
	Like  *LikeEvent
}

// DecodeInbound parses and shape-checks one client frame. Errors are
// AppErrors carrying INVALID_INPUT or UNKNOWN_EVENT.
func DecodeInbound(frame []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Inbound{}, apperrors.WrapError(err, apperrors.ErrCodeInvalidInput, "malformed frame", http.StatusBadRequest)
	}
	if env.Type == "" {
		return Inbound{}, apperrors.NewInvalidInputError("type is required")
	}

	body := []byte(env.Payload)
	if len(body) == 0 || string(body) == "null" {
		body = frame
	}

	in := Inbound{Type: env.Type}
	switch env.Type {
	case EventJoin:
		in.Join = &JoinEvent{}
		return in, decodeBody(body, in.Join)
	case EventLeave:
		in.Leave = &LeaveEvent{}
		return in, decodeBody(body, in.Leave)
	case EventChatMessage, EventSendMessage:
		in.Type = EventChatMessage
		in.Chat = &ChatEvent{}
		return in, decodeBody(body, in.Chat)
	case EventLike:
		in.Like = &LikeEvent{}
		if err := decodeBody(body, in.Like); err != nil {
			return in, err
		}
		if in.Like.Liked == nil {
			return in, apperrors.NewInvalidInputError("liked is required")
		}
		return in, nil
	case EventPing:
		return in, nil
	default:
		return in, apperrors.NewUnknownEventError(env.Type)
	}
}

func decodeBody(body []byte, v interface{}) error {
	if err := json.Unmarshal(body, v); err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeInvalidInput,
			fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
	}
	return nil
}

type OnlineCountPayload struct {
	Room  domain.RoomID `json:"room"`
	Count int64         `json:"count"`
}

type ChatMessagePayload struct {
	ID        string        `json:"id"`
	Room      domain.RoomID `json:"room"`
	UserID    domain.UserID `json:"userId"`
	Username  string        `json:"username"`
	Message   string        `json:"message"`
	Timestamp string        `json:"timestamp"`
}

type LikePayload struct {
	Room  domain.RoomID `json:"room"`
	Count int64         `json:"count"`
}

type JoinedPayload struct {
	Room      domain.RoomID    `json:"room"`
	SessionID domain.SessionID `json:"sessionId"`
	Count     int64            `json:"count"`
}

type ErrorPayload struct {
	Message   string `json:"message"`
	Code      string `json:"code"`
	Timestamp string `json:"timestamp"`
}

type PongPayload struct {
	Timestamp string `json:"timestamp"`
}

type outbound struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Codec renders outbound frames.
type Codec struct {
	now func() time.Time
}

var _ ports.FrameEncoder = (*Codec)(nil)

func NewCodec() *Codec {
	return &Codec{now: time.Now}
}

func (c *Codec) encode(eventType string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(outbound{Type: eventType, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", eventType, err)
	}
	return data, nil
}

func (c *Codec) timestamp(t time.Time) string {
	return t.UTC().Format(TimestampFormat)
}

func (c *Codec) OnlineCount(room domain.RoomID, count int64) ([]byte, error) {
	return c.encode(EventOnlineCount, OnlineCountPayload{Room: room, Count: count})
}

func (c *Codec) ChatMessage(msg *domain.ChatMessage) ([]byte, error) {
	return c.encode(EventChatMessage, ChatMessagePayload{
		ID:        msg.ID,
		Room:      msg.RoomID,
		UserID:    msg.UserID,
		Username:  msg.Username,
		Message:   msg.Content,
		Timestamp: c.timestamp(msg.SentAt),
	})
}

func (c *Codec) LikeCount(room domain.RoomID, count int64) ([]byte, error) {
	return c.encode(EventLike, LikePayload{Room: room, Count: count})
}

func (c *Codec) Joined(res ports.JoinResult, id domain.SessionID) ([]byte, error) {
	return c.encode(EventJoined, JoinedPayload{Room: res.Room, SessionID: id, Count: res.Count})
}

func (c *Codec) Pong() ([]byte, error) {
	return c.encode(EventPong, PongPayload{Timestamp: c.timestamp(c.now())})
}

func (c *Codec) Error(appErr *apperrors.AppError) ([]byte, error) {
	return c.encode(EventError, ErrorPayload{
		Message:   appErr.Message,
		Code:      string(appErr.Code),
		Timestamp: c.timestamp(c.now()),
	})
}
