package ports

import (
	"context"
	"time"

	"livecast/internal/core/domain"
)

type JoinResult struct {
	Room  domain.RoomID
	Count int64
	// Left is set when the join moved the session out of another room.
	Left      domain.RoomID
	LeftCount int64
}

// BroadcastService is the single entry point for session events.
type BroadcastService interface {
	Establish(ctx context.Context, transport domain.Transport, identity domain.Identity) (*domain.Session, error)
	Join(ctx context.Context, id domain.SessionID, room domain.RoomID, claimed domain.Identity) (JoinResult, error)
	Leave(ctx context.Context, id domain.SessionID, room domain.RoomID) (int64, error)
	Chat(ctx context.Context, id domain.SessionID, room domain.RoomID, content string) (*domain.ChatMessage, error)
	Like(ctx context.Context, id domain.SessionID, room domain.RoomID, liked bool) (int64, error)
	Teardown(ctx context.Context, id domain.SessionID)
	Rooms(ctx context.Context) ([]domain.RoomSnapshot, error)
	Room(ctx context.Context, room domain.RoomID) (domain.RoomSnapshot, error)
	SessionCount() int
	Shutdown(ctx context.Context)
}

// FrameEncoder renders the room-wide outbound events.
type FrameEncoder interface {
	OnlineCount(room domain.RoomID, count int64) ([]byte, error)
	ChatMessage(msg *domain.ChatMessage) ([]byte, error)
	LikeCount(room domain.RoomID, count int64) ([]byte, error)
}

type MetricsRecorder interface {
	SessionOpened()
	SessionClosed()
	RoomMembers(room domain.RoomID, members int)
	EventHandled(eventType string, d time.Duration)
	ErrorSent(code string)
	Broadcast(eventType string, report domain.DeliveryReport)
	CounterOp(op string, d time.Duration, err error)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) SessionOpened() {}
func (NopMetrics) SessionClosed() {}
func (NopMetrics) RoomMembers(domain.RoomID, int) {}
func (NopMetrics) EventHandled(string, time.Duration) {}
func (NopMetrics) ErrorSent(string) {}
func (NopMetrics) Broadcast(string, domain.DeliveryReport) {}
func (NopMetrics) CounterOp(string, time.Duration, error) {}
