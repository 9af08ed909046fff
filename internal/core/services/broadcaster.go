package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"livecast/internal/core/domain"
	"livecast/internal/core/ports"
	apperrors "livecast/pkg/errors"
	"livecast/pkg/tracing"
	"livecast/pkg/utils"
	"livecast/pkg/validation"

	"go.uber.org/zap"
)

const (
	eventOnlineCount = "online_count"
	eventChatMessage = "chat_message"
	eventLike        = "like"
)

type BroadcasterConfig struct {
	InstanceID      string
	MaxSessions     int // 0 = unlimited
	ChatMaxLength   int
	ExcludeSender   bool
	RequireToken    bool
	DefaultRoom     domain.RoomID
	PresenceTimeout time.Duration
}

type BroadcasterOption func(*Broadcaster)

// WithFanout relays chat, like and (with presence) count events to other
// instances.
func WithFanout(f ports.RoomFanout) BroadcasterOption {
	return func(b *Broadcaster) { b.fanout = f }
}

// WithPresence makes online counts cluster-wide.
func WithPresence(p ports.PresenceTracker) BroadcasterOption {
	return func(b *Broadcaster) { b.presence = p }
}

func WithMetrics(m ports.MetricsRecorder) BroadcasterOption {
	return func(b *Broadcaster) { b.metrics = m }
}

func WithClock(now func() time.Time) BroadcasterOption {
	return func(b *Broadcaster) { b.now = now }
}

// Broadcaster turns session events into registry and counter mutations and
// room fan-out. It owns the table of live sessions.
type Broadcaster struct {
	cfg      BroadcasterConfig
	registry *RoomRegistry
	counters ports.CounterStore
	encoder  ports.FrameEncoder
	fanout   ports.RoomFanout
	presence ports.PresenceTracker
	metrics  ports.MetricsRecorder
	logger   *zap.SugaredLogger
	now      func() time.Time

	mu       sync.RWMutex
	sessions map[domain.SessionID]*domain.Session
}

var _ ports.BroadcastService = (*Broadcaster)(nil)

func NewBroadcaster(
	cfg BroadcasterConfig,
	registry *RoomRegistry,
	counters ports.CounterStore,
	encoder ports.FrameEncoder,
	logger *zap.SugaredLogger,
	opts ...BroadcasterOption,
) *Broadcaster {
	if cfg.PresenceTimeout <= 0 {
		cfg.PresenceTimeout = 2 * time.Second
	}
	b := &Broadcaster{
		cfg:      cfg,
		registry: registry,
		counters: counters,
		encoder:  encoder,
		metrics:  ports.NopMetrics{},
		logger:   logger,
		now:      time.Now,
		sessions: make(map[domain.SessionID]*domain.Session),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run consumes events relayed by other instances until ctx is done. It
// returns immediately when fanout is disabled.
func (b *Broadcaster) Run(ctx context.Context) error {
	if b.fanout == nil {
		return nil
	}
	return b.fanout.Subscribe(ctx, b.deliverRemote)
}

func (b *Broadcaster) deliverRemote(event domain.RoomEvent) {
	report := b.registry.Broadcast(event.Room, event.Payload, event.Exclude)
	b.metrics.Broadcast(event.Type, report)
}

// Establish registers a new session for transport. It fails with a fatal
// SESSION_LIMIT error once MaxSessions sessions are open.
func (b *Broadcaster) Establish(ctx context.Context, transport domain.Transport, identity domain.Identity) (*domain.Session, error) {
	b.mu.Lock()
	if b.cfg.MaxSessions > 0 && len(b.sessions) >= b.cfg.MaxSessions {
		b.mu.Unlock()
		return nil, apperrors.WrapError(domain.ErrSessionLimit, apperrors.ErrCodeSessionLimit,
			"too many concurrent sessions", http.StatusServiceUnavailable)
	}
	session := domain.NewSession(domain.SessionID(utils.NewSessionID()), identity, transport, b.now())
	b.sessions[session.ID] = session
	b.mu.Unlock()

	b.metrics.SessionOpened()
	b.logger.Infow("session established",
		"session_id", session.ID,
		"user_id", identity.UserID,
	)
	return session, nil
}

func (b *Broadcaster) session(id domain.SessionID) (*domain.Session, error) {
	b.mu.RLock()
	s, ok := b.sessions[id]
	b.mu.RUnlock()
	if !ok {
		return nil, apperrors.WrapError(domain.ErrSessionNotFound, apperrors.ErrCodeInternal,
			"session not found", http.StatusInternalServerError)
	}
	return s, nil
}

func (b *Broadcaster) SessionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sessions)
}

func (b *Broadcaster) resolveRoom(room domain.RoomID) (domain.RoomID, error) {
	if room == "" {
		room = b.cfg.DefaultRoom
	}
	if err := validation.ValidateRoomID(string(room)); err != nil {
		return "", apperrors.NewInvalidInputError(err.Error())
	}
	return room, nil
}

// bindIdentity settles who the session speaks for. With token auth the
// verified identity wins and a conflicting claim is rejected; otherwise the
// claim is taken as given.
func (b *Broadcaster) bindIdentity(s *domain.Session, claimed domain.Identity) error {
	current := s.Identity()

	if b.cfg.RequireToken {
		if current.UserID == "" {
			return apperrors.NewUnauthorizedError("authentication required")
		}
		if claimed.UserID != "" && claimed.UserID != current.UserID {
			return apperrors.WrapError(domain.ErrIdentityMismatch, apperrors.ErrCodeUnauthorized,
				"userId does not match token", http.StatusUnauthorized)
		}
		return nil
	}

	next := current
	if claimed.UserID != "" {
		if err := validation.ValidateUserID(string(claimed.UserID)); err != nil {
			return apperrors.NewInvalidInputError(err.Error())
		}
		next.UserID = claimed.UserID
	}
	if claimed.Username != "" {
		if err := validation.ValidateDisplayName(claimed.Username); err != nil {
			return apperrors.NewInvalidInputError(err.Error())
		}
		next.Username = claimed.Username
	}
	if next.UserID == "" {
		return apperrors.NewInvalidInputError("userId is required")
	}
	if next.Username == "" {
		next.Username = string(next.UserID)
	}
	if next != current {
		s.SetIdentity(next)
	}
	return nil
}

// Join moves the session into room, leaving any other room first, and
// announces the new counts to both rooms.
func (b *Broadcaster) Join(ctx context.Context, id domain.SessionID, room domain.RoomID, claimed domain.Identity) (ports.JoinResult, error) {
	s, err := b.session(id)
	if err != nil {
		return ports.JoinResult{}, err
	}
	room, err = b.resolveRoom(room)
	if err != nil {
		return ports.JoinResult{}, err
	}
	if err := b.bindIdentity(s, claimed); err != nil {
		return ports.JoinResult{}, err
	}

	out := b.registry.Join(room, s)
	result := ports.JoinResult{Room: room, Count: int64(out.Count)}
	if !out.Changed {
		result.Count = b.onlineCount(ctx, room, out.Count)
		return result, nil
	}

	b.metrics.RoomMembers(room, out.Count)
	if out.Left != "" {
		b.metrics.RoomMembers(out.Left, out.LeftCount)
		result.Left = out.Left
		result.LeftCount = b.presenceLeave(ctx, out.Left, id, out.LeftCount)
	}
	result.Count = b.presenceJoin(ctx, room, id, out.Count)

	b.logger.Infow("session joined room",
		"session_id", id,
		"room", room,
		"left_room", out.Left,
		"count", result.Count,
	)

	b.announceCount(ctx, room, result.Count)
	if result.Left != "" {
		b.announceCount(ctx, result.Left, result.LeftCount)
	}
	return result, nil
}

// Leave removes the session from room and announces the remaining count to
// the room and to the leaver.
func (b *Broadcaster) Leave(ctx context.Context, id domain.SessionID, room domain.RoomID) (int64, error) {
	s, err := b.session(id)
	if err != nil {
		return 0, err
	}
	room, err = b.requireRoom(s, room)
	if err != nil {
		return 0, err
	}

	local, left := b.registry.Leave(room, s)
	if !left {
		return 0, apperrors.WrapError(domain.ErrNotInRoom, apperrors.ErrCodeNotInRoom,
			fmt.Sprintf("not joined to room %q", room), http.StatusForbidden)
	}
	b.metrics.RoomMembers(room, local)
	count := b.presenceLeave(ctx, room, id, local)

	b.logger.Infow("session left room",
		"session_id", id,
		"room", room,
		"count", count,
	)
	b.announceCount(ctx, room, count)
	b.notifyCount(s, room, count)
	return count, nil
}

// notifyCount sends room's count to s alone, for a session that is no
// longer a member and so missed the room announcement.
func (b *Broadcaster) notifyCount(s *domain.Session, room domain.RoomID, count int64) {
	payload, err := b.encoder.OnlineCount(room, count)
	if err != nil {
		b.logger.Errorw("encode online_count", "room", room, "error", err)
		return
	}
	if err := s.Send(payload); err != nil {
		b.logger.Debugw("online_count to leaver not delivered", "session_id", s.ID, "error", err)
	}
}

// requireRoom checks that s is in room. An empty room means the session's
// current room.
func (b *Broadcaster) requireRoom(s *domain.Session, room domain.RoomID) (domain.RoomID, error) {
	current, ok := s.CurrentRoom()
	if room == "" {
		room = current
	}
	if !ok || current != room {
		return "", apperrors.WrapError(domain.ErrNotInRoom, apperrors.ErrCodeNotInRoom,
			fmt.Sprintf("not joined to room %q", room), http.StatusForbidden).
			WithContext("room", room)
	}
	return room, nil
}

// Chat sanitizes content and broadcasts it to the session's room.
func (b *Broadcaster) Chat(ctx context.Context, id domain.SessionID, room domain.RoomID, content string) (*domain.ChatMessage, error) {
	s, err := b.session(id)
	if err != nil {
		return nil, err
	}
	room, err = b.requireRoom(s, room)
	if err != nil {
		return nil, err
	}

	content = utils.SanitizeText(content)
	if err := validation.ValidateChatContent(content, b.cfg.ChatMaxLength); err != nil {
		switch {
		case errors.Is(err, validation.ErrTooLong):
			return nil, apperrors.WrapError(domain.ErrContentTooLong, apperrors.ErrCodeMessageTooLong,
				fmt.Sprintf("message exceeds %d characters", b.cfg.ChatMaxLength), http.StatusBadRequest)
		case errors.Is(err, validation.ErrRequired):
			return nil, apperrors.WrapError(domain.ErrEmptyContent, apperrors.ErrCodeInvalidInput,
				"message content is required", http.StatusBadRequest)
		default:
			return nil, apperrors.NewInvalidInputError(err.Error())
		}
	}

	identity := s.Identity()
	now := b.now().UTC()
	msg := &domain.ChatMessage{
		ID:              utils.NewMessageID(now),
		RoomID:          room,
		SenderSessionID: id,
		UserID:          identity.UserID,
		Username:        identity.Username,
		Content:         content,
		SentAt:          now,
	}

	payload, err := b.encoder.ChatMessage(msg)
	if err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrCodeInternal, "failed to encode message", http.StatusInternalServerError)
	}

	var exclude domain.SessionID
	if b.cfg.ExcludeSender {
		exclude = id
	}
	b.publish(ctx, room, eventChatMessage, payload, exclude, true)
	return msg, nil
}

// Like applies one like or unlike. The counter store decorator already
// retried; a failure here is reported to the sender and nothing is
// broadcast.
func (b *Broadcaster) Like(ctx context.Context, id domain.SessionID, room domain.RoomID, liked bool) (int64, error) {
	s, err := b.session(id)
	if err != nil {
		return 0, err
	}
	room, err = b.requireRoom(s, room)
	if err != nil {
		return 0, err
	}

	key := domain.LikesKey(room)
	op := "decr"
	if liked {
		op = "incr"
	}

	start := time.Now()
	var count int64
	if liked {
		count, err = b.counters.Increment(ctx, key)
	} else {
		count, err = b.counters.Decrement(ctx, key)
	}
	b.metrics.CounterOp(op, time.Since(start), err)
	if err != nil {
		b.logger.Errorw("like counter update failed",
			"session_id", id,
			"room", room,
			"liked", liked,
			"error", err,
		)
		return 0, apperrors.NewServiceUnavailableError("like counter unavailable", err)
	}

	payload, err := b.encoder.LikeCount(room, count)
	if err != nil {
		return 0, apperrors.WrapError(err, apperrors.ErrCodeInternal, "failed to encode like", http.StatusInternalServerError)
	}
	b.publish(ctx, room, eventLike, payload, "", true)
	return count, nil
}

// Teardown forgets the session and removes it from its room. It is safe to
// call more than once.
func (b *Broadcaster) Teardown(ctx context.Context, id domain.SessionID) {
	b.mu.Lock()
	s, ok := b.sessions[id]
	delete(b.sessions, id)
	b.mu.Unlock()
	if !ok {
		return
	}

	s.MarkClosed()
	b.metrics.SessionClosed()

	room, local, wasIn := b.registry.Remove(s)
	if !wasIn {
		b.logger.Infow("session closed", "session_id", id)
		return
	}
	b.metrics.RoomMembers(room, local)
	count := b.presenceLeave(ctx, room, id, local)

	b.logger.Infow("session closed",
		"session_id", id,
		"room", room,
		"count", count,
	)
	b.announceCount(ctx, room, count)
}

// Rooms lists local rooms with their like counts.
func (b *Broadcaster) Rooms(ctx context.Context) ([]domain.RoomSnapshot, error) {
	rooms := b.registry.Rooms()
	for i := range rooms {
		likes, err := b.counters.Get(ctx, domain.LikesKey(rooms[i].ID))
		if err != nil {
			return nil, apperrors.NewServiceUnavailableError("like counter unavailable", err)
		}
		rooms[i].Likes = likes
		rooms[i].Members = int(b.onlineCount(ctx, rooms[i].ID, rooms[i].Members))
	}
	return rooms, nil
}

// Room reports a single room. Unknown rooms are not an error: any
// well-formed id has zero members until someone joins.
func (b *Broadcaster) Room(ctx context.Context, room domain.RoomID) (domain.RoomSnapshot, error) {
	if err := validation.ValidateRoomID(string(room)); err != nil {
		return domain.RoomSnapshot{}, apperrors.NewInvalidInputError(err.Error())
	}
	likes, err := b.counters.Get(ctx, domain.LikesKey(room))
	if err != nil {
		return domain.RoomSnapshot{}, apperrors.NewServiceUnavailableError("like counter unavailable", err)
	}
	return domain.RoomSnapshot{
		ID:      room,
		Members: int(b.onlineCount(ctx, room, b.registry.MemberCount(room))),
		Likes:   likes,
	}, nil
}

// Shutdown closes every session transport. Each reader then runs its own
// Teardown.
func (b *Broadcaster) Shutdown(ctx context.Context) {
	b.mu.RLock()
	sessions := make([]*domain.Session, 0, len(b.sessions))
	for _, s := range b.sessions {
		sessions = append(sessions, s)
	}
	b.mu.RUnlock()

	for _, s := range sessions {
		if err := s.Close(); err != nil {
			b.logger.Debugw("close session on shutdown", "session_id", s.ID, "error", err)
		}
	}
	b.logger.Infow("broadcaster shut down", "sessions", len(sessions))
}

func (b *Broadcaster) announceCount(ctx context.Context, room domain.RoomID, count int64) {
	payload, err := b.encoder.OnlineCount(room, count)
	if err != nil {
		b.logger.Errorw("encode online_count", "room", room, "error", err)
		return
	}
	// Local counts mean nothing to other instances.
	b.publish(ctx, room, eventOnlineCount, payload, "", b.presence != nil)
}

// publish delivers to local members and, when enabled, relays the event
// to other instances.
func (b *Broadcaster) publish(ctx context.Context, room domain.RoomID, eventType string, payload []byte, exclude domain.SessionID, relay bool) {
	ctx, span := tracing.TraceBroadcast(ctx, string(room), eventType)
	defer span.End()

	report := b.registry.Broadcast(room, payload, exclude)
	b.metrics.Broadcast(eventType, report)
	tracing.AddSpanAttributes(ctx, tracing.DeliveredKey.Int(report.Delivered))
	if report.Failed > 0 {
		b.logger.Debugw("broadcast had failed deliveries",
			"room", room,
			"type", eventType,
			"delivered", report.Delivered,
			"failed", report.Failed,
		)
	}

	if !relay || b.fanout == nil {
		return
	}
	event := domain.RoomEvent{
		Origin:  b.cfg.InstanceID,
		Room:    room,
		Type:    eventType,
		Exclude: exclude,
		Payload: payload,
	}
	if err := b.fanout.Publish(ctx, event); err != nil {
		tracing.RecordError(ctx, err)
		b.logger.Warnw("fanout publish failed",
			"room", room,
			"type", eventType,
			"error", err,
		)
	}
}

func (b *Broadcaster) presenceJoin(ctx context.Context, room domain.RoomID, id domain.SessionID, local int) int64 {
	if b.presence == nil {
		return int64(local)
	}
	ctx, cancel := context.WithTimeout(ctx, b.cfg.PresenceTimeout)
	defer cancel()
	count, err := b.presence.Join(ctx, room, id)
	if err != nil {
		b.logger.Warnw("presence join failed, using local count", "room", room, "error", err)
		return int64(local)
	}
	return count
}

func (b *Broadcaster) presenceLeave(ctx context.Context, room domain.RoomID, id domain.SessionID, local int) int64 {
	if b.presence == nil {
		return int64(local)
	}
	ctx, cancel := context.WithTimeout(ctx, b.cfg.PresenceTimeout)
	defer cancel()
	count, err := b.presence.Leave(ctx, room, id)
	if err != nil {
		b.logger.Warnw("presence leave failed, using local count", "room", room, "error", err)
		return int64(local)
	}
	return count
}

func (b *Broadcaster) onlineCount(ctx context.Context, room domain.RoomID, local int) int64 {
	if b.presence == nil {
		return int64(local)
	}
	ctx, cancel := context.WithTimeout(ctx, b.cfg.PresenceTimeout)
	defer cancel()
	count, err := b.presence.Count(ctx, room)
	if err != nil {
		b.logger.Warnw("presence count failed, using local count", "room", room, "error", err)
		return int64(local)
	}
	return count
}
