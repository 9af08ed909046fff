package signal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"livecast/internal/core/domain"
	"livecast/internal/core/ports"
	"livecast/internal/core/services"
	apperrors "livecast/pkg/errors"
	"livecast/pkg/logger"
	"livecast/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type GatewayConfig struct {
	PingInterval   time.Duration
	PongTimeout    time.Duration
	WriteTimeout   time.Duration
	SendBufferSize int
	MaxMessageSize int64
	AllowedOrigins []string
	RequireToken   bool

	// Zero MessagesPerSecond disables the per-session limiter.
	MessagesPerSecond float64
	Burst             int
}

func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		PingInterval:      30 * time.Second,
		PongTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		SendBufferSize:    256,
		MaxMessageSize:    64 * 1024,
		RequireToken:      true,
		MessagesPerSecond: 20,
		Burst:             40,
	}
}

// Gateway upgrades HTTP requests to WebSocket sessions and feeds their
// events to the broadcast service.
type Gateway struct {
	cfg      GatewayConfig
	service  ports.BroadcastService
	auth     services.AuthService
	codec    *Codec
	metrics  ports.MetricsRecorder
	log      *logger.ContextLogger
	upgrader websocket.Upgrader
}

var _ ports.WebSocketHandler = (*Gateway)(nil)

func NewGateway(
	cfg GatewayConfig,
	service ports.BroadcastService,
	auth services.AuthService,
	codec *Codec,
	metrics ports.MetricsRecorder,
	log *zap.Logger,
) *Gateway {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	g := &Gateway{
		cfg:     cfg,
		service: service,
		auth:    auth,
		codec:   codec,
		metrics: metrics,
		log:     logger.NewContextLogger(log),
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     g.checkOrigin,
	}
	return g
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	if len(g.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range g.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func (g *Gateway) HandleWebSocket(c *gin.Context) {
	g.ServeHTTP(c.Writer, c.Request)
}

func bearerToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return ""
}

// authenticate resolves the connecting identity. A presented token must be
// valid even when tokens are optional.
func (g *Gateway) authenticate(r *http.Request) (domain.Identity, error) {
	token := bearerToken(r)
	if token == "" {
		if g.cfg.RequireToken {
			return domain.Identity{}, apperrors.NewUnauthorizedError("authentication required")
		}
		return domain.Identity{}, nil
	}
	claims, err := g.auth.ValidateToken(token)
	if err != nil {
		return domain.Identity{}, apperrors.WrapError(err, apperrors.ErrCodeUnauthorized,
			"invalid token", http.StatusUnauthorized)
	}
	return claims.Identity(), nil
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, authErr := g.authenticate(r)

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Sugar(r.Context()).Warnw("websocket upgrade failed", "error", err)
		return
	}

	// Sessions outlive the upgrade request's cancellation but keep its values.
	ctx := context.WithoutCancel(r.Context())
	conn := newWSConn(ws, g.cfg.SendBufferSize, g.cfg.PingInterval, g.cfg.WriteTimeout, g.log.Sugar(ctx))
	go conn.writePump()
	defer conn.wait(g.cfg.WriteTimeout)
	defer conn.closeWith(websocket.CloseNormalClosure, "")

	if authErr != nil {
		g.fail(ctx, conn, authErr)
		return
	}

	session, err := g.service.Establish(ctx, conn, identity)
	if err != nil {
		g.fail(ctx, conn, err)
		return
	}
	ctx = logger.WithSessionID(ctx, string(session.ID))
	if identity.UserID != "" {
		ctx = logger.WithUserID(ctx, string(identity.UserID))
	}
	defer g.service.Teardown(ctx, session.ID)

	g.readLoop(ctx, conn, ws, session)
}

func (g *Gateway) readLoop(ctx context.Context, conn *wsConn, ws *websocket.Conn, session *domain.Session) {
	log := g.log.Sugar(ctx)

	if g.cfg.MaxMessageSize > 0 {
		ws.SetReadLimit(g.cfg.MaxMessageSize)
	}
	_ = ws.SetReadDeadline(time.Now().Add(g.cfg.PongTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(g.cfg.PongTimeout))
	})

	var limiter *rate.Limiter
	if g.cfg.MessagesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(g.cfg.MessagesPerSecond), g.cfg.Burst)
	}

	for {
		messageType, frame, err := ws.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				log.Warnw("frame exceeds read limit", "limit", g.cfg.MaxMessageSize)
				conn.closeWith(websocket.CloseMessageTooBig, "message too large")
			} else if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debugw("websocket closed unexpectedly", "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		_ = ws.SetReadDeadline(time.Now().Add(g.cfg.PongTimeout))

		if limiter != nil && !limiter.Allow() {
			g.fail(ctx, conn, apperrors.NewRateLimitError())
			return
		}

		if fatal := g.dispatch(ctx, conn, session, frame); fatal {
			return
		}

		select {
		case <-conn.done:
			return
		default:
		}
	}
}

// dispatch handles one frame and reports whether the session must end.
func (g *Gateway) dispatch(ctx context.Context, conn *wsConn, session *domain.Session, frame []byte) (fatal bool) {
	start := time.Now()
	in, err := DecodeInbound(frame)

	label := in.Type
	if apperrors.HasCode(err, apperrors.ErrCodeUnknownEvent) || label == "" {
		label = "unknown"
	}

	ctx, span := tracing.TraceEvent(ctx, label, string(session.ID))
	defer span.End()
	defer func() {
		g.metrics.EventHandled(label, time.Since(start))
	}()
	defer func() {
		if r := recover(); r != nil {
			g.log.Sugar(ctx).Errorw("panic while handling event", "event", label, "panic", r)
			fatal = g.fail(ctx, conn, apperrors.NewInternalError(fmt.Sprintf("internal error handling %s", label)))
		}
	}()

	if err == nil {
		err = g.handle(ctx, conn, session, in)
	}
	if err != nil {
		tracing.RecordError(ctx, err)
		return g.fail(ctx, conn, err)
	}
	return false
}

func (g *Gateway) handle(ctx context.Context, conn *wsConn, session *domain.Session, in Inbound) error {
	switch in.Type {
	case EventJoin:
		res, err := g.service.Join(ctx, session.ID, in.Join.RoomID(), in.Join.Identity())
		if err != nil {
			return err
		}
		return g.reply(conn, func() ([]byte, error) { return g.codec.Joined(res, session.ID) })

	case EventLeave:
		if err := g.checkClaim(session, in.Leave.UserID); err != nil {
			return err
		}
		_, err := g.service.Leave(ctx, session.ID, in.Leave.RoomID())
		return err

	case EventChatMessage:
		if err := g.checkClaim(session, in.Chat.UserID); err != nil {
			return err
		}
		_, err := g.service.Chat(ctx, session.ID, in.Chat.RoomID(), in.Chat.Content)
		return err

	case EventLike:
		if err := g.checkClaim(session, in.Like.UserID); err != nil {
			return err
		}
		_, err := g.service.Like(ctx, session.ID, in.Like.RoomID(), *in.Like.Liked)
		return err

	case EventPing:
		return g.reply(conn, g.codec.Pong)
	}
	return apperrors.NewUnknownEventError(in.Type)
}

// checkClaim rejects events that name a user other than the session's.
func (g *Gateway) checkClaim(session *domain.Session, claimed domain.UserID) error {
	if claimed == "" {
		return nil
	}
	current := session.Identity().UserID
	if current != "" && claimed != current {
		return apperrors.WrapError(domain.ErrIdentityMismatch, apperrors.ErrCodeUnauthorized,
			"userId does not match session", http.StatusUnauthorized)
	}
	return nil
}

func (g *Gateway) reply(conn *wsConn, render func() ([]byte, error)) error {
	frame, err := render()
	if err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeInternal, "failed to encode reply", http.StatusInternalServerError)
	}
	if err := conn.Send(frame); err != nil && !errors.Is(err, domain.ErrSessionClosed) {
		return apperrors.WrapError(err, apperrors.ErrCodeInternal, "failed to queue reply", http.StatusInternalServerError)
	}
	return nil
}

// fail sends err to the session as an error event and closes the
// connection when the code is fatal. It reports whether it closed.
func (g *Gateway) fail(ctx context.Context, conn *wsConn, err error) bool {
	appErr := apperrors.GetAppError(err)
	if appErr == nil {
		g.log.LogError(ctx, err, "unexpected error handling event")
		appErr = apperrors.NewInternalError("internal error")
	}

	g.metrics.ErrorSent(string(appErr.Code))
	g.log.Sugar(ctx).Debugw("sending error event",
		"code", appErr.Code,
		"message", appErr.Message,
		"cause", appErr.Cause,
	)

	if frame, encErr := g.codec.Error(appErr); encErr == nil {
		_ = conn.Send(frame)
	}
	if appErr.Fatal() {
		conn.closeWith(websocket.ClosePolicyViolation, string(appErr.Code))
		return true
	}
	return false
}
