package signal

import (
	"sync"
	"time"

	"livecast/internal/core/domain"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// wsConn is the session transport. Send only enqueues; writePump is the
// sole writer on the socket.
type wsConn struct {
	conn         *websocket.Conn
	send         chan []byte
	done         chan struct{}
	writerDone   chan struct{}
	pingInterval time.Duration
	writeTimeout time.Duration
	logger       *zap.SugaredLogger

	closeOnce sync.Once
	closeCode int
	closeText string
}

var _ domain.Transport = (*wsConn)(nil)

func newWSConn(conn *websocket.Conn, bufferSize int, pingInterval, writeTimeout time.Duration, logger *zap.SugaredLogger) *wsConn {
	return &wsConn{
		conn:         conn,
		send:         make(chan []byte, bufferSize),
		done:         make(chan struct{}),
		writerDone:   make(chan struct{}),
		pingInterval: pingInterval,
		writeTimeout: writeTimeout,
		logger:       logger,
		closeCode:    websocket.CloseNormalClosure,
	}
}

// Send queues payload for the writer. A full queue fails this delivery
// instead of blocking the caller.
func (c *wsConn) Send(payload []byte) error {
	select {
	case <-c.done:
		return domain.ErrSessionClosed
	default:
	}

	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return domain.ErrSessionClosed
	default:
		return domain.ErrSendQueueFull
	}
}

// Close ends the session with a going-away frame.
func (c *wsConn) Close() error {
	c.closeWith(websocket.CloseGoingAway, "server shutting down")
	return nil
}

// closeWith asks the writer to flush queued frames and then send a close
// frame with code. Only the first call has any effect.
func (c *wsConn) closeWith(code int, text string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeText = text
		close(c.done)
	})
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		close(c.writerDone)
	}()

	for {
		select {
		case payload := <-c.send:
			if err := c.write(websocket.TextMessage, payload); err != nil {
				c.logger.Debugw("websocket write failed", "error", err)
				return
			}

		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.logger.Debugw("websocket ping failed", "error", err)
				return
			}

		case <-c.done:
			c.flush()
			msg := websocket.FormatCloseMessage(c.closeCode, c.closeText)
			_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeTimeout))
			return
		}
	}
}

func (c *wsConn) flush() {
	for {
		select {
		case payload := <-c.send:
			if err := c.write(websocket.TextMessage, payload); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *wsConn) write(messageType int, payload []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, payload)
}

// wait blocks until the writer has exited or timeout passes.
func (c *wsConn) wait(timeout time.Duration) {
	select {
	case <-c.writerDone:
	case <-time.After(timeout):
		_ = c.conn.Close()
	}
}
