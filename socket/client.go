package socket

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"labchat_server/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// ClientConfig tunes a connection's queue and deadlines.
type ClientConfig struct {
	SendBuffer      int
	WriteTimeout    time.Duration
	PongTimeout     time.Duration
	MaxMessageBytes int64
}

func (c ClientConfig) pingPeriod() time.Duration {
	return c.PongTimeout * 9 / 10
}

// Client is a websocket peer. ReadPump and WritePump each run on their own goroutine; the send
// queue is never closed, done signals shutdown instead.
type Client struct {
	id      string
	userID  string
	groupID string
	conn    *websocket.Conn
	cfg     ClientConfig
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	log     *logrus.Entry
}

func NewClient(conn *websocket.Conn, userID, groupID string, cfg ClientConfig, log *logrus.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		id:      id,
		userID:  userID,
		groupID: groupID,
		conn:    conn,
		cfg:     cfg,
		send:    make(chan []byte, cfg.SendBuffer),
		done:    make(chan struct{}),
		log:     log.WithFields(logrus.Fields{"groupId": groupID, "userId": userID, "connId": id}),
	}
}

func (c *Client) ID() string      { return c.id }
func (c *Client) UserID() string  { return c.userID }
func (c *Client) GroupID() string { return c.groupID }

func (c *Client) Enqueue(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// SendEnvelope queues a frame for this peer only.
func (c *Client) SendEnvelope(env models.Envelope) bool {
	payload, err := json.Marshal(env)
	if err != nil {
		c.log.WithError(err).Error("failed to encode envelope")
		return false
	}
	return c.Enqueue(payload)
}

// Close asks the writer to send a close frame and drop the connection. Safe to call many times.
func (c *Client) Close() {
	c.once.Do(func() { close(c.done) })
}

// Done is closed once the client is shutting down.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// WritePump drains the send queue onto the socket and keeps the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.cfg.pingPeriod())
	defer func() {
		ticker.Stop()
		c.Close()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.log.WithError(err).Debug("write failed")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout)); err != nil {
				c.log.WithError(err).Debug("ping failed")
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.cfg.WriteTimeout))
			return
		}
	}
}

// ReadPump hands every inbound frame to handle until the peer goes away or the client is closed.
func (c *Client) ReadPump(handle func(raw []byte)) {
	defer c.Close()

	c.conn.SetReadLimit(c.cfg.MaxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !errors.Is(err, websocket.ErrCloseSent) {
				c.log.WithError(err).Debug("connection closed unexpectedly")
			}
			return
		}
		// Any inbound traffic proves the peer is alive.
		_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
		handle(raw)
	}
}

// RejectConnection closes an upgraded connection with a policy violation.
func RejectConnection(conn *websocket.Conn, reason string, timeout time.Duration) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason),
		time.Now().Add(timeout))
	_ = conn.Close()
}
