package websocket

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/thereayou/roomcoord/internal/metrics"
)

const (
	// Время ожидания записи
	writeWait = 10 * time.Second

	// Время ожидания pong от клиента
	pongWait = 60 * time.Second

	// Интервал отправки ping
	pingPeriod = (pongWait * 9) / 10

	// Максимальный размер кадра, вложения передаются внутри chat
	maxMessageSize = 16 << 20

	sendQueueSize = 256
)

type Client struct {
	ID      string
	Session *Session
	Conn    *websocket.Conn
	Send    chan []byte
	Hub     *Hub

	limiter *rate.Limiter
	// closed меняется только в цикле хаба
	closed bool
}

// NewClient создает клиента для сессии. Лимитер может быть nil.
func NewClient(hub *Hub, conn *websocket.Conn, session *Session, limiter *rate.Limiter) *Client {
	return &Client{
		ID:      session.ConnectionID,
		Session: session,
		Conn:    conn,
		Send:    make(chan []byte, sendQueueSize),
		Hub:     hub,
		limiter: limiter,
	}
}

// ReadPump читает кадры и передает их в цикл хаба
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.log.Info("websocket_closed_unexpectedly", zap.String("conn", c.ID), zap.Error(err))
			}
			return
		}
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
			metrics.Frames.WithLabelValues("unknown", "invalid").Inc()
			c.Hub.log.Debug("malformed_frame", zap.String("conn", c.ID))
			continue
		}

		if msg.Type == TypeHeartbeat {
			continue
		}

		if c.limiter != nil && !c.limiter.Allow() {
			metrics.Frames.WithLabelValues(string(msg.Type), "rate_limited").Inc()
			continue
		}

		msg.Username = c.Session.Username
		if !c.Hub.Dispatch(c, &msg) {
			return
		}
	}
}

// WritePump отправляет сообщения клиенту
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub закрыл канал
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// Отправляем все накопившиеся сообщения
			n := len(c.Send)
			for i := 0; i < n; i++ {
				if err := c.Conn.WriteMessage(websocket.TextMessage, <-c.Send); err != nil {
					return
				}
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendMessage кладет кадр в очередь клиента. Вызывать только из цикла хаба.
func (c *Client) SendMessage(msgType MessageType, channelID *uuid.UUID, data interface{}) error {
	raw, err := encode(msgType, channelID, "", data)
	if err != nil {
		return err
	}
	return c.deliver(raw)
}

func (c *Client) SendError(errorMsg string) {
	c.SendMessage(TypeError, nil, ErrorPayload{Error: errorMsg})
}

func (c *Client) ChannelID() uuid.UUID {
	return c.Session.ChannelID
}

func (c *Client) Username() string {
	return c.Session.Username
}

func (c *Client) deliver(raw []byte) error {
	if c.closed {
		return ErrHubStopped
	}
	select {
	case c.Send <- raw:
		return nil
	default:
		return ErrClientQueueFull
	}
}

// RejectAttach отправляет ошибку напрямую в соединение, которое так и не было зарегистрировано.
func RejectAttach(conn *websocket.Conn, reason string) {
	raw, err := encode(TypeError, nil, "", ErrorPayload{Error: reason})
	if err == nil {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		conn.WriteMessage(websocket.TextMessage, raw)
	}
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason))
	conn.Close()
}
