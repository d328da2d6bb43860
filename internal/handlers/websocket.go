package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/thereayou/roomcoord/internal/database"
	"github.com/thereayou/roomcoord/internal/middleware"
	"github.com/thereayou/roomcoord/internal/models"
	ws "github.com/thereayou/roomcoord/internal/websocket"
)

// WebSocketHandler подключает соединения к хабам комнат
type WebSocketHandler struct {
	rooms      *ws.Rooms
	db         *database.Database
	upgrader   websocket.Upgrader
	frameRate  rate.Limit
	frameBurst int
	log        *zap.Logger
}

type WebSocketOptions struct {
	AllowedOrigins []string
	FrameRate      float64
	FrameBurst     int
}

func NewWebSocketHandler(rooms *ws.Rooms, db *database.Database, opts WebSocketOptions, log *zap.Logger) *WebSocketHandler {
	allowed := make(map[string]struct{}, len(opts.AllowedOrigins))
	for _, o := range opts.AllowedOrigins {
		allowed[o] = struct{}{}
	}

	return &WebSocketHandler{
		rooms: rooms,
		db:    db,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowed) == 0 {
					return true
				}
				_, ok := allowed[r.Header.Get("Origin")]
				return ok
			},
		},
		frameRate:  rate.Limit(opts.FrameRate),
		frameBurst: opts.FrameBurst,
		log:        log.Named("ws"),
	}
}

// HandleWebSocket GET /ws/rooms/:room?channel=<id>&resume=<connection id>
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	username := c.GetString(middleware.UsernameKey)
	if username == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	roomID := c.Param("room")

	session, attachErr := h.attach(c, roomID, username)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	// Отказ до создания состояния: клиент получает ошибку и закрытие
	if attachErr != nil {
		h.log.Info("attach_rejected", zap.String("room", roomID), zap.String("username", username), zap.Error(attachErr))
		reason := "internal error"
		if ws.IsClientError(attachErr) {
			reason = attachErr.Error()
		}
		ws.RejectAttach(conn, reason)
		return
	}

	var limiter *rate.Limiter
	if h.frameRate > 0 {
		limiter = rate.NewLimiter(h.frameRate, h.frameBurst)
	}

	// Пустой хаб мог завершиться между Get и Register; повторяем с новым
	var client *ws.Client
	registered := false
	for attempt := 0; attempt < 2 && !registered; attempt++ {
		hub := h.rooms.Get(roomID)
		client = ws.NewClient(hub, conn, session, limiter)
		registered = hub.Register(client)
	}
	if !registered {
		ws.RejectAttach(conn, ws.ErrHubStopped.Error())
		return
	}

	go client.WritePump()
	go client.ReadPump()
}

// attach проверяет канал и строит сессию: восстановленную или новую.
func (h *WebSocketHandler) attach(c *gin.Context, roomID, username string) (*ws.Session, error) {
	ctx := c.Request.Context()

	session, resumed := ws.Resume(ctx, h.rooms.Sessions(), roomID, c.Query("resume"), username)

	channel, err := h.pickChannel(roomID, c.Query("channel"), session)
	if err != nil {
		return nil, err
	}
	if !channel.CanAttach(username) {
		return nil, ws.ErrForbiddenChannel
	}

	profile, err := h.db.GetProfile(username)
	if err != nil {
		return nil, err
	}

	if !resumed {
		session = &ws.Session{
			ConnectionID: uuid.NewString(),
			RoomID:       roomID,
			Username:     username,
			JoinedAt:     time.Now().UTC(),
		}
	}
	session.DisplayName = profile.Name()
	session.AvatarURL = profile.AvatarURL
	session.ChannelID = channel.ID
	return session, nil
}

func (h *WebSocketHandler) pickChannel(roomID, requested string, resumed *ws.Session) (*models.Channel, error) {
	var (
		channel *models.Channel
		err     error
	)
	switch {
	case requested != "":
		id, perr := uuid.Parse(requested)
		if perr != nil {
			return nil, ws.ErrChannelNotFound
		}
		channel, err = h.db.GetRoomChannel(roomID, id)
	case resumed != nil:
		channel, err = h.db.GetRoomChannel(roomID, resumed.ChannelID)
	default:
		channel, err = h.db.DefaultChannel(roomID)
	}
	if errors.Is(err, database.ErrNotFound) {
		return nil, ws.ErrChannelNotFound
	}
	return channel, err
}
