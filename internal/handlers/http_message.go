package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/thereayou/roomcoord/internal/database"
	"github.com/thereayou/roomcoord/internal/handlers/dto"
	"github.com/thereayou/roomcoord/internal/middleware"
	"github.com/thereayou/roomcoord/internal/websocket"
)

type HTTPMessageHandler struct {
	db      *database.Database
	history *HistoryService
}

func NewHTTPMessageHandler(db *database.Database, history *HistoryService) *HTTPMessageHandler {
	return &HTTPMessageHandler{db: db, history: history}
}

// GetChannelMessages GET /api/v1/rooms/:room/channels/:id/messages
// Параметры те же, что у load_history: offset, before, after, cursor_id, around_id, limit.
func (h *HTTPMessageHandler) GetChannelMessages(c *gin.Context) {
	username := c.GetString(middleware.UsernameKey)

	channelID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel id"})
		return
	}

	channel, err := h.db.GetRoomChannel(c.Param("room"), channelID)
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "channel not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load channel"})
		return
	}
	if !channel.CanAttach(username) {
		c.JSON(http.StatusForbidden, gin.H{"error": websocket.ErrForbiddenChannel.Error()})
		return
	}

	req, err := parseHistoryQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.history.Load(username, channel.ID, req)
	if errors.Is(err, websocket.ErrMessageNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get messages"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func parseHistoryQuery(c *gin.Context) (dto.HistoryRequest, error) {
	var req dto.HistoryRequest

	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return req, errors.New("invalid offset")
		}
		req.Offset = n
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return req, errors.New("invalid limit")
		}
		req.Limit = n
	}

	var err error
	if req.Before, err = queryTime(c, "before"); err != nil {
		return req, err
	}
	if req.After, err = queryTime(c, "after"); err != nil {
		return req, err
	}
	if req.CursorID, err = queryUUID(c, "cursor_id"); err != nil {
		return req, err
	}
	if req.AroundID, err = queryUUID(c, "around_id"); err != nil {
		return req, err
	}
	return req, nil
}

func queryTime(c *gin.Context, key string) (*time.Time, error) {
	v := c.Query(key)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return nil, errors.New("invalid " + key)
	}
	return &t, nil
}

func queryUUID(c *gin.Context, key string) (*uuid.UUID, error) {
	v := c.Query(key)
	if v == "" {
		return nil, nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return nil, errors.New("invalid " + key)
	}
	return &id, nil
}
