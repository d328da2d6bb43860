package handlers

import (
	"errors"

	"github.com/google/uuid"
	"github.com/thereayou/roomcoord/internal/database"
	"github.com/thereayou/roomcoord/internal/handlers/dto"
	"github.com/thereayou/roomcoord/internal/websocket"
)

const (
	HistoryModeOffset = "offset"
	HistoryModeBefore = "before"
	HistoryModeAfter  = "after"
	HistoryModeAround = "around"
)

// HistoryService отдает страницы истории канала по ключу (created_at, id).
type HistoryService struct {
	db          *database.Database
	defaultSize int
	maxSize     int
}

func NewHistoryService(db *database.Database, defaultSize, maxSize int) *HistoryService {
	return &HistoryService{db: db, defaultSize: defaultSize, maxSize: maxSize}
}

func (s *HistoryService) limit(requested int) int {
	switch {
	case requested <= 0:
		return s.defaultSize
	case requested > s.maxSize:
		return s.maxSize
	default:
		return requested
	}
}

// Load собирает страницу, реакции одним запросом и last-read пользователя.
func (s *HistoryService) Load(username string, channelID uuid.UUID, req dto.HistoryRequest) (*dto.HistoryResponse, error) {
	limit := s.limit(req.Limit)
	resp := &dto.HistoryResponse{ChannelID: channelID}

	var (
		page *database.Page
		err  error
	)
	switch {
	case req.AroundID != nil:
		resp.Mode = HistoryModeAround
		resp.TargetID = req.AroundID
		perSide := limit / 2
		if perSide < 1 {
			perSide = 1
		}
		page, err = s.db.GetMessagesAround(channelID, *req.AroundID, perSide)
		if errors.Is(err, database.ErrNotFound) {
			return nil, websocket.ErrMessageNotFound
		}
	case req.Before != nil:
		resp.Mode = HistoryModeBefore
		page, err = s.db.GetMessagesBefore(channelID, database.Cursor{CreatedAt: req.Before.UTC(), ID: req.CursorID}, limit)
	case req.After != nil:
		resp.Mode = HistoryModeAfter
		page, err = s.db.GetMessagesAfter(channelID, database.Cursor{CreatedAt: req.After.UTC(), ID: req.CursorID}, limit)
	default:
		resp.Mode = HistoryModeOffset
		offset := req.Offset
		if offset < 0 {
			offset = 0
		}
		page, err = s.db.GetMessagesByOffset(channelID, offset, limit)
	}
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, len(page.Messages))
	for i, m := range page.Messages {
		ids[i] = m.ID
	}
	reactions, err := s.db.GetReactionsForMessages(ids)
	if err != nil {
		return nil, err
	}

	resp.Messages = make([]dto.MessageResponse, len(page.Messages))
	for i := range page.Messages {
		m := &page.Messages[i]
		resp.Messages[i] = dto.NewMessageResponse(m, reactions[m.ID])
	}

	resp.HasMoreOlder = page.HasMoreOlder
	resp.HasMoreNewer = page.HasMoreNewer
	resp.HasMore = page.HasMoreOlder
	if resp.Mode == HistoryModeAfter {
		resp.HasMore = page.HasMoreNewer
	}

	resp.LastReadMessageID, err = s.db.GetLastRead(username, channelID)
	if err != nil {
		return nil, err
	}
	return resp, nil
}
