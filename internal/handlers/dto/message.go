package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/roomcoord/internal/models"
)

// Входящие payload-ы

type FilePayload struct {
	Name string `json:"name"`
	Type string `json:"type"`
	// base64 или data: URL
	Data string `json:"data"`
}

type ChatPayload struct {
	Text    string       `json:"text"`
	ReplyTo *uuid.UUID   `json:"reply_to,omitempty"`
	File    *FilePayload `json:"file,omitempty"`
}

type EditPayload struct {
	MessageID  uuid.UUID `json:"message_id"`
	NewMessage string    `json:"new_message"`
}

type DeletePayload struct {
	MessageID uuid.UUID `json:"message_id"`
}

type ReactionPayload struct {
	MessageID uuid.UUID `json:"message_id"`
	Emoji     string    `json:"emoji"`
}

type TypingPayload struct {
	IsTyping bool `json:"is_typing"`
}

type MarkReadPayload struct {
	MessageID uuid.UUID `json:"message_id"`
}

type SwitchChannelPayload struct {
	ChannelID uuid.UUID `json:"channel_id"`
}

// HistoryRequest один из режимов: around_id, before, after или offset (по умолчанию).
type HistoryRequest struct {
	Offset   int        `json:"offset,omitempty"`
	Before   *time.Time `json:"before,omitempty"`
	After    *time.Time `json:"after,omitempty"`
	CursorID *uuid.UUID `json:"cursor_id,omitempty"`
	AroundID *uuid.UUID `json:"around_id,omitempty"`
	Limit    int        `json:"limit,omitempty"`
}

// Исходящие

// MessageResponse сообщение с сайдкарами, как они сохранены
type MessageResponse struct {
	ID          uuid.UUID            `json:"id"`
	ChannelID   uuid.UUID            `json:"channel_id"`
	Username    string               `json:"username"`
	DisplayName string               `json:"display_name"`
	AvatarURL   string               `json:"avatar_url,omitempty"`
	Content     string               `json:"content"`
	Mentions    []string             `json:"mentions,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	Edited      bool                 `json:"edited"`
	EditedAt    *time.Time           `json:"edited_at,omitempty"`
	Kind        string               `json:"kind"`
	ReplyTo     *models.ReplySidecar `json:"reply_to,omitempty"`
	LinkPreview *models.LinkPreview  `json:"link_preview,omitempty"`
	File        *models.FileSidecar  `json:"file,omitempty"`
	Reactions   map[string][]string  `json:"reactions,omitempty"`
}

func NewMessageResponse(m *models.Message, reactions []models.Reaction) MessageResponse {
	side := m.Sidecars()
	resp := MessageResponse{
		ID:          m.ID,
		ChannelID:   m.ChannelID,
		Username:    m.Username,
		DisplayName: m.DisplayName,
		AvatarURL:   m.AvatarURL,
		Content:     m.Content,
		Mentions:    m.Mentions,
		CreatedAt:   m.CreatedAt,
		Edited:      m.Edited,
		EditedAt:    m.EditedAt,
		Kind:        side.Kind().String(),
		ReplyTo:     side.Reply,
		LinkPreview: side.Link,
		File:        side.File,
	}
	if len(reactions) > 0 {
		resp.Reactions = models.GroupReactions(reactions)
	}
	return resp
}

type DeleteResponse struct {
	MessageID uuid.UUID `json:"message_id"`
}

// ReactionResponse полный список реакций сообщения, клиент заменяет его целиком
type ReactionResponse struct {
	MessageID uuid.UUID           `json:"message_id"`
	Reactions map[string][]string `json:"reactions"`
}

type TypingResponse struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	IsTyping    bool   `json:"is_typing"`
}

type HistoryResponse struct {
	Mode              string            `json:"mode"`
	ChannelID         uuid.UUID         `json:"channel_id"`
	Messages          []MessageResponse `json:"messages"`
	HasMore           bool              `json:"has_more"`
	HasMoreOlder      bool              `json:"has_more_older"`
	HasMoreNewer      bool              `json:"has_more_newer"`
	TargetID          *uuid.UUID        `json:"target_id,omitempty"`
	LastReadMessageID *uuid.UUID        `json:"last_read_message_id"`
}

type ChannelSwitchedResponse struct {
	ChannelID  uuid.UUID `json:"channel_id"`
	Name       string    `json:"name"`
	Kind       string    `json:"kind"`
	Visibility string    `json:"visibility"`
}
