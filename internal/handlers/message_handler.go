package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/thereayou/roomcoord/internal/blob"
	"github.com/thereayou/roomcoord/internal/database"
	"github.com/thereayou/roomcoord/internal/handlers/dto"
	"github.com/thereayou/roomcoord/internal/linkpreview"
	"github.com/thereayou/roomcoord/internal/models"
	"github.com/thereayou/roomcoord/internal/notify"
	"github.com/thereayou/roomcoord/internal/websocket"
)

// Previewer строит превью первой ссылки в тексте.
type Previewer interface {
	Fetch(ctx context.Context, text string) (*models.LinkPreview, bool)
}

// BlobStore сохраняет байты вложения и возвращает ключ.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Notifier планирует фоновую рассылку push-уведомлений.
type Notifier interface {
	Schedule(n notify.Notification)
}

// MessageHandler обрабатывает кадры комнаты. Вызывается только из цикла хаба.
type MessageHandler struct {
	db             *database.Database
	history        *HistoryService
	previewer      Previewer
	blobs          BlobStore
	notifier       Notifier
	maxUpload      int64
	previewTimeout time.Duration
	log            *zap.Logger

	now func() time.Time
	// фоновые обновления last_seen
	wg sync.WaitGroup
}

type MessageHandlerOptions struct {
	Previewer      Previewer
	Blobs          BlobStore
	Notifier       Notifier
	MaxUploadBytes int64
	PreviewTimeout time.Duration
}

func NewMessageHandler(db *database.Database, history *HistoryService, opts MessageHandlerOptions, log *zap.Logger) *MessageHandler {
	return &MessageHandler{
		db:             db,
		history:        history,
		previewer:      opts.Previewer,
		blobs:          opts.Blobs,
		notifier:       opts.Notifier,
		maxUpload:      opts.MaxUploadBytes,
		previewTimeout: opts.PreviewTimeout,
		log:            log.Named("messages"),
		now:            time.Now,
	}
}

// OnAttach отдает новому соединению первую страницу истории его канала.
func (h *MessageHandler) OnAttach(hub *websocket.Hub, client *websocket.Client) {
	if err := h.sendHistory(client, dto.HistoryRequest{}); err != nil {
		h.log.Error("initial_history_failed", zap.String("conn", client.ID), zap.Error(err))
		client.SendError("internal error")
	}
}

func (h *MessageHandler) HandleFrame(hub *websocket.Hub, client *websocket.Client, msg *websocket.Message) error {
	switch msg.Type {
	case websocket.TypeChat:
		return h.handleChat(hub, client, msg)
	case websocket.TypeEdit:
		return h.handleEdit(hub, client, msg)
	case websocket.TypeDelete:
		return h.handleDelete(hub, client, msg)
	case websocket.TypeReaction:
		return h.handleReaction(hub, client, msg)
	case websocket.TypeTyping:
		return h.handleTyping(hub, client, msg)
	case websocket.TypeMarkRead:
		return h.handleMarkRead(client, msg)
	case websocket.TypeLoadHistory:
		var req dto.HistoryRequest
		if err := msg.Decode(&req); err != nil {
			return err
		}
		return h.sendHistory(client, req)
	case websocket.TypeSwitchChannel:
		return h.handleSwitchChannel(hub, client, msg)
	default:
		return websocket.ErrInvalidMessage
	}
}

func (h *MessageHandler) handleChat(hub *websocket.Hub, client *websocket.Client, msg *websocket.Message) error {
	var payload dto.ChatPayload
	if err := msg.Decode(&payload); err != nil {
		return err
	}
	text := strings.TrimSpace(payload.Text)
	if text == "" && payload.File == nil {
		return websocket.ErrEmptyMessage
	}

	sess := client.Session
	channelID := sess.ChannelID
	var side models.Sidecars

	// Ответ ищем только в текущем канале, иначе это обычное сообщение
	var replyAuthor string
	if payload.ReplyTo != nil {
		target, err := h.db.GetChannelMessage(channelID, *payload.ReplyTo)
		switch {
		case err == nil:
			side.Reply = target.Snapshot()
			replyAuthor = target.Username
		case errors.Is(err, database.ErrNotFound):
		default:
			return fmt.Errorf("load reply target: %w", err)
		}
	}

	mentions := notify.ExtractMentions(text)
	if replyAuthor != "" && !contains(mentions, replyAuthor) {
		mentions = append(mentions, replyAuthor)
	}

	if h.previewer != nil && linkpreview.FirstURL(text) != "" {
		ctx, cancel := context.WithTimeout(hub.Context(), h.previewTimeout)
		if preview, ok := h.previewer.Fetch(ctx, text); ok {
			side.Link = preview
		}
		cancel()
	}

	now := h.now().UTC().Truncate(time.Microsecond)

	if payload.File != nil {
		file, err := h.storeFile(hub.Context(), now, payload.File)
		if err != nil {
			return err
		}
		side.File = file
	}

	message := &models.Message{
		ChannelID:   channelID,
		Username:    sess.Username,
		DisplayName: sess.DisplayName,
		AvatarURL:   sess.AvatarURL,
		Content:     text,
		Mentions:    mentions,
		CreatedAt:   now,
	}
	message.SetSidecars(side)

	if err := h.db.SaveMessage(message); err != nil {
		return fmt.Errorf("save message: %w", err)
	}

	hub.SendToChannel(channelID, websocket.TypeChat, sess.Username, dto.NewMessageResponse(message, nil), nil)

	h.scheduleNotification(hub.RoomID, message, sess.DisplayName, text)

	username := sess.Username
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if err := h.db.UpdateLastSeen(username); err != nil {
			h.log.Debug("last_seen_update_failed", zap.String("username", username), zap.Error(err))
		}
	}()
	return nil
}

// Wait дожидается фоновых обновлений last_seen; вызывается после остановки хабов.
func (h *MessageHandler) Wait() {
	h.wg.Wait()
}

func (h *MessageHandler) storeFile(ctx context.Context, uploadedAt time.Time, f *dto.FilePayload) (*models.FileSidecar, error) {
	if h.blobs == nil {
		return nil, websocket.ErrInvalidMessage
	}
	data, detected, err := blob.DecodePayload(f.Data)
	if err != nil {
		return nil, websocket.ErrInvalidMessage
	}
	if h.maxUpload > 0 && int64(len(data)) > h.maxUpload {
		return nil, websocket.ErrInvalidMessage
	}

	contentType := f.Type
	if contentType == "" {
		contentType = detected
	}
	name := f.Name
	if name == "" {
		name = "file"
	}

	key, err := h.blobs.Put(ctx, blob.ObjectKey(uploadedAt, name), data, contentType)
	if err != nil {
		return nil, fmt.Errorf("store file: %w", err)
	}
	return &models.FileSidecar{
		Name: name,
		Type: contentType,
		Size: int64(len(data)),
		Key:  key,
	}, nil
}

func (h *MessageHandler) scheduleNotification(roomID string, message *models.Message, author, text string) {
	if h.notifier == nil {
		return
	}
	channel, err := h.db.GetChannel(message.ChannelID)
	if err != nil {
		h.log.Warn("notify_channel_lookup_failed", zap.String("channel", message.ChannelID.String()), zap.Error(err))
		return
	}
	h.notifier.Schedule(notify.Notification{
		RoomID:      roomID,
		Channel:     channel,
		Message:     message,
		AuthorName:  author,
		MentionsAll: notify.MentionsEveryone(text),
	})
}

// roomMessage загружает сообщение, видимое клиенту в комнате хаба.
// Сообщения чужих комнат и закрытых для клиента direct-каналов не существуют.
func (h *MessageHandler) roomMessage(hub *websocket.Hub, client *websocket.Client, id uuid.UUID) (*models.Message, error) {
	message, err := h.db.GetMessage(id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, websocket.ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}

	channel, err := h.db.GetRoomChannel(hub.RoomID, message.ChannelID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, websocket.ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	if !channel.CanAttach(client.Username()) {
		return nil, websocket.ErrMessageNotFound
	}
	return message, nil
}

// ownMessage как roomMessage, но автор должен быть отправителем кадра.
func (h *MessageHandler) ownMessage(hub *websocket.Hub, client *websocket.Client, id uuid.UUID) (*models.Message, error) {
	message, err := h.roomMessage(hub, client, id)
	if err != nil {
		return nil, err
	}
	if message.Username != client.Username() {
		return nil, websocket.ErrUnauthorized
	}
	return message, nil
}

func (h *MessageHandler) handleEdit(hub *websocket.Hub, client *websocket.Client, msg *websocket.Message) error {
	var payload dto.EditPayload
	if err := msg.Decode(&payload); err != nil {
		return err
	}
	text := strings.TrimSpace(payload.NewMessage)
	if text == "" {
		return websocket.ErrEmptyMessage
	}

	message, err := h.ownMessage(hub, client, payload.MessageID)
	if err != nil {
		return err
	}

	editedAt := h.now().UTC().Truncate(time.Microsecond)
	if err := h.db.UpdateMessageContent(message.ID, text, editedAt); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return websocket.ErrMessageNotFound
		}
		return fmt.Errorf("update message: %w", err)
	}

	// Сайдкары берем из сохраненной строки
	message.Content = text
	message.Edited = true
	message.EditedAt = &editedAt

	reactions, err := h.db.GetReactions(message.ID)
	if err != nil {
		return err
	}
	hub.SendToChannel(message.ChannelID, websocket.TypeEdit, client.Username(), dto.NewMessageResponse(message, reactions), nil)
	return nil
}

func (h *MessageHandler) handleDelete(hub *websocket.Hub, client *websocket.Client, msg *websocket.Message) error {
	var payload dto.DeletePayload
	if err := msg.Decode(&payload); err != nil {
		return err
	}

	message, err := h.ownMessage(hub, client, payload.MessageID)
	if err != nil {
		return err
	}

	if err := h.db.DeleteMessage(message.ID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return websocket.ErrMessageNotFound
		}
		return fmt.Errorf("delete message: %w", err)
	}

	hub.SendToChannel(message.ChannelID, websocket.TypeDelete, client.Username(), dto.DeleteResponse{MessageID: message.ID}, nil)
	return nil
}

func (h *MessageHandler) handleReaction(hub *websocket.Hub, client *websocket.Client, msg *websocket.Message) error {
	var payload dto.ReactionPayload
	if err := msg.Decode(&payload); err != nil {
		return err
	}
	emoji := strings.TrimSpace(payload.Emoji)
	if emoji == "" {
		return websocket.ErrInvalidMessage
	}

	message, err := h.roomMessage(hub, client, payload.MessageID)
	if err != nil {
		return err
	}

	if _, err := h.db.ToggleReaction(message.ID, client.Username(), emoji); err != nil {
		return fmt.Errorf("toggle reaction: %w", err)
	}

	reactions, err := h.db.GetReactions(message.ID)
	if err != nil {
		return err
	}
	hub.SendToChannel(message.ChannelID, websocket.TypeReaction, client.Username(), dto.ReactionResponse{
		MessageID: message.ID,
		Reactions: models.GroupReactions(reactions),
	}, nil)
	return nil
}

func (h *MessageHandler) handleTyping(hub *websocket.Hub, client *websocket.Client, msg *websocket.Message) error {
	var payload dto.TypingPayload
	if err := msg.Decode(&payload); err != nil {
		return err
	}
	hub.SendToChannel(client.ChannelID(), websocket.TypeTyping, client.Username(), dto.TypingResponse{
		Username:    client.Username(),
		DisplayName: client.Session.DisplayName,
		IsTyping:    payload.IsTyping,
	}, client)
	return nil
}

func (h *MessageHandler) handleMarkRead(client *websocket.Client, msg *websocket.Message) error {
	var payload dto.MarkReadPayload
	if err := msg.Decode(&payload); err != nil {
		return err
	}

	channelID := client.ChannelID()
	if _, err := h.db.GetChannelMessage(channelID, payload.MessageID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return websocket.ErrMessageNotFound
		}
		return err
	}
	return h.db.MarkRead(client.Username(), channelID, payload.MessageID)
}

func (h *MessageHandler) handleSwitchChannel(hub *websocket.Hub, client *websocket.Client, msg *websocket.Message) error {
	var payload dto.SwitchChannelPayload
	if err := msg.Decode(&payload); err != nil {
		return err
	}

	channel, err := h.db.GetRoomChannel(hub.RoomID, payload.ChannelID)
	if errors.Is(err, database.ErrNotFound) {
		return websocket.ErrChannelNotFound
	}
	if err != nil {
		return err
	}
	if !channel.CanAttach(client.Username()) {
		return websocket.ErrForbiddenChannel
	}

	if err := hub.SwitchChannel(client, channel.ID); err != nil {
		return fmt.Errorf("switch channel: %w", err)
	}

	client.SendMessage(websocket.TypeChannelSwitched, &channel.ID, dto.ChannelSwitchedResponse{
		ChannelID:  channel.ID,
		Name:       channel.Name,
		Kind:       channel.Kind,
		Visibility: channel.Visibility,
	})
	return h.sendHistory(client, dto.HistoryRequest{})
}

func (h *MessageHandler) sendHistory(client *websocket.Client, req dto.HistoryRequest) error {
	channelID := client.ChannelID()
	resp, err := h.history.Load(client.Username(), channelID, req)
	if err != nil {
		return err
	}
	return client.SendMessage(websocket.TypeHistory, &channelID, resp)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
