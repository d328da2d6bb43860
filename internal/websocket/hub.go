package websocket

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/thereayou/roomcoord/internal/metrics"
)

// FrameHandler бизнес-логика комнаты. Оба метода вызываются только из цикла хаба.
type FrameHandler interface {
	OnAttach(h *Hub, c *Client)
	HandleFrame(h *Hub, c *Client, msg *Message) error
}

type inboundFrame struct {
	client *Client
	msg    *Message
}

// Hub координатор одной комнаты. Реестр соединений принадлежит циклу Run,
// все изменения и рассылки идут последовательно, поэтому блокировки не нужны.
type Hub struct {
	RoomID string

	clients map[string]*Client

	// Соединения по username (один пользователь может иметь несколько соединений)
	userClients map[string]map[string]*Client

	register   chan *Client
	unregister chan *Client
	inbound    chan inboundFrame
	tasks      chan func()

	handler  FrameHandler
	sessions SessionStore
	log      *zap.Logger

	// onIdle вызывается из цикла, когда в комнате не осталось соединений.
	// true - хаб снят с учета и цикл завершается.
	onIdle func(*Hub) bool

	// Контекст для graceful shutdown
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewHub(roomID string, handler FrameHandler, sessions SessionStore, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		RoomID:      roomID,
		clients:     make(map[string]*Client),
		userClients: make(map[string]map[string]*Client),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		inbound:     make(chan inboundFrame),
		tasks:       make(chan func()),
		handler:     handler,
		sessions:    sessions,
		log:         log.With(zap.String("room", roomID)),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
}

// Run запускает цикл хаба
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case client := <-h.register:
			h.registerClient(client)
			if h.reapIfIdle() {
				return
			}

		case client := <-h.unregister:
			h.unregisterClient(client)
			if h.reapIfIdle() {
				return
			}

		case f := <-h.inbound:
			h.handleFrame(f.client, f.msg)

		case task := <-h.tasks:
			task()
		}
	}
}

// Stop останавливает hub. Сессии в хранилище не трогаем, чтобы клиенты могли переподключиться.
func (h *Hub) Stop() {
	h.cancel()
	<-h.done
}

func (h *Hub) Context() context.Context {
	return h.ctx
}

// Register регистрирует нового клиента
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// Unregister отменяет регистрацию клиента
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// Dispatch передает входящий кадр в цикл. false, если хаб остановлен.
func (h *Hub) Dispatch(client *Client, msg *Message) bool {
	select {
	case h.inbound <- inboundFrame{client: client, msg: msg}:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// Do выполняет fn внутри цикла и ждет завершения.
func (h *Hub) Do(fn func()) error {
	finished := make(chan struct{})
	select {
	case h.tasks <- func() { fn(); close(finished) }:
	case <-h.ctx.Done():
		return ErrHubStopped
	}
	select {
	case <-finished:
		return nil
	case <-h.done:
		return ErrHubStopped
	}
}

func (h *Hub) registerClient(client *Client) {
	sess := client.Session
	if err := h.sessions.Save(h.ctx, sess); err != nil {
		h.log.Error("session_save_failed", zap.String("conn", client.ID), zap.Error(err))
		client.SendError("session unavailable")
		client.closed = true
		close(client.Send)
		return
	}

	// Переподключение с тем же id вытесняет старое соединение
	if prev, ok := h.clients[client.ID]; ok && prev != client {
		prev.closed = true
		close(prev.Send)
	}

	first := len(h.userClients[sess.Username]) == 0

	h.clients[client.ID] = client
	if _, ok := h.userClients[sess.Username]; !ok {
		h.userClients[sess.Username] = make(map[string]*Client)
	}
	h.userClients[sess.Username][client.ID] = client
	h.updateGauges()

	h.log.Info("client_registered",
		zap.String("conn", client.ID),
		zap.String("username", sess.Username),
		zap.String("channel", sess.ChannelID.String()))

	client.SendMessage(TypeSession, &sess.ChannelID, SessionInfo{
		ConnectionID: client.ID,
		Username:     sess.Username,
		ChannelID:    sess.ChannelID,
		JoinedAt:     sess.JoinedAt,
	})

	if first {
		h.SendToChannel(sess.ChannelID, TypePresence, "", PresenceEvent{
			Event:     PresenceJoined,
			Username:  sess.Username,
			ChannelID: sess.ChannelID,
		}, client)
	}
	h.broadcastOnlineList()

	if h.handler != nil {
		h.handler.OnAttach(h, client)
	}
}

func (h *Hub) unregisterClient(client *Client) {
	if _, ok := h.clients[client.ID]; !ok || h.clients[client.ID] != client {
		return
	}
	sess := client.Session

	delete(h.clients, client.ID)
	last := false
	if userClients, ok := h.userClients[sess.Username]; ok {
		delete(userClients, client.ID)
		if len(userClients) == 0 {
			delete(h.userClients, sess.Username)
			last = true
		}
	}
	client.closed = true
	close(client.Send)
	h.updateGauges()

	if err := h.sessions.Release(h.ctx, sess); err != nil {
		h.log.Warn("session_release_failed", zap.String("conn", client.ID), zap.Error(err))
	}

	h.log.Info("client_unregistered", zap.String("conn", client.ID), zap.String("username", sess.Username))

	if last {
		h.SendToChannel(sess.ChannelID, TypePresence, "", PresenceEvent{
			Event:     PresenceLeft,
			Username:  sess.Username,
			ChannelID: sess.ChannelID,
		}, nil)
	}
	h.broadcastOnlineList()
}

func (h *Hub) handleFrame(client *Client, msg *Message) {
	if client.closed || h.clients[client.ID] != client {
		return
	}
	if h.handler == nil {
		return
	}

	kind := string(msg.Type)
	err := h.handler.HandleFrame(h, client, msg)
	switch {
	case err == nil:
		metrics.Frames.WithLabelValues(kind, "ok").Inc()
	case errors.Is(err, ErrEmptyMessage):
		metrics.Frames.WithLabelValues(kind, "dropped").Inc()
	case errors.Is(err, ErrInvalidMessage):
		metrics.Frames.WithLabelValues(kind, "invalid").Inc()
		h.log.Debug("invalid_frame", zap.String("conn", client.ID), zap.String("type", kind))
	case IsClientError(err):
		metrics.Frames.WithLabelValues(kind, "rejected").Inc()
		client.SendError(err.Error())
	default:
		metrics.Frames.WithLabelValues(kind, "failed").Inc()
		h.log.Error("frame_failed", zap.String("conn", client.ID), zap.String("type", kind), zap.Error(err))
		client.SendError("internal error")
	}
}

// SwitchChannel перепривязывает сессию к каналу и сохраняет ее. Только из цикла.
func (h *Hub) SwitchChannel(client *Client, channelID uuid.UUID) error {
	prev := client.Session.ChannelID
	client.Session.ChannelID = channelID
	if err := h.sessions.Save(h.ctx, client.Session); err != nil {
		client.Session.ChannelID = prev
		return err
	}
	return nil
}

// SendToChannel рассылает кадр соединениям, привязанным к каналу. Только из цикла.
func (h *Hub) SendToChannel(channelID uuid.UUID, msgType MessageType, username string, data interface{}, exclude *Client) {
	raw, err := encode(msgType, &channelID, username, data)
	if err != nil {
		h.log.Error("encode_failed", zap.String("type", string(msgType)), zap.Error(err))
		return
	}

	for _, client := range h.clients {
		if client == exclude || client.Session.ChannelID != channelID {
			continue
		}
		if err := client.deliver(raw); err != nil {
			h.log.Warn("client_send_failed", zap.String("conn", client.ID), zap.Error(err))
		}
	}
}

// SendToRoom рассылает кадр всем соединениям комнаты. Только из цикла.
func (h *Hub) SendToRoom(msgType MessageType, data interface{}) {
	raw, err := encode(msgType, nil, "", data)
	if err != nil {
		h.log.Error("encode_failed", zap.String("type", string(msgType)), zap.Error(err))
		return
	}

	for _, client := range h.clients {
		if err := client.deliver(raw); err != nil {
			h.log.Warn("client_send_failed", zap.String("conn", client.ID), zap.Error(err))
		}
	}
}

func (h *Hub) broadcastOnlineList() {
	h.SendToRoom(TypeOnlineList, OnlineList{Usernames: h.OnlineUsers()})
}

// OnlineUsers отсортированный список уникальных пользователей онлайн. Только из цикла.
func (h *Hub) OnlineUsers() []string {
	users := make([]string, 0, len(h.userClients))
	for username := range h.userClients {
		users = append(users, username)
	}
	sort.Strings(users)
	return users
}

// ConnectionCount число соединений. Только из цикла.
func (h *Hub) ConnectionCount() int {
	return len(h.clients)
}

func (h *Hub) updateGauges() {
	metrics.Connections.WithLabelValues(h.RoomID).Set(float64(len(h.clients)))
	metrics.OnlineUsers.WithLabelValues(h.RoomID).Set(float64(len(h.userClients)))
}

// reapIfIdle останавливает пустой хаб. Соединений нет, закрывать нечего.
func (h *Hub) reapIfIdle() bool {
	if len(h.clients) > 0 || h.onIdle == nil || !h.onIdle(h) {
		return false
	}
	h.cancel()
	h.log.Info("hub_reaped")
	return true
}

func (h *Hub) shutdown() {
	for id, client := range h.clients {
		client.closed = true
		close(client.Send)
		delete(h.clients, id)
	}
	h.userClients = make(map[string]map[string]*Client)
	h.updateGauges()
}
