package websocket

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MessageType определяет типы кадров
type MessageType string

const (
	// Входящие
	TypeChat          MessageType = "chat"
	TypeEdit          MessageType = "edit"
	TypeDelete        MessageType = "delete"
	TypeReaction      MessageType = "reaction"
	TypeTyping        MessageType = "typing"
	TypeMarkRead      MessageType = "mark_read"
	TypeLoadHistory   MessageType = "load_history"
	TypeSwitchChannel MessageType = "switch_channel"
	TypeHeartbeat     MessageType = "heartbeat"

	// Исходящие (плюс chat/edit/delete/reaction/typing)
	TypePresence        MessageType = "presence"
	TypeOnlineList      MessageType = "online_list"
	TypeHistory         MessageType = "history"
	TypeChannelSwitched MessageType = "channel_switched"
	TypeError           MessageType = "error"
	TypeSession         MessageType = "session"
)

const (
	PresenceJoined = "joined"
	PresenceLeft   = "left"
)

// Message конверт кадра в обе стороны
type Message struct {
	Type      MessageType     `json:"type"`
	ChannelID *uuid.UUID      `json:"channel_id,omitempty"`
	Username  string          `json:"username,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

type PresenceEvent struct {
	Event     string    `json:"event"`
	Username  string    `json:"username"`
	ChannelID uuid.UUID `json:"channel_id"`
}

type OnlineList struct {
	Usernames []string `json:"usernames"`
}

type SessionInfo struct {
	ConnectionID string    `json:"connection_id"`
	Username     string    `json:"username"`
	ChannelID    uuid.UUID `json:"channel_id"`
	JoinedAt     time.Time `json:"joined_at"`
}

type ErrorPayload struct {
	Error string `json:"error"`
}

func encode(msgType MessageType, channelID *uuid.UUID, username string, data interface{}) ([]byte, error) {
	msg := Message{
		Type:      msgType,
		ChannelID: channelID,
		Username:  username,
		Timestamp: time.Now().UTC(),
	}

	if data != nil {
		jsonData, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		msg.Data = jsonData
	}

	return json.Marshal(msg)
}

// Decode разбирает payload кадра в dst.
func (m *Message) Decode(dst interface{}) error {
	if len(m.Data) == 0 {
		return ErrInvalidMessage
	}
	if err := json.Unmarshal(m.Data, dst); err != nil {
		return ErrInvalidMessage
	}
	return nil
}
