package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Session сериализуемая привязка соединения. Восстанавливается после перезапуска процесса.
type Session struct {
	ConnectionID string    `json:"connection_id"`
	RoomID       string    `json:"room_id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	AvatarURL    string    `json:"avatar_url,omitempty"`
	ChannelID    uuid.UUID `json:"channel_id"`
	JoinedAt     time.Time `json:"joined_at"`
}

type SessionStore interface {
	Save(ctx context.Context, s *Session) error
	Load(ctx context.Context, roomID, connectionID string) (*Session, error)
	// Release сокращает жизнь записи до окна переподключения.
	Release(ctx context.Context, s *Session) error
}

type RedisSessionStore struct {
	rdb          *redis.Client
	ttl          time.Duration
	resumeWindow time.Duration
}

func NewRedisSessionStore(rdb *redis.Client, ttl, resumeWindow time.Duration) *RedisSessionStore {
	return &RedisSessionStore{rdb: rdb, ttl: ttl, resumeWindow: resumeWindow}
}

func sessionKey(roomID, connectionID string) string {
	return "session:" + roomID + ":" + connectionID
}

func (s *RedisSessionStore) Save(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, sessionKey(sess.RoomID, sess.ConnectionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Load(ctx context.Context, roomID, connectionID string) (*Session, error) {
	data, err := s.rdb.Get(ctx, sessionKey(roomID, connectionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}

func (s *RedisSessionStore) Release(ctx context.Context, sess *Session) error {
	return s.rdb.Expire(ctx, sessionKey(sess.RoomID, sess.ConnectionID), s.resumeWindow).Err()
}

// Resume возвращает сохраненную сессию, только если она принадлежит тому же пользователю и комнате.
func Resume(ctx context.Context, store SessionStore, roomID, connectionID, username string) (*Session, bool) {
	if connectionID == "" {
		return nil, false
	}
	sess, err := store.Load(ctx, roomID, connectionID)
	if err != nil || sess.Username != username || sess.RoomID != roomID {
		return nil, false
	}
	return sess, true
}
