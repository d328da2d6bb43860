package websocket

import "errors"

var (
	ErrClientQueueFull = errors.New("client message queue is full")
	ErrHubStopped      = errors.New("hub stopped")
	ErrSessionNotFound = errors.New("session not found")

	// Протокольные ошибки: кадр отбрасывается, соединение остается открытым
	ErrInvalidMessage = errors.New("invalid message format")
	// Пустое сообщение молча отбрасывается
	ErrEmptyMessage = errors.New("empty message")

	// Ошибки, о которых сообщаем только отправителю
	ErrUnauthorized     = errors.New("unauthorized")
	ErrChannelNotFound  = errors.New("channel not found")
	ErrForbiddenChannel = errors.New("not a member of this channel")
	ErrMessageNotFound  = errors.New("message not found")
)

// IsClientError ошибки, текст которых можно отдать клиенту как есть.
func IsClientError(err error) bool {
	return errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrChannelNotFound) ||
		errors.Is(err, ErrForbiddenChannel) ||
		errors.Is(err, ErrMessageNotFound)
}
