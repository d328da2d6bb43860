package models

import (
	"time"

	"github.com/google/uuid"
)

// Reaction уникальна по (message_id, username, emoji).
type Reaction struct {
	MessageID uuid.UUID `gorm:"type:uuid;primaryKey"`
	Username  string    `gorm:"primaryKey"`
	Emoji     string    `gorm:"primaryKey"`
	CreatedAt time.Time
}

// GroupReactions собирает реакции в emoji -> usernames, сохраняя порядок добавления.
func GroupReactions(reactions []Reaction) map[string][]string {
	grouped := make(map[string][]string)
	for _, r := range reactions {
		grouped[r.Emoji] = append(grouped[r.Emoji], r.Username)
	}
	return grouped
}
