package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ChannelKindText  = "text"
	ChannelKindVoice = "voice"

	VisibilityPublic = "public"
	VisibilityDirect = "direct"
)

type Channel struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	RoomID     string    `gorm:"index;not null"`
	Name       string    `gorm:"not null"`
	Kind       string    `gorm:"not null;default:'text'"`
	Visibility string    `gorm:"not null;default:'public'"`
	CreatedAt  time.Time

	// Связи
	Members []ChannelMember `gorm:"foreignKey:ChannelID"`
}

// ChannelMember список участников, используется только для direct-каналов.
type ChannelMember struct {
	ChannelID uuid.UUID `gorm:"type:uuid;primaryKey"`
	Username  string    `gorm:"primaryKey"`
	CreatedAt time.Time
}

func (c *Channel) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

func (c *Channel) IsDirect() bool {
	return c.Visibility == VisibilityDirect
}

func (c *Channel) HasMember(username string) bool {
	for _, m := range c.Members {
		if m.Username == username {
			return true
		}
	}
	return false
}

// CanAttach проверяет, может ли пользователь подключиться к каналу.
func (c *Channel) CanAttach(username string) bool {
	return !c.IsDirect() || c.HasMember(username)
}
