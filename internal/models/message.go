package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Message хранит сайдкары плоскими nullable-колонками.
// Код приложения работает с ними только через Sidecars/SetSidecars.
type Message struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	ChannelID   uuid.UUID `gorm:"type:uuid;not null;index:idx_messages_channel_order,priority:1"`
	Username    string    `gorm:"index;not null"`
	DisplayName string
	AvatarURL   string
	Content     string    `gorm:"not null;default:''"`
	Mentions    []string  `gorm:"serializer:json"`
	CreatedAt   time.Time `gorm:"index:idx_messages_channel_order,priority:2"`
	Edited      bool      `gorm:"not null;default:false"`
	EditedAt    *time.Time

	// Ответ
	ReplyToID      *uuid.UUID `gorm:"type:uuid"`
	ReplyUsername  *string
	ReplyContent   *string
	ReplyCreatedAt *time.Time
	ReplyFileName  *string
	ReplyFileType  *string
	ReplyFileSize  *int64
	ReplyFileKey   *string

	// Превью ссылки
	LinkURL         *string
	LinkTitle       *string
	LinkDescription *string
	LinkImage       *string

	// Вложение
	FileName *string
	FileType *string
	FileSize *int64
	FileKey  *string
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
