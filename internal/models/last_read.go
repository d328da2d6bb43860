package models

import (
	"time"

	"github.com/google/uuid"
)

type LastRead struct {
	Username  string    `gorm:"primaryKey"`
	ChannelID uuid.UUID `gorm:"type:uuid;primaryKey"`
	MessageID uuid.UUID `gorm:"type:uuid;not null"`
	UpdatedAt time.Time
}
