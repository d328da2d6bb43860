package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User профиль пользователя. Учетные данные живут во внешнем сервисе авторизации.
type User struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Username    string    `gorm:"uniqueIndex;not null"`
	DisplayName string
	AvatarURL   string
	LastSeenAt  time.Time
	CreatedAt   time.Time
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// Name возвращает отображаемое имя, а при его отсутствии username.
func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}
