package models

import "time"

// PushToken управляется отдельной подсистемой, здесь только чтение.
type PushToken struct {
	Username  string `gorm:"primaryKey"`
	Token     string `gorm:"primaryKey"`
	Platform  string
	CreatedAt time.Time
}
