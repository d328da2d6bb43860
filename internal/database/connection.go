package database

import (
	"errors"
	"fmt"

	"github.com/thereayou/roomcoord/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func (d *Database) Connect(dsn string) error {
	if dsn == "" {
		return errors.New("DATABASE_URL is not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	return d.Use(db)
}

// Use мигрирует схему на переданном соединении (в тестах это sqlite).
func (d *Database) Use(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.Channel{},
		&models.ChannelMember{},
		&models.Message{},
		&models.Reaction{},
		&models.LastRead{},
		&models.PushToken{},
	)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	d.db = db
	return nil
}
