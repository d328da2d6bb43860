package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/roomcoord/internal/models"
	"gorm.io/gorm/clause"
)

func (d *Database) MarkRead(username string, channelID, messageID uuid.UUID) error {
	row := models.LastRead{
		Username:  username,
		ChannelID: channelID,
		MessageID: messageID,
		UpdatedAt: time.Now().UTC(),
	}
	return d.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "username"}, {Name: "channel_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"message_id", "updated_at"}),
	}).Create(&row).Error
}

// GetLastRead возвращает nil, если пользователь еще ничего не читал в канале.
func (d *Database) GetLastRead(username string, channelID uuid.UUID) (*uuid.UUID, error) {
	var rows []models.LastRead
	err := d.db.Where("username = ? AND channel_id = ?", username, channelID).
		Limit(1).
		Find(&rows).Error
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	id := rows[0].MessageID
	return &id, nil
}
