package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/roomcoord/internal/models"
	"gorm.io/gorm"
)

// ToggleReaction удаляет тройку, если она есть, иначе добавляет. Возвращает true, если реакция добавлена.
func (d *Database) ToggleReaction(messageID uuid.UUID, username, emoji string) (bool, error) {
	added := false
	err := d.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("message_id = ? AND username = ? AND emoji = ?", messageID, username, emoji).
			Delete(&models.Reaction{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}

		added = true
		return tx.Create(&models.Reaction{
			MessageID: messageID,
			Username:  username,
			Emoji:     emoji,
			CreatedAt: time.Now().UTC(),
		}).Error
	})
	return added, err
}

func (d *Database) GetReactions(messageID uuid.UUID) ([]models.Reaction, error) {
	var reactions []models.Reaction
	err := d.db.Where("message_id = ?", messageID).
		Order("created_at ASC").
		Find(&reactions).Error
	return reactions, err
}

// GetReactionsForMessages одним запросом загружает реакции для страницы истории.
func (d *Database) GetReactionsForMessages(ids []uuid.UUID) (map[uuid.UUID][]models.Reaction, error) {
	result := make(map[uuid.UUID][]models.Reaction, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var reactions []models.Reaction
	err := d.db.Where("message_id IN ?", ids).
		Order("created_at ASC").
		Find(&reactions).Error
	if err != nil {
		return nil, err
	}

	for _, r := range reactions {
		result[r.MessageID] = append(result[r.MessageID], r)
	}
	return result, nil
}
