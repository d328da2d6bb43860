package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/roomcoord/internal/models"
	"gorm.io/gorm"
)

// Cursor граница страницы по ключу (created_at, id). Без ID граница только по времени.
type Cursor struct {
	CreatedAt time.Time
	ID        *uuid.UUID
}

func CursorOf(m *models.Message) Cursor {
	id := m.ID
	return Cursor{CreatedAt: m.CreatedAt, ID: &id}
}

// Page страница сообщений в хронологическом порядке.
type Page struct {
	Messages     []models.Message
	HasMoreOlder bool
	HasMoreNewer bool
}

func (d *Database) SaveMessage(message *models.Message) error {
	return d.db.Create(message).Error
}

func (d *Database) GetMessage(id uuid.UUID) (*models.Message, error) {
	var message models.Message
	if err := d.db.First(&message, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &message, nil
}

// GetChannelMessage ищет сообщение только в указанном канале.
func (d *Database) GetChannelMessage(channelID, id uuid.UUID) (*models.Message, error) {
	var message models.Message
	if err := d.db.First(&message, "channel_id = ? AND id = ?", channelID, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &message, nil
}

// UpdateMessageContent меняет только текст и отметку редактирования, сайдкары не трогает.
func (d *Database) UpdateMessageContent(id uuid.UUID, content string, editedAt time.Time) error {
	res := d.db.Model(&models.Message{}).Where("id = ?", id).Updates(map[string]interface{}{
		"content":   content,
		"edited":    true,
		"edited_at": editedAt,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteMessage удаляет сообщение вместе с его реакциями.
func (d *Database) DeleteMessage(id uuid.UUID) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.Reaction{}, "message_id = ?", id).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Message{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (d *Database) CountChannelMessages(channelID uuid.UUID) (int64, error) {
	var total int64
	err := d.db.Model(&models.Message{}).Where("channel_id = ?", channelID).Count(&total).Error
	return total, err
}

// GetMessagesByOffset страница "старых" сообщений со смещением от самого нового.
func (d *Database) GetMessagesByOffset(channelID uuid.UUID, offset, limit int) (*Page, error) {
	total, err := d.CountChannelMessages(channelID)
	if err != nil {
		return nil, err
	}

	var messages []models.Message
	err = d.db.Where("channel_id = ?", channelID).
		Order("created_at DESC").Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	reverse(messages)

	return &Page{
		Messages:     messages,
		HasMoreOlder: int64(offset+limit) < total,
		HasMoreNewer: offset > 0,
	}, nil
}

// GetMessagesBefore сообщения строго старше курсора.
func (d *Database) GetMessagesBefore(channelID uuid.UUID, c Cursor, limit int) (*Page, error) {
	older, more, err := d.olderThan(channelID, c, limit)
	if err != nil {
		return nil, err
	}
	newer, err := d.existsFrom(channelID, c)
	if err != nil {
		return nil, err
	}
	return &Page{Messages: older, HasMoreOlder: more, HasMoreNewer: newer}, nil
}

// GetMessagesAfter сообщения строго новее курсора.
func (d *Database) GetMessagesAfter(channelID uuid.UUID, c Cursor, limit int) (*Page, error) {
	newer, more, err := d.newerThan(channelID, c, limit)
	if err != nil {
		return nil, err
	}
	older, err := d.existsUntil(channelID, c)
	if err != nil {
		return nil, err
	}
	return &Page{Messages: newer, HasMoreOlder: older, HasMoreNewer: more}, nil
}

// GetMessagesAround контекст вокруг сообщения: до perSide старых и новых плюс само сообщение.
func (d *Database) GetMessagesAround(channelID, targetID uuid.UUID, perSide int) (*Page, error) {
	target, err := d.GetChannelMessage(channelID, targetID)
	if err != nil {
		return nil, err
	}
	c := CursorOf(target)

	older, moreOlder, err := d.olderThan(channelID, c, perSide)
	if err != nil {
		return nil, err
	}
	newer, moreNewer, err := d.newerThan(channelID, c, perSide)
	if err != nil {
		return nil, err
	}

	messages := make([]models.Message, 0, len(older)+1+len(newer))
	messages = append(messages, older...)
	messages = append(messages, *target)
	messages = append(messages, newer...)

	return &Page{Messages: messages, HasMoreOlder: moreOlder, HasMoreNewer: moreNewer}, nil
}

func (d *Database) olderThan(channelID uuid.UUID, c Cursor, limit int) ([]models.Message, bool, error) {
	var messages []models.Message
	err := olderScope(d.db.Where("channel_id = ?", channelID), c).
		Order("created_at DESC").Order("id DESC").
		Limit(limit + 1).
		Find(&messages).Error
	if err != nil {
		return nil, false, err
	}

	more := len(messages) > limit
	if more {
		messages = messages[:limit]
	}
	reverse(messages)
	return messages, more, nil
}

func (d *Database) newerThan(channelID uuid.UUID, c Cursor, limit int) ([]models.Message, bool, error) {
	var messages []models.Message
	err := newerScope(d.db.Where("channel_id = ?", channelID), c).
		Order("created_at ASC").Order("id ASC").
		Limit(limit + 1).
		Find(&messages).Error
	if err != nil {
		return nil, false, err
	}

	more := len(messages) > limit
	if more {
		messages = messages[:limit]
	}
	return messages, more, nil
}

// existsFrom проверяет, есть ли сообщения новее курсора, включая сам курсор.
func (d *Database) existsFrom(channelID uuid.UUID, c Cursor) (bool, error) {
	q := d.db.Model(&models.Message{}).Where("channel_id = ?", channelID)
	if c.ID != nil {
		q = q.Where("(created_at > ? OR (created_at = ? AND id >= ?))", c.CreatedAt, c.CreatedAt, *c.ID)
	} else {
		q = q.Where("created_at >= ?", c.CreatedAt)
	}
	return exists(q)
}

func (d *Database) existsUntil(channelID uuid.UUID, c Cursor) (bool, error) {
	q := d.db.Model(&models.Message{}).Where("channel_id = ?", channelID)
	if c.ID != nil {
		q = q.Where("(created_at < ? OR (created_at = ? AND id <= ?))", c.CreatedAt, c.CreatedAt, *c.ID)
	} else {
		q = q.Where("created_at <= ?", c.CreatedAt)
	}
	return exists(q)
}

func olderScope(q *gorm.DB, c Cursor) *gorm.DB {
	if c.ID == nil {
		return q.Where("created_at < ?", c.CreatedAt)
	}
	return q.Where("(created_at < ? OR (created_at = ? AND id < ?))", c.CreatedAt, c.CreatedAt, *c.ID)
}

func newerScope(q *gorm.DB, c Cursor) *gorm.DB {
	if c.ID == nil {
		return q.Where("created_at > ?", c.CreatedAt)
	}
	return q.Where("(created_at > ? OR (created_at = ? AND id > ?))", c.CreatedAt, c.CreatedAt, *c.ID)
}

func exists(q *gorm.DB) (bool, error) {
	var n int64
	if err := q.Limit(1).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func reverse(messages []models.Message) {
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
}
