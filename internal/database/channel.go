package database

import (
	"github.com/google/uuid"
	"github.com/thereayou/roomcoord/internal/models"
)

func (d *Database) CreateChannel(channel *models.Channel) error {
	return d.db.Create(channel).Error
}

func (d *Database) GetChannel(id uuid.UUID) (*models.Channel, error) {
	var channel models.Channel
	if err := d.db.Preload("Members").First(&channel, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &channel, nil
}

// GetRoomChannel ищет канал только внутри комнаты.
func (d *Database) GetRoomChannel(roomID string, id uuid.UUID) (*models.Channel, error) {
	var channel models.Channel
	err := d.db.Preload("Members").
		Where("room_id = ? AND id = ?", roomID, id).
		First(&channel).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &channel, nil
}

// DefaultChannel первый публичный текстовый канал комнаты.
func (d *Database) DefaultChannel(roomID string) (*models.Channel, error) {
	var channel models.Channel
	err := d.db.
		Where("room_id = ? AND visibility = ? AND kind = ?", roomID, models.VisibilityPublic, models.ChannelKindText).
		Order("created_at ASC").
		First(&channel).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &channel, nil
}

func (d *Database) AddChannelMember(channelID uuid.UUID, username string) error {
	return d.db.Create(&models.ChannelMember{ChannelID: channelID, Username: username}).Error
}

func (d *Database) ChannelMembers(channelID uuid.UUID) ([]string, error) {
	var names []string
	err := d.db.Model(&models.ChannelMember{}).
		Where("channel_id = ?", channelID).
		Order("username").
		Pluck("username", &names).Error
	return names, err
}
