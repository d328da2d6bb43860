package database

import "github.com/thereayou/roomcoord/internal/models"

func (d *Database) PushTokens(usernames []string) ([]models.PushToken, error) {
	var tokens []models.PushToken
	if len(usernames) == 0 {
		return tokens, nil
	}
	err := d.db.Where("username IN ?", usernames).
		Order("username").
		Find(&tokens).Error
	return tokens, err
}

func (d *Database) SavePushToken(token *models.PushToken) error {
	return d.db.Create(token).Error
}
