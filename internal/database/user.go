package database

import (
	"time"

	"github.com/thereayou/roomcoord/internal/models"
)

func (d *Database) SaveUser(user *models.User) error {
	return d.db.Create(user).Error
}

func (d *Database) GetUserByUsername(username string) (*models.User, error) {
	user := models.User{}
	if err := d.db.Where("username = ?", username).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// GetProfile возвращает профиль; для неизвестного пользователя профиль по умолчанию.
func (d *Database) GetProfile(username string) (*models.User, error) {
	user, err := d.GetUserByUsername(username)
	if err == ErrNotFound {
		return &models.User{Username: username, DisplayName: username}, nil
	}
	return user, err
}

func (d *Database) ListUsernames() ([]string, error) {
	var names []string
	err := d.db.Model(&models.User{}).Order("username").Pluck("username", &names).Error
	return names, err
}

func (d *Database) UpdateLastSeen(username string) error {
	return d.db.Model(&models.User{}).Where("username = ?", username).Update("last_seen_at", time.Now().UTC()).Error
}
