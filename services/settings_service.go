// services/settings_service.go - Runtime Key/Value Settings
package services

import (
	"certvault/models"

	"gorm.io/gorm"
)

// Setting keys in use.
const (
	SettingAttachmentRoot = "attachment_root"
)

type SettingsService struct {
	db *gorm.DB
}

func NewSettingsService(db *gorm.DB) *SettingsService {
	return &SettingsService{db: db}
}

// Get returns the stored value, or fallback when the key is absent.
func (s *SettingsService) Get(key, fallback string) (string, error) {
	var setting models.Setting
	err := s.db.Where("key = ?", key).First(&setting).Error
	if err == gorm.ErrRecordNotFound {
		return fallback, nil
	}
	if err != nil {
		return "", err
	}
	return setting.Value, nil
}

// Set upserts one key.
func (s *SettingsService) Set(key, value string) error {
	var setting models.Setting
	err := s.db.Where("key = ?", key).First(&setting).Error
	if err == gorm.ErrRecordNotFound {
		return s.db.Create(&models.Setting{Key: key, Value: value}).Error
	}
	if err != nil {
		return err
	}
	return s.db.Model(&setting).Update("value", value).Error
}

// All returns every stored setting as a map.
func (s *SettingsService) All() (map[string]string, error) {
	var settings []models.Setting
	if err := s.db.Find(&settings).Error; err != nil {
		return nil, err
	}
	out := make(map[string]string, len(settings))
	for _, st := range settings {
		out[st.Key] = st.Value
	}
	return out, nil
}
