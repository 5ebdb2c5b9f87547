// services/stats_service.go - Award Statistics
package services

import (
	"certvault/models"

	"gorm.io/gorm"
)

type StatsService struct {
	db *gorm.DB
}

func NewStatsService(db *gorm.DB) *StatsService {
	return &StatsService{db: db}
}

// BucketCount is one aggregation bucket.
type BucketCount struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// Overview summarizes the whole collection for the dashboard.
type Overview struct {
	TotalAwards      int64         `json:"total_awards"`
	DeletedAwards    int64         `json:"deleted_awards"`
	TotalMembers     int64         `json:"total_members"`
	TotalAttachments int64         `json:"total_attachments"`
	ByLevel          []BucketCount `json:"by_level"`
	ByRank           []BucketCount `json:"by_rank"`
	ByYear           []BucketCount `json:"by_year"`
}

func (s *StatsService) GetOverview() (*Overview, error) {
	o := &Overview{}

	if err := s.db.Model(&models.Award{}).Where("deleted = ?", false).Count(&o.TotalAwards).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&models.Award{}).Where("deleted = ?", true).Count(&o.DeletedAwards).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&models.TeamMember{}).Count(&o.TotalMembers).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&models.Attachment{}).Where("deleted = ?", false).Count(&o.TotalAttachments).Error; err != nil {
		return nil, err
	}

	var err error
	if o.ByLevel, err = s.countBy("level"); err != nil {
		return nil, err
	}
	if o.ByRank, err = s.countBy("rank"); err != nil {
		return nil, err
	}
	if o.ByYear, err = s.countByYear(); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *StatsService) countBy(column string) ([]BucketCount, error) {
	var buckets []BucketCount
	err := s.db.Model(&models.Award{}).
		Select(column+" AS key, COUNT(*) AS count").
		Where("deleted = ? AND "+column+" != ''", false).
		Group(column).
		Order("count DESC").
		Scan(&buckets).Error
	return buckets, err
}

func (s *StatsService) countByYear() ([]BucketCount, error) {
	var buckets []BucketCount
	err := s.db.Model(&models.Award{}).
		Select("strftime('%Y', award_date) AS key, COUNT(*) AS count").
		Where("deleted = ?", false).
		Group("strftime('%Y', award_date)").
		Order("key DESC").
		Scan(&buckets).Error
	return buckets, err
}
