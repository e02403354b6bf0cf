package repository

import (
	"fmt"

	"gorm.io/gorm"

	"mail-autoresponder-go/internal/models"
)

// Repository is the persistence layer for settings, replies and activity
// logs.
type Repository struct {
	db *gorm.DB
}

// New creates a repository.
func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// SaveActivityLog persists a write-once activity log entry.
func (r *Repository) SaveActivityLog(log *models.ActivityLog) error {
	if result := r.db.Create(log); result.Error != nil {
		return fmt.Errorf("failed to save activity log: %w", result.Error)
	}
	return nil
}

// SaveReply inserts or updates a reply row.
func (r *Repository) SaveReply(reply *models.Reply) error {
	if result := r.db.Save(reply); result.Error != nil {
		return fmt.Errorf("failed to save reply: %w", result.Error)
	}
	return nil
}

// ListLogs returns activity logs newest first, with the total count.
func (r *Repository) ListLogs(page, limit int) ([]models.ActivityLog, int64, error) {
	var logs []models.ActivityLog
	var total int64

	if err := r.db.Model(&models.ActivityLog{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count logs: %w", err)
	}

	offset := (page - 1) * limit
	if err := r.db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&logs).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch logs: %w", err)
	}

	return logs, total, nil
}

// ListRepliesByStatus returns reply rows with the given status, newest first.
// An empty status returns all replies.
func (r *Repository) ListRepliesByStatus(status string) ([]models.Reply, error) {
	var replies []models.Reply
	query := r.db.Order("created_at DESC")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Find(&replies).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch replies: %w", err)
	}
	return replies, nil
}

// CountRepliesByStatus counts reply rows with the given status.
func (r *Repository) CountRepliesByStatus(status string) (int64, error) {
	var count int64
	if err := r.db.Model(&models.Reply{}).Where("status = ?", status).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count replies: %w", err)
	}
	return count, nil
}

// GetSettings loads the settings row, creating it from seed values when the
// table is empty.
func (r *Repository) GetSettings(seed *models.Settings) (*models.Settings, error) {
	var settings models.Settings
	result := r.db.First(&settings)
	if result.Error == nil {
		return &settings, nil
	}
	if result.Error != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("failed to load settings: %w", result.Error)
	}

	settings = *seed.Clone()
	settings.ID = 0
	if err := r.db.Create(&settings).Error; err != nil {
		return nil, fmt.Errorf("failed to seed settings: %w", err)
	}
	return &settings, nil
}

// UpdateSettings persists the settings row.
func (r *Repository) UpdateSettings(settings *models.Settings) error {
	if err := r.db.Save(settings).Error; err != nil {
		return fmt.Errorf("failed to update settings: %w", err)
	}
	return nil
}
