package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/internlog-api/internal/models"
)

// EntityDailyLog is the entity type recorded for daily log audit entries.
const EntityDailyLog = "daily_log"

// ActivityLogFilter selects audit entries. LogID scopes the trail to one daily log;
// Actions keeps only the listed lifecycle actions (for example "log.approved").
type ActivityLogFilter struct {
	LogID    *uint
	ActorID  *uint
	Actions  []string
	Page     int
	PageSize int
}

// ActivityLogRepository persists the audit trail written after every log change.
type ActivityLogRepository interface {
	Create(ctx context.Context, entry *models.ActivityLog) error
	List(ctx context.Context, filter ActivityLogFilter) ([]models.ActivityLog, int64, error)
}

type activityLogRepository struct {
	db *gorm.DB
}

// NewActivityLogRepository constructs the audit trail repository.
func NewActivityLogRepository(db *gorm.DB) ActivityLogRepository {
	return &activityLogRepository{db: db}
}

func (r *activityLogRepository) Create(ctx context.Context, entry *models.ActivityLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// List returns the newest entries first together with the unpaginated total.
func (r *activityLogRepository) List(ctx context.Context, filter ActivityLogFilter) ([]models.ActivityLog, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.ActivityLog{})

	if filter.LogID != nil {
		query = query.Where("entity_type = ? AND entity_id = ?", EntityDailyLog, *filter.LogID)
	}
	if filter.ActorID != nil {
		query = query.Where("actor_id = ?", *filter.ActorID)
	}
	if len(filter.Actions) > 0 {
		query = query.Where("action IN ?", filter.Actions)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.PageSize > 0 {
		page := filter.Page
		if page <= 0 {
			page = 1
		}
		query = query.Offset((page - 1) * filter.PageSize).Limit(filter.PageSize)
	}

	var entries []models.ActivityLog
	if err := query.Order("created_at DESC").Order("id DESC").Find(&entries).Error; err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}
