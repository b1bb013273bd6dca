package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/noah-isme/internlog-api/internal/models"
)

// AggregateRepository reads the derived per-student gamification state.
type AggregateRepository interface {
	Get(ctx context.Context, studentID uint) (models.StudentAggregate, error)
	GetOrInit(ctx context.Context, studentID uint) (models.StudentAggregate, error)
	ListBadges(ctx context.Context, studentID uint) ([]models.StudentBadge, error)
	ListEvents(ctx context.Context, logID uint) ([]models.LogEvent, error)
	ListStudentEvents(ctx context.Context, studentID uint, limit int) ([]models.LogEvent, error)
}

type aggregateRepository struct {
	db *gorm.DB
}

// NewAggregateRepository constructs the aggregate repository.
func NewAggregateRepository(db *gorm.DB) AggregateRepository {
	return &aggregateRepository{db: db}
}

func (r *aggregateRepository) Get(ctx context.Context, studentID uint) (models.StudentAggregate, error) {
	var aggregate models.StudentAggregate
	if err := r.db.WithContext(ctx).Where("student_id = ?", studentID).First(&aggregate).Error; err != nil {
		return models.StudentAggregate{}, err
	}
	return aggregate, nil
}

// GetOrInit returns a zero aggregate with Version 0 when the student has no row yet.
// The row is created by the first committed transition.
func (r *aggregateRepository) GetOrInit(ctx context.Context, studentID uint) (models.StudentAggregate, error) {
	aggregate, err := r.Get(ctx, studentID)
	if err == nil {
		return aggregate, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.StudentAggregate{StudentID: studentID, CurrentLevel: 1}, nil
	}
	return models.StudentAggregate{}, err
}

func (r *aggregateRepository) ListBadges(ctx context.Context, studentID uint) ([]models.StudentBadge, error) {
	var badges []models.StudentBadge
	if err := r.db.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("earned_at ASC").
		Order("id ASC").
		Find(&badges).Error; err != nil {
		return nil, err
	}
	return badges, nil
}

func (r *aggregateRepository) ListEvents(ctx context.Context, logID uint) ([]models.LogEvent, error) {
	var events []models.LogEvent
	if err := r.db.WithContext(ctx).
		Where("log_id = ?", logID).
		Order("occurred_at ASC").
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *aggregateRepository) ListStudentEvents(ctx context.Context, studentID uint, limit int) ([]models.LogEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var events []models.LogEvent
	if err := r.db.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("occurred_at DESC").
		Limit(limit).
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
