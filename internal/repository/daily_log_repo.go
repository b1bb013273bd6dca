package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/internlog-api/internal/models"
)

// DailyLogFilter allows narrowing log queries.
type DailyLogFilter struct {
	StudentID *uint
	MentorID  *uint
	AdvisorID *uint
	Status    *models.LogStatus
}

// TransitionCommit is everything a successful transition writes, committed together.
type TransitionCommit struct {
	Log            models.DailyLog
	ExpectedStatus models.LogStatus
	Revision       *models.RevisionItem
	Aggregate      models.StudentAggregate
	Event          models.LogEvent
	Badges         []models.StudentBadge
}

// DailyLogRepository defines data operations for daily logs.
type DailyLogRepository interface {
	Create(ctx context.Context, log *models.DailyLog) error
	GetByID(ctx context.Context, id uint) (models.DailyLog, error)
	List(ctx context.Context, filter DailyLogFilter) ([]models.DailyLog, error)
	ListByStudent(ctx context.Context, studentID uint) ([]models.DailyLog, error)
	UpdateContent(ctx context.Context, log *models.DailyLog, expected models.LogStatus) error
	AddAttachment(ctx context.Context, attachment *models.LogAttachment) error
	CommitTransition(ctx context.Context, commit TransitionCommit) error
}

type dailyLogRepository struct {
	db *gorm.DB
}

// NewDailyLogRepository instantiates the repository.
func NewDailyLogRepository(db *gorm.DB) DailyLogRepository {
	return &dailyLogRepository{db: db}
}

func (r *dailyLogRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.DailyLog{}).
		Preload("Attachments", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("RevisionHistory", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") })
}

func (r *dailyLogRepository) Create(ctx context.Context, log *models.DailyLog) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(log).Error
}

func (r *dailyLogRepository) GetByID(ctx context.Context, id uint) (models.DailyLog, error) {
	var log models.DailyLog
	if err := r.baseQuery(ctx).First(&log, id).Error; err != nil {
		return models.DailyLog{}, err
	}

	return log, nil
}

func (r *dailyLogRepository) List(ctx context.Context, filter DailyLogFilter) ([]models.DailyLog, error) {
	query := r.baseQuery(ctx)

	if filter.StudentID != nil {
		query = query.Where("student_id = ?", *filter.StudentID)
	}

	if filter.MentorID != nil {
		query = query.Where("mentor_id = ?", *filter.MentorID)
	}

	if filter.AdvisorID != nil {
		query = query.Where("advisor_id = ?", *filter.AdvisorID)
	}

	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	var logs []models.DailyLog
	if err := query.Order("date DESC").Order("id DESC").Find(&logs).Error; err != nil {
		return nil, err
	}

	return logs, nil
}

func (r *dailyLogRepository) ListByStudent(ctx context.Context, studentID uint) ([]models.DailyLog, error) {
	var logs []models.DailyLog
	if err := r.baseQuery(ctx).
		Where("student_id = ?", studentID).
		Order("date ASC").
		Order("id ASC").
		Find(&logs).Error; err != nil {
		return nil, err
	}

	return logs, nil
}

func (r *dailyLogRepository) UpdateContent(ctx context.Context, log *models.DailyLog, expected models.LogStatus) error {
	log.UpdatedAt = time.Now().UTC()

	result := r.db.WithContext(ctx).Model(log).
		Where("status = ?", expected).
		Select("title", "content", "activities", "skills", "challenges", "hours_spent", "self_assessment", "updated_at").
		Updates(log)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrConcurrentModification
	}

	return nil
}

func (r *dailyLogRepository) AddAttachment(ctx context.Context, attachment *models.LogAttachment) error {
	return r.db.WithContext(ctx).Create(attachment).Error
}

func (r *dailyLogRepository) CommitTransition(ctx context.Context, commit TransitionCommit) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		log := commit.Log
		log.UpdatedAt = time.Now().UTC()

		result := tx.Model(&log).
			Where("status = ?", commit.ExpectedStatus).
			Select("status", "content", "mentor_feedback", "revision_requests", "advisor_notes", "xp_earned",
				"submitted_at", "approved_at", "validated_at", "updated_at").
			Updates(&log)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrConcurrentModification
		}

		if commit.Revision != nil {
			revision := *commit.Revision
			revision.LogID = log.ID
			if err := tx.Create(&revision).Error; err != nil {
				return err
			}
		}

		if err := saveAggregate(tx, commit.Aggregate); err != nil {
			return err
		}

		event := commit.Event
		if err := tx.Create(&event).Error; err != nil {
			return err
		}

		if len(commit.Badges) > 0 {
			badges := append([]models.StudentBadge(nil), commit.Badges...)
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&badges).Error; err != nil {
				return err
			}
		}

		return nil
	})
}

// saveAggregate writes the aggregate only if its stored version still equals
// aggregate.Version, then bumps the version.
func saveAggregate(tx *gorm.DB, aggregate models.StudentAggregate) error {
	expected := aggregate.Version
	aggregate.Version = expected + 1

	if expected == 0 {
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&aggregate)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrConcurrentModification
		}
		return nil
	}

	aggregate.UpdatedAt = time.Now().UTC()
	result := tx.Model(&aggregate).
		Where("version = ?", expected).
		Select("total_xp", "current_level", "current_streak", "longest_streak", "last_submission_date",
			"earned_badges", "version", "updated_at").
		Updates(&aggregate)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrConcurrentModification
	}
	return nil
}
