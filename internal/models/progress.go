package models

import (
	"time"

	"gorm.io/datatypes"
)

// StudentAggregate is the per-student derived gamification state.
type StudentAggregate struct {
	StudentID          uint       `gorm:"primaryKey;autoIncrement:false" json:"student_id"`
	TotalXP            int        `gorm:"not null;default:0" json:"total_xp"`
	CurrentLevel       int        `gorm:"not null;default:1" json:"current_level"`
	CurrentStreak      int        `gorm:"not null;default:0" json:"current_streak"`
	LongestStreak      int        `gorm:"not null;default:0" json:"longest_streak"`
	LastSubmissionDate *time.Time `gorm:"type:date" json:"last_submission_date"`
	EarnedBadges       []string   `gorm:"serializer:json" json:"earned_badges"`
	Version            int        `gorm:"not null;default:0" json:"version"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// HasBadge reports whether the badge key was already earned.
func (a StudentAggregate) HasBadge(key string) bool {
	for _, earned := range a.EarnedBadges {
		if earned == key {
			return true
		}
	}
	return false
}

// StudentBadge records when a badge was earned.
type StudentBadge struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	StudentID uint      `gorm:"not null;uniqueIndex:uidx_student_badge" json:"student_id"`
	BadgeKey  string    `gorm:"size:64;not null;uniqueIndex:uidx_student_badge" json:"badge_key"`
	EarnedAt  time.Time `gorm:"not null" json:"earned_at"`
}

// LogEvent is the persisted lifecycle event together with the XP it produced.
type LogEvent struct {
	ID         string            `gorm:"primaryKey;size:36" json:"id"`
	LogID      uint              `gorm:"not null;index" json:"log_id"`
	StudentID  uint              `gorm:"not null;index" json:"student_id"`
	FromStatus LogStatus         `gorm:"size:32;not null" json:"from_status"`
	ToStatus   LogStatus         `gorm:"size:32;not null" json:"to_status"`
	ActorRole  Role              `gorm:"size:32;not null" json:"actor_role"`
	ActorID    uint              `json:"actor_id"`
	XPDelta    int               `gorm:"not null" json:"xp_delta"`
	Awards     datatypes.JSONMap `gorm:"type:json" json:"awards"`
	Feedback   *MentorFeedback   `gorm:"serializer:json" json:"feedback"`
	OccurredAt time.Time         `gorm:"not null;index" json:"occurred_at"`
}
