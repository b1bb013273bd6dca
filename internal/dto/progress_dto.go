package dto

import (
	"time"

	"github.com/noah-isme/internlog-api/internal/gamification"
	"github.com/noah-isme/internlog-api/internal/models"
)

// LevelResponse serializes one level of the progression table.
type LevelResponse struct {
	Number int    `json:"level"`
	Name   string `json:"name"`
	MinXP  int    `json:"min_xp"`
	MaxXP  *int   `json:"max_xp"`
}

// BadgeResponse serializes a catalog badge.
type BadgeResponse struct {
	Key            string `json:"key"`
	Tier           string `json:"tier"`
	Category       string `json:"category"`
	Requirement    int    `json:"requirement"`
	NameKey        string `json:"name_key"`
	DescriptionKey string `json:"description_key"`
	Icon           string `json:"icon"`
}

// EarnedBadgeResponse is a catalog badge plus the moment it was earned.
type EarnedBadgeResponse struct {
	BadgeResponse
	EarnedAt *time.Time `json:"earned_at"`
}

// ProgressResponse is the gamification snapshot of one student.
type ProgressResponse struct {
	StudentID          uint                  `json:"student_id"`
	TotalXP            int                   `json:"total_xp"`
	Level              LevelResponse         `json:"level"`
	XPIntoLevel        int                   `json:"xp_into_level"`
	XPToNext           int                   `json:"xp_to_next"`
	Percent            int                   `json:"percent"`
	CurrentStreak      int                   `json:"current_streak"`
	LongestStreak      int                   `json:"longest_streak"`
	LastSubmissionDate *string               `json:"last_submission_date"`
	Badges             []EarnedBadgeResponse `json:"badges"`
	UpdatedAt          time.Time             `json:"updated_at"`
	GeneratedAt        time.Time             `json:"generated_at"`
}

// NewLevelResponse converts a level into a DTO. Unbounded levels report a null max.
func NewLevelResponse(level gamification.Level) LevelResponse {
	response := LevelResponse{Number: level.Number, Name: level.Name, MinXP: level.MinXP}
	if !level.Unbounded() {
		maxXP := level.MaxXP
		response.MaxXP = &maxXP
	}
	return response
}

// NewLevelResponseSlice converts the level table.
func NewLevelResponseSlice(levels []gamification.Level) []LevelResponse {
	out := make([]LevelResponse, 0, len(levels))
	for _, level := range levels {
		out = append(out, NewLevelResponse(level))
	}
	return out
}

// NewBadgeResponse converts a catalog badge into a DTO.
func NewBadgeResponse(badge gamification.Badge) BadgeResponse {
	return BadgeResponse{
		Key:            badge.Key,
		Tier:           string(badge.Tier),
		Category:       string(badge.Category),
		Requirement:    badge.Requirement,
		NameKey:        badge.NameKey,
		DescriptionKey: badge.DescriptionKey,
		Icon:           badge.Icon,
	}
}

// NewBadgeResponseSlice converts the badge catalog.
func NewBadgeResponseSlice(badges []gamification.Badge) []BadgeResponse {
	out := make([]BadgeResponse, 0, len(badges))
	for _, badge := range badges {
		out = append(out, NewBadgeResponse(badge))
	}
	return out
}

// XPEventResponse is one entry of the XP ledger.
type XPEventResponse struct {
	ID         string                 `json:"id"`
	LogID      uint                   `json:"log_id"`
	StudentID  uint                   `json:"student_id"`
	From       string                 `json:"from"`
	To         string                 `json:"to"`
	ActorRole  string                 `json:"actor_role"`
	ActorID    uint                   `json:"actor_id"`
	XPDelta    int                    `json:"xp_delta"`
	Awards     map[string]interface{} `json:"awards"`
	Feedback   *models.MentorFeedback `json:"feedback,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// XPHistoryQuery bounds the ledger listing.
type XPHistoryQuery struct {
	Limit int `query:"limit" validate:"omitempty,min=1,max=200"`
}

// NewXPEventResponse converts a ledger row into a DTO.
func NewXPEventResponse(model models.LogEvent) XPEventResponse {
	awards := map[string]interface{}(model.Awards)
	if awards == nil {
		awards = map[string]interface{}{}
	}
	return XPEventResponse{
		ID:         model.ID,
		LogID:      model.LogID,
		StudentID:  model.StudentID,
		From:       string(model.FromStatus),
		To:         string(model.ToStatus),
		ActorRole:  string(model.ActorRole),
		ActorID:    model.ActorID,
		XPDelta:    model.XPDelta,
		Awards:     awards,
		Feedback:   model.Feedback,
		OccurredAt: model.OccurredAt,
	}
}

// NewXPEventResponseSlice converts ledger rows.
func NewXPEventResponseSlice(items []models.LogEvent) []XPEventResponse {
	out := make([]XPEventResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NewXPEventResponse(item))
	}
	return out
}
