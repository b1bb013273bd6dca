package dto

import (
	"time"

	"github.com/noah-isme/internlog-api/internal/models"
)

// DateLayout is the calendar-day format used by log dates.
const DateLayout = "2006-01-02"

// LogCreateRequest creates a draft daily log for the authenticated student.
type LogCreateRequest struct {
	Date       string   `json:"date" validate:"required,datetime=2006-01-02"`
	Title      string   `json:"title" validate:"required,min=3,max=255"`
	Content    string   `json:"content" validate:"required,min=1,max=20000"`
	Activities []string `json:"activities" validate:"omitempty,max=50,dive,min=1,max=255"`
	Skills     []string `json:"skills" validate:"omitempty,max=50,dive,min=1,max=100"`
	Challenges string   `json:"challenges" validate:"omitempty,max=5000"`
	HoursSpent float64  `json:"hours_spent" validate:"gte=0,lte=24"`
	MentorID   uint     `json:"mentor_id" validate:"required,gt=0"`
	AdvisorID  uint     `json:"advisor_id" validate:"omitempty,gt=0"`
}

// LogUpdateRequest edits a log while it is still editable.
type LogUpdateRequest struct {
	Title      *string   `json:"title" validate:"omitempty,min=3,max=255"`
	Content    *string   `json:"content" validate:"omitempty,min=1,max=20000"`
	Activities *[]string `json:"activities" validate:"omitempty,max=50,dive,min=1,max=255"`
	Skills     *[]string `json:"skills" validate:"omitempty,max=50,dive,min=1,max=100"`
	Challenges *string   `json:"challenges" validate:"omitempty,max=5000"`
	HoursSpent *float64  `json:"hours_spent" validate:"omitempty,gte=0,lte=24"`
}

// SelfAssessmentRequest sets the student's self-assessment on a log.
type SelfAssessmentRequest struct {
	Competencies map[string]int `json:"competencies" validate:"omitempty,max=20,dive,keys,min=1,max=64,endkeys,min=1,max=5"`
	Reflection   string         `json:"reflection" validate:"required,min=1,max=5000"`
}

// TransitionRequest asks for a status change together with its payload.
type TransitionRequest struct {
	Target          string         `json:"target" validate:"required,oneof=submitted under_review approved needs_revision revised validated"`
	Rating          int            `json:"rating" validate:"omitempty,min=1,max=10"`
	Comments        string         `json:"comments" validate:"omitempty,max=5000"`
	Competencies    map[string]int `json:"competencies" validate:"omitempty,max=20,dive,keys,min=1,max=64,endkeys,min=1,max=5"`
	RevisionNotes   string         `json:"revision_notes" validate:"omitempty,max=5000"`
	PreviousContent string         `json:"previous_content" validate:"omitempty,max=20000"`
	NewContent      string         `json:"new_content" validate:"omitempty,max=20000"`
	Reason          string         `json:"reason" validate:"omitempty,max=2000"`
	AdvisorNotes    string         `json:"advisor_notes" validate:"omitempty,max=5000"`
}

// LogFilter describes query string filters for listing logs.
type LogFilter struct {
	StudentID uint   `query:"student_id"`
	Status    string `query:"status" validate:"omitempty,oneof=draft submitted under_review approved needs_revision revised validated"`
}

// AttachmentResponse serializes a log attachment.
type AttachmentResponse struct {
	ID        uint      `json:"id"`
	Kind      string    `json:"kind"`
	FileName  string    `json:"file_name"`
	URL       string    `json:"url"`
	MimeType  string    `json:"mime_type"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// RevisionResponse serializes one revision history entry.
type RevisionResponse struct {
	ID              uint      `json:"id"`
	PreviousContent string    `json:"previous_content"`
	NewContent      string    `json:"new_content"`
	Reason          string    `json:"reason"`
	CreatedAt       time.Time `json:"created_at"`
}

// LogResponse is returned to API clients when viewing logs.
type LogResponse struct {
	ID               uint                   `json:"id"`
	StudentID        uint                   `json:"student_id"`
	MentorID         uint                   `json:"mentor_id"`
	AdvisorID        uint                   `json:"advisor_id"`
	Date             string                 `json:"date"`
	Title            string                 `json:"title"`
	Content          string                 `json:"content"`
	Activities       []string               `json:"activities"`
	Skills           []string               `json:"skills"`
	Challenges       string                 `json:"challenges"`
	HoursSpent       float64                `json:"hours_spent"`
	Status           string                 `json:"status"`
	SelfAssessment   *models.SelfAssessment `json:"self_assessment"`
	MentorFeedback   *models.MentorFeedback `json:"mentor_feedback"`
	RevisionRequests int                    `json:"revision_requests"`
	AdvisorNotes     string                 `json:"advisor_notes,omitempty"`
	XPEarned         int                    `json:"xp_earned"`
	Attachments      []AttachmentResponse   `json:"attachments"`
	RevisionHistory  []RevisionResponse     `json:"revision_history"`
	SubmittedAt      *time.Time             `json:"submitted_at"`
	ApprovedAt       *time.Time             `json:"approved_at"`
	ValidatedAt      *time.Time             `json:"validated_at"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
}

// AvailableTransitionsResponse lists the statuses the caller may move a log to.
type AvailableTransitionsResponse struct {
	LogID    uint     `json:"log_id"`
	Status   string   `json:"status"`
	Role     string   `json:"role"`
	Targets  []string `json:"targets"`
	Editable bool     `json:"editable"`
}

// AwardResponse is one XP line item.
type AwardResponse struct {
	Reason string `json:"reason"`
	Points int    `json:"points"`
}

// TransitionResponse reports the outcome of a status change.
type TransitionResponse struct {
	Log           LogResponse     `json:"log"`
	EventID       string          `json:"event_id"`
	XPDelta       int             `json:"xp_delta"`
	Awards        []AwardResponse `json:"awards"`
	TotalXP       int             `json:"total_xp"`
	Level         int             `json:"level"`
	LeveledUp     bool            `json:"leveled_up"`
	CurrentStreak int             `json:"current_streak"`
	NewBadges     []string        `json:"new_badges"`
}

// NewLogResponse converts a DailyLog model into a DTO.
func NewLogResponse(model models.DailyLog) LogResponse {
	response := LogResponse{
		ID:               model.ID,
		StudentID:        model.StudentID,
		MentorID:         model.MentorID,
		AdvisorID:        model.AdvisorID,
		Date:             model.Date.Format(DateLayout),
		Title:            model.Title,
		Content:          model.Content,
		Activities:       nonNilStrings(model.Activities),
		Skills:           nonNilStrings(model.Skills),
		Challenges:       model.Challenges,
		HoursSpent:       model.HoursSpent,
		Status:           string(model.Status),
		SelfAssessment:   model.SelfAssessment,
		MentorFeedback:   model.MentorFeedback,
		RevisionRequests: model.RevisionRequests,
		AdvisorNotes:     model.AdvisorNotes,
		XPEarned:         model.XPEarned,
		Attachments:      make([]AttachmentResponse, 0, len(model.Attachments)),
		RevisionHistory:  make([]RevisionResponse, 0, len(model.RevisionHistory)),
		SubmittedAt:      model.SubmittedAt,
		ApprovedAt:       model.ApprovedAt,
		ValidatedAt:      model.ValidatedAt,
		CreatedAt:        model.CreatedAt,
		UpdatedAt:        model.UpdatedAt,
	}

	for _, attachment := range model.Attachments {
		response.Attachments = append(response.Attachments, NewAttachmentResponse(attachment))
	}

	for _, item := range model.RevisionHistory {
		response.RevisionHistory = append(response.RevisionHistory, RevisionResponse{
			ID:              item.ID,
			PreviousContent: item.PreviousContent,
			NewContent:      item.NewContent,
			Reason:          item.Reason,
			CreatedAt:       item.CreatedAt,
		})
	}

	return response
}

// NewLogResponseSlice converts a slice of models into DTOs.
func NewLogResponseSlice(items []models.DailyLog) []LogResponse {
	out := make([]LogResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NewLogResponse(item))
	}
	return out
}

// NewAttachmentResponse converts an attachment model into a DTO.
func NewAttachmentResponse(model models.LogAttachment) AttachmentResponse {
	return AttachmentResponse{
		ID:        model.ID,
		Kind:      string(model.Kind),
		FileName:  model.FileName,
		URL:       model.URL,
		MimeType:  model.MimeType,
		SizeBytes: model.SizeBytes,
		CreatedAt: model.CreatedAt,
	}
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
