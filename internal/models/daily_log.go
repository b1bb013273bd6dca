package models

import (
	"strings"
	"time"
)

// LogStatus is the review state of a daily log.
type LogStatus string

const (
	// LogStatusDraft is the initial, student-owned state.
	LogStatusDraft LogStatus = "draft"
	// LogStatusSubmitted means the student finalised the content for mentor review.
	LogStatusSubmitted LogStatus = "submitted"
	// LogStatusUnderReview marks a log a mentor has opened for evaluation.
	LogStatusUnderReview LogStatus = "under_review"
	// LogStatusApproved means the mentor accepted the log.
	LogStatusApproved LogStatus = "approved"
	// LogStatusNeedsRevision means the mentor asked the student for changes.
	LogStatusNeedsRevision LogStatus = "needs_revision"
	// LogStatusRevised means the student resubmitted after a revision request.
	LogStatusRevised LogStatus = "revised"
	// LogStatusValidated is terminal: the advisor confirmed the log.
	LogStatusValidated LogStatus = "validated"
)

// LogStatuses lists every status in lifecycle order.
var LogStatuses = []LogStatus{
	LogStatusDraft,
	LogStatusSubmitted,
	LogStatusUnderReview,
	LogStatusApproved,
	LogStatusNeedsRevision,
	LogStatusRevised,
	LogStatusValidated,
}

// Valid reports whether the status is part of the lifecycle.
func (s LogStatus) Valid() bool {
	for _, candidate := range LogStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ReachedApproval reports whether the log has been approved or validated.
func (s LogStatus) ReachedApproval() bool {
	return s == LogStatusApproved || s == LogStatusValidated
}

// Role identifies the kind of actor operating on a log.
type Role string

const (
	RoleStudent Role = "student"
	RoleMentor  Role = "mentor"
	RoleAdvisor Role = "advisor"
	RoleAdmin   Role = "admin"
)

// ParseRole normalises a role claim.
func ParseRole(value string) Role {
	return Role(strings.ToLower(strings.TrimSpace(value)))
}

// AttachmentKind distinguishes photos from documents.
type AttachmentKind string

const (
	AttachmentPhoto    AttachmentKind = "photo"
	AttachmentDocument AttachmentKind = "document"
)

// DailyLog is one student's record for a single internship day.
type DailyLog struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	StudentID        uint            `gorm:"not null;index" json:"student_id"`
	MentorID         uint            `gorm:"index" json:"mentor_id"`
	AdvisorID        uint            `gorm:"index" json:"advisor_id"`
	Date             time.Time       `gorm:"type:date;not null;index" json:"date"`
	Title            string          `gorm:"size:255;not null" json:"title"`
	Content          string          `gorm:"type:text" json:"content"`
	Activities       []string        `gorm:"serializer:json" json:"activities"`
	Skills           []string        `gorm:"serializer:json" json:"skills"`
	Challenges       string          `gorm:"type:text" json:"challenges"`
	HoursSpent       float64         `json:"hours_spent"`
	Status           LogStatus       `gorm:"size:32;not null;index" json:"status"`
	SelfAssessment   *SelfAssessment `gorm:"serializer:json" json:"self_assessment"`
	MentorFeedback   *MentorFeedback `gorm:"serializer:json" json:"mentor_feedback"`
	RevisionRequests int             `gorm:"not null;default:0" json:"revision_requests"`
	AdvisorNotes     string          `gorm:"type:text" json:"advisor_notes"`
	XPEarned         int             `gorm:"not null;default:0" json:"xp_earned"`
	SubmittedAt      *time.Time      `json:"submitted_at"`
	ApprovedAt       *time.Time      `json:"approved_at"`
	ValidatedAt      *time.Time      `json:"validated_at"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	Attachments      []LogAttachment `gorm:"foreignKey:LogID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"attachments"`
	RevisionHistory  []RevisionItem  `gorm:"foreignKey:LogID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"revision_history"`
}

// CountAttachments returns the number of attachments of the given kind.
func (l DailyLog) CountAttachments(kind AttachmentKind) int {
	count := 0
	for _, attachment := range l.Attachments {
		if attachment.Kind == kind {
			count++
		}
	}
	return count
}

// MentorRating returns the mentor's rating, or zero when no feedback exists.
func (l DailyLog) MentorRating() int {
	if l.MentorFeedback == nil {
		return 0
	}
	return l.MentorFeedback.Rating
}

// LogAttachment is a photo or document owned by a daily log.
type LogAttachment struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	LogID     uint           `gorm:"not null;index" json:"log_id"`
	Kind      AttachmentKind `gorm:"size:16;not null" json:"kind"`
	FileName  string         `gorm:"size:255" json:"file_name"`
	URL       string         `gorm:"size:512;not null" json:"url"`
	MimeType  string         `gorm:"size:128" json:"mime_type"`
	SizeBytes int64          `json:"size_bytes"`
	CreatedAt time.Time      `json:"created_at"`
}

// RevisionItem is one append-only entry of a log's revision history.
type RevisionItem struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	LogID           uint      `gorm:"not null;index" json:"log_id"`
	PreviousContent string    `gorm:"type:text" json:"previous_content"`
	NewContent      string    `gorm:"type:text;not null" json:"new_content"`
	Reason          string    `gorm:"type:text" json:"reason"`
	CreatedAt       time.Time `json:"created_at"`
}

// SelfAssessment holds the student's own competency ratings and reflection.
type SelfAssessment struct {
	Competencies map[string]int `json:"competencies"`
	Reflection   string         `json:"reflection"`
}

// MentorFeedback is the mentor's evaluation attached to a log.
type MentorFeedback struct {
	Rating            int            `json:"rating"`
	Comments          string         `json:"comments"`
	Competencies      map[string]int `json:"competencies,omitempty"`
	Approved          bool           `json:"approved"`
	RevisionRequested bool           `json:"revision_requested"`
	RevisionNotes     string         `json:"revision_notes,omitempty"`
}
