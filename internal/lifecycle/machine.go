package lifecycle

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/internlog-api/internal/models"
)

// FeedbackInput is the mentor payload carried alongside a status change.
type FeedbackInput struct {
	Rating        int
	Comments      string
	Competencies  map[string]int
	RevisionNotes string
}

// RevisionInput is the content change a student submits with a resubmission.
// PreviousContent is optional; when set it must equal the stored log content.
type RevisionInput struct {
	PreviousContent string
	NewContent      string
	Reason          string
}

// TransitionRequest asks the machine to move a log to Target.
type TransitionRequest struct {
	Target       models.LogStatus
	ActorRole    models.Role
	ActorID      uint
	Feedback     *FeedbackInput
	Revision     *RevisionInput
	AdvisorNotes string
	At           time.Time
}

// LifecycleEvent is the immutable record of a successful transition.
type LifecycleEvent struct {
	ID         string
	LogID      uint
	StudentID  uint
	From       models.LogStatus
	To         models.LogStatus
	ActorRole  models.Role
	ActorID    uint
	OccurredAt time.Time
	Feedback   *models.MentorFeedback

	// Facts about the log at transition time, consumed by scoring.
	LogDate           time.Time
	HasSelfAssessment bool
	PhotoCount        int
	DocumentCount     int
	Rating            int
}

// TransitionResult carries the updated log and the event it produced.
type TransitionResult struct {
	Log      models.DailyLog
	Event    LifecycleEvent
	Revision *models.RevisionItem
}

// Machine validates transition requests against the permission table.
type Machine struct {
	now   func() time.Time
	newID func() string
}

// NewMachine constructs a lifecycle machine.
func NewMachine() *Machine {
	return &Machine{
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// RequestTransition validates req against log and returns the updated copy.
// The input log is never modified; on error nothing changes.
func (m *Machine) RequestTransition(log models.DailyLog, req TransitionRequest) (TransitionResult, error) {
	from := log.Status
	if !from.Valid() || !req.Target.Valid() {
		return TransitionResult{}, ErrUnknownStatus
	}

	if !Allowed(req.ActorRole, from, req.Target) {
		return TransitionResult{}, &IllegalTransitionError{From: from, To: req.Target, Role: req.ActorRole}
	}

	at := req.At
	if at.IsZero() {
		at = m.now()
	}
	at = at.UTC()

	next := cloneLog(log)
	next.Status = req.Target
	var revision *models.RevisionItem

	switch req.Target {
	case models.LogStatusSubmitted:
		next.SubmittedAt = &at
	case models.LogStatusNeedsRevision:
		if req.Feedback == nil || strings.TrimSpace(req.Feedback.RevisionNotes) == "" {
			return TransitionResult{}, ErrMissingRevisionReason
		}
		feedback := mergeFeedback(next.MentorFeedback, req.Feedback)
		feedback.Approved = false
		feedback.RevisionRequested = true
		feedback.RevisionNotes = strings.TrimSpace(req.Feedback.RevisionNotes)
		next.MentorFeedback = feedback
		next.RevisionRequests++
	case models.LogStatusRevised:
		item, err := buildRevision(log, req.Revision, at)
		if err != nil {
			return TransitionResult{}, err
		}
		next.RevisionHistory = append(next.RevisionHistory, item)
		next.Content = item.NewContent
		next.SubmittedAt = &at
		revision = &item
		// A rating describes the content it was given for; the next review rates afresh.
		if next.MentorFeedback != nil {
			next.MentorFeedback.Rating = 0
		}
	case models.LogStatusApproved:
		feedback := mergeFeedback(next.MentorFeedback, req.Feedback)
		feedback.Approved = true
		feedback.RevisionRequested = false
		next.MentorFeedback = feedback
		next.ApprovedAt = &at
	case models.LogStatusValidated:
		if notes := strings.TrimSpace(req.AdvisorNotes); notes != "" {
			next.AdvisorNotes = notes
		}
		next.ValidatedAt = &at
	}

	event := LifecycleEvent{
		ID:                m.newID(),
		LogID:             log.ID,
		StudentID:         log.StudentID,
		From:              from,
		To:                req.Target,
		ActorRole:         req.ActorRole,
		ActorID:           req.ActorID,
		OccurredAt:        at,
		LogDate:           next.Date,
		HasSelfAssessment: next.SelfAssessment != nil,
		PhotoCount:        next.CountAttachments(models.AttachmentPhoto),
		DocumentCount:     next.CountAttachments(models.AttachmentDocument),
		Rating:            next.MentorRating(),
	}
	if next.MentorFeedback != nil && (req.Feedback != nil || mentorDecision(req.Target)) {
		snapshot := *next.MentorFeedback
		snapshot.Competencies = cloneRatings(snapshot.Competencies)
		event.Feedback = &snapshot
	}

	return TransitionResult{Log: next, Event: event, Revision: revision}, nil
}

func mentorDecision(status models.LogStatus) bool {
	return status == models.LogStatusApproved || status == models.LogStatusNeedsRevision
}

func buildRevision(log models.DailyLog, input *RevisionInput, at time.Time) (models.RevisionItem, error) {
	if input == nil {
		return models.RevisionItem{}, ErrMissingRevisionContent
	}

	previous := log.Content
	newContent := strings.TrimSpace(input.NewContent)
	if newContent == "" || newContent == strings.TrimSpace(previous) {
		return models.RevisionItem{}, ErrMissingRevisionContent
	}
	if claimed := strings.TrimSpace(input.PreviousContent); claimed != "" && claimed != strings.TrimSpace(previous) {
		return models.RevisionItem{}, ErrStaleRevisionContent
	}

	return models.RevisionItem{
		LogID:           log.ID,
		PreviousContent: previous,
		NewContent:      newContent,
		Reason:          strings.TrimSpace(input.Reason),
		CreatedAt:       at,
	}, nil
}

func mergeFeedback(current *models.MentorFeedback, input *FeedbackInput) *models.MentorFeedback {
	merged := &models.MentorFeedback{}
	if current != nil {
		*merged = *current
		merged.Competencies = cloneRatings(current.Competencies)
	}
	if input == nil {
		return merged
	}
	if input.Rating > 0 {
		merged.Rating = input.Rating
	}
	if comments := strings.TrimSpace(input.Comments); comments != "" {
		merged.Comments = comments
	}
	if len(input.Competencies) > 0 {
		merged.Competencies = cloneRatings(input.Competencies)
	}
	return merged
}

func cloneLog(log models.DailyLog) models.DailyLog {
	next := log
	next.Activities = append([]string(nil), log.Activities...)
	next.Skills = append([]string(nil), log.Skills...)
	next.Attachments = append([]models.LogAttachment(nil), log.Attachments...)
	next.RevisionHistory = append([]models.RevisionItem(nil), log.RevisionHistory...)
	if log.SelfAssessment != nil {
		assessment := *log.SelfAssessment
		assessment.Competencies = cloneRatings(log.SelfAssessment.Competencies)
		next.SelfAssessment = &assessment
	}
	if log.MentorFeedback != nil {
		feedback := *log.MentorFeedback
		feedback.Competencies = cloneRatings(log.MentorFeedback.Competencies)
		next.MentorFeedback = &feedback
	}
	return next
}

func cloneRatings(ratings map[string]int) map[string]int {
	if ratings == nil {
		return nil
	}
	cloned := make(map[string]int, len(ratings))
	for key, value := range ratings {
		cloned[key] = value
	}
	return cloned
}
