package lifecycle

import (
	"strconv"

	"github.com/noah-isme/internlog-api/internal/models"
)

// NotificationIntent asks the delivery collaborator to notify a user.
type NotificationIntent struct {
	UserID  string
	Type    string
	Payload map[string]interface{}
}

// TransitionIntents derives who should hear about a transition.
// Unassigned reviewers (zero IDs) are skipped.
func TransitionIntents(log models.DailyLog, event LifecycleEvent) []NotificationIntent {
	payload := map[string]interface{}{
		"log_id":      event.LogID,
		"student_id":  event.StudentID,
		"title":       log.Title,
		"from_status": string(event.From),
		"to_status":   string(event.To),
		"actor_role":  string(event.ActorRole),
	}

	intentType := "log." + string(event.To)
	recipients := make([]uint, 0, 2)

	switch event.To {
	case models.LogStatusSubmitted, models.LogStatusRevised:
		recipients = append(recipients, log.MentorID)
	case models.LogStatusUnderReview:
		recipients = append(recipients, log.StudentID)
	case models.LogStatusApproved:
		recipients = append(recipients, log.StudentID, log.AdvisorID)
	case models.LogStatusNeedsRevision:
		if event.Feedback != nil {
			payload["revision_notes"] = event.Feedback.RevisionNotes
		}
		recipients = append(recipients, log.StudentID)
	case models.LogStatusValidated:
		recipients = append(recipients, log.StudentID)
	}

	intents := make([]NotificationIntent, 0, len(recipients))
	seen := make(map[uint]struct{}, len(recipients))
	for _, recipient := range recipients {
		if recipient == 0 || recipient == event.ActorID {
			continue
		}
		if _, dup := seen[recipient]; dup {
			continue
		}
		seen[recipient] = struct{}{}
		intents = append(intents, NotificationIntent{
			UserID:  strconv.FormatUint(uint64(recipient), 10),
			Type:    intentType,
			Payload: payload,
		})
	}
	return intents
}
