package gamification

import (
	"github.com/rs/zerolog"

	"github.com/noah-isme/internlog-api/internal/models"
)

// HistoryStats are the counts badge predicates are evaluated against.
type HistoryStats struct {
	SubmittedLogs      int
	HighQualityLogs    int
	SelfAssessedLogs   int
	LogsWithAttachment int
	TotalHours         float64
	AllApprovedClean   bool
}

// Evaluator decides which catalog badges a student has newly earned.
type Evaluator struct {
	qualityThreshold int
	logger           zerolog.Logger
}

// NewEvaluator constructs an evaluator using qualityThreshold for quality badges.
func NewEvaluator(qualityThreshold int, logger zerolog.Logger) *Evaluator {
	return &Evaluator{
		qualityThreshold: qualityThreshold,
		logger:           logger.With().Str("component", "badge_evaluator").Logger(),
	}
}

// Evaluate runs the default evaluator.
func Evaluate(aggregate models.StudentAggregate, history []models.DailyLog) []string {
	return NewEvaluator(DefaultAwards.QualityThreshold, zerolog.Nop()).Evaluate(aggregate, history)
}

// Evaluate returns the keys of badges not yet in aggregate.EarnedBadges whose
// predicate holds, in catalog order.
func (e *Evaluator) Evaluate(aggregate models.StudentAggregate, history []models.DailyLog) []string {
	stats := e.Stats(history)
	earned := make([]string, 0)
	for _, entry := range catalog {
		if aggregate.HasBadge(entry.Key) {
			continue
		}
		if qualifies(entry, aggregate, stats) {
			earned = append(earned, entry.Key)
		}
	}
	return earned
}

// Stats folds a log history into badge counters.
func (e *Evaluator) Stats(history []models.DailyLog) HistoryStats {
	stats := HistoryStats{AllApprovedClean: len(history) > 0}
	for _, log := range history {
		if !log.Status.ReachedApproval() || log.RevisionRequests > 0 {
			stats.AllApprovedClean = false
		}
		if log.Status == models.LogStatusDraft {
			continue
		}
		stats.SubmittedLogs++
		stats.TotalHours += log.HoursSpent
		if log.Status.ReachedApproval() && log.MentorRating() >= e.qualityThreshold {
			stats.HighQualityLogs++
		}
		if log.SelfAssessment != nil {
			stats.SelfAssessedLogs++
		}
		if len(log.Attachments) > 0 {
			stats.LogsWithAttachment++
		}
	}
	return stats
}

// Merge adds keys to the aggregate's earned set. Keys already present are an
// invariant violation: they are logged and dropped, never awarded twice.
func (e *Evaluator) Merge(aggregate models.StudentAggregate, keys []string) (models.StudentAggregate, []string) {
	next := aggregate
	next.EarnedBadges = append([]string(nil), aggregate.EarnedBadges...)
	added := make([]string, 0, len(keys))
	for _, key := range keys {
		if next.HasBadge(key) {
			e.logger.Warn().
				Str("anomaly", "invariant_violation").
				Uint("student_id", aggregate.StudentID).
				Str("badge", key).
				Msg("badge already earned; ignoring duplicate award")
			continue
		}
		if _, ok := BadgeByKey(key); !ok {
			e.logger.Warn().Str("badge", key).Msg("unknown badge key ignored")
			continue
		}
		next.EarnedBadges = append(next.EarnedBadges, key)
		added = append(added, key)
	}
	return next, added
}

func qualifies(entry Badge, aggregate models.StudentAggregate, stats HistoryStats) bool {
	switch entry.Key {
	case "all_approved":
		return stats.AllApprovedClean && stats.SubmittedLogs >= entry.Requirement
	case "hours_100":
		return stats.TotalHours >= float64(entry.Requirement)
	case "self_reflector":
		return stats.SelfAssessedLogs >= entry.Requirement
	case "documenter":
		return stats.LogsWithAttachment >= entry.Requirement
	case "level_5", "level_10":
		return aggregate.CurrentLevel >= entry.Requirement
	}

	switch entry.Category {
	case CategoryConsistency:
		return aggregate.CurrentStreak >= entry.Requirement
	case CategoryQuality:
		return stats.HighQualityLogs >= entry.Requirement
	case CategoryMilestone:
		return stats.SubmittedLogs >= entry.Requirement
	default:
		return false
	}
}
