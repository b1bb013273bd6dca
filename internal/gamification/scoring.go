package gamification

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/internlog-api/internal/lifecycle"
	"github.com/noah-isme/internlog-api/internal/models"
)

// AwardTable holds the XP constants used by the engine.
type AwardTable struct {
	Submit           int
	Approved         int
	SelfAssessment   int
	PhotoBonus       int
	DocumentBonus    int
	RevisionPenalty  int
	QualityBonus     int
	QualityThreshold int
	PhotoBonusCap    int
	DocumentBonusCap int
}

// DefaultAwards is the award table used in production.
var DefaultAwards = AwardTable{
	Submit:           10,
	Approved:         20,
	SelfAssessment:   5,
	PhotoBonus:       3,
	DocumentBonus:    3,
	RevisionPenalty:  -5,
	QualityBonus:     15,
	QualityThreshold: 8,
	PhotoBonusCap:    1,
	DocumentBonusCap: 1,
}

// Award reason codes recorded in the XP ledger.
const (
	ReasonSubmit          = "submit"
	ReasonPhotoBonus      = "photo_bonus"
	ReasonDocumentBonus   = "document_bonus"
	ReasonApproved        = "approved"
	ReasonSelfAssessment  = "self_assessment"
	ReasonQualityBonus    = "quality_bonus"
	ReasonRevisionPenalty = "revision_penalty"
	ReasonFloorClamp      = "floor_clamp"
)

// Award is one line of an XP breakdown.
type Award struct {
	Reason string `json:"reason"`
	Points int    `json:"points"`
}

// ScoreResult is the outcome of scoring one lifecycle event.
type ScoreResult struct {
	XPDelta            int
	NewStreak          int
	LongestStreak      int
	LastSubmissionDate *time.Time
	StreakCounted      bool
	Awards             []Award
	Clamped            bool
}

// Engine turns lifecycle events into XP and streak changes.
type Engine struct {
	awards AwardTable
	logger zerolog.Logger
}

// NewEngine constructs a scoring engine with the given award table.
func NewEngine(awards AwardTable, logger zerolog.Logger) *Engine {
	return &Engine{
		awards: awards,
		logger: logger.With().Str("component", "scoring_engine").Logger(),
	}
}

// Awards exposes the engine's award table.
func (e *Engine) Awards() AwardTable {
	return e.awards
}

// QualityThreshold is the mentor rating at or above which a log counts as high quality.
func (e *Engine) QualityThreshold() int {
	return e.awards.QualityThreshold
}

// ScoreEvent computes the XP delta and streak update for event against the
// aggregate snapshot. It does not modify aggregate.
func (e *Engine) ScoreEvent(event lifecycle.LifecycleEvent, aggregate models.StudentAggregate) ScoreResult {
	result := ScoreResult{
		NewStreak:          aggregate.CurrentStreak,
		LongestStreak:      aggregate.LongestStreak,
		LastSubmissionDate: aggregate.LastSubmissionDate,
	}

	switch event.To {
	case models.LogStatusSubmitted:
		if event.From != models.LogStatusDraft {
			break
		}
		result.add(ReasonSubmit, e.awards.Submit)
		if bonus := capped(event.PhotoCount, e.awards.PhotoBonusCap) * e.awards.PhotoBonus; bonus != 0 {
			result.add(ReasonPhotoBonus, bonus)
		}
		if bonus := capped(event.DocumentCount, e.awards.DocumentBonusCap) * e.awards.DocumentBonus; bonus != 0 {
			result.add(ReasonDocumentBonus, bonus)
		}
		e.updateStreak(&result, event.LogDate)
	case models.LogStatusApproved:
		result.add(ReasonApproved, e.awards.Approved)
		if event.HasSelfAssessment {
			result.add(ReasonSelfAssessment, e.awards.SelfAssessment)
		}
		if event.Rating >= e.awards.QualityThreshold {
			result.add(ReasonQualityBonus, e.awards.QualityBonus)
		}
	case models.LogStatusNeedsRevision:
		result.add(ReasonRevisionPenalty, e.awards.RevisionPenalty)
	}

	if aggregate.TotalXP+result.XPDelta < 0 {
		clamped := -aggregate.TotalXP
		e.logger.Warn().
			Str("anomaly", "invariant_violation").
			Str("event_id", event.ID).
			Uint("student_id", event.StudentID).
			Int("total_xp", aggregate.TotalXP).
			Int("xp_delta", result.XPDelta).
			Int("clamped_delta", clamped).
			Msg("negative xp clamped to zero")
		result.Awards = append(result.Awards, Award{Reason: ReasonFloorClamp, Points: clamped - result.XPDelta})
		result.XPDelta = clamped
		result.Clamped = true
	}

	if result.NewStreak > result.LongestStreak {
		result.LongestStreak = result.NewStreak
	}

	return result
}

// Apply returns a new aggregate with result folded in.
func (e *Engine) Apply(aggregate models.StudentAggregate, result ScoreResult) models.StudentAggregate {
	next := aggregate
	next.EarnedBadges = append([]string(nil), aggregate.EarnedBadges...)

	next.TotalXP = aggregate.TotalXP + result.XPDelta
	if next.TotalXP < 0 {
		next.TotalXP = 0
	}
	next.CurrentLevel = LevelFor(next.TotalXP).Number
	next.CurrentStreak = result.NewStreak
	next.LongestStreak = result.LongestStreak
	if next.LongestStreak < aggregate.LongestStreak {
		next.LongestStreak = aggregate.LongestStreak
	}
	if next.LongestStreak < next.CurrentStreak {
		next.LongestStreak = next.CurrentStreak
	}
	next.LastSubmissionDate = result.LastSubmissionDate
	return next
}

func (e *Engine) updateStreak(result *ScoreResult, logDate time.Time) {
	day := CalendarDay(logDate)
	if result.LastSubmissionDate == nil {
		result.NewStreak = 1
		result.LastSubmissionDate = &day
		result.StreakCounted = true
		return
	}

	last := CalendarDay(*result.LastSubmissionDate)
	switch gap := DaysBetween(last, day); {
	case gap == 0:
		// Same day: a second submission does not extend the streak.
	case gap == 1:
		result.NewStreak++
		result.LastSubmissionDate = &day
		result.StreakCounted = true
	case gap > 1:
		result.NewStreak = 1
		result.LastSubmissionDate = &day
		result.StreakCounted = true
	default:
		// Back-dated log: the streak only moves forward.
	}
}

func (r *ScoreResult) add(reason string, points int) {
	r.Awards = append(r.Awards, Award{Reason: reason, Points: points})
	r.XPDelta += points
}

func capped(count, limit int) int {
	if count < limit {
		return count
	}
	return limit
}

// CalendarDay truncates t to midnight UTC of its calendar date.
func CalendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(CalendarDay(b).Sub(CalendarDay(a)).Hours() / 24)
}
