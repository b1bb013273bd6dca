package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/internlog-api/internal/dto"
	"github.com/noah-isme/internlog-api/internal/gamification"
	"github.com/noah-isme/internlog-api/internal/models"
	"github.com/noah-isme/internlog-api/internal/observability"
	"github.com/noah-isme/internlog-api/internal/repository"
)

// ProgressService exposes the gamification state of students.
type ProgressService interface {
	ProgressInvalidator
	GetProgress(ctx context.Context, actor Actor, studentID uint) (dto.ProgressResponse, error)
	History(ctx context.Context, actor Actor, studentID uint, query dto.XPHistoryQuery) ([]dto.XPEventResponse, error)
	Levels() []dto.LevelResponse
	Badges() []dto.BadgeResponse
}

type progressService struct {
	aggregates repository.AggregateRepository
	cache      *redis.Client
	cacheTTL   time.Duration
	logger     zerolog.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

// NewProgressService builds the progress reader. A nil cache disables caching.
func NewProgressService(aggregates repository.AggregateRepository, cache *redis.Client, ttl time.Duration, logger zerolog.Logger) ProgressService {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &progressService{
		aggregates: aggregates,
		cache:      cache,
		cacheTTL:   ttl,
		logger:     logger.With().Str("component", "progress_service").Logger(),
		tracer:     otel.Tracer("github.com/noah-isme/internlog-api/internal/service/progress"),
		now:        time.Now,
	}
}

func progressCacheKey(studentID uint) string {
	return fmt.Sprintf("progress:student:%d", studentID)
}

func (s *progressService) GetProgress(ctx context.Context, actor Actor, studentID uint) (dto.ProgressResponse, error) {
	if actor.Role == models.RoleStudent && actor.ID != studentID {
		return dto.ProgressResponse{}, ErrProgressForbidden
	}

	ctx, span := s.tracer.Start(ctx, "progress.get", trace.WithAttributes(attribute.Int("student.id", int(studentID))))
	defer span.End()

	cacheKey := progressCacheKey(studentID)
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var response dto.ProgressResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
				observability.ProgressCacheLookups().WithLabelValues("hit").Inc()
				span.SetAttributes(attribute.Bool("cache.hit", true))
				return response, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("failed to read progress cache")
		}
		observability.ProgressCacheLookups().WithLabelValues("miss").Inc()
	}

	aggregate, err := s.aggregates.GetOrInit(ctx, studentID)
	if err != nil {
		span.RecordError(err)
		return dto.ProgressResponse{}, err
	}

	badges, err := s.aggregates.ListBadges(ctx, studentID)
	if err != nil {
		span.RecordError(err)
		return dto.ProgressResponse{}, err
	}

	response := s.buildResponse(aggregate, badges)

	if s.cache != nil {
		if payload, err := json.Marshal(response); err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store progress cache")
			}
		}
	}

	return response, nil
}

// History returns the most recent XP ledger entries of a student, newest first.
func (s *progressService) History(ctx context.Context, actor Actor, studentID uint, query dto.XPHistoryQuery) ([]dto.XPEventResponse, error) {
	if actor.Role == models.RoleStudent && actor.ID != studentID {
		return nil, ErrProgressForbidden
	}
	if query.Limit < 0 || query.Limit > 200 {
		return nil, ErrInvalidHistoryLimit
	}

	events, err := s.aggregates.ListStudentEvents(ctx, studentID, query.Limit)
	if err != nil {
		return nil, err
	}
	return dto.NewXPEventResponseSlice(events), nil
}

func (s *progressService) Invalidate(ctx context.Context, studentID uint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, progressCacheKey(studentID)).Err(); err != nil {
		s.logger.Warn().Err(err).Uint("student_id", studentID).Msg("failed to invalidate progress cache")
	}
}

func (s *progressService) Levels() []dto.LevelResponse {
	return dto.NewLevelResponseSlice(gamification.Levels())
}

func (s *progressService) Badges() []dto.BadgeResponse {
	return dto.NewBadgeResponseSlice(gamification.Catalog())
}

// buildResponse lists earned badges in catalog order. Keys present on the
// aggregate without a ledger row keep a null timestamp.
func (s *progressService) buildResponse(aggregate models.StudentAggregate, badges []models.StudentBadge) dto.ProgressResponse {
	progress := gamification.Progress(aggregate.TotalXP)

	earnedAt := make(map[string]time.Time, len(badges))
	for _, badge := range badges {
		earnedAt[badge.BadgeKey] = badge.EarnedAt
	}

	earned := make([]dto.EarnedBadgeResponse, 0, len(aggregate.EarnedBadges))
	for _, entry := range gamification.Catalog() {
		if !aggregate.HasBadge(entry.Key) {
			continue
		}
		item := dto.EarnedBadgeResponse{BadgeResponse: dto.NewBadgeResponse(entry)}
		if at, ok := earnedAt[entry.Key]; ok {
			at := at.UTC()
			item.EarnedAt = &at
		}
		earned = append(earned, item)
	}

	response := dto.ProgressResponse{
		StudentID:     aggregate.StudentID,
		TotalXP:       aggregate.TotalXP,
		Level:         dto.NewLevelResponse(progress.Level),
		XPIntoLevel:   progress.XPIntoLevel,
		XPToNext:      progress.XPToNext,
		Percent:       progress.Percent,
		CurrentStreak: aggregate.CurrentStreak,
		LongestStreak: aggregate.LongestStreak,
		Badges:        earned,
		UpdatedAt:     aggregate.UpdatedAt.UTC(),
		GeneratedAt:   s.now().UTC(),
	}
	if aggregate.LastSubmissionDate != nil {
		day := aggregate.LastSubmissionDate.Format(dto.DateLayout)
		response.LastSubmissionDate = &day
	}

	return response
}
