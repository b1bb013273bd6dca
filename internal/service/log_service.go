package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/internlog-api/internal/dto"
	"github.com/noah-isme/internlog-api/internal/gamification"
	"github.com/noah-isme/internlog-api/internal/lifecycle"
	"github.com/noah-isme/internlog-api/internal/models"
	"github.com/noah-isme/internlog-api/internal/observability"
	"github.com/noah-isme/internlog-api/internal/repository"
)

// transitionAttempts bounds the optimistic retry loop: one try plus one retry.
const transitionAttempts = 2

// LogService coordinates daily log editing and lifecycle transitions.
type LogService interface {
	Create(ctx context.Context, actor Actor, payload dto.LogCreateRequest) (dto.LogResponse, error)
	Get(ctx context.Context, actor Actor, id uint) (dto.LogResponse, error)
	List(ctx context.Context, actor Actor, filter dto.LogFilter) ([]dto.LogResponse, error)
	Update(ctx context.Context, actor Actor, id uint, payload dto.LogUpdateRequest) (dto.LogResponse, error)
	SetSelfAssessment(ctx context.Context, actor Actor, id uint, payload dto.SelfAssessmentRequest) (dto.LogResponse, error)
	AddAttachment(ctx context.Context, actor Actor, id uint, file *multipart.FileHeader) (dto.AttachmentResponse, error)
	AvailableTransitions(ctx context.Context, actor Actor, id uint) (dto.AvailableTransitionsResponse, error)
	Transition(ctx context.Context, actor Actor, id uint, payload dto.TransitionRequest) (dto.TransitionResponse, error)
	Events(ctx context.Context, actor Actor, id uint) ([]dto.XPEventResponse, error)
}

// IntentDeliverer hands notification intents to the delivery layer.
type IntentDeliverer interface {
	Deliver(ctx context.Context, intents []lifecycle.NotificationIntent) error
}

// ProgressInvalidator drops cached progress after the aggregate changes.
type ProgressInvalidator interface {
	Invalidate(ctx context.Context, studentID uint)
}

// LogServiceDeps groups the collaborators of the log service.
type LogServiceDeps struct {
	Logs          repository.DailyLogRepository
	Aggregates    repository.AggregateRepository
	Machine       *lifecycle.Machine
	Engine        *gamification.Engine
	Evaluator     *gamification.Evaluator
	Storage       FileStorage
	Notifier      IntentDeliverer
	Events        EventPublisher
	Activity      ActivityRecorder
	Progress      ProgressInvalidator
	Validator     *validator.Validate
	Logger        zerolog.Logger
	MaxUploadSize int
}

type logService struct {
	logs       repository.DailyLogRepository
	aggregates repository.AggregateRepository
	machine    *lifecycle.Machine
	engine     *gamification.Engine
	evaluator  *gamification.Evaluator
	storage    FileStorage
	notifier   IntentDeliverer
	events     EventPublisher
	activity   ActivityRecorder
	progress   ProgressInvalidator
	validator  *validator.Validate
	logger     zerolog.Logger
	tracer     trace.Tracer
	text       *bluemonday.Policy
	rich       *bluemonday.Policy
	maxSize    int64
	now        func() time.Time
}

// NewLogService constructs the daily log service.
func NewLogService(deps LogServiceDeps) LogService {
	maxSizeMB := deps.MaxUploadSize
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}

	machine := deps.Machine
	if machine == nil {
		machine = lifecycle.NewMachine()
	}

	engine := deps.Engine
	if engine == nil {
		engine = gamification.NewEngine(gamification.DefaultAwards, deps.Logger)
	}

	evaluator := deps.Evaluator
	if evaluator == nil {
		evaluator = gamification.NewEvaluator(engine.QualityThreshold(), deps.Logger)
	}

	return &logService{
		logs:       deps.Logs,
		aggregates: deps.Aggregates,
		machine:    machine,
		engine:     engine,
		evaluator:  evaluator,
		storage:    deps.Storage,
		notifier:   deps.Notifier,
		events:     deps.Events,
		activity:   deps.Activity,
		progress:   deps.Progress,
		validator:  deps.Validator,
		logger:     deps.Logger.With().Str("component", "log_service").Logger(),
		tracer:     otel.Tracer("github.com/noah-isme/internlog-api/internal/service/logs"),
		text:       bluemonday.StrictPolicy(),
		rich:       bluemonday.UGCPolicy(),
		maxSize:    int64(maxSizeMB) * 1024 * 1024,
		now:        time.Now,
	}
}

func (s *logService) Create(ctx context.Context, actor Actor, payload dto.LogCreateRequest) (dto.LogResponse, error) {
	if actor.Role != models.RoleStudent {
		return dto.LogResponse{}, ErrLogForbidden
	}
	if err := s.validator.Struct(payload); err != nil {
		return dto.LogResponse{}, err
	}

	date, err := time.Parse(dto.DateLayout, payload.Date)
	if err != nil {
		return dto.LogResponse{}, ErrInvalidLogDate
	}

	log := models.DailyLog{
		StudentID:  actor.ID,
		MentorID:   payload.MentorID,
		AdvisorID:  payload.AdvisorID,
		Date:       gamification.CalendarDay(date),
		Title:      s.cleanText(payload.Title),
		Content:    s.cleanRich(payload.Content),
		Activities: s.cleanList(payload.Activities),
		Skills:     s.cleanList(payload.Skills),
		Challenges: s.cleanRich(payload.Challenges),
		HoursSpent: payload.HoursSpent,
		Status:     models.LogStatusDraft,
	}
	if log.Title == "" || log.Content == "" {
		return dto.LogResponse{}, ErrLogContentEmpty
	}

	if err := s.logs.Create(ctx, &log); err != nil {
		return dto.LogResponse{}, err
	}

	s.record(ctx, actor, "log.created", log.ID, map[string]interface{}{"date": payload.Date})
	s.logger.Info().Uint("log_id", log.ID).Uint("student_id", actor.ID).Msg("daily log drafted")

	return dto.NewLogResponse(log), nil
}

func (s *logService) Get(ctx context.Context, actor Actor, id uint) (dto.LogResponse, error) {
	log, err := s.load(ctx, actor, id)
	if err != nil {
		return dto.LogResponse{}, err
	}
	return dto.NewLogResponse(log), nil
}

func (s *logService) List(ctx context.Context, actor Actor, filter dto.LogFilter) ([]dto.LogResponse, error) {
	if err := s.validator.Struct(filter); err != nil {
		return nil, err
	}

	query := repository.DailyLogFilter{}
	if filter.StudentID > 0 {
		studentID := filter.StudentID
		query.StudentID = &studentID
	}
	if filter.Status != "" {
		status := models.LogStatus(filter.Status)
		query.Status = &status
	}

	switch actor.Role {
	case models.RoleStudent:
		if filter.StudentID > 0 && filter.StudentID != actor.ID {
			return nil, ErrLogForbidden
		}
		studentID := actor.ID
		query.StudentID = &studentID
	case models.RoleMentor:
		mentorID := actor.ID
		query.MentorID = &mentorID
	case models.RoleAdvisor:
		if query.StudentID == nil {
			advisorID := actor.ID
			query.AdvisorID = &advisorID
		}
	case models.RoleAdmin:
	default:
		return nil, ErrLogForbidden
	}

	logs, err := s.logs.List(ctx, query)
	if err != nil {
		return nil, err
	}

	visible := logs[:0]
	for _, log := range logs {
		if canAccess(actor, log) {
			visible = append(visible, log)
		}
	}

	return dto.NewLogResponseSlice(visible), nil
}

func (s *logService) Update(ctx context.Context, actor Actor, id uint, payload dto.LogUpdateRequest) (dto.LogResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.LogResponse{}, err
	}

	log, err := s.loadEditable(ctx, actor, id)
	if err != nil {
		return dto.LogResponse{}, err
	}

	if payload.Title != nil {
		log.Title = s.cleanText(*payload.Title)
	}
	if payload.Content != nil {
		content := s.cleanRich(*payload.Content)
		if log.Status == models.LogStatusNeedsRevision && content != log.Content {
			return dto.LogResponse{}, ErrContentLockedForRevision
		}
		log.Content = content
	}
	if payload.Activities != nil {
		log.Activities = s.cleanList(*payload.Activities)
	}
	if payload.Skills != nil {
		log.Skills = s.cleanList(*payload.Skills)
	}
	if payload.Challenges != nil {
		log.Challenges = s.cleanRich(*payload.Challenges)
	}
	if payload.HoursSpent != nil {
		log.HoursSpent = *payload.HoursSpent
	}
	if log.Title == "" || log.Content == "" {
		return dto.LogResponse{}, ErrLogContentEmpty
	}

	if err := s.logs.UpdateContent(ctx, &log, log.Status); err != nil {
		return dto.LogResponse{}, err
	}

	s.record(ctx, actor, "log.updated", log.ID, nil)
	return dto.NewLogResponse(log), nil
}

func (s *logService) SetSelfAssessment(ctx context.Context, actor Actor, id uint, payload dto.SelfAssessmentRequest) (dto.LogResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.LogResponse{}, err
	}

	log, err := s.loadEditable(ctx, actor, id)
	if err != nil {
		return dto.LogResponse{}, err
	}

	competencies := make(map[string]int, len(payload.Competencies))
	for key, value := range payload.Competencies {
		if name := s.cleanText(key); name != "" {
			competencies[name] = value
		}
	}
	log.SelfAssessment = &models.SelfAssessment{
		Competencies: competencies,
		Reflection:   s.cleanRich(payload.Reflection),
	}

	if err := s.logs.UpdateContent(ctx, &log, log.Status); err != nil {
		return dto.LogResponse{}, err
	}

	s.record(ctx, actor, "log.self_assessed", log.ID, map[string]interface{}{"competencies": len(competencies)})
	return dto.NewLogResponse(log), nil
}

func (s *logService) AddAttachment(ctx context.Context, actor Actor, id uint, file *multipart.FileHeader) (dto.AttachmentResponse, error) {
	ctx, span := s.tracer.Start(ctx, "logs.attachment", trace.WithAttributes(attribute.Int("log.id", int(id))))
	defer span.End()

	if s.storage == nil {
		span.SetStatus(codes.Error, "storage unavailable")
		return dto.AttachmentResponse{}, ErrStorageUnavailable
	}

	log, err := s.loadEditable(ctx, actor, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		return dto.AttachmentResponse{}, err
	}

	payload, err := readAttachment(file, s.maxSize)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		return dto.AttachmentResponse{}, err
	}
	span.SetAttributes(
		attribute.String("attachment.kind", string(payload.kind)),
		attribute.String("attachment.mime", payload.mimeType),
		attribute.Int("attachment.size", len(payload.content)),
	)

	url, err := s.storage.Upload(ctx, fmt.Sprintf("log-%d-%s", log.ID, payload.name), bytes.NewReader(payload.content))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "storage failed")
		return dto.AttachmentResponse{}, err
	}

	attachment := models.LogAttachment{
		LogID:     log.ID,
		Kind:      payload.kind,
		FileName:  payload.name,
		URL:       url,
		MimeType:  payload.mimeType,
		SizeBytes: int64(len(payload.content)),
	}
	if err := s.logs.AddAttachment(ctx, &attachment); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persistence failed")
		return dto.AttachmentResponse{}, err
	}

	observability.AttachmentUploadBytes().WithLabelValues(string(payload.kind)).Observe(float64(attachment.SizeBytes))
	s.record(ctx, actor, "log.attachment_added", log.ID, map[string]interface{}{"kind": string(payload.kind), "mime_type": payload.mimeType})
	span.SetStatus(codes.Ok, "stored")

	return dto.NewAttachmentResponse(attachment), nil
}

func (s *logService) AvailableTransitions(ctx context.Context, actor Actor, id uint) (dto.AvailableTransitionsResponse, error) {
	log, err := s.load(ctx, actor, id)
	if err != nil {
		return dto.AvailableTransitionsResponse{}, err
	}

	targets := lifecycle.AvailableTargets(actor.Role, log.Status)
	response := dto.AvailableTransitionsResponse{
		LogID:    log.ID,
		Status:   string(log.Status),
		Role:     string(actor.Role),
		Targets:  make([]string, 0, len(targets)),
		Editable: actor.Role == models.RoleStudent && lifecycle.Editable(log.Status),
	}
	for _, target := range targets {
		response.Targets = append(response.Targets, string(target))
	}
	return response, nil
}

// Events lists the ledger entries of one log, oldest first.
func (s *logService) Events(ctx context.Context, actor Actor, id uint) ([]dto.XPEventResponse, error) {
	log, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	events, err := s.aggregates.ListEvents(ctx, log.ID)
	if err != nil {
		return nil, err
	}
	return dto.NewXPEventResponseSlice(events), nil
}

func (s *logService) Transition(ctx context.Context, actor Actor, id uint, payload dto.TransitionRequest) (dto.TransitionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.TransitionResponse{}, err
	}

	ctx, span := s.tracer.Start(ctx, "logs.transition", trace.WithAttributes(
		attribute.Int("log.id", int(id)),
		attribute.String("log.target", payload.Target),
		attribute.String("actor.role", string(actor.Role)),
	))
	defer span.End()

	request := s.buildRequest(actor, payload)

	var (
		outcome transitionOutcome
		err     error
	)
	for attempt := 0; attempt < transitionAttempts; attempt++ {
		outcome, err = s.transitionOnce(ctx, actor, id, request)
		if !errors.Is(err, repository.ErrConcurrentModification) {
			break
		}
		observability.TransitionConflicts().Inc()
		s.logger.Warn().Uint("log_id", id).Int("attempt", attempt+1).Msg("transition lost optimistic check")
	}

	if err != nil {
		var illegal *lifecycle.IllegalTransitionError
		if errors.As(err, &illegal) {
			observability.LogTransitions().WithLabelValues(string(illegal.From), string(illegal.To), "rejected").Inc()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "transition failed")
		return dto.TransitionResponse{}, err
	}

	s.afterCommit(ctx, actor, outcome)
	span.SetStatus(codes.Ok, "committed")

	return outcome.response(), nil
}

// transitionOutcome is everything a committed transition produced.
type transitionOutcome struct {
	log           models.DailyLog
	event         lifecycle.LifecycleEvent
	score         gamification.ScoreResult
	previousLevel int
	aggregate     models.StudentAggregate
	newBadges     []string
}

func (o transitionOutcome) response() dto.TransitionResponse {
	awards := make([]dto.AwardResponse, 0, len(o.score.Awards))
	for _, award := range o.score.Awards {
		awards = append(awards, dto.AwardResponse{Reason: award.Reason, Points: award.Points})
	}
	badges := append([]string{}, o.newBadges...)

	return dto.TransitionResponse{
		Log:           dto.NewLogResponse(o.log),
		EventID:       o.event.ID,
		XPDelta:       o.score.XPDelta,
		Awards:        awards,
		TotalXP:       o.aggregate.TotalXP,
		Level:         o.aggregate.CurrentLevel,
		LeveledUp:     o.aggregate.CurrentLevel > o.previousLevel,
		CurrentStreak: o.aggregate.CurrentStreak,
		NewBadges:     badges,
	}
}

func (s *logService) transitionOnce(ctx context.Context, actor Actor, id uint, request lifecycle.TransitionRequest) (transitionOutcome, error) {
	log, err := s.load(ctx, actor, id)
	if err != nil {
		return transitionOutcome{}, err
	}

	result, err := s.machine.RequestTransition(log, request)
	if err != nil {
		return transitionOutcome{}, err
	}

	aggregate, err := s.aggregates.GetOrInit(ctx, log.StudentID)
	if err != nil {
		return transitionOutcome{}, err
	}

	score := s.engine.ScoreEvent(result.Event, aggregate)
	if score.Clamped {
		observability.InvariantViolations().WithLabelValues("negative_xp").Inc()
	}
	next := s.engine.Apply(aggregate, score)

	updated := result.Log
	updated.XPEarned += score.XPDelta
	if updated.XPEarned < 0 {
		updated.XPEarned = 0
	}

	history, err := s.logs.ListByStudent(ctx, log.StudentID)
	if err != nil {
		return transitionOutcome{}, err
	}
	for i := range history {
		if history[i].ID == updated.ID {
			history[i] = updated
		}
	}

	earned := s.evaluator.Evaluate(next, history)
	next, added := s.evaluator.Merge(next, earned)

	badges := make([]models.StudentBadge, 0, len(added))
	for _, key := range added {
		badges = append(badges, models.StudentBadge{StudentID: log.StudentID, BadgeKey: key, EarnedAt: result.Event.OccurredAt})
	}

	awards := datatypes.JSONMap{}
	for _, award := range score.Awards {
		awards[award.Reason] = award.Points
	}

	commit := repository.TransitionCommit{
		Log:            updated,
		ExpectedStatus: log.Status,
		Revision:       result.Revision,
		Aggregate:      next,
		Event: models.LogEvent{
			ID:         result.Event.ID,
			LogID:      updated.ID,
			StudentID:  updated.StudentID,
			FromStatus: result.Event.From,
			ToStatus:   result.Event.To,
			ActorRole:  result.Event.ActorRole,
			ActorID:    result.Event.ActorID,
			XPDelta:    score.XPDelta,
			Awards:     awards,
			Feedback:   result.Event.Feedback,
			OccurredAt: result.Event.OccurredAt,
		},
		Badges: badges,
	}

	if err := s.logs.CommitTransition(ctx, commit); err != nil {
		return transitionOutcome{}, err
	}

	next.Version++
	return transitionOutcome{
		log:           updated,
		event:         result.Event,
		score:         score,
		previousLevel: aggregate.CurrentLevel,
		aggregate:     next,
		newBadges:     added,
	}, nil
}

// afterCommit runs the side effects of a committed transition. Failures are
// logged only; the transition itself already succeeded.
func (s *logService) afterCommit(ctx context.Context, actor Actor, outcome transitionOutcome) {
	event := outcome.event
	observability.LogTransitions().WithLabelValues(string(event.From), string(event.To), "committed").Inc()
	for _, award := range outcome.score.Awards {
		direction := "granted"
		points := award.Points
		if points < 0 {
			direction = "deducted"
			points = -points
		}
		observability.XPAwarded().WithLabelValues(award.Reason, direction).Add(float64(points))
	}
	for _, key := range outcome.newBadges {
		observability.BadgesAwarded().WithLabelValues(key).Inc()
	}

	s.record(ctx, actor, "log."+string(event.To), outcome.log.ID, map[string]interface{}{
		"from_status": string(event.From),
		"to_status":   string(event.To),
		"xp_delta":    outcome.score.XPDelta,
		"event_id":    event.ID,
	})

	intents := lifecycle.TransitionIntents(outcome.log, event)
	intents = append(intents, gamification.BadgeIntents(outcome.log.StudentID, outcome.newBadges)...)
	if intent, ok := gamification.LevelUpIntent(outcome.log.StudentID, outcome.previousLevel, outcome.aggregate.CurrentLevel); ok {
		observability.LevelUps().Inc()
		intents = append(intents, intent)
	}

	if s.notifier != nil && len(intents) > 0 {
		if err := s.notifier.Deliver(ctx, intents); err != nil {
			s.logger.Warn().Err(err).Str("event_id", event.ID).Msg("failed to deliver transition notifications")
		}
	}

	if s.events != nil {
		if err := s.events.PublishTransition(ctx, event, outcome.score.XPDelta, outcome.newBadges); err != nil {
			s.logger.Warn().Err(err).Str("event_id", event.ID).Msg("failed to publish lifecycle event")
		}
	}

	if s.progress != nil {
		s.progress.Invalidate(ctx, outcome.log.StudentID)
	}

	s.logger.Info().
		Str("event_id", event.ID).
		Uint("log_id", outcome.log.ID).
		Str("from", string(event.From)).
		Str("to", string(event.To)).
		Int("xp_delta", outcome.score.XPDelta).
		Int("total_xp", outcome.aggregate.TotalXP).
		Strs("badges", outcome.newBadges).
		Msg("log transition committed")
}

func (s *logService) buildRequest(actor Actor, payload dto.TransitionRequest) lifecycle.TransitionRequest {
	request := lifecycle.TransitionRequest{
		Target:       models.LogStatus(payload.Target),
		ActorRole:    actor.Role,
		ActorID:      actor.ID,
		AdvisorNotes: s.cleanRich(payload.AdvisorNotes),
		At:           s.now(),
	}

	if payload.Rating > 0 || payload.Comments != "" || len(payload.Competencies) > 0 || payload.RevisionNotes != "" {
		request.Feedback = &lifecycle.FeedbackInput{
			Rating:        payload.Rating,
			Comments:      s.cleanRich(payload.Comments),
			Competencies:  payload.Competencies,
			RevisionNotes: s.cleanRich(payload.RevisionNotes),
		}
	}

	if payload.NewContent != "" || payload.PreviousContent != "" || payload.Reason != "" {
		request.Revision = &lifecycle.RevisionInput{
			PreviousContent: s.cleanRich(payload.PreviousContent),
			NewContent:      s.cleanRich(payload.NewContent),
			Reason:          s.cleanRich(payload.Reason),
		}
	}

	return request
}

func (s *logService) load(ctx context.Context, actor Actor, id uint) (models.DailyLog, error) {
	log, err := s.logs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.DailyLog{}, ErrLogNotFound
		}
		return models.DailyLog{}, err
	}
	if !canAccess(actor, log) {
		return models.DailyLog{}, ErrLogForbidden
	}
	return log, nil
}

func (s *logService) loadEditable(ctx context.Context, actor Actor, id uint) (models.DailyLog, error) {
	log, err := s.load(ctx, actor, id)
	if err != nil {
		return models.DailyLog{}, err
	}
	if actor.Role != models.RoleStudent || log.StudentID != actor.ID {
		return models.DailyLog{}, ErrLogForbidden
	}
	if !lifecycle.Editable(log.Status) {
		return models.DailyLog{}, ErrLogNotEditable
	}
	return log, nil
}

func (s *logService) record(ctx context.Context, actor Actor, action string, logID uint, metadata map[string]interface{}) {
	if s.activity == nil {
		return
	}
	entityID := logID
	if _, err := s.activity.Record(ctx, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  string(actor.Role),
		Action:     action,
		EntityType: repository.EntityDailyLog,
		EntityID:   &entityID,
		Metadata:   metadata,
	}); err != nil {
		s.logger.Warn().Err(err).Str("action", action).Uint("log_id", logID).Msg("failed to record activity")
	}
}

func (s *logService) cleanText(value string) string {
	return strings.TrimSpace(s.text.Sanitize(value))
}

func (s *logService) cleanRich(value string) string {
	return strings.TrimSpace(s.rich.Sanitize(value))
}

func (s *logService) cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if cleaned := s.cleanText(value); cleaned != "" {
			out = append(out, cleaned)
		}
	}
	return out
}
