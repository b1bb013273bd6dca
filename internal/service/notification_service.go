package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"github.com/noah-isme/internlog-api/internal/dto"
	"github.com/noah-isme/internlog-api/internal/lifecycle"
	"github.com/noah-isme/internlog-api/internal/models"
	"github.com/noah-isme/internlog-api/internal/observability"
	"github.com/noah-isme/internlog-api/internal/repository"
)

const notificationBufferSize = 16

// ErrNotificationUserRequired indicates the inbox owner was not provided.
var ErrNotificationUserRequired = errors.New("user id is required")

// NotificationService persists intents as inbox entries and streams them to connected clients.
type NotificationService interface {
	IntentDeliverer
	List(ctx context.Context, userID string, query dto.NotificationListQuery) (dto.NotificationListResponse, error)
	MarkRead(ctx context.Context, id uint, userID string) (dto.NotificationResponse, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	Subscribe(userID string) (<-chan dto.NotificationResponse, func())
	Start(ctx context.Context)
}

type notificationService struct {
	repo        repository.NotificationRepository
	redis       *redis.Client
	redisStream string
	nats        *nats.Conn
	natsSubject string
	validator   *validator.Validate
	logger      zerolog.Logger
	tracer      trace.Tracer
	sanitizer   *bluemonday.Policy
	broker      *notificationBroker
	nodeID      string
}

type notificationEvent struct {
	Source       string                   `json:"source"`
	Notification dto.NotificationResponse `json:"notification"`
	SentAt       time.Time                `json:"sent_at"`
}

type notificationBroker struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan dto.NotificationResponse]struct{}
}

// NewNotificationService constructs a notification service. Redis and NATS are optional fan-out transports
// that keep SSE and websocket clients on other replicas in sync.
func NewNotificationService(repo repository.NotificationRepository, redisClient *redis.Client, channelBase string, natsConn *nats.Conn, validate *validator.Validate, logger zerolog.Logger) NotificationService {
	stream := ""
	subject := ""
	if channelBase != "" {
		stream = channelBase + ":notifications"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".notifications"
	}

	return &notificationService{
		repo:        repo,
		redis:       redisClient,
		redisStream: stream,
		nats:        natsConn,
		natsSubject: subject,
		validator:   validate,
		logger:      logger.With().Str("component", "notification_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/internlog-api/internal/service/notification"),
		sanitizer:   bluemonday.StrictPolicy(),
		broker: &notificationBroker{
			subscribers: make(map[string]map[chan dto.NotificationResponse]struct{}),
		},
		nodeID: uuid.NewString(),
	}
}

func (s *notificationService) Start(ctx context.Context) {
	if s.redis != nil && s.redisStream != "" {
		go s.consumeRedis(ctx)
	}
	if s.nats != nil && s.natsSubject != "" {
		go s.consumeNATS(ctx)
	}
}

// Deliver stores every intent and pushes it to live subscribers. It keeps going
// after a failed intent and returns the joined errors.
func (s *notificationService) Deliver(ctx context.Context, intents []lifecycle.NotificationIntent) error {
	spanCtx, span := s.tracer.Start(ctx, "notifications.deliver", trace.WithAttributes(attribute.Int("notification.count", len(intents))))
	defer span.End()

	var errs []error
	for _, intent := range intents {
		if err := s.deliverOne(spanCtx, intent); err != nil {
			span.RecordError(err)
			errs = append(errs, fmt.Errorf("deliver %s to %s: %w", intent.Type, intent.UserID, err))
		}
	}
	return errors.Join(errs...)
}

func (s *notificationService) deliverOne(ctx context.Context, intent lifecycle.NotificationIntent) error {
	userID := strings.TrimSpace(intent.UserID)
	if userID == "" {
		return ErrNotificationUserRequired
	}

	message := strings.TrimSpace(s.sanitizer.Sanitize(renderMessage(intent)))
	if message == "" {
		return errors.New("notification message empty after sanitization")
	}

	payload := datatypes.JSONMap{}
	for key, value := range intent.Payload {
		if text, ok := value.(string); ok {
			value = s.sanitizer.Sanitize(text)
		}
		payload[key] = value
	}

	model := models.Notification{
		UserID:  userID,
		Type:    intent.Type,
		Message: message,
		Payload: payload,
	}
	if err := s.repo.Create(ctx, &model); err != nil {
		return err
	}

	response := dto.NewNotificationResponse(model)
	s.broker.broadcast(response.UserID, response)
	if err := s.publish(ctx, response); err != nil {
		s.logger.Warn().Err(err).Msg("failed to publish notification to broker")
	}

	observability.NotificationsPublishedTotal().WithLabelValues(response.Type).Inc()
	return nil
}

func renderMessage(intent lifecycle.NotificationIntent) string {
	title, _ := intent.Payload["title"].(string)
	if title == "" {
		title = "your daily log"
	}

	switch intent.Type {
	case "log.submitted":
		return fmt.Sprintf("New daily log submitted for review: %s", title)
	case "log.under_review":
		return fmt.Sprintf("Your mentor started reviewing %s", title)
	case "log.approved":
		return fmt.Sprintf("Daily log approved: %s", title)
	case "log.needs_revision":
		if notes, ok := intent.Payload["revision_notes"].(string); ok && notes != "" {
			return fmt.Sprintf("Revision requested on %s: %s", title, notes)
		}
		return fmt.Sprintf("Revision requested on %s", title)
	case "log.revised":
		return fmt.Sprintf("Revised daily log ready for review: %s", title)
	case "log.validated":
		return fmt.Sprintf("Daily log validated by your advisor: %s", title)
	case "badge.earned":
		badge, _ := intent.Payload["badge"].(string)
		return fmt.Sprintf("You earned the %s badge", badge)
	case "level.up":
		name, _ := intent.Payload["name"].(string)
		return fmt.Sprintf("Level up! You reached level %v (%s)", intent.Payload["level"], name)
	default:
		return intent.Type
	}
}

func (s *notificationService) List(ctx context.Context, userID string, query dto.NotificationListQuery) (dto.NotificationListResponse, error) {
	if strings.TrimSpace(userID) == "" {
		return dto.NotificationListResponse{}, ErrNotificationUserRequired
	}
	if err := s.validator.Struct(query); err != nil {
		return dto.NotificationListResponse{}, err
	}

	notifications, err := s.repo.List(ctx, repository.NotificationFilter{
		UserID:     userID,
		UnreadOnly: query.UnreadOnly,
		Limit:      query.Limit,
		Offset:     query.Offset,
	})
	if err != nil {
		return dto.NotificationListResponse{}, err
	}

	unread, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return dto.NotificationListResponse{}, err
	}

	return dto.NotificationListResponse{
		Items:       dto.NewNotificationResponseSlice(notifications),
		UnreadCount: unread,
	}, nil
}

func (s *notificationService) MarkRead(ctx context.Context, id uint, userID string) (dto.NotificationResponse, error) {
	spanCtx, span := s.tracer.Start(ctx, "notifications.mark_read", trace.WithAttributes(attribute.String("notification.user_id", userID)))
	defer span.End()

	notification, err := s.repo.MarkRead(spanCtx, id, userID)
	if err != nil {
		span.RecordError(err)
		return dto.NotificationResponse{}, err
	}

	return dto.NewNotificationResponse(notification), nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, ErrNotificationUserRequired
	}
	return s.repo.MarkAllRead(ctx, userID)
}

func (s *notificationService) Subscribe(userID string) (<-chan dto.NotificationResponse, func()) {
	channel := make(chan dto.NotificationResponse, notificationBufferSize)

	s.broker.subscribe(userID, channel)
	observability.SSEClientsActive().Inc()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			s.broker.unsubscribe(userID, channel)
			observability.SSEClientsActive().Dec()
		})
	}

	return channel, cleanup
}

func (s *notificationService) publish(ctx context.Context, notification dto.NotificationResponse) error {
	if (s.redis == nil || s.redisStream == "") && (s.nats == nil || s.natsSubject == "") {
		return nil
	}

	payload, err := json.Marshal(notificationEvent{
		Source:       s.nodeID,
		Notification: notification,
		SentAt:       time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	if s.redis != nil && s.redisStream != "" {
		if err := s.redis.Publish(ctx, s.redisStream, payload).Err(); err != nil {
			return err
		}
	}

	if s.nats != nil && s.natsSubject != "" {
		if err := s.nats.Publish(s.natsSubject, payload); err != nil {
			return err
		}
	}

	return nil
}

func (s *notificationService) consumeRedis(ctx context.Context) {
	pubsub := s.redis.Subscribe(ctx, s.redisStream)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			s.logger.Error().Err(err).Msg("notification redis subscription closed")
			return
		}
		s.handleEvent([]byte(msg.Payload))
	}
}

func (s *notificationService) consumeNATS(ctx context.Context) {
	// Each replica needs every event for its own subscribers, so this is a plain subscription.
	sub, err := s.nats.Subscribe(s.natsSubject, func(msg *nats.Msg) {
		s.handleEvent(msg.Data)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to nats notifications subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain notification nats subscription")
		}
	}()
}

func (s *notificationService) handleEvent(payload []byte) {
	var event notificationEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		s.logger.Warn().Err(err).Msg("invalid notification event payload")
		return
	}

	if event.Source == s.nodeID {
		return
	}

	s.broker.broadcast(event.Notification.UserID, event.Notification)
}

func (b *notificationBroker) subscribe(userID string, ch chan dto.NotificationResponse) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[userID]; !exists {
		b.subscribers[userID] = make(map[chan dto.NotificationResponse]struct{})
	}
	b.subscribers[userID][ch] = struct{}{}
}

func (b *notificationBroker) unsubscribe(userID string, ch chan dto.NotificationResponse) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subscribers, ok := b.subscribers[userID]; ok {
		if _, present := subscribers[ch]; !present {
			return
		}
		delete(subscribers, ch)
		close(ch)
		if len(subscribers) == 0 {
			delete(b.subscribers, userID)
		}
	}
}

// broadcast drops the message for subscribers whose buffer is full.
func (b *notificationBroker) broadcast(userID string, notification dto.NotificationResponse) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers[userID] {
		select {
		case ch <- notification:
		default:
		}
	}
}
