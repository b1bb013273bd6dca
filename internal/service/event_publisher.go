package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/noah-isme/internlog-api/internal/lifecycle"
)

// EventPublisher streams committed lifecycle events to external consumers.
type EventPublisher interface {
	PublishTransition(ctx context.Context, event lifecycle.LifecycleEvent, xpDelta int, badges []string) error
}

// LifecycleEventMessage is the wire format published for every committed transition.
type LifecycleEventMessage struct {
	EventID    string    `json:"event_id"`
	LogID      uint      `json:"log_id"`
	StudentID  uint      `json:"student_id"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	ActorRole  string    `json:"actor_role"`
	ActorID    uint      `json:"actor_id"`
	XPDelta    int       `json:"xp_delta"`
	Badges     []string  `json:"badges,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type natsEventPublisher struct {
	conn    *nats.Conn
	subject string
	logger  zerolog.Logger
}

// NewNATSEventPublisher publishes lifecycle events on `<channelBase>.logs.events`.
// A nil connection yields a publisher that drops events.
func NewNATSEventPublisher(conn *nats.Conn, channelBase string, logger zerolog.Logger) EventPublisher {
	return &natsEventPublisher{
		conn:    conn,
		subject: LogEventsSubject(channelBase),
		logger:  logger.With().Str("component", "event_publisher").Logger(),
	}
}

// LogEventsSubject returns the subject events are published on.
func LogEventsSubject(channelBase string) string {
	base := strings.ReplaceAll(strings.TrimSpace(channelBase), ":", ".")
	if base == "" {
		base = "internlog"
	}
	return base + ".logs.events"
}

func (p *natsEventPublisher) PublishTransition(ctx context.Context, event lifecycle.LifecycleEvent, xpDelta int, badges []string) error {
	if p.conn == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(LifecycleEventMessage{
		EventID:    event.ID,
		LogID:      event.LogID,
		StudentID:  event.StudentID,
		From:       string(event.From),
		To:         string(event.To),
		ActorRole:  string(event.ActorRole),
		ActorID:    event.ActorID,
		XPDelta:    xpDelta,
		Badges:     badges,
		OccurredAt: event.OccurredAt,
	})
	if err != nil {
		return err
	}

	msg := nats.NewMsg(p.subject)
	msg.Data = payload
	msg.Header.Set(nats.MsgIdHdr, event.ID)
	if err := p.conn.PublishMsg(msg); err != nil {
		return err
	}

	p.logger.Debug().Str("event_id", event.ID).Str("subject", p.subject).Msg("lifecycle event published")
	return nil
}
