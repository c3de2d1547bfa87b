package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"intervue/internal/common/mq"

	"github.com/google/uuid"
)

// SessionEventType enumerates lifecycle transitions worth auditing.
type SessionEventType string

const (
	SessionEventCreated          SessionEventType = "created"
	SessionEventCompleted        SessionEventType = "completed"
	SessionEventAbandoned        SessionEventType = "abandoned"
	SessionEventExpiredAutoClose SessionEventType = "expired_autosubmit"
)

// SessionEvent is the kafka payload for one lifecycle transition.
type SessionEvent struct {
	EventID    string           `json:"event_id"`
	SessionID  string           `json:"session_id"`
	UserID     int64            `json:"user_id"`
	Type       SessionEventType `json:"type"`
	OccurredAt int64            `json:"occurred_at"`
}

// SessionEventPublisher publishes lifecycle events for async consumers.
type SessionEventPublisher interface {
	PublishLifecycle(ctx context.Context, sessionID string, userID int64, eventType SessionEventType) error
}

// MQSessionEventPublisher publishes lifecycle events to a message queue.
type MQSessionEventPublisher struct {
	producer mq.Producer
	topic    string
}

// NewMQSessionEventPublisher creates a new MQ session event publisher.
func NewMQSessionEventPublisher(producer mq.Producer, topic string) *MQSessionEventPublisher {
	return &MQSessionEventPublisher{producer: producer, topic: topic}
}

// PublishLifecycle publishes one lifecycle event, keyed by session id so
// per-session ordering is preserved within a partition.
func (p *MQSessionEventPublisher) PublishLifecycle(ctx context.Context, sessionID string, userID int64, eventType SessionEventType) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("session event publisher is not configured")
	}
	if p.topic == "" {
		return fmt.Errorf("session event topic is required")
	}
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	event := SessionEvent{
		EventID:    uuid.NewString(),
		SessionID:  sessionID,
		UserID:     userID,
		Type:       eventType,
		OccurredAt: time.Now().Unix(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal session event failed: %w", err)
	}
	message := mq.NewMessage(payload)
	message.ID = sessionID
	if err := p.producer.Publish(ctx, p.topic, message); err != nil {
		return fmt.Errorf("publish session event failed: %w", err)
	}
	return nil
}
