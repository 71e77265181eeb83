package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/layer-3/gatekeeper/core"
	"github.com/layer-3/gatekeeper/ports"
)

const (
	TopicLogout           = "gatekeeper.session.logout"
	TopicRefreshRejected  = "gatekeeper.session.refresh_rejected"
	metadataPrincipalID   = "principal_id"
	metadataEventOccurred = "occurred_at"
)

// LogoutEvent is published when a principal's refresh record is deleted
type LogoutEvent struct {
	PrincipalID string    `json:"principal_id"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// RefreshRejectedEvent is published when a presented refresh token does not match the record
type RefreshRejectedEvent struct {
	PrincipalID string      `json:"principal_id"`
	Reason      core.Reason `json:"reason"`
	OccurredAt  time.Time   `json:"occurred_at"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
	now       func() time.Time
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher) ports.EventPublisher {
	return &WatermillPublisher{
		publisher: publisher,
		now:       time.Now,
	}
}

// PublishLogout publishes a logout event
func (p *WatermillPublisher) PublishLogout(ctx context.Context, principalID string) error {
	return p.publish(ctx, TopicLogout, principalID, LogoutEvent{
		PrincipalID: principalID,
		OccurredAt:  p.now().UTC(),
	})
}

// PublishRefreshRejected publishes a rejected refresh event
func (p *WatermillPublisher) PublishRefreshRejected(ctx context.Context, principalID string, reason core.Reason) error {
	return p.publish(ctx, TopicRefreshRejected, principalID, RefreshRejectedEvent{
		PrincipalID: principalID,
		Reason:      reason,
		OccurredAt:  p.now().UTC(),
	})
}

func (p *WatermillPublisher) publish(ctx context.Context, topic, principalID string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(metadataPrincipalID, principalID)
	msg.Metadata.Set(metadataEventOccurred, p.now().UTC().Format(time.RFC3339))
	msg.SetContext(ctx)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// NoopPublisher drops every event. It is used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishLogout(context.Context, string) error { return nil }

func (NoopPublisher) PublishRefreshRejected(context.Context, string, core.Reason) error { return nil }
